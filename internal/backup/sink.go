package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/d4rkfella/vaulted/internal/retry"
	"github.com/d4rkfella/vaulted/internal/s3"
	"github.com/d4rkfella/vaulted/internal/util"
)

const (
	timeLayout      = "20060102-150405"
	objectPrefix    = "vaulted-keys-"
	objectExt       = ".json"
	checksumExt     = ".sha256"
	jsonContentType = "application/json"
)

// ErrChecksumMismatch is returned when a fetched snapshot does not match its
// sidecar checksum.
var ErrChecksumMismatch = errors.New("backup: checksum mismatch")

// Store is the object storage a Sink writes to.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]s3.Object, error)
	Latest(ctx context.Context, prefix, suffix string) (s3.Object, error)
	Delete(ctx context.Context, keys []string) error
}

var _ Store = (*s3.Client)(nil)

// Sink uploads snapshots with a checksum sidecar and prunes old ones.
type Sink struct {
	store     Store
	prefix    string
	retention time.Duration

	Retry retry.Config
	now   func() time.Time
}

// NewSink writes under prefix and keeps uploads for retention. A
// non-positive retention disables pruning.
func NewSink(store Store, prefix string, retention time.Duration) *Sink {
	return &Sink{
		store:     store,
		prefix:    strings.Trim(prefix, "/"),
		retention: retention,
		Retry:     retry.DefaultConfig(),
		now:       time.Now,
	}
}

func (s *Sink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func checksumLine(sum []byte, name string) string {
	return hex.EncodeToString(sum) + "  " + name + "\n"
}

// Upload sends the snapshot file at local to the store and returns its key.
// The local file is removed afterwards when removeLocal is set, overwriting
// it first when secure is set.
func (s *Sink) Upload(ctx context.Context, local string, removeLocal, secure bool) (string, error) {
	data, err := os.ReadFile(local)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", util.SanitizePath(local), err)
	}
	if _, err := Parse(data); err != nil {
		return "", err
	}

	name := objectPrefix + s.now().UTC().Format(timeLayout) + objectExt
	key := s.key(name)
	sum := sha256.Sum256(data)
	start := time.Now()

	put := func(k string, body []byte) retry.Operation {
		return func(ctx context.Context) error {
			return s.store.Put(ctx, k, bytes.NewReader(body), jsonContentType)
		}
	}
	if err := retry.Do(ctx, s.Retry, "S3Upload", put(key, data), s3.IsTransient); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	sidecar := []byte(checksumLine(sum[:], name))
	if err := retry.Do(ctx, s.Retry, "S3UploadChecksum", put(key+checksumExt, sidecar), s3.IsTransient); err != nil {
		return "", fmt.Errorf("upload checksum: %w", err)
	}

	log.Info().
		Str("component", "backup").
		Str("key", key).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Dur("duration", time.Since(start)).
		Msg("Snapshot uploaded")

	if removeLocal {
		util.SecureDelete(local, secure)
	}
	return key, nil
}

// Fetch downloads and verifies a snapshot. An empty key selects the most
// recent upload.
func (s *Sink) Fetch(ctx context.Context, key string) (*Snapshot, error) {
	if key == "" {
		latest, err := s.store.Latest(ctx, s.key(objectPrefix), objectExt)
		if err != nil {
			return nil, err
		}
		key = latest.Key
	} else {
		ok, err := s.store.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", s3.ErrNotFound, key)
		}
	}

	data, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	sidecar, err := s.read(ctx, key+checksumExt)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	fields := strings.Fields(string(sidecar))
	if len(fields) == 0 || !strings.EqualFold(fields[0], hex.EncodeToString(sum[:])) {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, key)
	}

	snap, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	log.Info().Str("component", "backup").Str("key", key).Str("age", humanize.Time(snap.CreatedAt)).Msg("Snapshot fetched")
	return snap, nil
}

func (s *Sink) read(ctx context.Context, key string) ([]byte, error) {
	body, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Prune deletes uploads older than the retention period. A snapshot and its
// sidecar are removed together, keyed off the sidecar's age. It returns the
// number of snapshots removed.
func (s *Sink) Prune(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	objects, err := s.store.List(ctx, s.key(objectPrefix))
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	var doomed []string
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, checksumExt) || !obj.LastModified.Before(cutoff) {
			continue
		}
		doomed = append(doomed, obj.Key, strings.TrimSuffix(obj.Key, checksumExt))
	}
	if len(doomed) == 0 {
		log.Debug().Str("component", "backup").Time("cutoff", cutoff).Msg("No snapshots past retention")
		return 0, nil
	}

	del := func(ctx context.Context) error { return s.store.Delete(ctx, doomed) }
	if err := retry.Do(ctx, s.Retry, "S3Delete", del, s3.IsTransient); err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	log.Info().Str("component", "backup").Int("count", len(doomed)/2).Dur("retention", s.retention).Msg("Old snapshots deleted")
	return len(doomed) / 2, nil
}
