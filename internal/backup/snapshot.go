// Package backup persists the credentials an init ceremony produces, the
// root token and the unseal key shares, so a later run can unseal the same
// server. Snapshots go to a local file and optionally to S3.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/d4rkfella/vaulted/internal/util"
	"github.com/d4rkfella/vaulted/pkg/session"
)

// FileName is the name of the local snapshot inside the backup directory.
const FileName = "vaulted-keys.json"

// ErrEmpty is returned for a snapshot carrying neither a token nor keys.
var ErrEmpty = errors.New("backup: snapshot holds no credentials")

// Snapshot is the on-disk record of a server's credentials.
type Snapshot struct {
	Address   string    `json:"address,omitempty"`
	RootToken string    `json:"root_token"`
	Keys      []string  `json:"keys"`
	Threshold int       `json:"threshold,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromSession captures the credentials s holds.
func FromSession(s *session.Session, address string) (*Snapshot, error) {
	snap := &Snapshot{
		Address:   address,
		RootToken: s.Token(),
		Keys:      s.Keys(),
		Threshold: s.CachedStatus().T,
		CreatedAt: time.Now().UTC(),
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Apply loads the snapshot's credentials into s.
func (snap *Snapshot) Apply(s *session.Session) {
	s.Restore(snap.RootToken, snap.Keys)
}

func (snap *Snapshot) validate() error {
	if snap.RootToken == "" && len(snap.Keys) == 0 {
		return ErrEmpty
	}
	return nil
}

// Marshal renders the snapshot as indented JSON.
func (snap *Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Parse decodes and validates a snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Zero clears the credentials from memory.
func (snap *Snapshot) Zero() {
	snap.RootToken = ""
	for i := range snap.Keys {
		snap.Keys[i] = ""
	}
	snap.Keys = nil
}

// Path returns the snapshot location inside dir.
func Path(dir string) string { return filepath.Join(dir, FileName) }

// Save writes snap to dir with owner-only permissions and returns the path.
func Save(dir string, snap *Snapshot) (string, error) {
	if err := snap.validate(); err != nil {
		return "", err
	}
	data, err := snap.Marshal()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir %s: %w", util.SanitizePath(dir), err)
	}
	path := Path(dir)
	if err := util.OverwriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	log.Info().
		Str("component", "backup").
		Str("path", util.SanitizePath(path)).
		Int("keys", len(snap.Keys)).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("Snapshot saved")
	return path, nil
}

// Load reads the snapshot saved in dir.
func Load(dir string) (*Snapshot, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", util.SanitizePath(path), err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", util.SanitizePath(path), err)
	}
	log.Debug().
		Str("component", "backup").
		Str("path", util.SanitizePath(path)).
		Time("created_at", snap.CreatedAt).
		Str("age", humanize.Time(snap.CreatedAt)).
		Msg("Snapshot loaded")
	return snap, nil
}
