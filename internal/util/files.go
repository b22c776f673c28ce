package util

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// OverwriteFile writes content to path with perm, creating or truncating it.
// The data is written to a temporary file in the same directory and renamed
// into place, so readers never observe a partial file.
func OverwriteFile(path string, content []byte, perm os.FileMode) (err error) {
	sanitizedPath := SanitizePath(path)
	log.Debug().Str("component", "util").Str("path", sanitizedPath).Int("bytes", len(content)).Msgf("Writing file with permissions %o", perm)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", sanitizedPath, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file for %s: %w", sanitizedPath, err)
	}
	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", sanitizedPath, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", sanitizedPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", sanitizedPath, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", sanitizedPath, err)
	}
	return nil
}

// SecureDelete removes path. With secure set the file is first overwritten
// with random data. Failures are logged, not returned.
func SecureDelete(path string, secure bool) {
	sanitizedPath := SanitizePath(path)
	if secure {
		if err := scrub(path); err != nil {
			log.Error().Err(err).Str("path", sanitizedPath).Msg("Failed to overwrite file during secure delete, removing anyway")
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", sanitizedPath).Msg("Failed to remove file")
		return
	}
	log.Debug().Str("component", "util").Str("path", sanitizedPath).Bool("secure", secure).Msg("File removed")
}

// scrub overwrites a file in place with random data, single pass.
func scrub(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open for overwrite: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat for overwrite: %w", err)
	}

	buf := make([]byte, 4096)
	for remaining := info.Size(); remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return fmt.Errorf("read random data: %w", err)
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return fmt.Errorf("overwrite: %w", err)
		}
		remaining -= n
	}
	return f.Sync()
}
