// Package store persists JSON documents under the data root. Writes are
// atomic: a uniquely named temp file in the target directory is renamed over
// the destination, with retries for transiently refused renames and a final
// degradation to a direct overwrite so a locked reader cannot fail the whole
// pipeline.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	renameMaxRetries      = 8
	renameInitialInterval = 200 * time.Millisecond

	dirPerm  = 0o755
	filePerm = 0o644
)

// Store reads and writes JSON documents rooted at a data directory.
type Store struct {
	root   string
	logger *zerolog.Logger
}

func New(root string, logger *zerolog.Logger) *Store {
	return &Store{root: root, logger: logger}
}

// Root returns the data root directory.
func (s *Store) Root() string { return s.root }

// Ping verifies the data root exists and is usable, creating it when absent.
func (s *Store) Ping() error {
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return fmt.Errorf("data root %s: %w", s.root, err)
	}

	return nil
}

// Write marshals v with two-space indentation and a trailing newline and
// persists it atomically at path (relative to the data root).
func (s *Store) Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	data = append(data, '\n')

	target := filepath.Join(s.root, path)
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return fmt.Errorf("creating parent dir for %s: %w", path, err)
	}

	if err := s.atomicReplace(target, data); err == nil {
		return nil
	}

	// Atomic replacement kept failing; degrade to a direct overwrite.
	s.logger.Warn().Str("path", path).Msg("atomic rename exhausted retries, falling back to direct write")

	if err := os.WriteFile(target, data, filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func (s *Store) atomicReplace(target string, data []byte) error {
	op := func() error {
		tmp := fmt.Sprintf("%s.%s.tmp", target, uuid.NewString())

		if err := os.WriteFile(tmp, data, filePerm); err != nil {
			return backoff.Permanent(err)
		}

		if err := os.Rename(tmp, target); err != nil {
			_ = os.Remove(tmp) //nolint:errcheck // best-effort temp cleanup

			return err
		}

		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = renameInitialInterval

	return backoff.Retry(op, backoff.WithMaxRetries(bo, renameMaxRetries))
}

// Read unmarshals the document at path into v. It returns false on a missing
// file or malformed content; the caller keeps its default value.
func (s *Store) Read(path string, v any) bool {
	data, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil {
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("ignoring malformed document")

		return false
	}

	return true
}

// Exists reports whether the document at path is present.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(s.root, path))

	return err == nil
}
