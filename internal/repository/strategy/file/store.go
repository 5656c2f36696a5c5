// Package file persists the strategy as a JSON document on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/strategy"
)

// Store reads and writes one JSON file.
type Store struct {
	path string
}

// New creates a file-backed strategy store.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted strategy. A missing file yields domain.ErrNotFound.
func (s *Store) Load(_ context.Context) (strategy.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return strategy.State{}, domain.ErrNotFound
		}
		return strategy.State{}, fmt.Errorf("read strategy %s: %w", s.path, err)
	}

	var st strategy.State
	if err := json.Unmarshal(data, &st); err != nil {
		return strategy.State{}, fmt.Errorf("decode strategy %s: %w", s.path, err)
	}
	return st, nil
}

// Save replaces the file atomically: the new content is written to a sibling
// temp file, synced, then renamed over the old one.
func (s *Store) Save(ctx context.Context, st strategy.State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", domain.ErrPersistenceFailure, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", domain.ErrPersistenceFailure, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".strategy-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", domain.ErrPersistenceFailure, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error wins
		return fmt.Errorf("%w: write: %w", domain.ErrPersistenceFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error wins
		return fmt.Errorf("%w: sync: %w", domain.ErrPersistenceFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", domain.ErrPersistenceFailure, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: rename: %w", domain.ErrPersistenceFailure, err)
	}
	return nil
}
