// Package kv persists the strategy as a single JSON value in the key-value store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/aim3/internal/db"
	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/strategy"
)

// DefaultKey is the strategy key under the shared key prefix.
const DefaultKey = domain.KeyPrefix + "strategy"

// store is the consumer interface for strategy persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store keeps the strategy under one key. SET replaces the value atomically.
type Store struct {
	store store
	key   string
}

// New creates a KV-backed strategy store. Empty key uses DefaultKey.
func New(s store, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{store: s, key: key}
}

// Load reads the persisted strategy. A missing key yields domain.ErrNotFound.
func (s *Store) Load(ctx context.Context) (strategy.State, error) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return strategy.State{}, domain.ErrNotFound
		}
		return strategy.State{}, fmt.Errorf("get strategy %s: %w", s.key, err)
	}

	var st strategy.State
	if err := json.Unmarshal(data, &st); err != nil {
		return strategy.State{}, fmt.Errorf("decode strategy %s: %w", s.key, err)
	}
	return st, nil
}

// Save writes the whole record in one SET.
func (s *Store) Save(ctx context.Context, st strategy.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", domain.ErrPersistenceFailure, err)
	}
	if err := s.store.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("%w: set %s: %w", domain.ErrPersistenceFailure, s.key, err)
	}
	return nil
}
