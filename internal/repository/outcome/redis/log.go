// Package redis keeps the outcome log as a capped Redis list of JSON entries.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/outcome"
)

// DefaultKey is the list key under the shared key prefix.
const DefaultKey = domain.KeyPrefix + "outcomes"

// store is the consumer interface for the outcome log (ISP).
type store interface {
	LPushCapped(ctx context.Context, key string, value []byte, maxLen int) error
	LRange(ctx context.Context, key string, n int) ([][]byte, error)
}

type entry struct {
	Gain      float64   `json:"gain"`
	TrustGain float64   `json:"trust_gain"`
	Cost      *float64  `json:"cost,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log appends to the list head and reads the newest entries.
type Log struct {
	store    store
	key      string
	capacity int
	logger   *zap.Logger
}

// New creates a list-backed outcome log retaining at most capacity entries.
func New(s store, key string, capacity int, logger *zap.Logger) *Log {
	if key == "" {
		key = DefaultKey
	}
	return &Log{store: s, key: key, capacity: max(capacity, 1), logger: logger}
}

// Append pushes a record and trims the list in the same round-trip.
func (l *Log) Append(ctx context.Context, r outcome.Record) error {
	data, err := json.Marshal(entry{Gain: r.Gain, TrustGain: r.TrustGain, Cost: r.Cost, Timestamp: r.Timestamp})
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := l.store.LPushCapped(ctx, l.key, data, l.capacity); err != nil {
		return fmt.Errorf("%w: append: %w", domain.ErrOutcomeSourceUnavailable, err)
	}
	return nil
}

// Recent returns up to n newest records, oldest first. Undecodable entries are skipped.
func (l *Log) Recent(ctx context.Context, n int) ([]outcome.Record, error) {
	raw, err := l.store.LRange(ctx, l.key, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOutcomeSourceUnavailable, err)
	}

	out := make([]outcome.Record, 0, len(raw))
	for _, b := range raw {
		var e entry
		if err := json.Unmarshal(b, &e); err != nil {
			if l.logger != nil {
				l.logger.Warn("Skipping malformed outcome entry", zap.String("key", l.key), zap.Error(err))
			}
			continue
		}
		out = append(out, outcome.Record{Gain: e.Gain, TrustGain: e.TrustGain, Cost: e.Cost, Timestamp: e.Timestamp})
	}
	slices.Reverse(out)
	return out, nil
}
