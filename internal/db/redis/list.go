package redis

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/aim3/internal/db"
)

// LPushCapped prepends value and trims the list to maxLen in a single DoMulti round-trip.
func (s *Store) LPushCapped(ctx context.Context, key string, value []byte, maxLen int) error {
	if maxLen <= 0 {
		return fmt.Errorf("maxLen must be positive")
	}
	push := s.b().Lpush().Key(key).Element(string(value)).Build()
	trim := s.b().Ltrim().Key(key).Start(0).Stop(int64(maxLen - 1)).Build()

	results := s.client.DoMulti(ctx, push, trim)
	if err := results[0].Error(); err != nil {
		return &db.Error{Op: db.OpLPush, Err: err}
	}
	if err := results[1].Error(); err != nil {
		return &db.Error{Op: db.OpLTrim, Err: err}
	}
	return nil
}

// LRange returns up to n entries from the head of the list (newest first).
func (s *Store) LRange(ctx context.Context, key string, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	cmd := s.b().Lrange().Key(key).Start(0).Stop(int64(n - 1)).Build()
	items, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpLRange, Err: err}
	}
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = []byte(it)
	}
	return out, nil
}
