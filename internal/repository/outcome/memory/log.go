// Package memory is a bounded in-process outcome log.
package memory

import (
	"context"
	"sync"

	"github.com/kailas-cloud/aim3/internal/domain/outcome"
)

// Log keeps the newest capacity records. Safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	records  []outcome.Record
	capacity int
}

// New creates a log that retains at most capacity records (minimum 1).
func New(capacity int) *Log {
	return &Log{capacity: max(capacity, 1)}
}

// Append adds a record, evicting the oldest when full.
func (l *Log) Append(_ context.Context, r outcome.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, r)
	if over := len(l.records) - l.capacity; over > 0 {
		l.records = append(l.records[:0:0], l.records[over:]...)
	}
	return nil
}

// Recent returns up to n newest records, oldest first.
func (l *Log) Recent(_ context.Context, n int) ([]outcome.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || len(l.records) == 0 {
		return []outcome.Record{}, nil
	}
	start := max(len(l.records)-n, 0)
	out := make([]outcome.Record, len(l.records)-start)
	copy(out, l.records[start:])
	return out, nil
}
