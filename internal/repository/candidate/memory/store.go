// Package memory is the in-process candidate store: a brute-force cosine scan.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/hupe1980/vecgo/distance"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
)

type entry struct {
	id   string
	unit []float32 // L2-normalized copy; nil for zero vectors
	meta artifact.Metadata
}

// Store keeps artifacts in insertion order. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
	dim     int
}

// New creates an empty store. dim 0 adopts the dimension of the first upsert.
func New(dim int) *Store {
	return &Store{byID: make(map[string]int), dim: dim}
}

// Upsert stores or replaces an artifact. A replaced artifact keeps its insertion position.
func (s *Store) Upsert(_ context.Context, a artifact.Artifact) error {
	emb := a.Embedding()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = len(emb)
	}
	if len(emb) != s.dim {
		return fmt.Errorf("upsert %s: got %d, want %d: %w", a.ID(), len(emb), s.dim, domain.ErrVectorDimMismatch)
	}

	unit, ok := distance.NormalizeL2Copy(emb)
	if !ok {
		unit = nil
	}
	e := entry{id: a.ID(), unit: unit, meta: a.Metadata()}

	if i, exists := s.byID[e.id]; exists {
		s.entries[i] = e
		return nil
	}
	s.byID[e.id] = len(s.entries)
	s.entries = append(s.entries, e)
	return nil
}

// QueryNearest returns up to k artifacts by descending cosine similarity.
// Ties keep insertion order. An empty store yields an empty slice.
func (s *Store) QueryNearest(_ context.Context, vec []float32, k int) ([]artifact.Candidate, error) {
	if k <= 0 {
		return []artifact.Candidate{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []artifact.Candidate{}, nil
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("query: got %d, want %d: %w", len(vec), s.dim, domain.ErrVectorDimMismatch)
	}

	q, ok := distance.NormalizeL2Copy(vec)

	out := make([]artifact.Candidate, len(s.entries))
	for i := range s.entries {
		e := &s.entries[i]
		var sim float64
		if ok && e.unit != nil {
			sim = float64(distance.Dot(q, e.unit))
		}
		out[i] = artifact.Candidate{ArtifactID: e.id, Similarity: sim, Metadata: e.meta.Clone()}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > k {
		out = slices.Clip(out[:k])
	}
	return out, nil
}

// Count returns the number of stored artifacts.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Ping always succeeds; the store lives in process memory.
func (s *Store) Ping(_ context.Context) error { return nil }
