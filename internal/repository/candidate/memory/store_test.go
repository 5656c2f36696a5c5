package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/query"
)

func mustArtifact(t *testing.T, content string, emb []float32) artifact.Artifact {
	t.Helper()
	ctx, err := query.New("u", 0.5, query.Creative, 100, query.Present)
	if err != nil {
		t.Fatal(err)
	}
	a, err := artifact.New(content, emb, ctx, nil, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestQueryNearest_Empty(t *testing.T) {
	s := New(3)
	got, err := s.QueryNearest(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestQueryNearest_OrdersByCosine(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	for _, tc := range []struct {
		content string
		emb     []float32
	}{
		{"orthogonal", []float32{0, 1}},
		{"exact", []float32{2, 0}}, // magnitude must not matter
		{"diagonal", []float32{1, 1}},
	} {
		if err := s.Upsert(ctx, mustArtifact(t, tc.content, tc.emb)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.QueryNearest(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ArtifactID != artifact.ID("exact") || got[1].ArtifactID != artifact.ID("diagonal") {
		t.Errorf("unexpected order: %s, %s", got[0].ArtifactID, got[1].ArtifactID)
	}
	if got[0].Similarity < 0.9999 {
		t.Errorf("exact match similarity = %v", got[0].Similarity)
	}
}

func TestQueryNearest_TiesKeepInsertionOrder(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	ids := make([]string, 0, 5)
	for i := range 5 {
		a := mustArtifact(t, fmt.Sprintf("same-%d", i), []float32{1, 1})
		ids = append(ids, a.ID())
		if err := s.Upsert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	for range 3 {
		got, err := s.QueryNearest(ctx, []float32{1, 1}, 5)
		if err != nil {
			t.Fatal(err)
		}
		for i := range ids {
			if got[i].ArtifactID != ids[i] {
				t.Fatalf("position %d: got %s, want %s", i, got[i].ArtifactID, ids[i])
			}
		}
	}
}

func TestUpsert_ReplaceKeepsPosition(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, mustArtifact(t, "first", []float32{1, 0}))
	_ = s.Upsert(ctx, mustArtifact(t, "second", []float32{1, 0}))
	_ = s.Upsert(ctx, mustArtifact(t, "first", []float32{1, 0}))

	n, _ := s.Count(ctx)
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	got, _ := s.QueryNearest(ctx, []float32{1, 0}, 2)
	if got[0].ArtifactID != artifact.ID("first") {
		t.Errorf("replaced artifact moved: %s first", got[0].ArtifactID)
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := New(3)
	ctx := context.Background()
	if err := s.Upsert(ctx, mustArtifact(t, "x", []float32{1, 2})); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	_ = s.Upsert(ctx, mustArtifact(t, "y", []float32{1, 2, 3}))
	if _, err := s.QueryNearest(ctx, []float32{1}, 1); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestZeroVectorsScoreZero(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, mustArtifact(t, "zero", []float32{0, 0}))
	got, err := s.QueryNearest(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Similarity != 0 {
		t.Errorf("similarity = %v, want 0", got[0].Similarity)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New(4)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Upsert(ctx, mustArtifact(t, fmt.Sprintf("doc-%d", i), []float32{1, float32(i), 0, 1}))
		}()
		go func() {
			defer wg.Done()
			_, _ = s.QueryNearest(ctx, []float32{1, 0, 0, 1}, 3)
		}()
	}
	wg.Wait()
	if n, _ := s.Count(ctx); n != 8 {
		t.Errorf("count = %d, want 8", n)
	}
}
