package artifact

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain"
	domartifact "github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/query"
	"github.com/kailas-cloud/aim3/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterSearchMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockWriter struct {
	stored []domartifact.Artifact
	err    error
}

func (m *mockWriter) Upsert(_ context.Context, a domartifact.Artifact) error {
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, a)
	return nil
}

type mockEmbedder struct {
	calls    int
	fallback bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return domain.EmbeddingResult{Embedding: []float32{0.6, 0.8}, TotalTokens: 4, Fallback: m.fallback}, nil
}

var created = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newContext(t *testing.T) query.Context {
	t.Helper()
	c, err := query.New("u-1", 0.7, query.Creative, 2500, query.Present)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// --- Tests ---

func TestIndex_StoresContextSnapshot(t *testing.T) {
	w := &mockWriter{}
	svc := New(w, &mockEmbedder{}).WithClock(func() time.Time { return created })

	ctx, usage := domain.NewContextWithUsage(context.Background())
	res, err := svc.Index(ctx, "sunset over water", newContext(t), []string{"photo"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ID != domartifact.ID("sunset over water") || res.Dimensions != 2 || res.Fallback {
		t.Errorf("unexpected result %+v", res)
	}
	if usage.TotalTokens != 4 {
		t.Errorf("usage tokens = %d, want 4", usage.TotalTokens)
	}
	if len(w.stored) != 1 {
		t.Fatalf("expected 1 stored artifact, got %d", len(w.stored))
	}
	meta := w.stored[0].Metadata()
	if meta.TrustPoints != 2500 || meta.Intent() != 0.7 || meta.Environment != query.Creative {
		t.Errorf("context not captured: %+v", meta)
	}
	if meta.UserID != "u-1" || meta.ArtifactType != "text" || !meta.CreatedAt.Equal(created) {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestIndex_RejectsInvalidBeforeEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		content string
		tags    []string
	}{
		{"empty", "   ", nil},
		{"too large", strings.Repeat("x", domartifact.MaxContentSize+1), nil},
		{"too many tags", "ok", make([]string, domartifact.MaxTags+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &mockEmbedder{}
			svc := New(&mockWriter{}, emb)
			_, err := svc.Index(context.Background(), tt.content, newContext(t), tt.tags, "")
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if emb.calls != 0 {
				t.Error("embedder must not be called for invalid input")
			}
		})
	}
}

func TestIndex_StoreFailure(t *testing.T) {
	w := &mockWriter{err: domain.ErrStoreUnavailable}
	svc := New(w, &mockEmbedder{})

	_, err := svc.Index(context.Background(), "text", newContext(t), nil, "")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestIndex_ReportsFallback(t *testing.T) {
	svc := New(&mockWriter{}, &mockEmbedder{fallback: true})
	res, err := svc.Index(context.Background(), "text", newContext(t), nil, "note")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback {
		t.Error("expected fallback flag")
	}
}
