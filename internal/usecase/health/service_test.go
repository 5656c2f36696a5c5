package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct{ err error }

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

type mockCounter struct {
	n   int
	err error
}

func (m *mockCounter) Count(_ context.Context) (int, error) { return m.n, m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name          string
		storeErr      error
		embedding     EmbeddingChecker
		wantStatus    Status
		wantStore     CheckResult
		wantEmbedding CheckResult // "" means absent
	}{
		{"all healthy", nil, &mockEmbeddingChecker{}, Healthy, CheckOK, CheckOK},
		{"store down", down, &mockEmbeddingChecker{}, Degraded, CheckError, CheckOK},
		{"embedding down", nil, &mockEmbeddingChecker{err: down}, Degraded, CheckOK, CheckError},
		{"both down", down, &mockEmbeddingChecker{err: down}, Degraded, CheckError, CheckError},
		{"no embedding", nil, nil, Healthy, CheckOK, ""},
		{"no embedding, store down", down, nil, Degraded, CheckError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&mockPinger{err: tt.storeErr}, tt.embedding).Check(context.Background())

			if r.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", r.Status, tt.wantStatus)
			}
			if r.Checks["store"] != tt.wantStore {
				t.Errorf("store = %q, want %q", r.Checks["store"], tt.wantStore)
			}
			got, ok := r.Checks["embedding"]
			if tt.wantEmbedding == "" {
				if ok {
					t.Error("embedding check should be absent when embedding is nil")
				}
			} else if got != tt.wantEmbedding {
				t.Errorf("embedding = %q, want %q", got, tt.wantEmbedding)
			}
		})
	}
}

func TestCheck_ArtifactCount(t *testing.T) {
	svc := New(&mockPinger{}, nil).WithCounter(&mockCounter{n: 42}).WithNames("hash", "memory")
	r := svc.Check(context.Background())

	if r.Artifacts == nil || *r.Artifacts != 42 {
		t.Fatalf("expected 42 artifacts, got %v", r.Artifacts)
	}
	if r.Provider != "hash" || r.Store != "memory" {
		t.Errorf("names = %q/%q", r.Provider, r.Store)
	}
}

func TestCheck_ArtifactCountSkipped(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		countErr error
	}{
		{"store down", errors.New("down"), nil},
		{"count fails", nil, errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&mockPinger{err: tt.storeErr}, nil).WithCounter(&mockCounter{n: 1, err: tt.countErr})
			if r := svc.Check(context.Background()); r.Artifacts != nil {
				t.Errorf("expected no count, got %d", *r.Artifacts)
			}
		})
	}
}
