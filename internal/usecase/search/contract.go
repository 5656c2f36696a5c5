package search

import (
	"context"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
)

// CandidateStore returns nearest neighbours by cosine similarity.
type CandidateStore interface {
	QueryNearest(ctx context.Context, vec []float32, k int) ([]artifact.Candidate, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// StrategyReader yields the current strategy snapshot.
type StrategyReader interface {
	Snapshot() domstrategy.State
}

// Injector perturbs a query vector with controlled noise.
type Injector interface {
	Inject(v []float32, factor float64) []float32
}
