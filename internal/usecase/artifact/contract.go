package artifact

import (
	"context"

	"github.com/kailas-cloud/aim3/internal/domain"
	domartifact "github.com/kailas-cloud/aim3/internal/domain/artifact"
)

// Writer persists artifacts into the candidate store.
type Writer interface {
	Upsert(ctx context.Context, a domartifact.Artifact) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
