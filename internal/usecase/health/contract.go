package health

import "context"

// StorePinger checks candidate store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ArtifactCounter reports how many artifacts the store holds.
type ArtifactCounter interface {
	Count(ctx context.Context) (int, error)
}
