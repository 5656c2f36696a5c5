// Package artifact indexes content into the candidate store.
package artifact

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kailas-cloud/aim3/internal/domain"
	domartifact "github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/query"
	"github.com/kailas-cloud/aim3/internal/metrics"
	"github.com/kailas-cloud/aim3/internal/tracing"
)

// Indexed reports what was written.
type Indexed struct {
	ID         string
	Dimensions int
	// Fallback is set when the stored vector came from the hash embedder.
	Fallback bool
}

// Service handles artifact ingestion with automatic vectorization.
type Service struct {
	writer  Writer
	embed   Embedder
	timeout time.Duration
	now     func() time.Time
}

// New creates an artifact service.
func New(writer Writer, embed Embedder) *Service {
	return &Service{writer: writer, embed: embed, now: time.Now}
}

// WithClock overrides the creation timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithStoreTimeout bounds each upsert. 0 leaves the caller's deadline.
func (s *Service) WithStoreTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// Index vectorizes content and upserts it with the creator's context snapshot.
// Re-indexing identical content replaces the previous entry (same ID).
func (s *Service) Index(
	ctx context.Context, content string, qctx query.Context, tags []string, artifactType string,
) (res Indexed, err error) {
	ctx, span := tracing.StartIndexSpan(ctx)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			tracing.RecordError(span, err)
		}
		metrics.ArtifactsIndexedTotal.WithLabelValues(status).Inc()
		span.End()
	}()

	// Validate before paying for an embedding.
	if _, err := domartifact.New(content, []float32{0}, qctx, tags, artifactType, s.now()); err != nil {
		return Indexed{}, err
	}

	emb, err := s.embed.Embed(ctx, content)
	if err != nil {
		return Indexed{}, fmt.Errorf("vectorize artifact: %w", err)
	}
	domain.UsageFromContext(ctx).Record(emb)

	a, err := domartifact.New(content, emb.Embedding, qctx, tags, artifactType, s.now())
	if err != nil {
		return Indexed{}, err
	}
	if err := s.upsert(ctx, a); err != nil {
		return Indexed{}, fmt.Errorf("upsert artifact: %w", err)
	}

	span.SetAttributes(
		attribute.String("aim3.artifact.id", a.ID()),
		attribute.Bool("aim3.artifact.embedding_fallback", emb.Fallback),
	)
	return Indexed{ID: a.ID(), Dimensions: len(emb.Embedding), Fallback: emb.Fallback}, nil
}

func (s *Service) upsert(ctx context.Context, a domartifact.Artifact) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.writer.Upsert(ctx, a) //nolint:wrapcheck // wrapped by caller
}
