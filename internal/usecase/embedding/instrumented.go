package embedding

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/tracing"
)

// BudgetChecker gates provider calls on the token budget.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(ctx context.Context, tokens int64)
}

// InstrumentedEmbedder wraps the live provider with a span, logging and the
// token budget. Request counters live in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps inner.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, logger *zap.Logger) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		logger:   logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
}

// WithBudget gates every call on b. Pass a nil interface, not a typed nil, to disable.
func (p *InstrumentedEmbedder) WithBudget(b BudgetChecker) *InstrumentedEmbedder {
	p.budget = b
	return p
}

// Embed refuses once the budget is spent, otherwise calls the provider and
// charges the tokens it reports.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (_ domain.EmbeddingResult, err error) {
	ctx, span := tracing.StartEmbeddingSpan(ctx, p.provider, p.model)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			span.SetAttributes(attribute.Bool("aim3.embedding.budget_exceeded", true))
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
		}
	}

	start := time.Now()
	res, err := p.inner.Embed(ctx, text)
	took := time.Since(start)
	if err != nil {
		p.logger.Error("Embedding request failed", zap.Duration("duration", took), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	if p.budget != nil {
		p.budget.Record(ctx, int64(res.TotalTokens))
	}
	span.SetAttributes(
		attribute.Int("aim3.embedding.dimensions", len(res.Embedding)),
		attribute.Int("aim3.embedding.total_tokens", res.TotalTokens),
	)
	p.logger.Debug("Embedding request completed",
		zap.Duration("duration", took),
		zap.Int("dimensions", len(res.Embedding)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through
	}
	return nil
}
