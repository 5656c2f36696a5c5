package embedding

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/metrics"
)

// FallbackEmbedder bounds the live provider with a timeout and answers with the
// hash embedding whenever the provider fails. It never returns an error unless
// the caller's own context is done.
type FallbackEmbedder struct {
	primary  domain.Embedder
	fallback *HashEmbedder
	timeout  time.Duration
	logger   *zap.Logger
}

// NewFallbackEmbedder wraps primary. A nil primary always uses the fallback.
// timeout <= 0 leaves the caller's deadline as the only bound.
func NewFallbackEmbedder(
	primary domain.Embedder, fallback *HashEmbedder, timeout time.Duration, logger *zap.Logger,
) *FallbackEmbedder {
	return &FallbackEmbedder{primary: primary, fallback: fallback, timeout: timeout, logger: logger}
}

// Embed tries the primary provider, then the deterministic fallback.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if f.primary == nil {
		return f.useFallback(ctx, text, "no_provider", nil)
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res, err := f.primary.Embed(callCtx, text)
	if err == nil && len(res.Embedding) == f.fallback.Dimensions() {
		return res, nil
	}

	// A caller that gave up gets its own error, not a vector nobody will read.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.EmbeddingResult{}, ctxErr
	}

	reason := "provider_error"
	switch {
	case err == nil:
		reason = "dimension_mismatch"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, domain.ErrTokenBudgetExceeded):
		reason = "budget_exceeded"
	}
	return f.useFallback(ctx, text, reason, err)
}

func (f *FallbackEmbedder) useFallback(
	ctx context.Context, text, reason string, cause error,
) (domain.EmbeddingResult, error) {
	metrics.EmbeddingFallbackTotal.WithLabelValues(reason).Inc()
	if cause != nil {
		f.logger.Warn("Embedding provider failed, using hash fallback",
			zap.String("reason", reason),
			zap.Error(cause),
		)
	}

	res, err := f.fallback.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	res.Fallback = true
	return res, nil
}

// HealthCheck reports the primary provider's health; the fallback is always healthy.
func (f *FallbackEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := f.primary.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through
	}
	return nil
}
