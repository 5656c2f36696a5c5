package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/config"
	"github.com/kailas-cloud/aim3/internal/db"
	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/metrics"
	budgetrepo "github.com/kailas-cloud/aim3/internal/repository/budget"
	"github.com/kailas-cloud/aim3/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/aim3/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/aim3/internal/usecase/embedding"
)

// buildEmbedder assembles the decorator chain:
// OpenAI -> Instrumented(budget) -> Fallback(hash) -> Cached -> Instruction.
// kv may be nil; the cache is skipped and the budget counts per process then.
// The tracker is nil for the hash provider.
func buildEmbedder(
	ctx context.Context, cfg config.EmbeddingConfig, kv db.KVStore, logger *zap.Logger,
) (domain.Embedder, *embeddinguc.BudgetTracker) {
	hash := embeddinguc.NewHashEmbedder(cfg.Dimensions)

	var (
		primary domain.Embedder
		budget  *embeddinguc.BudgetTracker
	)
	if cfg.Provider == "openai" {
		budget = embeddinguc.NewBudgetTracker(
			cfg.Provider, cfg.Budget.DailyTokenLimit, cfg.Budget.MonthlyTokenLimit,
			embeddinguc.BudgetAction(cfg.Budget.Action), logger,
		)
		if kv != nil {
			budget.WithStore(ctx, budgetrepo.New(kv))
		}

		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			Provider:          cfg.Provider,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger,
		})
		primary = embeddinguc.NewInstrumentedEmbedder(base, cfg.Provider, cfg.Model, logger).WithBudget(budget)
	}

	// Hash-only deployments skip the fallback wrapper; nothing can fail over.
	var embedder domain.Embedder = hash
	if primary != nil {
		embedder = embeddinguc.NewFallbackEmbedder(primary, hash, cfg.Timeout(), logger)
	}

	if cfg.Cache.Enabled && kv != nil && primary != nil {
		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		embedder = embcache.New(embedder, kv, cfg.Provider+":"+cfg.Model).
			WithTTL(ttl).
			WithDimensions(cfg.Dimensions).
			WithMetrics(metrics.EmbeddingCacheTotal).
			WithLogger(logger)
	}

	// Outermost so the cache key includes the instruction.
	if cfg.Instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.Instruction)
	}
	return embedder, budget
}
