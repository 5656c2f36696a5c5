// Package embcache memoizes provider embeddings in the key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/aim3/internal/db"
	dbredis "github.com/kailas-cloud/aim3/internal/db/redis"
	"github.com/kailas-cloud/aim3/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder keeps provider vectors keyed by namespace and text. Fallback
// vectors are never stored, so a recovered provider takes over again.
// Concurrent misses for the same text share one provider call.
type CachedEmbedder struct {
	inner     domain.Embedder
	store     store
	namespace string
	ttl       time.Duration
	dims      int
	lookups   *prometheus.CounterVec
	logger    *zap.Logger
	flight    singleflight.Group
}

// New wraps inner. namespace separates models sharing one store.
func New(inner domain.Embedder, s store, namespace string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, store: s, namespace: namespace, logger: zap.NewNop()}
}

// WithTTL expires entries after ttl; zero keeps them forever.
func (c *CachedEmbedder) WithTTL(ttl time.Duration) *CachedEmbedder {
	c.ttl = ttl
	return c
}

// WithDimensions treats cached vectors of any other length as misses.
func (c *CachedEmbedder) WithDimensions(n int) *CachedEmbedder {
	c.dims = n
	return c
}

// WithMetrics counts lookups by result label: hit, miss or stale.
func (c *CachedEmbedder) WithMetrics(lookups *prometheus.CounterVec) *CachedEmbedder {
	c.lookups = lookups
	return c
}

// WithLogger sets the logger for soft store failures.
func (c *CachedEmbedder) WithLogger(l *zap.Logger) *CachedEmbedder {
	if l != nil {
		c.logger = l
	}
	return c
}

// Embed serves a cached vector with zero tokens, or embeds and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.load(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	ch := c.flight.DoChan(key, func() (any, error) {
		// Followers must not fail because the leader's request was cancelled.
		bg := context.WithoutCancel(ctx)
		res, err := c.inner.Embed(bg, text)
		if err != nil {
			return nil, err
		}
		if !res.Fallback {
			c.save(bg, key, res.Embedding)
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return domain.EmbeddingResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", r.Err)
		}
		res := r.Val.(domain.EmbeddingResult)
		if r.Shared {
			res.Embedding = slices.Clone(res.Embedding)
		}
		return res, nil
	}
}

// HealthCheck delegates to the inner embedder when it supports it.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.namespace + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) load(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound) || (err == nil && len(data) == 0):
		c.count("miss")
		return nil, false
	case err != nil:
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		c.count("miss")
		return nil, false
	}

	vec, err := dbredis.BytesToVector(data)
	if err != nil || (c.dims > 0 && len(vec) != c.dims) {
		c.logger.Debug("Discarding stale cached embedding", zap.String("key", key), zap.Int("len", len(vec)))
		c.count("stale")
		return nil, false
	}
	c.count("hit")
	return vec, true
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	if err := c.store.SetWithTTL(ctx, key, dbredis.VectorToBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}
