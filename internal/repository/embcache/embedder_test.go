package embcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	dbredis "github.com/kailas-cloud/aim3/internal/db/redis"
	"github.com/kailas-cloud/aim3/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2}, PromptTokens: 3, TotalTokens: 3,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	var storedKey string
	var storedTTL time.Duration
	ms.setFn = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		storedKey, storedTTL = key, ttl
		if len(value) != 8 {
			t.Errorf("stored %d bytes, want 8", len(value))
		}
		return nil
	}

	res, err := ce.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalTokens != 3 {
		t.Errorf("tokens = %d, want 3", res.TotalTokens)
	}
	if !strings.HasPrefix(storedKey, "aim3:emb_cache:") {
		t.Errorf("key = %q", storedKey)
	}
	if storedTTL != time.Hour {
		t.Errorf("ttl = %v", storedTTL)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) {
		return dbredis.VectorToBytes([]float32{0.5, 0.25}), nil
	}

	res, err := ce.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 0 {
		t.Error("inner embedder called on cache hit")
	}
	if len(res.Embedding) != 2 || res.Embedding[1] != 0.25 || res.TotalTokens != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestEmbed_FallbackNotCached(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}, Fallback: true}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.setFn = func(context.Context, string, []byte, time.Duration) error {
		t.Fatal("fallback vector must not be cached")
		return nil
	}
	res, err := ce.Embed(context.Background(), "hello")
	if err != nil || !res.Fallback {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrProviderUnavailable}
	ce, _ := newTestCachedEmbedder(t, inner)
	if _, err := ce.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestEmbed_StoreErrorsAreSoft(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
	ms.setFn = func(context.Context, string, []byte, time.Duration) error { return errors.New("down") }

	res, err := ce.Embed(context.Background(), "x")
	if err != nil || len(res.Embedding) != 2 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestCacheKey_NamespaceSeparatesModels(t *testing.T) {
	a := New(&mockEmbedder{}, &mockKVStore{}, "model-a")
	b := New(&mockEmbedder{}, &mockKVStore{}, "model-b")
	if a.cacheKey("same") == b.cacheKey("same") {
		t.Error("different namespaces must produce different keys")
	}
}

func TestEmbed_WrongDimensionIsStale(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2, 3}, TotalTokens: 2}}
	ce, ms := newTestCachedEmbedder(t, inner)
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	ce.WithDimensions(3).WithMetrics(lookups)

	ms.getFn = func(context.Context, string) ([]byte, error) {
		return dbredis.VectorToBytes([]float32{0.5, 0.25}), nil
	}

	res, err := ce.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls.Load() != 1 || len(res.Embedding) != 3 {
		t.Errorf("calls=%d res=%+v, want a fresh 3-dim embedding", inner.calls.Load(), res)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues("stale")); got != 1 {
		t.Errorf("stale lookups = %v, want 1", got)
	}
}

func TestEmbed_ConcurrentMissesShareOneCall(t *testing.T) {
	inner := &mockEmbedder{
		result: domain.EmbeddingResult{Embedding: []float32{1, 2}, TotalTokens: 4},
		gate:   make(chan struct{}),
	}
	ce, _ := newTestCachedEmbedder(t, inner)

	const callers = 8
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	results := make([]domain.EmbeddingResult, callers)
	for i := range callers {
		go func() {
			defer done.Done()
			started.Done()
			results[i], _ = ce.Embed(context.Background(), "same text")
		}()
	}
	started.Wait()
	// Let every caller reach the flight group before the provider answers.
	time.Sleep(50 * time.Millisecond)
	close(inner.gate)
	done.Wait()

	if n := inner.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
	for i, r := range results {
		if len(r.Embedding) != 2 {
			t.Errorf("caller %d got %+v", i, r)
		}
	}
}

func TestEmbed_CallerCancelled(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}, gate: make(chan struct{})}
	defer close(inner.gate)
	ce, _ := newTestCachedEmbedder(t, inner)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := ce.Embed(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
