package aim3

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/db"
	dbRedis "github.com/kailas-cloud/aim3/internal/db/redis"
	dbValkey "github.com/kailas-cloud/aim3/internal/db/valkey"
	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	"github.com/kailas-cloud/aim3/internal/domain/query"
	"github.com/kailas-cloud/aim3/internal/domain/search/request"
	"github.com/kailas-cloud/aim3/internal/domain/serendipity"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	candmemory "github.com/kailas-cloud/aim3/internal/repository/candidate/memory"
	candredis "github.com/kailas-cloud/aim3/internal/repository/candidate/redis"
	outmemory "github.com/kailas-cloud/aim3/internal/repository/outcome/memory"
	outredis "github.com/kailas-cloud/aim3/internal/repository/outcome/redis"
	stratfile "github.com/kailas-cloud/aim3/internal/repository/strategy/file"
	stratkv "github.com/kailas-cloud/aim3/internal/repository/strategy/kv"
	artifactuc "github.com/kailas-cloud/aim3/internal/usecase/artifact"
	embeddinguc "github.com/kailas-cloud/aim3/internal/usecase/embedding"
	evolutionuc "github.com/kailas-cloud/aim3/internal/usecase/evolution"
	healthuc "github.com/kailas-cloud/aim3/internal/usecase/health"
	searchuc "github.com/kailas-cloud/aim3/internal/usecase/search"
	strategyuc "github.com/kailas-cloud/aim3/internal/usecase/strategy"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultOutcomeCapacity  = 10000
)

// Internal interfaces, swapped for stubs in tests.
type searchUseCase interface {
	Search(ctx context.Context, req *request.Request) (*searchuc.Response, error)
}

type artifactUseCase interface {
	Index(
		ctx context.Context, content string, qctx query.Context, tags []string, artifactType string,
	) (artifactuc.Indexed, error)
}

type outcomeLog interface {
	Append(ctx context.Context, r outcome.Record) error
	Recent(ctx context.Context, n int) ([]outcome.Record, error)
}

type strategyReader interface {
	Snapshot() domstrategy.State
}

type evolver interface {
	RunOnce(ctx context.Context) (evolutionuc.Cycle, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the embedded AIM3 entry point. Safe for concurrent use.
type Client struct {
	store     db.Store
	search    searchUseCase
	artifacts artifactUseCase
	outcomes  outcomeLog
	strategy  strategyReader
	evolver   evolver
	health    healthUseCase
	obs       *observer
}

// New creates a Client. With WithRedis or WithValkey it connects and waits for
// the store; otherwise everything lives in process memory.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		vectorDimensions: domain.DefaultVectorDimensions,
		outcomeCapacity:  defaultOutcomeCapacity,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.vectorDimensions <= 0 {
		return nil, errors.New("aim3: vector dimensions must be positive")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if cfg.driver != "" {
		store, err = createStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("aim3: database not ready: %w", err)
		}
	}

	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return c, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	rc := dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password}
	switch cfg.driver {
	case "valkey":
		s, err := dbValkey.NewStore(rc)
		if err != nil {
			return nil, fmt.Errorf("aim3: create valkey store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := dbRedis.NewStore(rc)
		if err != nil {
			return nil, fmt.Errorf("aim3: create redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("aim3: unknown driver %q", cfg.driver)
	}
}

// wireClient builds the service graph. A nil store selects the in-memory backends.
func wireClient(ctx context.Context, store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	nop := zap.NewNop()
	dim := cfg.vectorDimensions

	hash := embeddinguc.NewHashEmbedder(dim)
	var emb domain.Embedder = hash
	provider := "hash"
	if cfg.embedder != nil {
		emb = embeddinguc.NewFallbackEmbedder(&embedderAdapter{inner: cfg.embedder}, hash, cfg.embedTimeout, nop)
		provider = "custom"
	}

	var (
		candidates interface {
			artifactuc.Writer
			searchuc.CandidateStore
			healthuc.ArtifactCounter
		}
		pinger    healthuc.StorePinger
		strat     strategyuc.Store
		outcomes  outcomeLog
		storeName = "memory"
	)
	if store == nil {
		mem := candmemory.New(dim)
		candidates, pinger = mem, mem
		strat = &volatileStrategy{}
		outcomes = outmemory.New(cfg.outcomeCapacity)
	} else {
		repo := candredis.New(store, dim)
		if err := repo.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("aim3: ensure index: %w", err)
		}
		candidates, pinger = repo, store
		strat = stratkv.New(store, "")
		outcomes = outredis.New(store, "", cfg.outcomeCapacity, nop)
		storeName = cfg.driver
	}
	if cfg.strategyPath != "" {
		strat = stratfile.New(cfg.strategyPath)
	}

	holder := strategyuc.NewHolder(strat, nop)
	if _, err := holder.Load(ctx); err != nil {
		obs.observe("load_strategy", time.Now(), err)
	}

	// Zero fields take the stock tuning.
	policy := evolutionuc.Policy{
		Window:      cfg.evolution.window,
		Step:        cfg.evolution.step,
		RegressStep: cfg.evolution.regressStep,
		Floor:       cfg.evolution.floor,
		TrustStep:   evolutionuc.DefaultTrustStep,
	}
	loop := evolutionuc.New(outcomes, holder, evolutionuc.Config{Policy: policy}, nop)

	var src serendipity.NormalSource
	if cfg.seed != 0 {
		src = serendipity.NewSeededSource(cfg.seed)
	}

	checker, _ := emb.(domain.HealthChecker)
	return &Client{
		store: store,
		search: searchuc.New(candidates, emb, holder, serendipity.New(src)).
			WithDemoFallback(cfg.demo),
		artifacts: artifactuc.New(candidates, emb),
		outcomes:  outcomes,
		strategy:  holder,
		evolver:   loop,
		health:    healthuc.New(pinger, checker).WithCounter(candidates).WithNames(provider, storeName),
		obs:       obs,
	}, nil
}

// Close releases the store connection, if any.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// volatileStrategy keeps the strategy for the lifetime of an in-memory client.
type volatileStrategy struct {
	mu sync.Mutex
	st *domstrategy.State
}

func (v *volatileStrategy) Load(context.Context) (domstrategy.State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.st == nil {
		return domstrategy.State{}, domain.ErrNotFound
	}
	return *v.st, nil
}

func (v *volatileStrategy) Save(_ context.Context, st domstrategy.State) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st = &st
	return nil
}
