package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/config"
	"github.com/kailas-cloud/aim3/internal/db"
	dbRedis "github.com/kailas-cloud/aim3/internal/db/redis"
	dbValkey "github.com/kailas-cloud/aim3/internal/db/valkey"
	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	"github.com/kailas-cloud/aim3/internal/domain/serendipity"
	"github.com/kailas-cloud/aim3/internal/metrics"
	candmemory "github.com/kailas-cloud/aim3/internal/repository/candidate/memory"
	candqdrant "github.com/kailas-cloud/aim3/internal/repository/candidate/qdrant"
	candredis "github.com/kailas-cloud/aim3/internal/repository/candidate/redis"
	outmemory "github.com/kailas-cloud/aim3/internal/repository/outcome/memory"
	outpostgres "github.com/kailas-cloud/aim3/internal/repository/outcome/postgres"
	outredis "github.com/kailas-cloud/aim3/internal/repository/outcome/redis"
	stratfile "github.com/kailas-cloud/aim3/internal/repository/strategy/file"
	stratkv "github.com/kailas-cloud/aim3/internal/repository/strategy/kv"
	chiTransport "github.com/kailas-cloud/aim3/internal/transport/chi"
	artifactuc "github.com/kailas-cloud/aim3/internal/usecase/artifact"
	evolutionuc "github.com/kailas-cloud/aim3/internal/usecase/evolution"
	healthuc "github.com/kailas-cloud/aim3/internal/usecase/health"
	searchuc "github.com/kailas-cloud/aim3/internal/usecase/search"
	strategyuc "github.com/kailas-cloud/aim3/internal/usecase/strategy"
	usageuc "github.com/kailas-cloud/aim3/internal/usecase/usage"
)

// candidateStore is what the composition root needs from any candidate backend.
type candidateStore interface {
	Upsert(ctx context.Context, a artifact.Artifact) error
	QueryNearest(ctx context.Context, vec []float32, k int) ([]artifact.Candidate, error)
	Count(ctx context.Context) (int, error)
}

// outcomeLog is what the composition root needs from any outcome backend.
type outcomeLog interface {
	Append(ctx context.Context, r outcome.Record) error
	Recent(ctx context.Context, n int) ([]outcome.Record, error)
}

// resources owns shared connections. Close releases them in reverse order.
type resources struct {
	redis   db.Store
	closers []func()
}

func (r *resources) onClose(fn func()) { r.closers = append(r.closers, fn) }

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// redisStore opens the RESP connection once and shares it between the candidate
// index, strategy record, outcome list and embedding cache.
func (r *resources) redisStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (db.Store, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	rc := dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password}

	var (
		s   db.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverValkey:
		s, err = dbValkey.NewStore(rc)
	case config.DriverRedis:
		s, err = dbRedis.NewStore(rc)
	default:
		return nil, fmt.Errorf("store driver %q has no redis connection", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
	}
	r.onClose(s.Close)

	if err := s.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		return nil, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Driver), zap.Strings("addrs", cfg.Addrs))
	r.redis = s
	return s, nil
}

// app is the wired service graph.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	res       *resources
	holder    *strategyuc.Holder
	outcomes  outcomeLog
	loop      *evolutionuc.Loop
	search    *searchuc.Service
	artifacts *artifactuc.Service
	health    *healthuc.Service
	usage     *usageuc.Service
}

func registerMetrics() {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterEvolutionMetrics()
	metrics.RegisterHTTPMetrics()
}

// buildApp wires every component from config. On error all opened resources are released.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, res: &resources{}}
	defer func() {
		if err != nil {
			a.res.Close()
		}
	}()

	var kv db.KVStore
	if cfg.Store.UsesRedis() {
		s, err := a.res.redisStore(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		kv = s
	}

	embedder, budget := buildEmbedder(ctx, cfg.Embedding, kv, logger)
	// A typed nil tracker must not reach the interface.
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	a.usage = usageuc.New(budgetReader, cfg.Embedding.Provider)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", cfg.Embedding.Cache.Enabled),
	)

	store, pinger, err := a.openCandidates(ctx)
	if err != nil {
		return nil, err
	}

	a.holder, err = newHolder(ctx, cfg, a.res, logger)
	if err != nil {
		return nil, err
	}

	a.outcomes, err = a.openOutcomes(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Evolution.Enabled {
		a.loop = evolutionuc.New(a.outcomes, a.holder, evolutionConfig(cfg.Evolution), logger)
	}

	var src serendipity.NormalSource
	if cfg.Search.Seed != 0 {
		src = serendipity.NewSeededSource(uint64(cfg.Search.Seed)) //nolint:gosec // seed is a replay knob
	}
	a.search = searchuc.New(store, embedder, a.holder, serendipity.New(src)).
		WithOverfetch(cfg.Search.Overfetch).
		WithDemoFallback(cfg.Search.DemoFallback).
		WithStoreTimeout(cfg.Store.Timeout()).
		WithLogger(logger)
	a.artifacts = artifactuc.New(store, embedder).WithStoreTimeout(cfg.Store.Timeout())

	checker, _ := embedder.(domain.HealthChecker)
	a.health = healthuc.New(pinger, checker).
		WithCounter(store).
		WithNames(cfg.Embedding.Provider, cfg.Store.Driver)

	return a, nil
}

func (a *app) openCandidates(ctx context.Context) (candidateStore, healthuc.StorePinger, error) {
	cfg := a.cfg.Store
	dim := a.cfg.Embedding.Dimensions

	switch cfg.Driver {
	case config.DriverMemory:
		s := candmemory.New(dim)
		return s, s, nil

	case config.DriverRedis, config.DriverValkey:
		s, err := a.res.redisStore(ctx, cfg, a.logger)
		if err != nil {
			return nil, nil, err
		}
		repo := candredis.New(s, dim)
		if cfg.HNSW {
			repo = repo.WithHNSW()
		}
		if err := repo.EnsureIndex(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure index: %w", err)
		}
		return repo, s, nil

	case config.DriverQdrant:
		repo, err := candqdrant.Dial(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, dim)
		if err != nil {
			return nil, nil, err
		}
		a.res.onClose(func() { _ = repo.Close() })
		if err := repo.EnsureCollection(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure collection: %w", err)
		}
		a.logger.Info("Connected to qdrant",
			zap.String("host", cfg.Qdrant.Host),
			zap.String("collection", cfg.Qdrant.Collection),
		)
		return repo, repo, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (a *app) openOutcomes(ctx context.Context) (outcomeLog, error) {
	cfg := a.cfg.Outcomes

	switch cfg.Driver {
	case config.DriverMemory:
		return outmemory.New(cfg.Capacity), nil

	case config.DriverRedis:
		s, err := a.res.redisStore(ctx, a.cfg.Store, a.logger)
		if err != nil {
			return nil, err
		}
		return outredis.New(s, cfg.Key, cfg.Capacity, a.logger), nil

	case config.DriverPostgres:
		l, err := outpostgres.Open(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		a.res.onClose(func() { _ = l.Close() })
		if err := l.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure outcome schema: %w", err)
		}
		return l, nil

	default:
		return nil, fmt.Errorf("unknown outcomes driver %q", cfg.Driver)
	}
}

// newHolder opens the strategy record and primes the holder from it.
func newHolder(ctx context.Context, cfg config.Config, res *resources, logger *zap.Logger) (*strategyuc.Holder, error) {
	var store strategyuc.Store
	switch cfg.Strategy.Driver {
	case config.DriverFile:
		store = stratfile.New(cfg.Strategy.Path)
	case config.DriverRedis:
		s, err := res.redisStore(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		store = stratkv.New(s, cfg.Strategy.Key)
	default:
		return nil, fmt.Errorf("unknown strategy driver %q", cfg.Strategy.Driver)
	}

	h := strategyuc.NewHolder(store, logger).WithTimeout(cfg.Strategy.Timeout())
	st, err := h.Load(ctx)
	if err != nil {
		// Ranking runs on defaults; the holder will not persist until a read succeeds.
		logger.Warn("Failed to load strategy, serving defaults", zap.Error(err))
		return h, nil
	}
	logger.Info("Strategy loaded",
		zap.Int64("generation", st.Generation),
		zap.Float64("serendipity_bias", st.SerendipityBias),
		zap.Float64("temporal_weight", st.TemporalWeight),
	)
	return h, nil
}

// openStrategy wires only the strategy record (for the strategy subcommand).
func openStrategy(ctx context.Context, cfg config.Config, logger *zap.Logger) (*strategyuc.Holder, func(), error) {
	res := &resources{}
	h, err := newHolder(ctx, cfg, res, logger)
	if err != nil {
		res.Close()
		return nil, nil, err
	}
	return h, res.Close, nil
}

func evolutionConfig(c config.EvolutionConfig) evolutionuc.Config {
	p := evolutionuc.DefaultPolicy()
	if c.Window > 0 {
		p.Window = c.Window
	}
	if c.Step > 0 {
		p.Step = c.Step
	}
	if c.RegressStep > 0 {
		p.RegressStep = c.RegressStep
	}
	if c.Floor > 0 {
		p.Floor = c.Floor
	}
	if c.TrustStep > 0 {
		p.TrustStep = c.TrustStep
	}
	if w := c.Weights; w != (config.RewardWeights{}) {
		p.Weights = outcome.Weights{Gain: w.Gain, Trust: w.Trust, Cost: w.Cost, DefaultCost: w.DefaultCost}
	}
	return evolutionuc.Config{
		Interval:     time.Duration(c.IntervalSec) * time.Second,
		Backoff:      time.Duration(c.BackoffSec) * time.Second,
		CycleTimeout: time.Duration(c.CycleTimeoutSec) * time.Second,
		Policy:       p,
	}
}

// Handler builds the HTTP API.
func (a *app) Handler() http.Handler {
	server := chiTransport.NewServer(a.search, a.artifacts, a.health, a.holder).
		WithOutcomes(a.outcomes).
		WithUsage(a.usage).
		WithStoreName(a.cfg.Store.Driver)
	if a.loop != nil {
		server = server.WithEvolver(a.loop)
	}
	return chiTransport.NewRouter(server, chiTransport.RouterConfig{
		APIKeys:     a.cfg.Auth.APIKeys,
		ServiceName: "aim3",
		Logger:      a.logger,
	})
}

// Close releases connections.
func (a *app) Close() { a.res.Close() }
