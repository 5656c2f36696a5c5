package aim3

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "", "valkey" or "redis"
	addrs    []string
	password string

	embedder         Embedder
	embedTimeout     time.Duration
	vectorDimensions int

	strategyPath    string
	outcomeCapacity int
	evolution       evolutionSettings
	seed            uint64
	demo            bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

type evolutionSettings struct {
	window      int
	step        float64
	regressStep float64
	floor       float64
}

// WithValkey stores artifacts, strategy and outcomes in a Valkey instance with valkey-search.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis stores artifacts, strategy and outcomes in Redis 8+ (or Redis Stack).
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithEmbedder sets the live embedding provider. Failures and timeouts fall
// back to the deterministic hash embedding.
func WithEmbedder(e Embedder, timeout time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
		c.embedTimeout = timeout
	})
}

// WithVectorDimensions sets the embedding dimension. Defaults to 768.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithStrategyFile persists the strategy as a JSON file instead of the store.
func WithStrategyFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.strategyPath = path
	})
}

// WithOutcomeCapacity caps the retained outcome log. Default: 10000.
func WithOutcomeCapacity(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.outcomeCapacity = n
	})
}

// WithEvolution tunes the reward window and the bias steps. Zero values keep defaults.
func WithEvolution(window int, step, regressStep, floor float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.evolution = evolutionSettings{window: window, step: step, regressStep: regressStep, floor: floor}
	})
}

// WithSeed makes serendipity noise reproducible.
func WithSeed(seed uint64) Option {
	return optionFunc(func(c *clientConfig) {
		c.seed = seed
	})
}

// WithDemoFallback answers searches against an empty store with demonstration candidates.
func WithDemoFallback() Option {
	return optionFunc(func(c *clientConfig) {
		c.demo = true
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
