// Package config loads the per-environment YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverQdrant   = "qdrant"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config holds the aim3 configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Outcomes  OutcomesConfig  `yaml:"outcomes"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Search    SearchConfig    `yaml:"search"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
// provider "hash" runs fully offline on the deterministic embedder.
type EmbeddingConfig struct {
	Provider          string       `yaml:"provider"` // openai, hash
	APIKey            string       `yaml:"api_key"`
	BaseURL           string       `yaml:"base_url"`
	Model             string       `yaml:"model"`
	Dimensions        int          `yaml:"dimensions"`
	TimeoutMs         int          `yaml:"timeout_ms"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	Instruction       string       `yaml:"instruction"`
	Cache             CacheConfig  `yaml:"cache"`
	Budget            BudgetConfig `yaml:"budget"`
}

// BudgetConfig caps provider tokens. Zero limits leave a period uncapped;
// usage is counted either way.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // warn, fallback
}

// CacheConfig holds the embedding cache settings (redis/valkey stores only).
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// StoreConfig holds candidate store settings.
type StoreConfig struct {
	Driver           string       `yaml:"driver"` // memory, redis, valkey, qdrant
	Addrs            []string     `yaml:"addrs"`
	Password         string       `yaml:"password"`
	HNSW             bool         `yaml:"hnsw"`
	ReadinessTimeout int          `yaml:"readiness_timeout_sec"`
	TimeoutMs        int          `yaml:"timeout_ms"`
	Qdrant           QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds the external vector store connection.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// StrategyConfig holds strategy persistence settings.
type StrategyConfig struct {
	Driver    string `yaml:"driver"` // file, redis
	Path      string `yaml:"path"`
	Key       string `yaml:"key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// OutcomesConfig holds outcome log settings.
type OutcomesConfig struct {
	Driver   string `yaml:"driver"` // memory, redis, postgres
	Key      string `yaml:"key"`
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	Capacity int    `yaml:"capacity"`
}

// EvolutionConfig holds the evolution loop cadence and tuning.
type EvolutionConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSec     int           `yaml:"interval_sec"`
	BackoffSec      int           `yaml:"backoff_sec"`
	CycleTimeoutSec int           `yaml:"cycle_timeout_sec"`
	Window          int           `yaml:"window"`
	Step            float64       `yaml:"step"`
	RegressStep     float64       `yaml:"regress_step"`
	Floor           float64       `yaml:"floor"`
	TrustStep       float64       `yaml:"trust_step"`
	Weights         RewardWeights `yaml:"weights"`
}

// RewardWeights converts outcomes into a reward.
type RewardWeights struct {
	Gain        float64 `yaml:"gain"`
	Trust       float64 `yaml:"trust"`
	Cost        float64 `yaml:"cost"`
	DefaultCost float64 `yaml:"default_cost"`
}

// SearchConfig holds ranking pipeline settings.
type SearchConfig struct {
	DemoFallback bool  `yaml:"demo_fallback"`
	Overfetch    int   `yaml:"overfetch"`
	Seed         int64 `yaml:"seed"` // 0 = random noise source
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 5000
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 7 * 24 * 3600
	}
	if c.Embedding.Budget.Action == "" {
		c.Embedding.Budget.Action = "fallback"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.TimeoutMs <= 0 {
		c.Store.TimeoutMs = 3000
	}
	if c.Store.Qdrant.Port == 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Store.Qdrant.Collection == "" {
		c.Store.Qdrant.Collection = "aim3_artifacts"
	}

	if c.Strategy.Driver == "" {
		c.Strategy.Driver = DriverFile
	}
	if c.Strategy.Path == "" {
		c.Strategy.Path = "data/strategy.json"
	}
	if c.Strategy.TimeoutMs <= 0 {
		c.Strategy.TimeoutMs = 3000
	}

	if c.Outcomes.Driver == "" {
		c.Outcomes.Driver = DriverMemory
	}
	if c.Outcomes.Capacity <= 0 {
		c.Outcomes.Capacity = 10000
	}

	if c.Evolution.IntervalSec <= 0 {
		c.Evolution.IntervalSec = 300
	}
	if c.Evolution.BackoffSec <= 0 {
		c.Evolution.BackoffSec = 10
	}
	if c.Evolution.CycleTimeoutSec <= 0 {
		c.Evolution.CycleTimeoutSec = 30
	}
	if c.Evolution.Window <= 0 {
		c.Evolution.Window = 50
	}

	if c.Search.Overfetch <= 0 {
		c.Search.Overfetch = 4
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Embedding.Provider {
	case "hash":
	case "openai":
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider openai")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"hash\", got %q", c.Embedding.Provider)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis, DriverValkey:
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for driver %s", c.Store.Driver)
		}
	case DriverQdrant:
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("store.qdrant.host is required for driver qdrant")
		}
	default:
		return fmt.Errorf("store.driver must be memory, redis, valkey or qdrant, got %q", c.Store.Driver)
	}

	if c.Embedding.Budget.DailyTokenLimit < 0 || c.Embedding.Budget.MonthlyTokenLimit < 0 {
		return fmt.Errorf("embedding.budget limits must not be negative")
	}
	switch c.Embedding.Budget.Action {
	case "warn", "fallback":
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"fallback\", got %q", c.Embedding.Budget.Action,
		)
	}

	if c.Embedding.Cache.Enabled && !c.Store.UsesRedis() {
		return fmt.Errorf("embedding.cache requires a redis or valkey store")
	}

	switch c.Strategy.Driver {
	case DriverFile:
	case DriverRedis:
		if !c.Store.UsesRedis() {
			return fmt.Errorf("strategy.driver redis requires a redis or valkey store")
		}
	default:
		return fmt.Errorf("strategy.driver must be file or redis, got %q", c.Strategy.Driver)
	}

	switch c.Outcomes.Driver {
	case DriverMemory:
	case DriverRedis:
		if !c.Store.UsesRedis() {
			return fmt.Errorf("outcomes.driver redis requires a redis or valkey store")
		}
	case DriverPostgres:
		if c.Outcomes.DSN == "" {
			return fmt.Errorf("outcomes.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("outcomes.driver must be memory, redis or postgres, got %q", c.Outcomes.Driver)
	}

	if c.Evolution.Floor < 0 || c.Evolution.Floor > 1 {
		return fmt.Errorf("evolution.floor must be between 0 and 1, got %v", c.Evolution.Floor)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	return nil
}

// UsesRedis reports whether the candidate store runs on a RESP backend.
func (s *StoreConfig) UsesRedis() bool {
	return s.Driver == DriverRedis || s.Driver == DriverValkey
}

// Timeout returns the candidate store I/O deadline.
func (s *StoreConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Timeout returns the per-call embedding deadline.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// Timeout returns the strategy persistence deadline.
func (s *StrategyConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
