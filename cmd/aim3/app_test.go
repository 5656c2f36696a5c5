package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/config"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	evolutionuc "github.com/kailas-cloud/aim3/internal/usecase/evolution"
)

func TestMain(m *testing.M) {
	registerMetrics()
	os.Exit(m.Run())
}

func testConfigYAML(strategyPath string) string {
	return fmt.Sprintf(`
embedding:
  provider: hash
  dimensions: 16
strategy:
  driver: file
  path: %s
evolution:
  enabled: true
`, strategyPath)
}

func testConfig(t *testing.T) (config.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.json")
	cfg, err := config.Parse([]byte(testConfigYAML(path)))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg, path
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBuildApp_MemoryStackEndToEnd(t *testing.T) {
	cfg, strategyPath := testConfig(t)

	a, err := buildApp(t.Context(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()
	h := a.Handler()

	rr := call(t, h, http.MethodPost, "/v1/artifacts", map[string]any{
		"content": "tide pools at dawn",
		"context": map[string]any{"environment": "creative", "intent_level": 0.7, "trust_points": 500},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("index: status %d body %s", rr.Code, rr.Body)
	}

	rr = call(t, h, http.MethodPost, "/v1/search", map[string]any{
		"query":   "tide pools at dawn",
		"context": map[string]any{"environment": "creative", "intent_level": 0.7},
		"top_k":   5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("search: status %d body %s", rr.Code, rr.Body)
	}
	var search struct {
		Results []struct {
			ArtifactID string `json:"artifact_id"`
		} `json:"results"`
		StrategyGeneration int64 `json:"strategy_generation"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&search); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(search.Results) != 1 || search.StrategyGeneration != domstrategy.InitialGeneration {
		t.Errorf("search = %+v", search)
	}

	rr = call(t, h, http.MethodPost, "/v1/outcomes", map[string]any{"gain": 0.02, "trust_gain": 10})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("outcome: status %d body %s", rr.Code, rr.Body)
	}

	rr = call(t, h, http.MethodPost, "/v1/strategy/evolve", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("evolve: status %d body %s", rr.Code, rr.Body)
	}
	if got := a.holder.Snapshot().Generation; got != domstrategy.InitialGeneration+1 {
		t.Errorf("generation = %d, want %d", got, domstrategy.InitialGeneration+1)
	}

	if _, err := os.Stat(strategyPath); err != nil {
		t.Fatalf("strategy file not written: %v", err)
	}

	rr = call(t, h, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("health: status %d body %s", rr.Code, rr.Body)
	}

	rr = call(t, h, http.MethodGet, "/v1/usage?period=month", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("usage: status %d body %s", rr.Code, rr.Body)
	}
	var u struct {
		Period      string `json:"period"`
		Provider    string `json:"provider"`
		TokensLimit *int64 `json:"tokens_limit"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&u); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if u.Period != "month" || u.Provider != "hash" || u.TokensLimit != nil {
		t.Errorf("usage = %+v", u)
	}
}

func TestBuildEmbedder_OpenAIBudget(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Embedding.Budget.DailyTokenLimit = 100

	emb, budget := buildEmbedder(t.Context(), cfg.Embedding, nil, zap.NewNop())
	if emb == nil || budget == nil {
		t.Fatal("expected an embedder and a budget tracker for openai")
	}
	if r := budget.Report("day"); r.Limit != 100 || r.Provider != "openai" {
		t.Errorf("report = %+v", r)
	}

	if _, budget := buildEmbedder(t.Context(), testEmbeddingHash(cfg.Embedding), nil, zap.NewNop()); budget != nil {
		t.Error("hash provider should have no budget tracker")
	}
}

func testEmbeddingHash(c config.EmbeddingConfig) config.EmbeddingConfig {
	c.Provider = "hash"
	return c
}

func TestBuildApp_EvolutionDisabled(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Evolution.Enabled = false

	a, err := buildApp(t.Context(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	if a.loop != nil {
		t.Fatal("loop should be nil when evolution is disabled")
	}
	if rr := call(t, a.Handler(), http.MethodPost, "/v1/strategy/evolve", nil); rr.Code != http.StatusNotImplemented {
		t.Errorf("evolve status = %d, want 501", rr.Code)
	}
}

func TestBuildApp_UnknownDrivers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"store", func(c *config.Config) { c.Store.Driver = "cassandra" }},
		{"strategy", func(c *config.Config) { c.Strategy.Driver = "etcd" }},
		{"outcomes", func(c *config.Config) { c.Outcomes.Driver = "kafka" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := testConfig(t)
			tt.mutate(&cfg)
			if _, err := buildApp(t.Context(), cfg, zap.NewNop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEvolutionConfig(t *testing.T) {
	got := evolutionConfig(config.EvolutionConfig{
		IntervalSec:     60,
		BackoffSec:      5,
		CycleTimeoutSec: 15,
		Window:          20,
		RegressStep:     0.05,
		Weights:         config.RewardWeights{Gain: 1, DefaultCost: 0.5},
	})

	def := evolutionuc.DefaultPolicy()
	if got.Interval != time.Minute || got.Backoff != 5*time.Second || got.CycleTimeout != 15*time.Second {
		t.Errorf("cadence = %v/%v/%v", got.Interval, got.Backoff, got.CycleTimeout)
	}
	if got.Policy.Window != 20 || got.Policy.RegressStep != 0.05 {
		t.Errorf("policy overrides not applied: %+v", got.Policy)
	}
	if got.Policy.Step != def.Step || got.Policy.Floor != def.Floor || got.Policy.TrustStep != def.TrustStep {
		t.Errorf("zero fields should keep defaults: %+v", got.Policy)
	}
	if got.Policy.Weights.Gain != 1 || got.Policy.Weights.Trust != 0 || got.Policy.Weights.DefaultCost != 0.5 {
		t.Errorf("weights = %+v", got.Policy.Weights)
	}

	if w := evolutionConfig(config.EvolutionConfig{}).Policy.Weights; w != def.Weights {
		t.Errorf("empty weights should keep defaults, got %+v", w)
	}
}

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v (output %q)", args, err, out.String())
	}
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	if out := runCmd(t, "version"); !strings.HasPrefix(out, "aim3 dev") {
		t.Errorf("version output = %q", out)
	}
}

func writeConfigFile(t *testing.T) (configPath, strategyPath string) {
	t.Helper()
	dir := t.TempDir()
	strategyPath = filepath.Join(dir, "strategy.json")
	configPath = filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(configPath, []byte(testConfigYAML(strategyPath)), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, strategyPath
}

func TestStrategyCommand_PrintsDefaultsWhenMissing(t *testing.T) {
	configPath, _ := writeConfigFile(t)

	out := runCmd(t, "strategy", "--env", "test", "--config", configPath)

	var st domstrategy.State
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if st.Generation != domstrategy.InitialGeneration || st.SerendipityBias != domstrategy.DefaultSerendipityBias {
		t.Errorf("state = %+v", st)
	}
}

func TestEvolveCommand_EmptyWindowAdvancesGeneration(t *testing.T) {
	configPath, strategyPath := writeConfigFile(t)

	out := runCmd(t, "evolve", "--env", "test", "--config", configPath)

	var st domstrategy.State
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if st.Generation != domstrategy.InitialGeneration+1 {
		t.Errorf("generation = %d, want %d", st.Generation, domstrategy.InitialGeneration+1)
	}
	if _, err := os.Stat(strategyPath); err != nil {
		t.Errorf("strategy not persisted: %v", err)
	}

	// The persisted record is what a later invocation sees.
	out = runCmd(t, "strategy", "--env", "test", "--config", configPath)
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if st.Generation != domstrategy.InitialGeneration+1 {
		t.Errorf("reloaded generation = %d", st.Generation)
	}
}
