package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/scoring"
	"github.com/kailas-cloud/aim3/internal/domain/search/request"
	"github.com/kailas-cloud/aim3/internal/domain/search/result"
	"github.com/kailas-cloud/aim3/internal/metrics"
	"github.com/kailas-cloud/aim3/internal/tracing"
)

const (
	// EngineVersion identifies the ranking algorithm revision in responses.
	EngineVersion = "AIM3-SE-1.0"
	// DefaultOverfetch multiplies top_k for the candidate query.
	DefaultOverfetch = 4
)

// Algorithms lists the ranking stages, reported in every response.
var Algorithms = []string{
	"semantic_serendipity",
	"trust_reliability",
	"intent_synchronization",
	"environment_resonance",
	"temporal_decay",
}

// Response is the outcome of one ranking run.
type Response struct {
	Results []result.Result
	// Candidates is the number of store hits re-ranked (before truncation).
	Candidates        int
	SerendipityFactor float64
	TemporalWeight    float64
	Generation        int64
	// Demo is set when demonstration candidates stood in for an empty store.
	Demo bool
	// EmbeddingFallback is set when the query vector came from the hash fallback.
	EmbeddingFallback bool
}

// Service is the ranking pipeline: embed, inject, retrieve, score, sort, truncate.
// It holds no per-query state and performs no writes.
type Service struct {
	store     CandidateStore
	embed     Embedder
	strategy  StrategyReader
	injector  Injector
	overfetch int
	demo      bool
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a ranking pipeline. A nil strategy leaves request values in force.
func New(store CandidateStore, embed Embedder, strategy StrategyReader, injector Injector) *Service {
	return &Service{
		store:     store,
		embed:     embed,
		strategy:  strategy,
		injector:  injector,
		overfetch: DefaultOverfetch,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
}

// WithOverfetch sets the candidate multiplier (minimum 1).
func (s *Service) WithOverfetch(n int) *Service {
	s.overfetch = max(n, 1)
	return s
}

// WithDemoFallback enables demonstration candidates for an empty store.
func (s *Service) WithDemoFallback(enabled bool) *Service {
	s.demo = enabled
	return s
}

// WithStoreTimeout bounds each candidate retrieval. 0 leaves the caller's deadline.
func (s *Service) WithStoreTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// WithClock overrides the time source used for temporal decay.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.logger = l
	return s
}

// Search ranks candidates for one query.
// Embedding failures are absorbed by the embedder chain; store failures are returned
// wrapped in domain.ErrStoreUnavailable so callers can retry.
func (s *Service) Search(ctx context.Context, req *request.Request) (resp *Response, err error) {
	ctx, span := tracing.StartSearchSpan(ctx, req.TopK())
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			tracing.RecordError(span, err)
		}
		metrics.SearchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		span.End()
	}()

	// 1. A strategy snapshot, when wired, wins over request values.
	factor, weight := req.SerendipityFactor(), req.TemporalWeight()
	var generation int64
	if s.strategy != nil {
		st := s.strategy.Snapshot()
		factor, weight, generation = st.SerendipityBias, st.TemporalWeight, st.Generation
	}

	// 2. Embed.
	emb, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).Record(emb)

	// 3. Inject serendipity.
	vec := s.injector.Inject(emb.Embedding, factor)

	// 4. Over-fetch candidates.
	candidates, err := s.queryNearest(ctx, vec, req.TopK()*s.overfetch)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	resp = &Response{
		SerendipityFactor: factor,
		TemporalWeight:    weight,
		Generation:        generation,
		EmbeddingFallback: emb.Fallback,
	}
	now := s.now()

	if len(candidates) == 0 && s.demo {
		candidates = demoCandidates(req, now)
		resp.Demo = true
		metrics.SearchDemoTotal.Inc()
	}
	resp.Candidates = len(candidates)
	metrics.SearchCandidates.Observe(float64(len(candidates)))

	// 5-7. Score with the original context, stable sort, truncate.
	resp.Results = rank(candidates, req, weight, now, req.TopK())

	serendipitous := 0
	for i := range resp.Results {
		if resp.Results[i].IsSerendipitous() {
			serendipitous++
		}
	}
	metrics.SearchSerendipitousTotal.Add(float64(serendipitous))

	span.SetAttributes(
		attribute.Int("aim3.search.candidates", resp.Candidates),
		attribute.Int("aim3.search.results", len(resp.Results)),
		attribute.Float64("aim3.search.serendipity_factor", factor),
		attribute.Bool("aim3.search.embedding_fallback", emb.Fallback),
	)
	s.logger.Debug("Search ranked",
		zap.Int("candidates", resp.Candidates),
		zap.Int("results", len(resp.Results)),
		zap.Int("serendipitous", serendipitous),
		zap.Int64("generation", generation),
		zap.Bool("demo", resp.Demo),
	)
	return resp, nil
}

func (s *Service) queryNearest(ctx context.Context, vec []float32, k int) ([]artifact.Candidate, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.store.QueryNearest(ctx, vec, k) //nolint:wrapcheck // wrapped by caller
}

// rank scores every candidate, sorts by full-precision composite (stable, so ties
// keep retrieval order) and keeps the first topK.
func rank(
	candidates []artifact.Candidate, req *request.Request, temporalWeight float64, now time.Time, topK int,
) []result.Result {
	qctx := req.Context()
	scored := make([]result.Result, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		b := scoring.Score(c.Similarity, &c.Metadata, &qctx, temporalWeight, now)
		scored[i] = result.New(c.ArtifactID, c.Similarity, b, c.Metadata)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score() > scored[j].Score() })

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
