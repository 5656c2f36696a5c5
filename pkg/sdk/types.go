package aim3

import (
	"time"

	"github.com/kailas-cloud/aim3/internal/domain/query"
	"github.com/kailas-cloud/aim3/internal/domain/scoring"
	"github.com/kailas-cloud/aim3/internal/domain/search/request"
	"github.com/kailas-cloud/aim3/internal/domain/search/result"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	evolutionuc "github.com/kailas-cloud/aim3/internal/usecase/evolution"
	searchuc "github.com/kailas-cloud/aim3/internal/usecase/search"
)

// Context describes who is searching (or who created an artifact) and in what situation.
type Context struct {
	UserID string
	// IntentLevel in [0,1]; nil means the neutral 0.5.
	IntentLevel *float64
	// Environment: deep_work (default), walking, commute, creative, social.
	Environment string
	TrustPoints float64
	// TemporalMode: past, present (default), future.
	TemporalMode string
}

// Artifact is content to index together with its creator's context.
type Artifact struct {
	Content string
	Context Context
	Tags    []string
	Type    string
}

// Indexed reports a stored artifact.
type Indexed struct {
	ID         string
	Dimensions int
	// Fallback is set when the vector came from the hash embedder.
	Fallback bool
}

// SearchRequest is a ranking query. Nil factor and weight take defaults; the
// evolved strategy overrides both.
type SearchRequest struct {
	Query             string
	Context           Context
	SerendipityFactor *float64
	TemporalWeight    *float64
	TopK              int
}

// Breakdown exposes every multiplier that produced a composite score.
type Breakdown struct {
	BaseSimilarity        float64
	TrustMultiplier       float64
	IntentMultiplier      float64
	EnvironmentMultiplier float64
	TemporalMultiplier    float64
	CompositeScore        float64
}

// Result is one ranked artifact.
type Result struct {
	ArtifactID    string
	Score         float64
	Similarity    float64
	Serendipitous bool
	Breakdown     Breakdown
	Tags          []string
	Preview       string
	CreatedAt     time.Time
}

// SearchResponse is the ranked list with the parameters that produced it.
type SearchResponse struct {
	Results           []Result
	Candidates        int
	SerendipityFactor float64
	TemporalWeight    float64
	Generation        int64
	Demo              bool
	EmbeddingFallback bool
}

// Outcome is one observed result of serving rankings. A nil Cost counts as 0.001.
type Outcome struct {
	Gain      float64
	TrustGain float64
	Cost      *float64
	Timestamp time.Time
}

// Strategy is the self-tuned ranking configuration.
type Strategy struct {
	SerendipityBias  float64
	TemporalWeight   float64
	TrustSensitivity float64
	Generation       int64
	LastUpdated      time.Time
}

// Cycle reports one evolution step.
type Cycle struct {
	// Transition is "improve" or "regress".
	Transition     string
	Reward         float64
	PreviousReward float64
	Outcomes       int
	Strategy       Strategy
}

// --- Converters ---

func contextToDomain(c Context) (query.Context, error) {
	intent := query.DefaultIntentLevel
	if c.IntentLevel != nil {
		intent = *c.IntentLevel
	}
	return query.New( //nolint:wrapcheck // field-level validation error
		c.UserID, intent, query.Environment(c.Environment), c.TrustPoints, query.TemporalMode(c.TemporalMode),
	)
}

func searchRequestToDomain(req SearchRequest) (request.Request, error) {
	qctx, err := contextToDomain(req.Context)
	if err != nil {
		return request.Request{}, err
	}
	return request.New(req.Query, qctx, req.SerendipityFactor, req.TemporalWeight, req.TopK) //nolint:wrapcheck // field-level validation error
}

func searchResponseFromDomain(resp *searchuc.Response) SearchResponse {
	out := SearchResponse{
		Results:           make([]Result, len(resp.Results)),
		Candidates:        resp.Candidates,
		SerendipityFactor: resp.SerendipityFactor,
		TemporalWeight:    resp.TemporalWeight,
		Generation:        resp.Generation,
		Demo:              resp.Demo,
		EmbeddingFallback: resp.EmbeddingFallback,
	}
	for i := range resp.Results {
		out.Results[i] = resultFromDomain(&resp.Results[i])
	}
	return out
}

func resultFromDomain(r *result.Result) Result {
	b := r.Breakdown()
	m := r.Metadata()
	return Result{
		ArtifactID:    r.ID(),
		Score:         b.CompositeScore,
		Similarity:    scoring.Round(r.Similarity(), 4),
		Serendipitous: b.IsSerendipitous,
		Breakdown: Breakdown{
			BaseSimilarity:        b.BaseSimilarity,
			TrustMultiplier:       b.TrustMultiplier,
			IntentMultiplier:      b.IntentMultiplier,
			EnvironmentMultiplier: b.EnvironmentMultiplier,
			TemporalMultiplier:    b.TemporalMultiplier,
			CompositeScore:        b.CompositeScore,
		},
		Tags:      m.Tags,
		Preview:   m.ContentPreview,
		CreatedAt: m.CreatedAt,
	}
}

func strategyFromDomain(st domstrategy.State) Strategy {
	return Strategy{
		SerendipityBias:  st.SerendipityBias,
		TemporalWeight:   st.TemporalWeight,
		TrustSensitivity: st.TrustSensitivity,
		Generation:       st.Generation,
		LastUpdated:      st.LastUpdated,
	}
}

func cycleFromDomain(c evolutionuc.Cycle) Cycle {
	return Cycle{
		Transition:     string(c.Transition),
		Reward:         c.Reward,
		PreviousReward: c.PrevReward,
		Outcomes:       c.Outcomes,
		Strategy:       strategyFromDomain(c.State),
	}
}
