package chi

import (
	"time"

	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/query"
	"github.com/kailas-cloud/aim3/internal/domain/scoring"
	"github.com/kailas-cloud/aim3/internal/domain/search/request"
	"github.com/kailas-cloud/aim3/internal/domain/search/result"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	"github.com/kailas-cloud/aim3/internal/domain/usage"
	searchuc "github.com/kailas-cloud/aim3/internal/usecase/search"
)

// ErrorCode is the machine-readable error code in error responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest               ErrorCode = "bad_request"
	CodeUnauthorized             ErrorCode = "unauthorized"
	CodeValidationFailed         ErrorCode = "validation_failed"
	CodeNotFound                 ErrorCode = "not_found"
	CodeMethodNotAllowed         ErrorCode = "method_not_allowed"
	CodeStoreUnavailable         ErrorCode = "store_unavailable"
	CodePersistenceFailure       ErrorCode = "persistence_failure"
	CodeOutcomeSourceUnavailable ErrorCode = "outcome_source_unavailable"
	CodeNotImplemented           ErrorCode = "not_implemented"
	CodeInternalError            ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type locationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type contextDTO struct {
	UserID       string       `json:"user_id"`
	IntentLevel  *float64     `json:"intent_level"`
	Environment  string       `json:"environment"`
	TrustPoints  float64      `json:"trust_points"`
	TemporalMode string       `json:"temporal_mode"`
	Location     *locationDTO `json:"location,omitempty"`
}

type searchRequestDTO struct {
	Query             string     `json:"query"`
	Context           contextDTO `json:"context"`
	SerendipityFactor *float64   `json:"serendipity_factor"`
	TemporalWeight    *float64   `json:"temporal_weight"`
	TopK              int        `json:"top_k"`
}

type indexRequestDTO struct {
	Content      string     `json:"content"`
	Context      contextDTO `json:"context"`
	Tags         []string   `json:"tags"`
	ArtifactType string     `json:"artifact_type"`
}

type indexResponseDTO struct {
	ArtifactID        string `json:"artifact_id"`
	VectorDimensions  int    `json:"vector_dimensions"`
	Store             string `json:"store"`
	EmbeddingFallback bool   `json:"embedding_fallback"`
}

type outcomeRequestDTO struct {
	Gain      float64    `json:"gain"`
	TrustGain float64    `json:"trust_gain"`
	Cost      *float64   `json:"cost"`
	Timestamp *time.Time `json:"timestamp"`
}

type breakdownDTO struct {
	BaseSimilarity        float64 `json:"base_similarity"`
	SoulMultiplier        float64 `json:"soul_multiplier"`
	IntentMultiplier      float64 `json:"intent_multiplier"`
	EnvironmentMultiplier float64 `json:"environment_multiplier"`
	TemporalMultiplier    float64 `json:"temporal_multiplier"`
	CompositeScore        float64 `json:"composite_score"`
	IsSerendipitous       bool    `json:"is_serendipitous"`
}

type metadataDTO struct {
	TrustPoints    float64    `json:"trust_points"`
	IntentLevel    *float64   `json:"intent_level"`
	Environment    string     `json:"environment,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	ArtifactType   string     `json:"artifact_type,omitempty"`
	ContentPreview string     `json:"content_preview,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

type rankedResultDTO struct {
	ArtifactID         string       `json:"artifact_id"`
	CompositeScore     float64      `json:"composite_score"`
	OriginalSimilarity float64      `json:"original_similarity"`
	Breakdown          breakdownDTO `json:"breakdown"`
	Metadata           metadataDTO  `json:"metadata"`
}

type searchResponseDTO struct {
	Results            []rankedResultDTO `json:"results"`
	TotalCandidates    int               `json:"total_candidates"`
	SerendipityFactor  float64           `json:"serendipity_factor"`
	TemporalWeight     float64           `json:"temporal_weight"`
	StrategyGeneration int64             `json:"strategy_generation"`
	EngineVersion      string            `json:"engine_version"`
	AlgorithmsApplied  []string          `json:"algorithms_applied"`
	Demo               bool              `json:"demo,omitempty"`
	EmbeddingFallback  bool              `json:"embedding_fallback"`
}

type evolveResponseDTO struct {
	Transition     string            `json:"transition"`
	Reward         float64           `json:"reward"`
	PreviousReward float64           `json:"previous_reward"`
	Outcomes       int               `json:"outcomes"`
	Strategy       domstrategy.State `json:"strategy"`
}

type healthResponseDTO struct {
	Status            string            `json:"status"`
	Checks            map[string]string `json:"checks"`
	EmbeddingProvider string            `json:"embedding_provider,omitempty"`
	VectorStore       string            `json:"vector_store,omitempty"`
	ArtifactCount     *int              `json:"artifact_count,omitempty"`
}

type usageResponseDTO struct {
	Period          string    `json:"period"`
	Provider        string    `json:"provider,omitempty"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TokensUsed      int64     `json:"tokens_used"`
	TokensLimit     *int64    `json:"tokens_limit"`
	TokensRemaining *int64    `json:"tokens_remaining"`
	Exhausted       bool      `json:"exhausted"`
}

func usageResponseToDTO(r usage.Report) usageResponseDTO {
	dto := usageResponseDTO{
		Period:      string(r.Period),
		Provider:    r.Provider,
		PeriodStart: r.Start,
		PeriodEnd:   r.End,
		TokensUsed:  r.Used,
		Exhausted:   r.Exhausted(),
	}
	// Unlimited periods report null limit and remaining.
	if !r.Unlimited() {
		limit, remaining := r.Limit, r.Remaining()
		dto.TokensLimit, dto.TokensRemaining = &limit, &remaining
	}
	return dto
}

func contextFromDTO(c contextDTO) (query.Context, error) {
	intent := query.DefaultIntentLevel
	if c.IntentLevel != nil {
		intent = *c.IntentLevel
	}
	var opts []query.Option
	if c.Location != nil {
		opts = append(opts, query.WithLocation(c.Location.Lat, c.Location.Lng))
	}
	return query.New( //nolint:wrapcheck // field-level validation error
		c.UserID, intent, query.Environment(c.Environment), c.TrustPoints, query.TemporalMode(c.TemporalMode), opts...,
	)
}

func searchRequestFromDTO(req *searchRequestDTO) (request.Request, error) {
	qctx, err := contextFromDTO(req.Context)
	if err != nil {
		return request.Request{}, err
	}
	return request.New(req.Query, qctx, req.SerendipityFactor, req.TemporalWeight, req.TopK) //nolint:wrapcheck // field-level validation error
}

func searchResponseToDTO(resp *searchuc.Response) searchResponseDTO {
	items := make([]rankedResultDTO, len(resp.Results))
	for i := range resp.Results {
		items[i] = rankedResultToDTO(&resp.Results[i])
	}
	return searchResponseDTO{
		Results:            items,
		TotalCandidates:    resp.Candidates,
		SerendipityFactor:  resp.SerendipityFactor,
		TemporalWeight:     resp.TemporalWeight,
		StrategyGeneration: resp.Generation,
		EngineVersion:      searchuc.EngineVersion,
		AlgorithmsApplied:  searchuc.Algorithms,
		Demo:               resp.Demo,
		EmbeddingFallback:  resp.EmbeddingFallback,
	}
}

func rankedResultToDTO(r *result.Result) rankedResultDTO {
	b := r.Breakdown().Rounded()
	return rankedResultDTO{
		ArtifactID:         r.ID(),
		CompositeScore:     b.CompositeScore,
		OriginalSimilarity: scoring.Round(r.Similarity(), 4),
		Breakdown: breakdownDTO{
			BaseSimilarity:        b.BaseSimilarity,
			SoulMultiplier:        b.TrustMultiplier,
			IntentMultiplier:      b.IntentMultiplier,
			EnvironmentMultiplier: b.EnvironmentMultiplier,
			TemporalMultiplier:    b.TemporalMultiplier,
			CompositeScore:        b.CompositeScore,
			IsSerendipitous:       b.IsSerendipitous,
		},
		Metadata: metadataToDTO(r.Metadata()),
	}
}

func metadataToDTO(m artifact.Metadata) metadataDTO {
	out := metadataDTO{
		TrustPoints:    m.TrustPoints,
		IntentLevel:    m.IntentLevel,
		Environment:    string(m.Environment),
		UserID:         m.UserID,
		Tags:           m.Tags,
		ArtifactType:   m.ArtifactType,
		ContentPreview: m.ContentPreview,
	}
	if !m.CreatedAt.IsZero() {
		t := m.CreatedAt.UTC()
		out.CreatedAt = &t
	}
	return out
}
