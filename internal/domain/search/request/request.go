package request

import (
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/query"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultTopK    = 5
	MaxTopK        = 50

	DefaultSerendipityFactor = 0.15
	DefaultTemporalWeight    = 0.1
)

// Request is a validated search query.
type Request struct {
	query             string
	context           query.Context
	serendipityFactor float64
	temporalWeight    float64
	topK              int
}

// New validates and normalizes search parameters.
// nil factor/weight and zero topK take defaults. Everything else out of range is rejected.
func New(
	text string,
	ctx query.Context,
	serendipityFactor, temporalWeight *float64,
	topK int,
) (Request, error) {
	if strings.TrimSpace(text) == "" {
		return Request{}, domain.NewInvalidInput("query", "is required")
	}
	if len(text) > MaxQueryLength {
		return Request{}, domain.NewInvalidInput("query", fmt.Sprintf("too long (max %d chars)", MaxQueryLength))
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 1 || topK > MaxTopK {
		return Request{}, domain.NewInvalidInput("top_k", fmt.Sprintf("must be between 1 and %d", MaxTopK))
	}

	sf, err := unitOrDefault("serendipity_factor", serendipityFactor, DefaultSerendipityFactor)
	if err != nil {
		return Request{}, err
	}
	tw, err := unitOrDefault("temporal_weight", temporalWeight, DefaultTemporalWeight)
	if err != nil {
		return Request{}, err
	}

	return Request{
		query:             text,
		context:           ctx,
		serendipityFactor: sf,
		temporalWeight:    tw,
		topK:              topK,
	}, nil
}

func unitOrDefault(field string, v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		return 0, domain.NewInvalidInput(field, "must be between 0 and 1")
	}
	return *v, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Context returns the caller's situational context.
func (r *Request) Context() query.Context { return r.context }

// SerendipityFactor returns the requested noise factor.
func (r *Request) SerendipityFactor() float64 { return r.serendipityFactor }

// TemporalWeight returns the requested recency weight.
func (r *Request) TemporalWeight() float64 { return r.temporalWeight }

// TopK returns the number of results to return.
func (r *Request) TopK() int { return r.topK }
