package result

import (
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/scoring"
)

// Result is a single ranked hit with its score explanation. Carries no embedding.
type Result struct {
	id         string
	similarity float64
	breakdown  scoring.Breakdown
	metadata   artifact.Metadata
}

// New creates a ranked result.
func New(id string, similarity float64, breakdown scoring.Breakdown, metadata artifact.Metadata) Result {
	return Result{id: id, similarity: similarity, breakdown: breakdown, metadata: metadata}
}

// ID returns the artifact identifier.
func (r *Result) ID() string { return r.id }

// Score returns the full-precision composite score used for ordering.
func (r *Result) Score() float64 { return r.breakdown.CompositeScore }

// Similarity returns the raw cosine similarity reported by the store.
func (r *Result) Similarity() float64 { return r.similarity }

// Breakdown returns the score explanation.
func (r *Result) Breakdown() scoring.Breakdown { return r.breakdown }

// Metadata returns the artifact's context snapshot.
func (r *Result) Metadata() artifact.Metadata { return r.metadata }

// IsSerendipitous reports whether context lifted the result above raw similarity.
func (r *Result) IsSerendipitous() bool { return r.breakdown.IsSerendipitous }
