// Package scoring computes the context-weighted composite score of a candidate.
// Every function here is pure.
package scoring

import (
	"math"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/query"
)

const (
	// TrustDivisor scales trust points into the multiplier bonus.
	TrustDivisor = 10000.0
	// MaxTrustBonus caps the trust bonus (multiplier never exceeds 1.5).
	MaxTrustBonus = 0.5
	// IntentPenalty is the multiplier lost per unit of intent mismatch.
	IntentPenalty = 0.4
	// EnvironmentBoost applies when artifact and query share an environment.
	EnvironmentBoost = 1.15
	// HalfLifeHours is the recency half-life.
	HalfLifeHours = 168.0
	// SerendipityThreshold marks a result whose context lifted it 5% above raw similarity.
	SerendipityThreshold = 1.05
)

// TrustMultiplier = 1 + min(trust/10000, 0.5).
func TrustMultiplier(trustPoints float64) float64 {
	if trustPoints <= 0 {
		return 1.0
	}
	return 1.0 + math.Min(trustPoints/TrustDivisor, MaxTrustBonus)
}

// IntentMultiplier = 1 - 0.4*|q - a|. Bounded to [0.6, 1.0] for inputs in [0,1].
func IntentMultiplier(queryIntent, artifactIntent float64) float64 {
	return 1.0 - IntentPenalty*math.Abs(queryIntent-artifactIntent)
}

// EnvironmentMultiplier is 1.15 on an exact match, 1.0 otherwise.
func EnvironmentMultiplier(artifactEnv, queryEnv query.Environment) float64 {
	if artifactEnv != "" && artifactEnv == queryEnv {
		return EnvironmentBoost
	}
	return 1.0
}

// TemporalMultiplier = 1 + w*exp(-ln2/168 * ageHours).
// Exactly 1.0 when the weight is zero or the creation time is unknown.
// Future timestamps are treated as age zero.
func TemporalMultiplier(weight float64, createdAt, now time.Time) float64 {
	if weight == 0 || createdAt.IsZero() {
		return 1.0
	}
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return 1.0 + weight*math.Exp(-math.Ln2/HalfLifeHours*ageHours)
}

// Breakdown explains how a composite score was reached.
type Breakdown struct {
	BaseSimilarity        float64
	TrustMultiplier       float64
	IntentMultiplier      float64
	EnvironmentMultiplier float64
	TemporalMultiplier    float64
	CompositeScore        float64
	IsSerendipitous       bool
}

// Score multiplies base similarity by every contextual multiplier.
// The composite keeps full precision; use Rounded for presentation.
func Score(
	base float64,
	meta *artifact.Metadata,
	ctx *query.Context,
	temporalWeight float64,
	now time.Time,
) Breakdown {
	b := Breakdown{
		BaseSimilarity:        base,
		TrustMultiplier:       TrustMultiplier(meta.TrustPoints),
		IntentMultiplier:      IntentMultiplier(ctx.IntentLevel(), meta.Intent()),
		EnvironmentMultiplier: EnvironmentMultiplier(meta.Environment, ctx.Environment()),
		TemporalMultiplier:    TemporalMultiplier(temporalWeight, meta.CreatedAt, now),
	}
	b.CompositeScore = base *
		b.TrustMultiplier *
		b.IntentMultiplier *
		b.EnvironmentMultiplier *
		b.TemporalMultiplier
	b.IsSerendipitous = b.CompositeScore > base*SerendipityThreshold
	return b
}

// Rounded returns presentation values: composite to 6 decimals, the rest to 4.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		BaseSimilarity:        Round(b.BaseSimilarity, 4),
		TrustMultiplier:       Round(b.TrustMultiplier, 4),
		IntentMultiplier:      Round(b.IntentMultiplier, 4),
		EnvironmentMultiplier: Round(b.EnvironmentMultiplier, 4),
		TemporalMultiplier:    Round(b.TemporalMultiplier, 4),
		CompositeScore:        Round(b.CompositeScore, 6),
		IsSerendipitous:       b.IsSerendipitous,
	}
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
