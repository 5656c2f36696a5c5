// Package outcome models observed results of past rankings and the reward derived from them.
package outcome

import (
	"math"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain"
)

// Record is one observed outcome. Append-only.
type Record struct {
	Gain      float64
	TrustGain float64
	// Cost is nil when the source did not report one; DefaultCost applies.
	Cost      *float64
	Timestamp time.Time
}

// Validate rejects non-finite values before they reach the log.
func (r *Record) Validate() error {
	if !finite(r.Gain) {
		return domain.NewInvalidInput("gain", "must be finite")
	}
	if !finite(r.TrustGain) {
		return domain.NewInvalidInput("trust_gain", "must be finite")
	}
	if r.Cost != nil && (!finite(*r.Cost) || *r.Cost < 0) {
		return domain.NewInvalidInput("cost", "must be a non-negative number")
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Weights convert an outcome window into a scalar reward.
type Weights struct {
	Gain        float64
	Trust       float64
	Cost        float64
	DefaultCost float64
}

// DefaultWeights: reward = gain*1000 + trust*0.1 - cost*500, missing cost = 0.001.
func DefaultWeights() Weights {
	return Weights{
		Gain:        1000,
		Trust:       0.1,
		Cost:        500,
		DefaultCost: 0.001,
	}
}

// Reward aggregates the window. An empty window yields zero.
func Reward(records []Record, w Weights) float64 {
	var gain, trust, cost float64
	for i := range records {
		gain += records[i].Gain
		trust += records[i].TrustGain
		if records[i].Cost != nil {
			cost += *records[i].Cost
		} else {
			cost += w.DefaultCost
		}
	}
	return gain*w.Gain + trust*w.Trust - cost*w.Cost
}
