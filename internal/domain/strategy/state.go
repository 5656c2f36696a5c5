// Package strategy holds the tunable ranking parameters evolved from outcomes.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain"
)

// Defaults for a fresh deployment.
const (
	DefaultSerendipityBias  = 0.15
	DefaultTemporalWeight   = 0.1
	DefaultTrustSensitivity = 1.0
	InitialGeneration       = 1
)

// State is one immutable snapshot of the strategy. Replaced wholesale, never mutated in place.
type State struct {
	SerendipityBias  float64   `json:"serendipity_bias"`
	TemporalWeight   float64   `json:"temporal_weight"`
	TrustSensitivity float64   `json:"trust_sensitivity"`
	Generation       int64     `json:"generation"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Default returns the initial strategy.
func Default(now time.Time) State {
	return State{
		SerendipityBias:  DefaultSerendipityBias,
		TemporalWeight:   DefaultTemporalWeight,
		TrustSensitivity: DefaultTrustSensitivity,
		Generation:       InitialGeneration,
		LastUpdated:      now.UTC(),
	}
}

// Validate checks the value ranges of a loaded or computed state.
func (s State) Validate() error {
	if !inUnit(s.SerendipityBias) {
		return domain.NewInvalidInput("serendipity_bias", fmt.Sprintf("%v outside [0,1]", s.SerendipityBias))
	}
	if !inUnit(s.TemporalWeight) {
		return domain.NewInvalidInput("temporal_weight", fmt.Sprintf("%v outside [0,1]", s.TemporalWeight))
	}
	if math.IsNaN(s.TrustSensitivity) || s.TrustSensitivity < 0 {
		return domain.NewInvalidInput("trust_sensitivity", "must be non-negative")
	}
	if s.Generation < InitialGeneration {
		return domain.NewInvalidInput("generation", "must be positive")
	}
	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
