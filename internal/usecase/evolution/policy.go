package evolution

import (
	"math"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
)

// Tuning defaults. The asymmetric steps are uncalibrated and exposed through config.
const (
	DefaultStep        = 0.01
	DefaultRegressStep = 0.02
	DefaultFloor       = 0.05
	DefaultCap         = 1.0
	DefaultTrustStep   = 0.01
	DefaultWindow      = 50

	DefaultInterval     = 300 * time.Second
	DefaultBackoff      = 10 * time.Second
	DefaultCycleTimeout = 30 * time.Second
)

// Transition names the direction a cycle moved the strategy.
type Transition string

const (
	// Improve: reward held or grew, explore a little more.
	Improve Transition = "improve"
	// Regress: reward dropped, pull serendipity back and tighten trust.
	Regress Transition = "regress"
)

// Policy maps a reward comparison onto a strategy transition.
type Policy struct {
	Step        float64
	RegressStep float64
	Floor       float64
	Cap         float64
	TrustStep   float64
	Window      int
	Weights     outcome.Weights
}

// DefaultPolicy returns the stock tuning.
func DefaultPolicy() Policy {
	return Policy{
		Step:        DefaultStep,
		RegressStep: DefaultRegressStep,
		Floor:       DefaultFloor,
		Cap:         DefaultCap,
		TrustStep:   DefaultTrustStep,
		Window:      DefaultWindow,
		Weights:     outcome.DefaultWeights(),
	}
}

// withDefaults fills zero fields.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Step <= 0 {
		p.Step = def.Step
	}
	if p.RegressStep <= 0 {
		p.RegressStep = def.RegressStep
	}
	if p.Floor <= 0 {
		p.Floor = def.Floor
	}
	if p.Cap <= 0 || p.Cap > 1 {
		p.Cap = def.Cap
	}
	if p.TrustStep < 0 {
		p.TrustStep = def.TrustStep
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.Weights == (outcome.Weights{}) {
		p.Weights = def.Weights
	}
	return p
}

// Next derives the successor state. Generation always advances by one.
func (p Policy) Next(cur domstrategy.State, reward, prevReward float64) (domstrategy.State, Transition) {
	next := cur
	next.Generation = cur.Generation + 1

	if reward >= prevReward {
		next.SerendipityBias = math.Min(cur.SerendipityBias+p.Step, p.Cap)
		return next, Improve
	}
	next.SerendipityBias = math.Max(cur.SerendipityBias-p.RegressStep, p.Floor)
	next.TrustSensitivity = cur.TrustSensitivity + p.TrustStep
	return next, Regress
}
