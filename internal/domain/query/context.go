// Package query holds the caller's situational context attached to every search.
package query

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/aim3/internal/domain"
)

// Environment is the physical or mental setting the caller is in.
type Environment string

const (
	DeepWork Environment = "deep_work"
	Walking  Environment = "walking"
	Commute  Environment = "commute"
	Creative Environment = "creative"
	Social   Environment = "social"
)

// DefaultEnvironment is used when the caller does not say.
const DefaultEnvironment = DeepWork

// IsValid reports whether e is one of the known environments.
func (e Environment) IsValid() bool {
	switch e {
	case DeepWork, Walking, Commute, Creative, Social:
		return true
	}
	return false
}

// TemporalMode is the time orientation of a query.
type TemporalMode string

const (
	Past    TemporalMode = "past"
	Present TemporalMode = "present"
	Future  TemporalMode = "future"
)

// IsValid reports whether m is one of the known temporal modes.
func (m TemporalMode) IsValid() bool {
	switch m {
	case Past, Present, Future:
		return true
	}
	return false
}

// DefaultIntentLevel is the neutral intent used when none is recorded.
const DefaultIntentLevel = 0.5

// Location is an optional caller position.
type Location struct {
	Lat float64
	Lng float64
}

// Context is the immutable situational context of a query (or of an artifact at creation time).
type Context struct {
	userID       string
	intentLevel  float64
	environment  Environment
	trustPoints  float64
	temporalMode TemporalMode
	location     *Location
}

// Option customizes optional Context fields.
type Option func(*Context)

// WithLocation attaches a caller position.
func WithLocation(lat, lng float64) Option {
	return func(c *Context) {
		c.location = &Location{Lat: lat, Lng: lng}
	}
}

// New validates and creates a Context.
// Empty environment and temporal mode fall back to deep_work and present.
func New(
	userID string,
	intentLevel float64,
	env Environment,
	trustPoints float64,
	mode TemporalMode,
	opts ...Option,
) (Context, error) {
	if math.IsNaN(intentLevel) || intentLevel < 0 || intentLevel > 1 {
		return Context{}, domain.NewInvalidInput("intent_level", "must be between 0 and 1")
	}
	if math.IsNaN(trustPoints) || math.IsInf(trustPoints, 0) || trustPoints < 0 {
		return Context{}, domain.NewInvalidInput("trust_points", "must be a non-negative number")
	}
	if env == "" {
		env = DefaultEnvironment
	}
	if !env.IsValid() {
		return Context{}, domain.NewInvalidInput("environment", fmt.Sprintf("unknown value %q", env))
	}
	if mode == "" {
		mode = Present
	}
	if !mode.IsValid() {
		return Context{}, domain.NewInvalidInput("temporal_mode", fmt.Sprintf("unknown value %q", mode))
	}

	c := Context{
		userID:       userID,
		intentLevel:  intentLevel,
		environment:  env,
		trustPoints:  trustPoints,
		temporalMode: mode,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.location != nil {
		if c.location.Lat < -90 || c.location.Lat > 90 || c.location.Lng < -180 || c.location.Lng > 180 {
			return Context{}, domain.NewInvalidInput("location", "coordinates out of range")
		}
	}
	return c, nil
}

// UserID returns the caller identifier (may be empty).
func (c *Context) UserID() string { return c.userID }

// IntentLevel returns the caller's intent in [0,1].
func (c *Context) IntentLevel() float64 { return c.intentLevel }

// Environment returns the caller's setting.
func (c *Context) Environment() Environment { return c.environment }

// TrustPoints returns the caller's accumulated trust score.
func (c *Context) TrustPoints() float64 { return c.trustPoints }

// TemporalMode returns the time orientation.
func (c *Context) TemporalMode() TemporalMode { return c.temporalMode }

// Location returns the optional caller position.
func (c *Context) Location() *Location {
	if c.location == nil {
		return nil
	}
	loc := *c.location
	return &loc
}
