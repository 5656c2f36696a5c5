// Package serendipity perturbs query vectors with controlled Gaussian noise.
package serendipity

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hupe1980/vecgo/distance"
)

// NormalSource draws standard normal samples.
type NormalSource interface {
	NormFloat64() float64
}

// lockedSource makes a *rand.Rand safe for concurrent queries.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) NormFloat64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.NormFloat64()
}

// NewSeededSource returns a reproducible source for tests and replays.
func NewSeededSource(seed uint64) NormalSource {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))} //nolint:gosec // not crypto
}

// Injector adds N(0, factor^2) noise to each component and re-normalizes.
type Injector struct {
	src NormalSource
}

// New creates an Injector. A nil source uses the process-wide generator.
func New(src NormalSource) *Injector {
	if src == nil {
		src = &lockedSource{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))} //nolint:gosec // not crypto
	}
	return &Injector{src: src}
}

// Inject returns a perturbed unit-length copy of v.
// factor <= 0 returns an unmodified copy. The input is never mutated.
// If the noisy vector degenerates to zero length the input copy is returned.
func (in *Injector) Inject(v []float32, factor float64) []float32 {
	out := slices.Clone(v)
	if factor <= 0 || len(v) == 0 {
		return out
	}
	for i := range out {
		out[i] += float32(in.src.NormFloat64() * factor)
	}
	if !distance.NormalizeL2InPlace(out) {
		return slices.Clone(v)
	}
	return out
}
