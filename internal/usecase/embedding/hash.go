package embedding

import (
	"context"
	"crypto/sha512"
	"encoding/binary"
	"math/rand/v2"

	"github.com/kailas-cloud/aim3/internal/domain"
)

// HashEmbedder derives a reproducible pseudo-random vector from the SHA-512 digest of the text.
// The same text yields the same vector in every process; it carries no semantics.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder. dims <= 0 uses domain.DefaultVectorDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = domain.DefaultVectorDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector length.
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed never fails. Components are uniform in [0,1).
func (h *HashEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: HashVector(text, h.dims)}, nil
}

// HealthCheck always succeeds.
func (h *HashEmbedder) HealthCheck(context.Context) error { return nil }

// HashVector seeds PCG from the first 16 digest bytes and draws dims floats.
func HashVector(text string, dims int) []float32 {
	sum := sha512.Sum512([]byte(text))
	rng := rand.New(rand.NewPCG( //nolint:gosec // reproducibility, not secrecy
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))

	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = rng.Float32()
	}
	return vec
}
