// Package artifact models indexed content and the candidates a store returns for it.
package artifact

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/query"
)

const (
	// IDPrefix marks content-derived artifact identifiers.
	IDPrefix = "ART-"
	// PreviewRunes is the length of the stored content preview.
	PreviewRunes = 200
	// MaxContentSize is the maximum content size in bytes.
	MaxContentSize = 163840
	// MaxTags limits the tag list attached to one artifact.
	MaxTags = 64
)

// Metadata is the context snapshot stored next to an artifact's vector.
type Metadata struct {
	TrustPoints float64
	// IntentLevel is nil for artifacts indexed without an intent.
	IntentLevel    *float64
	Environment    query.Environment
	UserID         string
	Tags           []string
	ArtifactType   string
	ContentPreview string
	CreatedAt      time.Time
}

// Intent returns the recorded intent or the neutral 0.5 when absent.
func (m *Metadata) Intent() float64 {
	if m.IntentLevel == nil {
		return query.DefaultIntentLevel
	}
	return *m.IntentLevel
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	if m.IntentLevel != nil {
		v := *m.IntentLevel
		out.IntentLevel = &v
	}
	out.Tags = slices.Clone(m.Tags)
	return out
}

// Artifact is an indexed piece of content. Never mutated after creation.
type Artifact struct {
	id        string
	embedding []float32
	metadata  Metadata
}

// ID derives the artifact identifier from content: "ART-" plus 12 hex chars of its MD5.
func ID(content string) string {
	sum := md5.Sum([]byte(content)) //nolint:gosec // see import
	return IDPrefix + hex.EncodeToString(sum[:])[:12]
}

// Preview returns the first PreviewRunes runes of content.
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= PreviewRunes {
		return content
	}
	return string(r[:PreviewRunes])
}

// New validates input and builds an Artifact from content and the creator's context.
func New(
	content string,
	embedding []float32,
	ctx query.Context,
	tags []string,
	artifactType string,
	createdAt time.Time,
) (Artifact, error) {
	if strings.TrimSpace(content) == "" {
		return Artifact{}, domain.NewInvalidInput("content", "is required")
	}
	if len(content) > MaxContentSize {
		return Artifact{}, domain.NewInvalidInput("content", "too large")
	}
	if len(embedding) == 0 {
		return Artifact{}, domain.NewInvalidInput("embedding", "is required")
	}
	if len(tags) > MaxTags {
		return Artifact{}, domain.NewInvalidInput("tags", "too many tags")
	}
	if artifactType == "" {
		artifactType = "text"
	}

	intent := ctx.IntentLevel()
	return Artifact{
		id:        ID(content),
		embedding: slices.Clone(embedding),
		metadata: Metadata{
			TrustPoints:    ctx.TrustPoints(),
			IntentLevel:    &intent,
			Environment:    ctx.Environment(),
			UserID:         ctx.UserID(),
			Tags:           slices.Clone(tags),
			ArtifactType:   artifactType,
			ContentPreview: Preview(content),
			CreatedAt:      createdAt.UTC(),
		},
	}, nil
}

// Reconstruct creates an Artifact without validation (storage hydration).
func Reconstruct(id string, embedding []float32, meta Metadata) Artifact {
	return Artifact{id: id, embedding: embedding, metadata: meta}
}

// ID returns the artifact identifier.
func (a *Artifact) ID() string { return a.id }

// Embedding returns the stored vector. Callers must not modify it.
func (a *Artifact) Embedding() []float32 { return a.embedding }

// Metadata returns a copy of the context snapshot.
func (a *Artifact) Metadata() Metadata { return a.metadata.Clone() }

// Candidate is one nearest-neighbour hit returned by a candidate store.
type Candidate struct {
	ArtifactID string
	Similarity float64
	Metadata   Metadata
}
