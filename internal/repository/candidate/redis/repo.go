// Package redis stores artifacts as HASH keys under an FT vector index (Redis Stack or Valkey Search).
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/aim3/internal/db"
	dbredis "github.com/kailas-cloud/aim3/internal/db/redis"
	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
)

const (
	vectorField = "embedding"

	hnswM           = 16
	hnswEFConstruct = 200
)

// store is the consumer interface for candidate operations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Incr(ctx context.Context, key string) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements the search pipeline's candidate store over an FT index.
type Repo struct {
	store store
	dim   int
	hnsw  bool
}

// New creates a candidate repository for vectors of the given dimension.
func New(s store, dim int) *Repo {
	return &Repo{store: s, dim: dim}
}

// WithHNSW switches the vector field from FLAT to HNSW when the index is created.
func (r *Repo) WithHNSW() *Repo {
	r.hnsw = true
	return r
}

func indexName() string { return domain.KeyPrefix + "artifacts:idx" }
func keyPrefix() string { return domain.KeyPrefix + "artifact:" }
func seqKey() string    { return domain.KeyPrefix + "artifact:seq" }

func artifactKey(id string) string { return keyPrefix() + id }

// EnsureIndex creates the vector index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName())
	if err != nil {
		return unavailable("check index", err)
	}
	if exists {
		return nil
	}

	var hnsw *db.HNSWParams
	if r.hnsw {
		hnsw = &db.HNSWParams{M: hnswM, EFConstruction: hnswEFConstruct}
	}
	def, err := db.NewIndexDefinition(indexName(), keyPrefix(),
		db.Tag(fieldEnvironment),
		db.Tag(fieldUserID),
		db.TagList(fieldTags, ","),
		db.Numeric(fieldCreatedAt),
		db.Numeric(fieldSeq),
		db.Vector(vectorField, r.dim, hnsw),
	)
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return unavailable("create index", err)
	}
	return nil
}

// Upsert stores or replaces an artifact. A replaced artifact keeps its sequence number.
func (r *Repo) Upsert(ctx context.Context, a artifact.Artifact) error {
	emb := a.Embedding()
	if len(emb) != r.dim {
		return fmt.Errorf("upsert %s: got %d, want %d: %w", a.ID(), len(emb), r.dim, domain.ErrVectorDimMismatch)
	}

	key := artifactKey(a.ID())
	existing, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return unavailable("load artifact", err)
	}

	seq, ok := existing[fieldSeq]
	if !ok {
		n, err := r.store.Incr(ctx, seqKey())
		if err != nil {
			return unavailable("allocate sequence", err)
		}
		seq = formatInt(n)
	}

	meta := a.Metadata()
	fields := toHash(&meta, emb, seq)
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return unavailable("store artifact", err)
	}
	return nil
}

// QueryNearest returns up to k artifacts by descending cosine similarity.
// Equal scores are ordered by insertion sequence.
func (r *Repo) QueryNearest(ctx context.Context, vec []float32, k int) ([]artifact.Candidate, error) {
	if k <= 0 {
		return []artifact.Candidate{}, nil
	}
	if len(vec) != r.dim {
		return nil, fmt.Errorf("query: got %d, want %d: %w", len(vec), r.dim, domain.ErrVectorDimMismatch)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(),
		VectorField:  vectorField,
		Vector:       vec,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, unavailable("search", err)
	}

	type hit struct {
		c   artifact.Candidate
		seq int64
	}
	hits := make([]hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		id := strings.TrimPrefix(e.Key, keyPrefix())
		meta, seq := fromHash(e.Fields)
		hits = append(hits, hit{
			c:   artifact.Candidate{ArtifactID: id, Similarity: e.Score, Metadata: meta},
			seq: seq,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].c.Similarity != hits[j].c.Similarity {
			return hits[i].c.Similarity > hits[j].c.Similarity
		}
		return hits[i].seq < hits[j].seq
	})

	out := make([]artifact.Candidate, 0, min(k, len(hits)))
	for i := range hits {
		if len(out) == k {
			break
		}
		out = append(out, hits[i].c)
	}
	return out, nil
}

// Count returns the number of distinct artifacts ever stored.
// Sequence numbers are only allocated for new IDs, so the counter doubles as the count.
func (r *Repo) Count(ctx context.Context) (int, error) {
	raw, err := r.store.Get(ctx, seqKey())
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, unavailable("count", err)
	}
	n, err := parseInt(string(raw))
	if err != nil {
		return 0, fmt.Errorf("parse sequence: %w", err)
	}
	return int(n), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// compile-time check that the redis store satisfies the consumer interface.
var _ store = (*dbredis.Store)(nil)
