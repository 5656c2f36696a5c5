package db

import (
	"errors"
	"sort"
)

// DefaultVectorField is the vector attribute queried when KNNQuery.VectorField is empty.
const DefaultVectorField = "embedding"

// KNNQuery asks an FT index for the K nearest vectors.
type KNNQuery struct {
	IndexName string
	// Filter is an optional pre-filter expression, e.g. "@environment:{creative}".
	Filter       string
	VectorField  string
	Vector       []float32
	K            int
	ReturnFields []string
}

// Validate rejects queries that cannot be sent.
func (q *KNNQuery) Validate() error {
	switch {
	case q.IndexName == "":
		return errors.New("index name is required")
	case len(q.Vector) == 0:
		return errors.New("vector is required")
	case q.K <= 0:
		return errors.New("k must be positive")
	}
	return nil
}

// Field returns the queried vector attribute.
func (q *KNNQuery) Field() string {
	if q.VectorField == "" {
		return DefaultVectorField
	}
	return q.VectorField
}

// SearchResult is a page of KNN hits.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is one hit. Score is cosine similarity in [-1,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SortByScore orders entries by descending score, keeping server order on ties.
func (r *SearchResult) SortByScore() {
	sort.SliceStable(r.Entries, func(i, j int) bool {
		return r.Entries[i].Score > r.Entries[j].Score
	})
}
