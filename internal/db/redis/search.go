package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/aim3/internal/db"
)

const scoreAlias = "__score"

// SearchKNN runs FT.SEARCH KNN sorted server-side by distance.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	args, err := KNNArgs(q, true)
	if err != nil {
		return nil, err
	}
	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return ParseKNNResult(raw)
}

// KNNArgs renders the FT.SEARCH arguments for q. valkey-search rejects
// SORTBY on KNN queries, so callers targeting it pass sortByScore=false.
func KNNArgs(q *db.KNNQuery, sortByScore bool) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := "*"
	if q.Filter != "" {
		filter = "(" + q.Filter + ")"
	}
	args := []string{q.IndexName, fmt.Sprintf("%s=>[KNN %d @%s $BLOB AS %s]", filter, q.K, q.Field(), scoreAlias)}

	if n := len(q.ReturnFields); n > 0 {
		args = append(args, "RETURN", strconv.Itoa(n+1), scoreAlias)
		args = append(args, q.ReturnFields...)
	}
	if sortByScore {
		args = append(args, "SORTBY", scoreAlias)
	}
	return append(args,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", string(VectorToBytes(q.Vector)),
		"DIALECT", "2",
	), nil
}

// ParseKNNResult decodes a RESP2 reply [total, key1, fields1, key2, fields2, ...].
// The distance alias is removed from the fields and becomes Score = 1 - distance, clamped to [0,1].
func ParseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	res := &db.SearchResult{Total: int(total), Entries: make([]db.SearchEntry, 0, (len(raw)-1)/2)}
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		e := db.SearchEntry{Key: key, Fields: fieldMap(pairs)}
		if d, ok := e.Fields[scoreAlias]; ok {
			if dist, err := strconv.ParseFloat(d, 64); err == nil {
				e.Score = distanceToSimilarity(dist)
			}
			delete(e.Fields, scoreAlias)
		}
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

// distanceToSimilarity converts COSINE distance in [0,2] to similarity in [-1,1].
func distanceToSimilarity(dist float64) float64 {
	return min(1, max(-1, 1-dist))
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, nerr := pairs[j].ToString()
		value, verr := pairs[j+1].ToString()
		if nerr == nil && verr == nil {
			m[name] = value
		}
	}
	return m
}

// VectorToBytes encodes v as little-endian FLOAT32, the HASH vector field format.
func VectorToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// BytesToVector is the inverse of VectorToBytes.
func BytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob of %d bytes is not FLOAT32 aligned", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
