// Package valkey adapts the rueidis store to valkey-search, which rejects
// SORTBY on KNN queries and returns hits in arbitrary order.
package valkey

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/aim3/internal/db"
	dbredis "github.com/kailas-cloud/aim3/internal/db/redis"
)

var _ db.Store = (*Store)(nil)

// Store is a Redis store with a valkey-search compatible SearchKNN.
type Store struct {
	*dbredis.Store
}

// NewStore connects to Valkey.
func NewStore(cfg dbredis.Config) (*Store, error) {
	opt, err := cfg.ClientOption()
	if err != nil {
		return nil, err
	}
	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	return NewStoreFromClient(client), nil
}

// NewStoreFromClient wraps an existing rueidis client.
func NewStoreFromClient(c rueidis.Client) *Store {
	return &Store{Store: dbredis.NewStoreFromClient(c)}
}

// SearchKNN runs FT.SEARCH KNN without SORTBY and orders hits by similarity.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	args, err := dbredis.KNNArgs(q, false)
	if err != nil {
		return nil, err
	}

	c := s.Client()
	raw, err := c.Do(ctx, c.B().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res, err := dbredis.ParseKNNResult(raw)
	if err != nil {
		return nil, err
	}
	res.SortByScore()
	return res, nil
}
