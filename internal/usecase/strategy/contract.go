package strategy

import (
	"context"

	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
)

// Store persists the strategy record as a whole.
// Load returns domain.ErrNotFound when nothing has been persisted yet.
type Store interface {
	Load(ctx context.Context) (domstrategy.State, error)
	Save(ctx context.Context, st domstrategy.State) error
}
