package evolution

import (
	"context"

	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
)

// OutcomeSource yields the most recent outcomes, oldest first.
type OutcomeSource interface {
	Recent(ctx context.Context, n int) ([]outcome.Record, error)
}

// StrategyUpdater is the single-writer view of the strategy holder.
type StrategyUpdater interface {
	Snapshot() domstrategy.State
	Update(ctx context.Context, next func(domstrategy.State) domstrategy.State) (domstrategy.State, error)
}
