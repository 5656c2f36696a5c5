package chi

import (
	"context"

	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	"github.com/kailas-cloud/aim3/internal/domain/usage"
	"github.com/kailas-cloud/aim3/internal/usecase/evolution"
)

// StrategyReader exposes the current strategy snapshot.
type StrategyReader interface {
	Snapshot() domstrategy.State
}

// OutcomeAppender records observed outcomes for the evolution loop.
type OutcomeAppender interface {
	Append(ctx context.Context, r outcome.Record) error
}

// Evolver runs one evolution cycle on demand.
type Evolver interface {
	RunOnce(ctx context.Context) (evolution.Cycle, error)
}

// UsageReporter reports provider token usage for a period.
type UsageReporter interface {
	GetReport(ctx context.Context, period usage.Period) usage.Report
}
