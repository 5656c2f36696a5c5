package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/aim3/internal/domain/usage"
)

// Service handles token usage reporting.
type Service struct {
	br       BudgetReader
	provider string
	now      func() time.Time
}

// New creates a Service. br can be nil when no live provider is configured;
// reports are then empty and unlimited.
func New(br BudgetReader, provider string) *Service {
	return &Service{br: br, provider: provider, now: time.Now}
}

// GetReport builds a usage report for the current period.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	if s.br != nil {
		return s.br.Report(period)
	}
	start, end := period.Bounds(s.now())
	return domusage.Report{Period: period, Provider: s.provider, Start: start, End: end}
}
