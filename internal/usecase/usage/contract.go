package usage

import domusage "github.com/kailas-cloud/aim3/internal/domain/usage"

// BudgetReader provides read-only access to the provider token counters.
type BudgetReader interface {
	Report(p domusage.Period) domusage.Report
}
