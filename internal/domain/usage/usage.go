package usage

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain"
)

// Period is the budget window a report covers.
type Period string

// Reporting periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value to a Period. Empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", domain.NewInvalidInput("period", fmt.Sprintf("unknown value %q", s))
	}
}

// Bounds returns the UTC window of p that contains t.
func (p Period) Bounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	if p == PeriodMonth {
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Report is the provider token usage for one period.
type Report struct {
	Period   Period
	Provider string
	Start    time.Time
	End      time.Time
	Used     int64
	// Limit is 0 when the period is unlimited.
	Limit int64
}

// Unlimited reports whether no cap applies.
func (r Report) Unlimited() bool { return r.Limit <= 0 }

// Remaining is the number of tokens left, or -1 when unlimited.
func (r Report) Remaining() int64 {
	if r.Unlimited() {
		return -1
	}
	return max(r.Limit-r.Used, 0)
}

// Exhausted reports whether a capped period is spent. Further provider
// calls are then served by the hash fallback until End.
func (r Report) Exhausted() bool {
	return !r.Unlimited() && r.Used >= r.Limit
}
