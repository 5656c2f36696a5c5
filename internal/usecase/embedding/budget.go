package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/usage"
	"github.com/kailas-cloud/aim3/internal/metrics"
)

// BudgetAction defines behavior when the token budget is spent.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning and still calls the provider.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionFallback skips the provider; the hash fallback answers instead.
	BudgetActionFallback BudgetAction = "fallback"
)

// storeTimeout bounds the write-behind to the shared counters.
const storeTimeout = 2 * time.Second

// BudgetStore persists token counters shared by all replicas.
type BudgetStore interface {
	Add(ctx context.Context, key string, tokens int64, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// periodCounter is the in-memory counter of one budget period.
type periodCounter struct {
	period usage.Period
	limit  int64
	used   int64
	start  time.Time
}

// BudgetTracker enforces daily and monthly provider token caps.
// Check is in-memory only; Record updates memory first, then the store.
type BudgetTracker struct {
	mu       sync.Mutex
	provider string
	action   BudgetAction
	daily    periodCounter
	monthly  periodCounter
	store    BudgetStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudgetTracker creates a tracker. A zero limit leaves that period uncapped.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	return &BudgetTracker{
		provider: provider,
		action:   action,
		daily:    periodCounter{period: usage.PeriodDay, limit: dailyLimit},
		monthly:  periodCounter{period: usage.PeriodMonth, limit: monthlyLimit},
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the wall clock.
func (b *BudgetTracker) WithClock(now func() time.Time) *BudgetTracker {
	b.now = now
	return b
}

// WithStore attaches shared counters and loads the current totals.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.store = store

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now().UTC()
	for _, c := range []*periodCounter{&b.daily, &b.monthly} {
		b.roll(c, now)
		used, err := store.Get(ctx, b.key(c, now))
		if err != nil {
			b.logger.Warn("Failed to load token budget", zap.String("period", string(c.period)), zap.Error(err))
			continue
		}
		c.used = used
	}
	b.logger.Info("Token budget loaded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("monthly_used", b.monthly.used),
	)
	b.publish()
	return b
}

// Check reports whether a new provider call is allowed.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	b.roll(&b.daily, now)
	b.roll(&b.monthly, now)

	if !exhausted(&b.daily) && !exhausted(&b.monthly) {
		return nil
	}
	if b.action == BudgetActionFallback {
		return domain.ErrTokenBudgetExceeded
	}
	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("daily_limit", b.daily.limit),
		zap.Int64("monthly_used", b.monthly.used),
		zap.Int64("monthly_limit", b.monthly.limit),
	)
	return nil
}

// Record adds consumed tokens. With a store attached, the shared totals
// replace the local ones so replicas converge on the same budget.
func (b *BudgetTracker) Record(ctx context.Context, tokens int64) {
	if tokens <= 0 {
		return
	}

	b.mu.Lock()
	now := b.now().UTC()
	type write struct {
		c   *periodCounter
		key string
		ttl time.Duration
	}
	var writes []write
	for _, c := range []*periodCounter{&b.daily, &b.monthly} {
		b.roll(c, now)
		c.used += tokens
		_, end := c.period.Bounds(now)
		// Keep the key a day past the period end for late readers.
		writes = append(writes, write{c: c, key: b.key(c, now), ttl: end.Sub(now) + 24*time.Hour})
	}
	b.publish()
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	for _, w := range writes {
		total, err := store.Add(ctx, w.key, tokens, w.ttl)
		if err != nil {
			b.logger.Warn("Failed to persist token budget", zap.String("key", w.key), zap.Error(err))
			continue
		}
		b.mu.Lock()
		if w.c.start.Equal(periodStart(w.c.period, now)) {
			w.c.used = max(w.c.used, total)
		}
		b.mu.Unlock()
	}
}

// Report returns the usage of the current day or month.
func (b *BudgetTracker) Report(p usage.Period) usage.Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	c := &b.daily
	if p == usage.PeriodMonth {
		c = &b.monthly
	}
	b.roll(c, now)
	start, end := p.Bounds(now)
	return usage.Report{Period: p, Provider: b.provider, Start: start, End: end, Used: c.used, Limit: c.limit}
}

// roll zeroes a counter when its period has passed. Caller holds mu.
func (b *BudgetTracker) roll(c *periodCounter, now time.Time) {
	start := periodStart(c.period, now)
	if start.After(c.start) {
		c.used = 0
		c.start = start
	}
}

func (b *BudgetTracker) key(c *periodCounter, now time.Time) string {
	layout := "2006-01-02"
	if c.period == usage.PeriodMonth {
		layout = "2006-01"
	}
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, b.provider, c.period, now.Format(layout))
}

// publish exports the remaining tokens. Caller holds mu.
func (b *BudgetTracker) publish() {
	for _, c := range []*periodCounter{&b.daily, &b.monthly} {
		if c.limit <= 0 {
			continue
		}
		metrics.EmbeddingBudgetTokensRemaining.
			WithLabelValues(b.provider, string(c.period)).
			Set(float64(max(c.limit-c.used, 0)))
	}
}

func exhausted(c *periodCounter) bool { return c.limit > 0 && c.used >= c.limit }

func periodStart(p usage.Period, now time.Time) time.Time {
	start, _ := p.Bounds(now)
	return start
}
