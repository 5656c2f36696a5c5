// Package strategy owns the process-wide strategy record shared by the ranking
// pipeline (readers) and the evolution loop (the single writer).
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	"github.com/kailas-cloud/aim3/internal/metrics"
)

// Holder publishes immutable snapshots through an atomic pointer.
// Writers are serialized and the pointer moves only after a successful persist,
// so readers never observe a state that was not durably written.
type Holder struct {
	store   Store
	current atomic.Pointer[domstrategy.State]
	mu      sync.Mutex
	synced  bool // the persisted record was read or confirmed absent
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewHolder creates a holder primed with the default strategy. Call Load to read persisted state.
func NewHolder(store Store, logger *zap.Logger) *Holder {
	h := &Holder{store: store, now: time.Now, logger: logger}
	def := domstrategy.Default(h.now())
	h.current.Store(&def)
	return h
}

// WithClock overrides the time source (tests).
func (h *Holder) WithClock(now func() time.Time) *Holder {
	h.now = now
	return h
}

// WithTimeout bounds every persistence call. 0 leaves the caller's deadline.
func (h *Holder) WithTimeout(d time.Duration) *Holder {
	h.timeout = d
	return h
}

func (h *Holder) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.timeout)
}

// Load replaces the snapshot with the persisted record.
// A missing or invalid record leaves the defaults in place. A read failure keeps
// the current snapshot and is returned; until a read succeeds Update refuses to
// persist, so a transient outage never overwrites a newer stored generation.
func (h *Holder) Load(ctx context.Context) (domstrategy.State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.load(ctx); err != nil {
		return *h.current.Load(), err
	}
	return *h.current.Load(), nil
}

func (h *Holder) load(ctx context.Context) error {
	ctx, cancel := h.bound(ctx)
	defer cancel()

	st, err := h.store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.logger.Info("No persisted strategy, using defaults")
		st = domstrategy.Default(h.now())
	case err != nil:
		h.synced = false
		return fmt.Errorf("load strategy: %w", err)
	default:
		if verr := st.Validate(); verr != nil {
			h.logger.Warn("Persisted strategy is invalid, using defaults", zap.Error(verr))
			st = domstrategy.Default(h.now())
		}
	}

	h.synced = true
	h.publish(st)
	return nil
}

// Snapshot returns the current strategy. Safe for concurrent use; never blocks on writers.
func (h *Holder) Snapshot() domstrategy.State {
	return *h.current.Load()
}

// Update computes the next state from the current one, persists it, then publishes it.
// The persisted record is re-read first if it has not been loaded yet.
// On any error the published state is unchanged.
func (h *Holder) Update(
	ctx context.Context, next func(domstrategy.State) domstrategy.State,
) (domstrategy.State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.synced {
		if err := h.load(ctx); err != nil {
			return *h.current.Load(), fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
		}
	}

	cur := *h.current.Load()
	st := next(cur)
	st.LastUpdated = h.now().UTC()

	if err := st.Validate(); err != nil {
		return cur, fmt.Errorf("%w: computed state rejected: %w", domain.ErrPersistenceFailure, err)
	}
	ctx, cancel := h.bound(ctx)
	defer cancel()
	if err := h.store.Save(ctx, st); err != nil {
		if !errors.Is(err, domain.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
		}
		return cur, err
	}

	h.publish(st)
	return st, nil
}

func (h *Holder) publish(st domstrategy.State) {
	h.current.Store(&st)
	metrics.StrategySerendipityBias.Set(st.SerendipityBias)
	metrics.StrategyTemporalWeight.Set(st.TemporalWeight)
	metrics.StrategyTrustSensitivity.Set(st.TrustSensitivity)
	metrics.StrategyGeneration.Set(float64(st.Generation))
}
