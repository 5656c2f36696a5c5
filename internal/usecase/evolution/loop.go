// Package evolution periodically retunes the strategy from observed outcomes.
package evolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	"github.com/kailas-cloud/aim3/internal/metrics"
	"github.com/kailas-cloud/aim3/internal/tracing"
)

// Config configures the loop cadence and the tuning policy.
type Config struct {
	Interval     time.Duration
	Backoff      time.Duration
	CycleTimeout time.Duration
	Policy       Policy
}

// Cycle describes one completed evolution step.
type Cycle struct {
	Reward     float64
	PrevReward float64
	Transition Transition
	Outcomes   int
	State      domstrategy.State
}

// Loop is the single writer of the strategy.
type Loop struct {
	outcomes OutcomeSource
	strategy StrategyUpdater
	cfg      Config
	logger   *zap.Logger

	// cycleMu serializes cycles and guards prevReward.
	cycleMu    sync.Mutex
	prevReward float64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an evolution loop. Zero config fields take defaults.
func New(outcomes OutcomeSource, strategy StrategyUpdater, cfg Config, logger *zap.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	cfg.Policy = cfg.Policy.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{outcomes: outcomes, strategy: strategy, cfg: cfg, logger: logger}
}

// PrevReward returns the reward of the last successful cycle (0 before the first).
func (l *Loop) PrevReward() float64 {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()
	return l.prevReward
}

// RunOnce executes a single cycle. The previous reward moves only when the new
// strategy was persisted; on error the published strategy is untouched.
// A panic in a dependency is returned as the cycle error.
func (l *Loop) RunOnce(ctx context.Context) (c Cycle, err error) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.CycleTimeout)
	defer cancel()

	ctx, span := tracing.StartEvolutionSpan(ctx, l.strategy.Snapshot().Generation)
	start := time.Now()
	defer func() {
		result := string(c.Transition)
		if err != nil {
			result = "error"
			tracing.RecordError(span, err)
		}
		metrics.EvolutionCyclesTotal.WithLabelValues(result).Inc()
		metrics.EvolutionCycleDuration.Observe(time.Since(start).Seconds())
		span.End()
	}()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Evolution cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			c, err = Cycle{}, fmt.Errorf("evolution cycle panicked: %v", r)
		}
	}()

	records, err := l.outcomes.Recent(ctx, l.cfg.Policy.Window)
	if err != nil {
		if !errors.Is(err, domain.ErrOutcomeSourceUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrOutcomeSourceUnavailable, err)
		}
		return Cycle{}, fmt.Errorf("read outcomes: %w", err)
	}

	reward := outcome.Reward(records, l.cfg.Policy.Weights)
	prev := l.prevReward

	var transition Transition
	st, err := l.strategy.Update(ctx, func(cur domstrategy.State) domstrategy.State {
		next, t := l.cfg.Policy.Next(cur, reward, prev)
		transition = t
		return next
	})
	if err != nil {
		return Cycle{}, fmt.Errorf("persist strategy: %w", err)
	}
	l.prevReward = reward
	metrics.EvolutionLastReward.Set(reward)

	span.SetAttributes(
		attribute.Float64("aim3.evolution.reward", reward),
		attribute.String("aim3.evolution.transition", string(transition)),
		attribute.Int("aim3.evolution.outcomes", len(records)),
	)
	l.logger.Info("Strategy evolved",
		zap.String("transition", string(transition)),
		zap.Float64("reward", reward),
		zap.Float64("prev_reward", prev),
		zap.Int("outcomes", len(records)),
		zap.Int64("generation", st.Generation),
		zap.Float64("serendipity_bias", st.SerendipityBias),
		zap.Float64("trust_sensitivity", st.TrustSensitivity),
	)

	return Cycle{
		Reward:     reward,
		PrevReward: prev,
		Transition: transition,
		Outcomes:   len(records),
		State:      st,
	}, nil
}

// Run cycles until ctx is done. The first cycle runs immediately; a failed cycle
// is retried after Backoff, a successful one is followed by Interval.
func (l *Loop) Run(ctx context.Context) error {
	return l.run(ctx, nil)
}

// Start runs the loop in a background goroutine. Calling Start twice is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	go func() {
		defer close(doneCh)
		_ = l.run(ctx, stopCh)
	}()
}

// Stop signals the background loop and waits for the in-flight cycle to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}) error {
	l.logger.Info("Evolution loop started",
		zap.Duration("interval", l.cfg.Interval),
		zap.Duration("backoff", l.cfg.Backoff),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Evolution loop stopping", zap.String("reason", "context done"))
			return nil
		case <-stopCh:
			l.logger.Info("Evolution loop stopping", zap.String("reason", "stop signal"))
			return nil
		case <-timer.C:
		}

		delay := l.cfg.Interval
		if _, err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.logger.Warn("Evolution cycle failed", zap.Error(err), zap.Duration("retry_in", l.cfg.Backoff))
			delay = l.cfg.Backoff
		}
		timer.Reset(delay)
	}
}
