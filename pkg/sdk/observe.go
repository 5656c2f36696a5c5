package aim3

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// errorClasses label failed operations by the sentinel they wrap; the first match wins.
var errorClasses = []struct {
	err   error
	label string
}{
	{ErrInvalidInput, "invalid_input"},
	{ErrVectorDimMismatch, "dimension_mismatch"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrPersistenceFailure, "persistence_failure"},
	{ErrOutcomeSourceUnavailable, "outcome_source_unavailable"},
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.label
		}
	}
	return "error"
}

type clientMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	generation  prometheus.Gauge
	bias        prometheus.Gauge
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aim3", Subsystem: "sdk",
			Name: "operations_total",
			Help: "Client operations by type and status (ok or error class).",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aim3", Subsystem: "sdk",
			Name:    "operation_duration_seconds",
			Help:    "Client operation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aim3", Subsystem: "sdk",
			Name: "evolution_transitions_total",
			Help: "Evolution cycles run through the client, by transition.",
		}, []string{"transition"}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aim3", Subsystem: "sdk",
			Name: "strategy_generation",
			Help: "Strategy generation after the last client-driven cycle.",
		}),
		bias: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aim3", Subsystem: "sdk",
			Name: "serendipity_bias",
			Help: "Serendipity bias after the last client-driven cycle.",
		}),
	}
	for _, err := range []error{
		registerOrReuse(reg, &m.operations),
		registerOrReuse(reg, &m.duration),
		registerOrReuse(reg, &m.transitions),
		registerOrReuse(reg, &m.generation),
		registerOrReuse(reg, &m.bias),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerOrReuse registers c, or swaps in the collector already registered
// under the same descriptor so several clients can share one registry.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("aim3: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("aim3: metric already registered with incompatible type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer logs and measures client calls. A nil observer does nothing.
type observer struct {
	logger  *slog.Logger
	metrics *clientMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	status := statusLabel(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}
	if o.logger == nil {
		return
	}
	if err != nil {
		o.logger.Warn("operation failed", "op", op, "status", status, "duration", dur, "error", err)
		return
	}
	o.logger.Debug("operation completed", "op", op, "duration", dur)
}

// observeCycle records the strategy a completed cycle produced.
func (o *observer) observeCycle(c Cycle) {
	if o == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.transitions.WithLabelValues(c.Transition).Inc()
		o.metrics.generation.Set(float64(c.Strategy.Generation))
		o.metrics.bias.Set(c.Strategy.SerendipityBias)
	}
	if o.logger != nil {
		o.logger.Info("strategy evolved",
			"transition", c.Transition,
			"reward", c.Reward,
			"previous_reward", c.PreviousReward,
			"generation", c.Strategy.Generation,
			"serendipity_bias", c.Strategy.SerendipityBias,
		)
	}
}
