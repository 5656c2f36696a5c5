package metrics

import "github.com/prometheus/client_golang/prometheus"

// Evolution loop and strategy metrics.
var (
	EvolutionCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evolution_cycles_total",
			Help:      "Evolution cycles by outcome",
		},
		[]string{"result"}, // "improve" / "regress" / "error"
	)

	EvolutionCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evolution_cycle_duration_seconds",
			Help:      "Evolution cycle duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	StrategySerendipityBias = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "strategy_serendipity_bias",
		Help:      "Current serendipity bias",
	})

	StrategyTemporalWeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "strategy_temporal_weight",
		Help:      "Current temporal weight",
	})

	StrategyTrustSensitivity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "strategy_trust_sensitivity",
		Help:      "Current trust sensitivity",
	})

	StrategyGeneration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "strategy_generation",
		Help:      "Current strategy generation",
	})

	EvolutionLastReward = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "evolution_last_reward",
		Help:      "Reward of the last successful cycle",
	})
)

var evoMetricsRegistered bool

// RegisterEvolutionMetrics registers evolution and strategy metrics. Must be called once from main.
func RegisterEvolutionMetrics() {
	if evoMetricsRegistered {
		return
	}
	prometheus.MustRegister(EvolutionCyclesTotal)
	prometheus.MustRegister(EvolutionCycleDuration)
	prometheus.MustRegister(StrategySerendipityBias)
	prometheus.MustRegister(StrategyTemporalWeight)
	prometheus.MustRegister(StrategyTrustSensitivity)
	prometheus.MustRegister(StrategyGeneration)
	prometheus.MustRegister(EvolutionLastReward)
	evoMetricsRegistered = true
}
