package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels cycles that completed and appended a report.
	OutcomeSuccess = "success"
	// OutcomeError labels cycles that failed before producing a report.
	OutcomeError = "error"
	// OutcomeSkipped labels cycle ticks skipped by the reentrancy guard.
	OutcomeSkipped = "skipped"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optimizer_engine",
			Name:      "cycles_total",
			Help:      "Total number of optimization cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "optimizer_engine",
			Name:      "cycle_seconds",
			Help:      "Optimization cycle latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	adapterFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optimizer_engine",
			Name:      "adapter_failures_total",
			Help:      "Snapshot or command failures per subsystem adapter.",
		},
		[]string{"adapter", "operation"},
	)

	ruleFiringsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optimizer_engine",
			Name:      "rule_firings_total",
			Help:      "Automation rule firings, partitioned by trigger type.",
		},
		[]string{"trigger"},
	)

	recommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optimizer_engine",
			Name:      "recommendations_total",
			Help:      "Recommendations generated and auto-implemented.",
		},
		[]string{"state"},
	)

	healthScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "optimizer_engine",
			Name:      "health_score",
			Help:      "Latest health score per component; the overall series uses component=\"overall\".",
		},
		[]string{"component"},
	)
)

// Register attaches optimizer-engine collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		adapterFailuresTotal,
		ruleFiringsTotal,
		recommendationsTotal,
		healthScore,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records one optimization cycle duration and outcome.
func ObserveCycle(duration time.Duration, outcome string) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveAdapterFailure counts a failed snapshot or command call.
func ObserveAdapterFailure(adapter, operation string) {
	adapterFailuresTotal.WithLabelValues(adapter, operation).Inc()
}

// ObserveRuleFiring counts one automation rule firing.
func ObserveRuleFiring(trigger string) {
	ruleFiringsTotal.WithLabelValues(trigger).Inc()
}

// ObserveRecommendations records generated and implemented counts for a cycle.
func ObserveRecommendations(generated, implemented int) {
	recommendationsTotal.WithLabelValues("generated").Add(float64(generated))
	recommendationsTotal.WithLabelValues("implemented").Add(float64(implemented))
}

// SetHealthScore publishes the latest score for one component.
func SetHealthScore(component string, score float64) {
	healthScore.WithLabelValues(component).Set(score)
}
