package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels adapter calls and queries that produced a result.
	OutcomeSuccess = "success"
	// OutcomeError labels queries that failed before a result was assembled.
	OutcomeError = "error"
)

var (
	adapterCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hllm",
			Name:      "adapter_calls_total",
			Help:      "Adapter invocations, partitioned by provider and outcome (success or failure kind).",
		},
		[]string{"provider", "outcome"},
	)

	adapterLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hllm",
			Name:      "adapter_latency_seconds",
			Help:      "Adapter invocation latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"provider"},
	)

	dispatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hllm",
			Name:      "dispatch_seconds",
			Help:      "Fan-out/fan-in wall time in seconds.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	succeededSlots = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hllm",
			Name:      "dispatch_succeeded_slots",
			Help:      "Number of slots holding a usable response per dispatch.",
			Buckets:   prometheus.LinearBuckets(0, 1, 9),
		},
	)

	hscoreFinal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hllm",
			Name:      "hscore_final",
			Help:      "Distribution of final H-Scores (0-10).",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hllm",
			Name:      "queries_total",
			Help:      "Queries handled by the coordinator, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hllm",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups, partitioned by hit or miss.",
		},
		[]string{"result"},
	)
)

// Register attaches hllm collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		adapterCallsTotal,
		adapterLatencySeconds,
		dispatchSeconds,
		succeededSlots,
		hscoreFinal,
		queriesTotal,
		cacheLookupsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAdapter records one adapter invocation.
// outcome is OutcomeSuccess or the failure kind.
func ObserveAdapter(provider, outcome string, latency time.Duration) {
	adapterCallsTotal.WithLabelValues(provider, outcome).Inc()
	adapterLatencySeconds.WithLabelValues(provider).Observe(clamp(latency).Seconds())
}

// ObserveDispatch records a completed fan-in
func ObserveDispatch(duration time.Duration, succeeded int) {
	dispatchSeconds.Observe(clamp(duration).Seconds())
	succeededSlots.Observe(float64(succeeded))
}

// ObserveQuery records a coordinator outcome and, on success, the final score
func ObserveQuery(outcome string, final float64) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
		hscoreFinal.Observe(final)
	}
	queriesTotal.WithLabelValues(label).Inc()
}

// ObserveCache records a result cache lookup
func ObserveCache(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
