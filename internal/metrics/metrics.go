// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	refreshesTotalCounter    *prometheus.CounterVec
	refreshDurationMetric    prometheus.Histogram
	cachedEventsGauge        *prometheus.GaugeVec
	reviewDecisionsCounter   *prometheus.CounterVec
	magnitudeWritesCounter   *prometheus.CounterVec
	requestsDispatchedMetric *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		refreshesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_refreshes_total",
				Help: "Total number of event cache refreshes by schema and outcome.",
			},
			[]string{"schema", "outcome"},
		)

		refreshDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "event_refresh_duration_seconds",
				Help:    "Duration of event cache refreshes in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		cachedEventsGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cached_events",
				Help: "Number of events currently cached per schema.",
			},
			[]string{"schema"},
		)

		reviewDecisionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_decisions_total",
				Help: "Total number of review decisions by kind and outcome.",
			},
			[]string{"decision", "outcome"},
		)

		magnitudeWritesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magnitude_writes_total",
				Help: "Total number of network magnitude write operations by kind.",
			},
			[]string{"operation"},
		)

		requestsDispatchedMetric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requests_dispatched_total",
				Help: "Total number of dispatched review requests by type and status.",
			},
			[]string{"request_type", "status"},
		)

		prometheus.MustRegister(
			refreshesTotalCounter,
			refreshDurationMetric,
			cachedEventsGauge,
			reviewDecisionsCounter,
			magnitudeWritesCounter,
			requestsDispatchedMetric,
		)

		// Ensure decision counters are visible at /metrics before first increment.
		for _, decision := range []string{"accept", "reject"} {
			reviewDecisionsCounter.WithLabelValues(decision, "ok")
			reviewDecisionsCounter.WithLabelValues(decision, "error")
		}
	})
}

func IncRefresh(schema, outcome string) {
	Init()
	refreshesTotalCounter.WithLabelValues(schema, outcome).Inc()
}

func ObserveRefreshDuration(d time.Duration) {
	Init()
	refreshDurationMetric.Observe(d.Seconds())
}

func SetCachedEvents(schema string, n int) {
	Init()
	cachedEventsGauge.WithLabelValues(schema).Set(float64(n))
}

func IncReviewDecision(decision, outcome string) {
	Init()
	reviewDecisionsCounter.WithLabelValues(decision, outcome).Inc()
}

func IncMagnitudeWrite(operation string) {
	Init()
	magnitudeWritesCounter.WithLabelValues(operation).Inc()
}

func IncRequestDispatched(requestType, status string) {
	Init()
	requestsDispatchedMetric.WithLabelValues(requestType, status).Inc()
}
