package metrics

import (
	"sync"
	"time"

	"github.com/berfenger/exportlimit/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	iterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exportlimit",
			Subsystem: "control",
			Name:      "iterations_total",
			Help:      "Control iterations by outcome.",
		},
		[]string{"outcome"},
	)
	iterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "exportlimit",
			Subsystem: "control",
			Name:      "iteration_duration_seconds",
			Help:      "Control iteration duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	appliedLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exportlimit",
			Subsystem: "control",
			Name:      "applied_limit_watts",
			Help:      "Last output limit accepted by the inverter.",
		},
	)
	siteExport = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exportlimit",
			Subsystem: "control",
			Name:      "site_export_watts",
			Help:      "Last site power reading, positive when exporting.",
		},
	)
	busDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exportlimit",
			Subsystem: "bus",
			Name:      "operation_duration_seconds",
			Help:      "Bus operation duration in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"transport", "operation"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(iterations, iterationDuration, appliedLimit, siteExport, busDuration)
	})
}

func RecordIteration(report domain.Report, duration time.Duration) {
	RegisterMetrics()
	iterations.WithLabelValues(string(report.Outcome)).Inc()
	iterationDuration.Observe(duration.Seconds())
	if report.Reading != nil {
		siteExport.Set(report.Reading.Watts)
	}
	if report.State.Known {
		appliedLimit.Set(report.State.LastAppliedW)
	}
}

func RecordBusOperation(transport, operation string, duration time.Duration) {
	RegisterMetrics()
	busDuration.WithLabelValues(transport, operation).Observe(duration.Seconds())
}
