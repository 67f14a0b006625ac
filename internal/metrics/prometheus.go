// Package metrics provides Prometheus metrics collection for the sync
// engine: cycle outcomes, remote API calls, conflicts, dead-letter depth,
// and circuit breaker state (spec.md §6).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Sink implements core.MetricSink on top of Prometheus client_golang,
// following the teacher's promauto-registration pattern.
type Sink struct {
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     *prometheus.HistogramVec
	remoteAPICalls    *prometheus.CounterVec
	conflictsTotal    *prometheus.CounterVec
	dlqDepth          prometheus.Gauge
	breakerState      *prometheus.GaugeVec
}

// NewSink creates and registers the sync engine's Prometheus metrics.
func NewSink() *Sink {
	return &Sink{
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sheetsync",
				Subsystem: "engine",
				Name:      "cycles_total",
				Help:      "Total number of sync cycles by direction and outcome",
			},
			[]string{"direction", "status"},
		),
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sheetsync",
				Subsystem: "engine",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of a sync cycle from start to completion",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"direction", "status"},
		),
		remoteAPICalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sheetsync",
				Subsystem: "engine",
				Name:      "remote_api_calls_total",
				Help:      "Total calls to the spreadsheet or target table adapter, by operation and status",
			},
			[]string{"operation", "status"},
		),
		conflictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sheetsync",
				Subsystem: "engine",
				Name:      "conflicts_total",
				Help:      "Total conflicts detected, by resolution strategy",
			},
			[]string{"strategy"},
		),
		dlqDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sheetsync",
				Subsystem: "engine",
				Name:      "dlq_depth",
				Help:      "Current number of jobs held in the dead-letter sink",
			},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sheetsync",
				Subsystem: "engine",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per target: 0=closed, 1=half-open, 2=open",
			},
			[]string{"target"},
		),
	}
}

var _ core.MetricSink = (*Sink)(nil)

func (s *Sink) RecordCycle(direction core.Direction, status core.HistoryStatus, duration time.Duration) {
	s.cyclesTotal.WithLabelValues(string(direction), string(status)).Inc()
	s.cycleDuration.WithLabelValues(string(direction), string(status)).Observe(duration.Seconds())
}

func (s *Sink) RecordRemoteAPICall(operation string, status string) {
	s.remoteAPICalls.WithLabelValues(operation, status).Inc()
}

func (s *Sink) RecordConflict(strategy core.ConflictPolicy) {
	s.conflictsTotal.WithLabelValues(string(strategy)).Inc()
}

func (s *Sink) SetDLQDepth(n int) {
	s.dlqDepth.Set(float64(n))
}

// SetBreakerState records state as one of "closed", "half-open", "open".
func (s *Sink) SetBreakerState(target string, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	default:
		v = 0
	}
	s.breakerState.WithLabelValues(target).Set(v)
}
