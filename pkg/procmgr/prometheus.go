package procmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	stateTransitions *prometheus.CounterVec
	state            prometheus.Gauge

	startDuration *prometheus.HistogramVec
	stopDuration  *prometheus.HistogramVec

	errors      *prometheus.CounterVec
	restarts    *prometheus.CounterVec
	forcedKills *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "maestro"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_state_transitions_total",
			Help:      "Total number of process state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	pmc.state = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_state",
			Help:      "Current process state (0=Stopped, 1=Starting, 2=Running, 3=Stopping)",
		},
	)

	pmc.startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_start_duration_seconds",
			Help:      "Duration of process start operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode", "status"},
	)

	pmc.stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_stop_duration_seconds",
			Help:      "Duration of process stop operations",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	pmc.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_errors_total",
			Help:      "Total number of failed lifecycle operations",
		},
		[]string{"code"},
	)

	pmc.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_restarts_total",
			Help:      "Total number of process restarts",
		},
		[]string{"reason"},
	)

	pmc.forcedKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_forced_kills_total",
			Help:      "Total number of SIGKILLs sent",
		},
		[]string{"target"},
	)

	pmc.registry.MustRegister(
		pmc.stateTransitions,
		pmc.state,
		pmc.startDuration,
		pmc.stopDuration,
		pmc.errors,
		pmc.restarts,
		pmc.forcedKills,
	)

	return pmc
}

// StateTransition records a state transition
func (pmc *PrometheusMetricsCollector) StateTransition(fromState, toState ProcessState) {
	pmc.stateTransitions.WithLabelValues(
		fromState.String(),
		toState.String(),
	).Inc()
	pmc.state.Set(float64(toState))
}

// StartDuration records the duration of a start operation
func (pmc *PrometheusMetricsCollector) StartDuration(mode RunMode, duration time.Duration, err error) {
	pmc.startDuration.WithLabelValues(
		mode.String(),
		statusLabel(err),
	).Observe(duration.Seconds())
}

// StopDuration records the duration of a stop operation
func (pmc *PrometheusMetricsCollector) StopDuration(duration time.Duration, err error) {
	pmc.stopDuration.WithLabelValues(
		statusLabel(err),
	).Observe(duration.Seconds())
}

// Error records a failed operation
func (pmc *PrometheusMetricsCollector) Error(code string) {
	pmc.errors.WithLabelValues(code).Inc()
}

// Restart records a restart
func (pmc *PrometheusMetricsCollector) Restart(reason string) {
	pmc.restarts.WithLabelValues(reason).Inc()
}

// ForcedKill records a SIGKILL
func (pmc *PrometheusMetricsCollector) ForcedKill(target string) {
	pmc.forcedKills.WithLabelValues(target).Inc()
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
