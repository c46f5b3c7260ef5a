package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	backendStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agent9001",
			Subsystem: "backend",
			Name:      "starts_total",
			Help:      "Number of backend launch attempts.",
		},
	)
	backendRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agent9001",
			Subsystem: "backend",
			Name:      "restarts_total",
			Help:      "Number of automatic backend restarts.",
		},
	)
	backendExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent9001",
			Subsystem: "backend",
			Name:      "exits_total",
			Help:      "Number of backend process exits by exit code.",
		}, []string{"code"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent9001",
			Subsystem: "backend",
			Name:      "state_transitions_total",
			Help:      "Number of backend lifecycle state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agent9001",
			Subsystem: "backend",
			Name:      "current_state",
			Help:      "Current backend lifecycle state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agent9001",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Readiness probe round-trip time.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	probeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agent9001",
			Subsystem: "probe",
			Name:      "failures_total",
			Help:      "Number of failed readiness probes.",
		},
	)
	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent9001",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Forwarded requests by outcome (forwarded, unavailable, upstream_error).",
		}, []string{"outcome"},
	)
	healthRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agent9001",
			Subsystem: "health",
			Name:      "requests_total",
			Help:      "Number of platform health-check requests answered.",
		},
	)
)

// Proxy outcome labels.
const (
	OutcomeForwarded     = "forwarded"
	OutcomeUnavailable   = "unavailable"
	OutcomeUpstreamError = "upstream_error"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		backendStarts, backendRestarts, backendExits,
		stateTransitions, currentState,
		probeDuration, probeFailures,
		proxyRequests, healthRequests,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		backendStarts.Inc()
	}
}

func IncRestart() {
	if regOK.Load() {
		backendRestarts.Inc()
	}
}

func IncExit(code string) {
	if regOK.Load() {
		backendExits.WithLabelValues(code).Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentState.WithLabelValues(state).Set(value)
	}
}

func ObserveProbeDuration(seconds float64) {
	if regOK.Load() {
		probeDuration.Observe(seconds)
	}
}

func IncProbeFailure() {
	if regOK.Load() {
		probeFailures.Inc()
	}
}

func IncProxyRequest(outcome string) {
	if regOK.Load() {
		proxyRequests.WithLabelValues(outcome).Inc()
	}
}

func IncHealthRequest() {
	if regOK.Load() {
		healthRequests.Inc()
	}
}
