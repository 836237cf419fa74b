// Package metrics provides Prometheus metrics for the sidecar.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "litefs_sidecar"

var _ port.Metrics = (*Metrics)(nil)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	nodeState          prometheus.Gauge
	healthStatus       prometheus.Gauge
	splitBrainDetected prometheus.Gauge
	leaderElected      prometheus.Gauge

	forwardedTotal  *prometheus.CounterVec
	forwardDuration prometheus.Histogram
	forwardRetries  prometheus.Counter
	circuitState    *prometheus.GaugeVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failoverEvents  *prometheus.CounterVec
}

// NewMetrics creates metrics registered with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		nodeState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_state",
			Help:      "Replication role of this node (1 = primary, 0 = replica)",
		}),
		healthStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_status",
			Help:      "Health tier of this node (2 = healthy, 1 = degraded, 0 = unhealthy)",
		}),
		splitBrainDetected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "split_brain_detected",
			Help:      "Whether more than one leader was seen on the last check (1 = yes)",
		}),
		leaderElected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leader_elected",
			Help:      "Whether the election reports this node as leader (1 = yes)",
		}),
		forwardedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwarded_requests_total",
			Help:      "Write requests handled by the forwarder, by outcome",
		}, []string{"outcome"}),
		forwardDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Time spent forwarding a write to the primary, retries included",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		forwardRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_retries_total",
			Help:      "Retried forwarding attempts",
		}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Forwarding circuit breaker state (1 for the current state)",
		}, []string{"state"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		failoverEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failover_events_total",
			Help:      "Node state transitions by event type",
		}, []string{"type"}),
	}
}

// SetNodeState implements port.Metrics
func (m *Metrics) SetNodeState(state model.NodeState) {
	m.nodeState.Set(boolValue(state == model.NodeStatePrimary))
}

// SetHealthStatus implements port.Metrics
func (m *Metrics) SetHealthStatus(status model.HealthStatus) {
	switch status {
	case model.HealthStatusHealthy:
		m.healthStatus.Set(2)
	case model.HealthStatusDegraded:
		m.healthStatus.Set(1)
	default:
		m.healthStatus.Set(0)
	}
}

// SetSplitBrainDetected implements port.Metrics
func (m *Metrics) SetSplitBrainDetected(detected bool) {
	m.splitBrainDetected.Set(boolValue(detected))
}

// SetLeaderElected implements port.Metrics
func (m *Metrics) SetLeaderElected(elected bool) {
	m.leaderElected.Set(boolValue(elected))
}

// RecordForward records one forwarding decision. outcome is one of local,
// forwarded, replayed, circuit_open, no_primary, failed.
func (m *Metrics) RecordForward(outcome string, duration time.Duration) {
	m.forwardedTotal.WithLabelValues(outcome).Inc()
	if outcome == "forwarded" || outcome == "failed" {
		m.forwardDuration.Observe(duration.Seconds())
	}
}

// RecordForwardRetry counts a retried forwarding attempt
func (m *Metrics) RecordForwardRetry() {
	m.forwardRetries.Inc()
}

// SetCircuitState marks state as the current breaker state
func (m *Metrics) SetCircuitState(state string) {
	for _, s := range []string{"CLOSED", "OPEN", "HALF_OPEN"} {
		m.circuitState.WithLabelValues(s).Set(boolValue(s == state))
	}
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// EmitFailover counts failover events; it lets Metrics act as a
// port.EventEmitter.
func (m *Metrics) EmitFailover(event model.FailoverEvent) {
	m.failoverEvents.WithLabelValues(string(event.Type)).Inc()
}

// EmitSplitBrain implements port.EventEmitter
func (m *Metrics) EmitSplitBrain(status model.SplitBrainStatus) {
	m.SetSplitBrainDetected(status.IsSplitBrain)
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
