// Package observability records file server metrics in Prometheus and
// exposes them over HTTP.
//
// All metrics are optional: the engine is handed a Metrics value and uses
// NewNoopMetrics when collection is disabled.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Suspension stages reported to Metrics.Suspended.
const (
	StageStaticSend  = "static_send"
	StageDynamicRead = "dynamic_read"
	StageDynamicSend = "dynamic_send"
)

// Metrics is the set of events the engine reports.
type Metrics interface {
	ConnectionAccepted()
	ConnectionRejected()
	ConnectionClosed(finalState string)
	ResponseSent(status int, kind string, d time.Duration)
	BodyBytes(kind string, n int64)
	Suspended(stage string)
	AsyncReadFailed()
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) ConnectionAccepted() {}
func (noopMetrics) ConnectionRejected() {}
func (noopMetrics) ConnectionClosed(string) {}
func (noopMetrics) ResponseSent(int, string, time.Duration) {}
func (noopMetrics) BodyBytes(string, int64) {}
func (noopMetrics) Suspended(string) {}
func (noopMetrics) AsyncReadFailed() {}

type promMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	responsesTotal      *prometheus.CounterVec
	responseDuration    *prometheus.HistogramVec
	bodyBytes           *prometheus.CounterVec
	suspensions         *prometheus.CounterVec
	asyncReadFailures   prometheus.Counter
}

// NewMetrics registers the file server collectors with reg.
func NewMetrics(reg prometheus.Registerer) Metrics {
	f := promauto.With(reg)
	return &promMetrics{
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "fileserver_connections_accepted_total",
			Help: "Total number of accepted client connections",
		}),
		connectionsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "fileserver_connections_rejected_total",
			Help: "Connections closed on accept because the connection limit was reached",
		}),
		connectionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fileserver_connections_closed_total",
			Help: "Connections torn down, by final state",
		}, []string{"state"}),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "fileserver_connections_active",
			Help: "Current number of registered client connections",
		}),
		responsesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fileserver_responses_total",
			Help: "Completed responses by status code and resource kind",
		}, []string{"status", "kind"}),
		responseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "fileserver_response_duration_milliseconds",
			Help: "Time from accept to the last response byte",
			Buckets: []float64{
				1,     // 1ms
				10,    // 10ms
				100,   // 100ms
				1000,  // 1s
				10000, // 10s
			},
		}, []string{"kind"}),
		bodyBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fileserver_body_bytes_total",
			Help: "Response body bytes written, by resource kind",
		}, []string{"kind"}),
		suspensions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fileserver_transfer_suspensions_total",
			Help: "Transfers that yielded to the event loop, by stage",
		}, []string{"stage"}),
		asyncReadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "fileserver_async_read_failures_total",
			Help: "Asynchronous disk reads that failed to submit or complete",
		}),
	}
}

func (m *promMetrics) ConnectionAccepted() {
	m.connectionsAccepted.Inc()
	m.activeConnections.Inc()
}

func (m *promMetrics) ConnectionRejected() {
	m.connectionsRejected.Inc()
}

func (m *promMetrics) ConnectionClosed(finalState string) {
	m.connectionsClosed.WithLabelValues(finalState).Inc()
	m.activeConnections.Dec()
}

func (m *promMetrics) ResponseSent(status int, kind string, d time.Duration) {
	m.responsesTotal.WithLabelValues(strconv.Itoa(status), kind).Inc()
	m.responseDuration.WithLabelValues(kind).Observe(float64(d.Microseconds()) / 1000)
}

func (m *promMetrics) BodyBytes(kind string, n int64) {
	if n > 0 {
		m.bodyBytes.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *promMetrics) Suspended(stage string) {
	m.suspensions.WithLabelValues(stage).Inc()
}

func (m *promMetrics) AsyncReadFailed() {
	m.asyncReadFailures.Inc()
}
