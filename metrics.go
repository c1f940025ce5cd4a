package aiola

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics records SDK activity. A nil *metrics is valid and records nothing.
type metrics struct {
	tokenGrants    *prometheus.CounterVec
	streamConnects *prometheus.CounterVec
	activeStreams  prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	return &metrics{
		tokenGrants: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiola_sdk_token_grants_total",
			Help: "Total number of API key to access token exchanges",
		}, []string{"status"}),

		streamConnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiola_sdk_stream_connects_total",
			Help: "Total number of streaming connection attempts",
		}, []string{"status"}),

		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aiola_sdk_active_streams",
			Help: "Number of connected streaming sessions",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiola_sdk_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		}, []string{"endpoint", "status"}),

		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aiola_sdk_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"endpoint"}),
	}
}

func (m *metrics) tokenGrant(status string) {
	if m == nil {
		return
	}
	m.tokenGrants.WithLabelValues(status).Inc()
}

func (m *metrics) streamConnect(status string) {
	if m == nil {
		return
	}
	m.streamConnects.WithLabelValues(status).Inc()
	if status == "success" {
		m.activeStreams.Inc()
	}
}

func (m *metrics) streamDisconnected() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func (m *metrics) observeRequest(endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, status).Inc()
	m.httpLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}
