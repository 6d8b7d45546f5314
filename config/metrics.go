package config

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	EventsReceived   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	ElementUpdates   *prometheus.CounterVec
	ChannelConnected prometheus.Gauge
	Temperature      prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	HTTPErrors       *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns a singleton instance of Metrics registered with the
// default registry
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics(prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "display_events_received_total",
				Help: "Count of frames received from the control channel",
			},
			[]string{"event"},
		),
		EventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "display_events_rejected_total",
				Help: "Count of frames that could not be applied to the display",
			},
			[]string{"event", "reason"},
		),
		ElementUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "display_element_updates_total",
				Help: "Count of display element writes",
			},
			[]string{"element"},
		),
		ChannelConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "display_channel_connected",
				Help: "1 while the control channel is connected",
			},
		),
		Temperature: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "display_current_temperature",
				Help: "Last numeric temperature shown on the display",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "display_http_requests_total",
				Help: "Count of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "display_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.3, 1, 3},
			},
			[]string{"method", "path"},
		),
		HTTPErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "display_http_errors_total",
				Help: "Count of HTTP errors",
			},
			[]string{"method", "path", "status"},
		),
	}

	reg.MustRegister(
		m.EventsReceived,
		m.EventsRejected,
		m.ElementUpdates,
		m.ChannelConnected,
		m.Temperature,
		m.HTTPRequests,
		m.HTTPDuration,
		m.HTTPErrors,
	)
	return m
}

// SetChannelConnected mirrors the channel state into the gauge
func (m *Metrics) SetChannelConnected(connected bool) {
	if connected {
		m.ChannelConnected.Set(1)
		return
	}
	m.ChannelConnected.Set(0)
}

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
