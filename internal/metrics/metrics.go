package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the client pipeline and the
// channel.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	sessionExpired   prometheus.Counter
	reconnects       prometheus.Counter
	channelMessages  *prometheus.CounterVec
	pollTicks        *prometheus.CounterVec
	inFlightRequests prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// New returns the process-wide collector registered on the default registry.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mri_console_requests_total",
					Help: "Total number of API requests sent",
				},
				[]string{"method", "status"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mri_console_request_duration_seconds",
					Help:    "API request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method"},
			),
			sessionExpired: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "mri_console_session_expired_total",
					Help: "Responses that cleared the session",
				},
			),
			reconnects: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "mri_console_channel_reconnects_total",
					Help: "Channel reconnect attempts",
				},
			),
			channelMessages: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mri_console_channel_messages_total",
					Help: "Channel messages received by type",
				},
				[]string{"type"},
			),
			pollTicks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mri_console_poll_ticks_total",
					Help: "Status polls by outcome",
				},
				[]string{"outcome"},
			),
			inFlightRequests: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "mri_console_requests_in_flight",
					Help: "Number of API requests currently in flight",
				},
			),
		}
	})
	return metricsInst
}

// ObserveRequest records a finished request. status is "error" on transport
// failure.
func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) RequestStarted() {
	if m != nil {
		m.inFlightRequests.Inc()
	}
}

func (m *Metrics) RequestFinished() {
	if m != nil {
		m.inFlightRequests.Dec()
	}
}

func (m *Metrics) SessionExpired() {
	if m != nil {
		m.sessionExpired.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) ChannelMessage(msgType string) {
	if m != nil {
		m.channelMessages.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) PollTick(outcome string) {
	if m != nil {
		m.pollTicks.WithLabelValues(outcome).Inc()
	}
}
