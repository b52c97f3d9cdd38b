// Package metrics exposes Prometheus counters for channels and the hub.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for one process.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	messagesPosted   *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	acksTotal        prometheus.Counter
	deliveryFailures *prometheus.CounterVec
	channelsLive     *prometheus.GaugeVec
	mailboxes        prometheus.Gauge
	connections      prometheus.Gauge
	connectionsTotal prometheus.Counter
	httpRequests     *prometheus.CounterVec
	uptimeSeconds    prometheus.Gauge
	goroutines       prometheus.Gauge
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		messagesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcmesh_messages_posted_total",
			Help: "Messages posted, by kind.",
		}, []string{"kind"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcmesh_messages_received_total",
			Help: "Messages received and dispatched, by kind.",
		}, []string{"kind"}),
		acksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rcmesh_acks_total",
			Help: "Personal messages acknowledged by their recipient.",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcmesh_delivery_failures_total",
			Help: "Personal messages that failed, by reason.",
		}, []string{"reason"}),
		channelsLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcmesh_channels_live",
			Help: "Live channels, by kind.",
		}, []string{"kind"}),
		mailboxes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rcmesh_mailboxes",
			Help: "Mailboxes registered on the hub.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rcmesh_connections",
			Help: "Currently connected clients.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rcmesh_connections_total",
			Help: "Total client connections since start.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcmesh_http_requests_total",
			Help: "HTTP requests served by the post office, by route and status class.",
		}, []string{"route", "class"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rcmesh_uptime_seconds",
			Help: "Process uptime in seconds.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rcmesh_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.messagesPosted,
		m.messagesReceived,
		m.acksTotal,
		m.deliveryFailures,
		m.channelsLive,
		m.mailboxes,
		m.connections,
		m.connectionsTotal,
		m.httpRequests,
		m.uptimeSeconds,
		m.goroutines,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// MessagePosted counts an outgoing message of the given kind.
func (m *Metrics) MessagePosted(kind string) {
	if m == nil {
		return
	}
	m.messagesPosted.WithLabelValues(kind).Inc()
}

// MessageReceived counts an inbound message of the given kind.
func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind).Inc()
}

// Ack counts a personal message acknowledged by its recipient.
func (m *Metrics) Ack() {
	if m == nil {
		return
	}
	m.acksTotal.Inc()
}

// DeliveryFailed counts a failed personal message.
func (m *Metrics) DeliveryFailed(reason string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(reason).Inc()
}

// ChannelOpened and ChannelClosed track live channels per kind.
func (m *Metrics) ChannelOpened(kind string) {
	if m == nil {
		return
	}
	m.channelsLive.WithLabelValues(kind).Inc()
}

func (m *Metrics) ChannelClosed(kind string) {
	if m == nil {
		return
	}
	m.channelsLive.WithLabelValues(kind).Dec()
}

// SetMailboxes records the hub's mailbox count.
func (m *Metrics) SetMailboxes(n int) {
	if m == nil {
		return
	}
	m.mailboxes.Set(float64(n))
}

// ClientConnected and ClientDisconnected track hub connections.
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// HTTPRequest counts a served request. Status is folded into its class
// ("2xx", "4xx") to keep cardinality flat.
func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, fmt.Sprintf("%dxx", status/100)).Inc()
}

// Handler returns an http.Handler that refreshes runtime gauges before
// serving the registry.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
		m.goroutines.Set(float64(runtime.NumGoroutine()))
		inner.ServeHTTP(w, r)
	})
}
