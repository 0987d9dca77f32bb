package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcdev12/focusroom/go/internal/realtime"
)

const namespace = "focusroom"

// Prometheus implements realtime.MetricsCollector.
type Prometheus struct {
	connectAttempts     *prometheus.CounterVec
	connectLatency      prometheus.Histogram
	connectFailures     *prometheus.CounterVec
	disconnects         *prometheus.CounterVec
	reconnectsScheduled prometheus.Counter
	reconnectDelay      prometheus.Histogram
	reconnectsAbandoned prometheus.Counter
	authRefreshes       *prometheus.CounterVec
	messagesReceived    *prometheus.CounterVec
	messagesDropped     *prometheus.CounterVec
	connected           prometheus.Gauge
}

var _ realtime.MetricsCollector = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Realtime connection attempts.",
		}, []string{"room"}),
		connectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_seconds",
			Help:      "Time from dial to open.",
			Buckets:   prometheus.DefBuckets,
		}),
		connectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Failed realtime connection attempts.",
		}, []string{"room"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Realtime connections closed, by reason.",
		}, []string{"reason"}),
		reconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Automatic reconnects scheduled.",
		}),
		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay of scheduled reconnects.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
		reconnectsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_abandoned_total",
			Help:      "Connections given up after the attempt cap.",
		}),
		authRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_refreshes_total",
			Help:      "Forced credential refreshes, by outcome.",
		}, []string{"outcome"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound realtime messages, by type.",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Outbound realtime messages dropped, by type.",
		}, []string{"type"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a realtime connection is open.",
		}),
	}

	reg.MustRegister(
		m.connectAttempts,
		m.connectLatency,
		m.connectFailures,
		m.disconnects,
		m.reconnectsScheduled,
		m.reconnectDelay,
		m.reconnectsAbandoned,
		m.authRefreshes,
		m.messagesReceived,
		m.messagesDropped,
		m.connected,
	)
	return m
}

func (m *Prometheus) RecordConnectAttempt(roomID string) {
	m.connectAttempts.WithLabelValues(roomID).Inc()
}

func (m *Prometheus) RecordConnected(roomID string, latency time.Duration) {
	m.connectLatency.Observe(latency.Seconds())
	m.connected.Set(1)
}

func (m *Prometheus) RecordConnectFailed(roomID string, err error) {
	m.connectFailures.WithLabelValues(roomID).Inc()
}

func (m *Prometheus) RecordDisconnected(roomID string, reason string) {
	m.disconnects.WithLabelValues(reason).Inc()
	m.connected.Set(0)
}

func (m *Prometheus) RecordReconnectScheduled(roomID string, attempt int, delay time.Duration) {
	m.reconnectsScheduled.Inc()
	m.reconnectDelay.Observe(delay.Seconds())
}

func (m *Prometheus) RecordReconnectAbandoned(roomID string) {
	m.reconnectsAbandoned.Inc()
	m.connected.Set(0)
}

func (m *Prometheus) RecordAuthRefresh(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.authRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) RecordMessageReceived(msgType string) {
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Prometheus) RecordMessageDropped(msgType string) {
	m.messagesDropped.WithLabelValues(msgType).Inc()
}
