package realtime

import "time"

// MetricsCollector receives connection lifecycle observations.
type MetricsCollector interface {
	RecordConnectAttempt(roomID string)
	RecordConnected(roomID string, latency time.Duration)
	RecordConnectFailed(roomID string, err error)
	RecordDisconnected(roomID string, reason string)
	RecordReconnectScheduled(roomID string, attempt int, delay time.Duration)
	RecordReconnectAbandoned(roomID string)
	RecordAuthRefresh(success bool)
	RecordMessageReceived(msgType string)
	RecordMessageDropped(msgType string)
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordConnectAttempt(roomID string)                                       {}
func (n *NoOpMetricsCollector) RecordConnected(roomID string, latency time.Duration)                     {}
func (n *NoOpMetricsCollector) RecordConnectFailed(roomID string, err error)                             {}
func (n *NoOpMetricsCollector) RecordDisconnected(roomID string, reason string)                          {}
func (n *NoOpMetricsCollector) RecordReconnectScheduled(roomID string, attempt int, delay time.Duration) {}
func (n *NoOpMetricsCollector) RecordReconnectAbandoned(roomID string)                                   {}
func (n *NoOpMetricsCollector) RecordAuthRefresh(success bool)                                           {}
func (n *NoOpMetricsCollector) RecordMessageReceived(msgType string)                                     {}
func (n *NoOpMetricsCollector) RecordMessageDropped(msgType string)                                      {}
