// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionRequests counts RequestConnection calls by outcome.
	ConnectionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rishta_connection_requests_total",
		Help: "Connection requests by outcome",
	}, []string{"outcome"})

	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rishta_connections_accepted_total",
		Help: "Connection requests moved to accepted",
	})

	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rishta_conversations_created_total",
		Help: "Conversations inserted into the directory",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rishta_messages_sent_total",
		Help: "Messages appended to the log",
	})

	// SendFailures counts rejected or failed sends by error code.
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rishta_send_failures_total",
		Help: "Failed message sends by error code",
	}, []string{"code"})

	SendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rishta_send_retries_total",
		Help: "Message inserts retried after a transient storage error",
	})

	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rishta_send_duration_seconds",
		Help:    "Time to persist and publish a message",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rishta_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "method", "status"})

	TCPSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rishta_tcp_sessions",
		Help: "Open line protocol sessions",
	})
)

var subscriptionsOnce sync.Once

// RegisterSubscriptions exposes the number of live message subscriptions as
// reported by count. Only the first call registers.
func RegisterSubscriptions(count func() int) {
	subscriptionsOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rishta_active_subscriptions",
			Help: "Live message subscriptions",
		}, func() float64 { return float64(count()) })
	})
}
