package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectifyr_messages_sent_total",
			Help: "Messages sent by the local user",
		},
		[]string{"type"},
	)

	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectifyr_ai_requests_total",
			Help: "Requests made to the AI endpoints",
		},
		[]string{"endpoint", "result"},
	)

	AILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connectifyr_ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
		[]string{"endpoint"},
	)

	PendingTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connectifyr_pending_tasks",
			Help: "Scheduled presence and delivery transitions not yet fired",
		},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connectifyr_connected_clients",
			Help: "Open browser event streams",
		},
	)

	PushSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectifyr_push_notifications_total",
			Help: "Web push notifications attempted",
		},
		[]string{"result"},
	)
)
