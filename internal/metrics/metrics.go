// Package metrics provides Prometheus metrics for the call service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsCreated counts sessions created per context type.
	CallsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_created_total",
			Help: "Total number of call sessions created",
		},
		[]string{"context_type"},
	)

	// CallsEnded counts finalized sessions by outcome (completed, missed).
	CallsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_ended_total",
			Help: "Total number of call sessions ended",
		},
		[]string{"context_type", "outcome"},
	)

	CallsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calls_superseded_total",
			Help: "Total number of active sessions ended by a newer call for the same context",
		},
	)

	CallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calls_duration_seconds",
			Help:    "Duration of answered calls",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_notification_failures_total",
			Help: "Total number of failed out-of-band notifications",
		},
		[]string{"kind"},
	)

	// ActiveRooms tracks signaling rooms with at least one connection.
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_rooms",
			Help: "Number of signaling rooms with connected participants",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_connections",
			Help: "Number of open signaling connections",
		},
	)

	// SignalingMessages counts inbound messages by type and result
	// (relayed, joined, dropped, rejected).
	SignalingMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_messages_total",
			Help: "Total number of signaling messages handled",
		},
		[]string{"type", "result"},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_send_failures_total",
			Help: "Total number of failed sends to a signaling connection",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordCallCreated(contextType string) {
	CallsCreated.WithLabelValues(contextType).Inc()
}

// RecordCallEnded records the outcome of a finalized session.
func RecordCallEnded(contextType string, missed bool, durationSeconds int) {
	outcome := "completed"
	if missed {
		outcome = "missed"
	} else {
		CallDuration.Observe(float64(durationSeconds))
	}
	CallsEnded.WithLabelValues(contextType, outcome).Inc()
}

func RecordCallSuperseded() { CallsSuperseded.Inc() }

func RecordNotificationFailure(kind string) {
	NotificationFailures.WithLabelValues(kind).Inc()
}

func RecordRoomCreated() { ActiveRooms.Inc() }
func RecordRoomRemoved() { ActiveRooms.Dec() }

func RecordConnectionOpened() { ActiveConnections.Inc() }
func RecordConnectionClosed() { ActiveConnections.Dec() }

func RecordSignalingMessage(msgType, result string) {
	if msgType == "" {
		msgType = "unknown"
	}
	SignalingMessages.WithLabelValues(msgType, result).Inc()
}

func RecordSendFailure() { SendFailures.Inc() }

// Middleware records HTTP request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
