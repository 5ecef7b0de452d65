package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total number of HTTP requests processed by the realtime service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_events_total",
			Help: "Total number of websocket events by direction and type.",
		},
		[]string{"direction", "event"},
	)
	wsDroppedOutboundTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_ws_dropped_outbound_total",
			Help: "Outbound events dropped because a connection's queue was full.",
		},
	)
	deliveryOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_delivery_outcomes_total",
			Help: "Message delivery pipeline outcomes.",
		},
		[]string{"outcome"},
	)
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_delivery_duration_seconds",
			Help:    "End-to-end send latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	readReceiptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_read_receipts_total",
			Help: "Read receipts applied (first transitions only).",
		},
	)
	typingSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_typing_suppressed_total",
			Help: "Typing signals absorbed by the debouncer without an emission.",
		},
	)
	presenceTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_presence_transitions_total",
			Help: "User presence transitions.",
		},
		[]string{"direction"},
	)
	summaryUpdateErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_summary_update_errors_total",
			Help: "Conversation summary updates that failed and need recompute.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		wsDroppedOutboundTotal,
		deliveryOutcomesTotal,
		deliveryDuration,
		readReceiptsTotal,
		typingSuppressedTotal,
		presenceTransitionsTotal,
		summaryUpdateErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(direction, event string) {
	wsEventsTotal.WithLabelValues(direction, event).Inc()
}

func IncDroppedOutbound() {
	wsDroppedOutboundTotal.Inc()
}

func IncDeliveryOutcome(outcome string) {
	deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func ObserveDeliveryDuration(d time.Duration) {
	deliveryDuration.Observe(d.Seconds())
}

func IncReadReceipt() {
	readReceiptsTotal.Inc()
}

func IncTypingSuppressed() {
	typingSuppressedTotal.Inc()
}

func IncPresenceTransition(direction string) {
	presenceTransitionsTotal.WithLabelValues(direction).Inc()
}

func IncSummaryUpdateError() {
	summaryUpdateErrorsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
