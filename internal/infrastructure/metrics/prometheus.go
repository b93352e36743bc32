package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garyjia/uxone/internal/application/port"
)

const namespace = "uxone"

// Metrics holds the Prometheus instruments for the service
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	DecisionsTotal         *prometheus.CounterVec
	DecisionConflictsTotal prometheus.Counter

	SequenceAllocationsTotal *prometheus.CounterVec
	SequenceRetriesTotal     *prometheus.CounterVec

	NotificationsTotal  *prometheus.CounterVec
	InventoryCacheTotal *prometheus.CounterVec
}

// New creates the instruments and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Department decisions committed, by resulting aggregate status.",
		}, []string{"kind", "decision", "status"}),
		DecisionConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_conflicts_total",
			Help:      "Decisions that gave up after repeated version conflicts.",
		}),
		SequenceAllocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_allocations_total",
			Help:      "Identifiers handed out, by family.",
		}, []string{"family"}),
		SequenceRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_retries_total",
			Help:      "Sequence allocation retries, by family and reason.",
		}, []string{"family", "reason"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts, by outcome.",
		}, []string{"status"}),
		InventoryCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_cache_total",
			Help:      "Inventory cache lookups, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.DecisionConflictsTotal,
		m.SequenceAllocationsTotal,
		m.SequenceRetriesTotal,
		m.NotificationsTotal,
		m.InventoryCacheTotal,
	)
	return m
}

func (m *Metrics) SequenceAllocated(family string) {
	m.SequenceAllocationsTotal.WithLabelValues(family).Inc()
}

func (m *Metrics) SequenceRetried(family, reason string) {
	m.SequenceRetriesTotal.WithLabelValues(family, reason).Inc()
}

func (m *Metrics) DecisionRecorded(kind, decision, status string) {
	m.DecisionsTotal.WithLabelValues(kind, decision, status).Inc()
}

func (m *Metrics) DecisionConflict() {
	m.DecisionConflictsTotal.Inc()
}

func (m *Metrics) NotificationDelivered(status string) {
	m.NotificationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) InventoryCacheLookup(result string) {
	m.InventoryCacheTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest observes one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request counts and latencies.
// Routes are labelled by their template to keep cardinality low.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Verify interface compliance
var _ port.MetricsRecorder = (*Metrics)(nil)
