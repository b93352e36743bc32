package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestDomainCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SequenceAllocated("project")
	m.SequenceAllocated("project")
	m.SequenceRetried("project", "busy")
	m.DecisionRecorded("PROJECT", "APPROVED", "PENDING")
	m.DecisionConflict()
	m.NotificationDelivered("SENT")
	m.NotificationDelivered("FAILED")
	m.InventoryCacheLookup("hit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SequenceAllocationsTotal.WithLabelValues("project")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceRetriesTotal.WithLabelValues("project", "busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("PROJECT", "APPROVED", "PENDING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionConflictsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InventoryCacheTotal.WithLabelValues("hit")))
}

func TestRegisteredNames(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordHTTPRequest("GET", "/health", 200, 0)
	m.DecisionRecorded("DEMAND", "REJECTED", "REJECTED")
	m.DecisionConflict()
	m.SequenceAllocated("doc")
	m.SequenceRetried("doc", "collision")
	m.NotificationDelivered("SENT")
	m.InventoryCacheLookup("miss")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"uxone_http_requests_total",
		"uxone_http_request_duration_seconds",
		"uxone_decisions_total",
		"uxone_decision_conflicts_total",
		"uxone_sequence_allocations_total",
		"uxone_sequence_retries_total",
		"uxone_notifications_total",
		"uxone_inventory_cache_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newTestMetrics(t)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
