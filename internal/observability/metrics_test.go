package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndServe(t *testing.T) {
	reg := promclient.NewRegistry()
	m, err := NewMetrics("test", reg)
	require.NoError(t, err)

	m.ObserveAPI("GET", "/api/courses", "200", 20*time.Millisecond)
	m.RecordSubmission("health_evaluation", nil)
	m.RecordSubmission("health_evaluation", errors.New("boom"))
	m.RecordCacheLookup("course", true)
	m.RecordReminder(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("health_evaluation", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/api/courses", "200")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "test_intake_submissions_total"))
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := promclient.NewRegistry()
	first, err := NewMetrics("test", reg)
	require.NoError(t, err)
	second, err := NewMetrics("test", reg)
	require.NoError(t, err)

	second.RecordCacheLookup("course", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.cacheLookup.WithLabelValues("course", "miss")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ApiInflightInc()
	m.ApiInflightDec()
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.RecordSubmission("x", nil)
	m.RecordCacheLookup("x", true)
	m.RecordReminder(nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), nil, OtelConfig{})
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, 0.1, clampRatio(0))
	assert.Equal(t, 1.0, clampRatio(3))
}
