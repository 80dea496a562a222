package promsink

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncCounterExposesSampleViaHandler(t *testing.T) {
	s := New(prometheus.NewRegistry())
	s.IncCounter("bus_overflow_dropped_total", map[string]string{"service": "oap"})
	s.IncCounter("bus_overflow_dropped_total", map[string]string{"service": "oap"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "bus_overflow_dropped_total")
	assert.Contains(t, rec.Body.String(), `service="oap"`)
	assert.Contains(t, rec.Body.String(), " 2")
}

func TestObserveHistogramExposesBuckets(t *testing.T) {
	s := New(prometheus.NewRegistry())
	s.ObserveHistogram("mailbox_enqueue_latency_seconds", map[string]string{"mailbox": "oap"}, 0.01)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	s.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "mailbox_enqueue_latency_seconds_bucket")
}

func TestCounterVecIsReusedAcrossCallsWithSameLabelKeys(t *testing.T) {
	s := New(prometheus.NewRegistry())
	s.IncCounter("kernel_requests_total", map[string]string{"reason": "ok"})
	s.IncCounter("kernel_requests_total", map[string]string{"reason": "bad"})

	assert.Len(t, s.counters, 1)
}

func TestSanitizeNameReplacesInvalidCharsAndLeadingDigit(t *testing.T) {
	assert.Equal(t, "oap_frame_bytes", sanitizeName("oap.frame-bytes"))
	assert.Equal(t, "_1xx", sanitizeName("1xx"))
	assert.Equal(t, "unnamed_metric", sanitizeName(""))
}
