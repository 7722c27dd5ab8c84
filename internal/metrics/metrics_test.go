package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveVendorCall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveVendorCall("status", time.Now(), nil)
	m.ObserveVendorCall("status", time.Now(), errors.New("boom"))
	m.ObserveVendorCall("status", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.vendorCalls.WithLabelValues("status", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.vendorCalls.WithLabelValues("status", "error")))
}

func TestSubmissionAndRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Submission("file", "submitted")
	m.Submission("file", "skipped")
	m.Request("/api/1.0/analysis/fireeye", "202")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("file", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/1.0/analysis/fireeye", "202")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVendorCall("config", time.Now(), nil)
		m.Submission("url", "failed")
		m.Request("/healthz", "202")
	})
}
