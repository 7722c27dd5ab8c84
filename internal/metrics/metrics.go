// Package metrics holds the prometheus collectors of the analysis API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	vendorCalls   *prometheus.CounterVec
	vendorLatency *prometheus.HistogramVec
	submissions   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		vendorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireeye_vendor_calls_total",
			Help: "Calls made to the FireEye AX API by operation and outcome.",
		}, []string{"op", "outcome"}),
		vendorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fireeye_vendor_call_seconds",
			Help:    "Latency of FireEye AX API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireeye_submissions_total",
			Help: "Sample and URL submissions by kind and result.",
		}, []string{"kind", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireeye_http_requests_total",
			Help: "API requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.vendorCalls, m.vendorLatency, m.submissions, m.httpRequests)
	return m
}

func (m *Metrics) ObserveVendorCall(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.vendorCalls.With(prometheus.Labels{"op": op, "outcome": outcome}).Inc()
	m.vendorLatency.With(prometheus.Labels{"op": op}).Observe(time.Since(started).Seconds())
}

// Submission counts one submission attempt; result is submitted, skipped or failed.
func (m *Metrics) Submission(kind, result string) {
	if m == nil {
		return
	}
	m.submissions.With(prometheus.Labels{"kind": kind, "result": result}).Inc()
}

func (m *Metrics) Request(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.With(prometheus.Labels{"route": route, "code": code}).Inc()
}
