// Package metrics exports Prometheus collectors for planning acquisition.
//
// All Record methods are safe on a nil *Metrics so components can run
// without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planning"

// Acquisition results.
const (
	ResultCacheHit = "cache_hit"
	ResultFetched  = "fetched"
	ResultFailed   = "failed"
	ResultTimeout  = "timeout"
)

// Login methods.
const (
	LoginCredentials = "credentials"
	LoginCookies     = "cookies"
)

// Detail lookup sources.
const (
	DetailCache  = "cache"
	DetailRemote = "remote"
	DetailFailed = "failed"
)

// Metrics holds every collector.
type Metrics struct {
	AcquisitionsTotal     *prometheus.CounterVec
	AcquisitionDuration   prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	LoginsTotal           *prometheus.CounterVec
	InvalidationsTotal    prometheus.Counter
	DetailLookupsTotal    *prometheus.CounterVec
	CollapsedWaitersTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		AcquisitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquisitions_total",
				Help:      "Planning requests by outcome",
			},
			[]string{"result"},
		),
		AcquisitionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "acquisition_duration_seconds",
				Help:      "Duration of full pipeline runs",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180},
			},
		),
		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Requests served from a fresh artifact",
			},
		),
		LoginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Sessions established by method",
			},
			[]string{"method"},
		),
		InvalidationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_invalidations_total",
				Help:      "Cached sessions dropped after a silent rejection",
			},
		),
		DetailLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detail_lookups_total",
				Help:      "Event detail lookups by source",
			},
			[]string{"source"},
		),
		CollapsedWaitersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collapsed_requests_total",
				Help:      "Requests that joined an acquisition already in flight",
			},
		),
		gatherer: reg,
	}
}

// RecordAcquisition records the outcome of one request.
func (m *Metrics) RecordAcquisition(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AcquisitionsTotal.WithLabelValues(result).Inc()
	if result == ResultCacheHit {
		m.CacheHitsTotal.Inc()
		return
	}
	if duration > 0 {
		m.AcquisitionDuration.Observe(duration.Seconds())
	}
}

// RecordLogin records an established session.
func (m *Metrics) RecordLogin(method string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(method).Inc()
}

// RecordInvalidation records a dropped session.
func (m *Metrics) RecordInvalidation() {
	if m == nil {
		return
	}
	m.InvalidationsTotal.Inc()
}

// RecordDetail records a detail lookup.
func (m *Metrics) RecordDetail(source string) {
	if m == nil {
		return
	}
	m.DetailLookupsTotal.WithLabelValues(source).Inc()
}

// RecordCollapsed records a request that shared an in-flight acquisition.
func (m *Metrics) RecordCollapsed() {
	if m == nil {
		return
	}
	m.CollapsedWaitersTotal.Inc()
}

// Handler returns the /metrics HTTP handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
