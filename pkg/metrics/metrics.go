// Package metrics exposes Prometheus counters for analyses, external
// classifier calls, batch runs and HTTP traffic on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

const namespace = "npsrisk"

// Collector owns the registry and every metric vector. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Analyses            *prometheus.CounterVec
	Fallbacks           *prometheus.CounterVec
	ClassifierCalls     *prometheus.CounterVec
	ClassifierDuration  *prometheus.HistogramVec
	BatchRows           *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Comments analysed, by grade and source",
		}, []string{"grade", "source"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "External verdicts discarded in favour of the heuristic, by reason",
		}, []string{"reason"}),
		ClassifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_calls_total",
			Help:      "External classifier calls, by provider and status",
		}, []string{"provider", "status"}),
		ClassifierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_call_duration_seconds",
			Help:      "External classifier call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		BatchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Rows processed by batch runs, by grade",
		}, []string{"grade"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of batch runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		c.Analyses, c.Fallbacks, c.ClassifierCalls, c.ClassifierDuration,
		c.BatchRows, c.BatchDuration, c.HTTPRequestsTotal, c.HTTPRequestDuration,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordResult counts one analysed comment.
func (c *Collector) RecordResult(r risk.Result) {
	if c == nil {
		return
	}
	c.Analyses.WithLabelValues(r.Grade.String(), string(r.Source)).Inc()
}

// RecordFallback matches risk.FallbackHook.
func (c *Collector) RecordFallback(reason risk.FallbackReason, _ error) {
	if c == nil {
		return
	}
	c.Fallbacks.WithLabelValues(string(reason)).Inc()
}

// RecordClassifierCall matches classifier.Observer.
func (c *Collector) RecordClassifierCall(provider string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.ClassifierCalls.WithLabelValues(provider, status).Inc()
	c.ClassifierDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordBatch records a finished batch run.
func (c *Collector) RecordBatch(counts map[risk.Grade]int, elapsed time.Duration) {
	if c == nil {
		return
	}
	for g, n := range counts {
		c.BatchRows.WithLabelValues(g.String()).Add(float64(n))
	}
	c.BatchDuration.Observe(elapsed.Seconds())
}

// RecordHTTPRequest records an HTTP request metric.
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
