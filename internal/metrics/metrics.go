// Package metrics exposes Prometheus counters for the gateway on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "testgrid"

// Report lookup results.
const (
	ResultFound         = "found"
	ResultMissing       = "missing"
	ResultInvalid       = "invalid"
	ResultProductAbsent = "product_not_found"
	ResultError         = "error"
)

// Collector holds the gateway's metric vectors.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ReportLookups       *prometheus.CounterVec
	BuildTriggers       *prometheus.CounterVec
}

// New creates a Collector with its own registry, including the Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ReportLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_lookups_total",
			Help:      "Report existence checks and fetches by result.",
		}, []string{"operation", "result"}),
		BuildTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_triggers_total",
			Help:      "Jenkins build trigger attempts by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.HTTPRequests,
		c.HTTPRequestDuration,
		c.ReportLookups,
		c.BuildTriggers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed request against its route pattern.
func (c *Collector) RecordHTTPRequest(method, route string, code int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordReportLookup counts a report check or fetch.
func (c *Collector) RecordReportLookup(operation, result string) {
	c.ReportLookups.WithLabelValues(operation, result).Inc()
}

// RecordBuildTrigger counts a trigger attempt by outcome name.
func (c *Collector) RecordBuildTrigger(outcome string) {
	c.BuildTriggers.WithLabelValues(outcome).Inc()
}
