// Package metrics exposes Prometheus collectors for ESI traffic, the
// snapshot cache and scans.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eve-arbitrage/internal/engine"
)

const namespace = "eve_arbitrage"

// Collector implements esi.Observer, market.Observer and engine.ScanObserver.
type Collector struct {
	registry *prometheus.Registry

	esiRequestsTotal   *prometheus.CounterVec
	esiRequestDuration *prometheus.HistogramVec

	cacheLookupsTotal *prometheus.CounterVec

	scansTotal        *prometheus.CounterVec
	scanDuration      prometheus.Histogram
	opportunities     prometheus.Gauge
	routesFailed      prometheus.Gauge
	lastScanTimestamp prometheus.Gauge
}

// New creates a collector with its own registry. Go runtime and process
// collectors are registered alongside.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		esiRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "esi",
				Name:      "requests_total",
				Help:      "ESI HTTP attempts by endpoint and status code (0 = transport error)",
			},
			[]string{"endpoint", "status_code"},
		),
		esiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "esi",
				Name:      "request_duration_seconds",
				Help:      "ESI request duration distribution",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Snapshot cache lookups by result (hit, refresh, stale, miss)",
			},
			[]string{"result"},
		),
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scan",
				Name:      "total",
				Help:      "Completed and failed scans",
			},
			[]string{"status"},
		),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Scan duration distribution",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "opportunities",
			Help:      "Opportunities in the current result set",
		}),
		routesFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "routes_failed",
			Help:      "Routes skipped in the last scan",
		}),
		lastScanTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_timestamp_seconds",
			Help:      "Unix time the last scan finished",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.esiRequestsTotal,
		c.esiRequestDuration,
		c.cacheLookupsTotal,
		c.scansTotal,
		c.scanDuration,
		c.opportunities,
		c.routesFailed,
		c.lastScanTimestamp,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveESIRequest(endpoint string, status int, elapsed time.Duration) {
	c.esiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.esiRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveCacheLookup(result string) {
	c.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveScan records a finished scan. Gauges only move on success so a
// failed scan leaves the previous result set's numbers in place.
func (c *Collector) ObserveScan(status string, elapsed time.Duration, opportunities, routesFailed int) {
	c.scansTotal.WithLabelValues(status).Inc()
	c.scanDuration.Observe(elapsed.Seconds())
	if status != engine.ScanCompleted {
		return
	}
	c.opportunities.Set(float64(opportunities))
	c.routesFailed.Set(float64(routesFailed))
	c.lastScanTimestamp.SetToCurrentTime()
}
