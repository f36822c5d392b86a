package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Audit metrics
	AuditRecordsTotal        *prometheus.CounterVec
	AuditWriteFailuresTotal  *prometheus.CounterVec
	AuditCleanupDeletedTotal prometheus.Counter
	AuditCleanupRunsTotal    *prometheus.CounterVec
	AuditArchivedTotal       prometheus.Counter

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myinner_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "myinner_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Audit metrics
		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myinner_audit_records_total",
				Help: "Total number of audit log records written",
			},
			[]string{"action", "entity_type"},
		),
		AuditWriteFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myinner_audit_write_failures_total",
				Help: "Total number of audit log records that could not be written",
			},
			[]string{"entity_type"},
		),
		AuditCleanupDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myinner_audit_cleanup_deleted_total",
				Help: "Total number of audit log records removed by retention cleanup",
			},
		),
		AuditCleanupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myinner_audit_cleanup_runs_total",
				Help: "Total number of retention cleanup runs",
			},
			[]string{"mode", "status"},
		),
		AuditArchivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myinner_audit_archived_total",
				Help: "Total number of audit log records archived before deletion",
			},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myinner_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myinner_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "myinner_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "myinner_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuditRecordsTotal,
		m.AuditWriteFailuresTotal,
		m.AuditCleanupDeletedTotal,
		m.AuditCleanupRunsTotal,
		m.AuditArchivedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordAuditWrite counts a written log record
func (m *Metrics) RecordAuditWrite(action, entityType string) {
	if m == nil {
		return
	}
	m.AuditRecordsTotal.WithLabelValues(action, entityType).Inc()
}

// RecordAuditWriteFailure counts a log record that could not be written
func (m *Metrics) RecordAuditWriteFailure(entityType string) {
	if m == nil {
		return
	}
	m.AuditWriteFailuresTotal.WithLabelValues(entityType).Inc()
}

// RecordCleanup counts a retention cleanup run and the records it deleted
func (m *Metrics) RecordCleanup(mode string, deleted int64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.AuditCleanupRunsTotal.WithLabelValues(mode, status).Inc()
	if deleted > 0 {
		m.AuditCleanupDeletedTotal.Add(float64(deleted))
	}
}

// RecordArchived counts records archived before deletion
func (m *Metrics) RecordArchived(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.AuditArchivedTotal.Add(float64(count))
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// UpdateDBStats copies connection pool statistics into the database gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests matched by a mux route are labelled with the route template.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
