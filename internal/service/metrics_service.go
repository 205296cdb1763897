package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	sessionsCreated *prometheus.CounterVec
	recordsMarked   prometheus.Counter
	exportsRendered *prometheus.CounterVec
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	sessionsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_created_total",
		Help: "Total attendance sessions created",
	}, []string{"mode"})

	recordsMarked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_records_marked_total",
		Help: "Total attendance records written or updated",
	})

	exportsRendered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_exports_total",
		Help: "Total session exports rendered",
	}, []string{"format"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		sessionsCreated, recordsMarked, exportsRendered, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		sessionsCreated: sessionsCreated,
		recordsMarked:   recordsMarked,
		exportsRendered: exportsRendered,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func (m *MetricsService) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveSessionCreated counts session creation per mode (manual or batch).
func (m *MetricsService) ObserveSessionCreated(mode string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(mode).Inc()
}

// ObserveRecordMarked counts record upserts.
func (m *MetricsService) ObserveRecordMarked() {
	if m == nil {
		return
	}
	m.recordsMarked.Inc()
}

// ObserveExport counts rendered exports per format.
func (m *MetricsService) ObserveExport(format string) {
	if m == nil {
		return
	}
	m.exportsRendered.WithLabelValues(format).Inc()
}
