// Package metrics provides Prometheus metrics collection for the HTTP API and the memory engine.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "memory_engine"
)

// Metrics owns a private registry plus the HTTP, summary job and engine collectors.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPDurationHistogram    prometheus.Histogram

	httpMu               sync.Mutex
	HTTPRequestsCounters map[int]prometheus.Counter

	JobMetricCounters map[int]prometheus.Counter

	Engine *EngineMetrics

	customMetrics []prometheus.Collector

	server  *http.Server
	errChan chan error
	log     logger.Logger
}

// NewMetrics creates a new Metrics instance with the specified collectors enabled.
// With engineMetrics false, m.Engine is nil and every engine recording call is a no-op.
func NewMetrics(httpCounters, jobMetrics, engineMetrics bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}
	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter)
		m.HTTPRequestsCounters = make(map[int]prometheus.Counter)

		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1.0, 3.0, 5.0, 10.0},
		})
		m.reg.MustRegister(m.HTTPDurationHistogram)
	}
	if jobMetrics {
		m.JobMetricCounters = getJobMetricCounters()
		for k := range m.JobMetricCounters {
			m.reg.MustRegister(m.JobMetricCounters[k])
		}
	}
	if engineMetrics {
		m.Engine = newEngineMetrics()
		m.Engine.register(m.reg)
	}
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen starts the metrics HTTP server on the specified port.
// Serve errors other than a clean shutdown are delivered on Errors().
func (m *Metrics) Listen(port int) {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.errChan = make(chan error, 1)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.errChan <- fmt.Errorf("metrics listener: %w", err)
		}
		close(m.errChan)
	}()
}

// Errors returns the listener error channel, nil before Listen.
func (m *Metrics) Errors() <-chan error {
	return m.errChan
}

// Shutdown stops the metrics listener if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.log.Info("Stopping metrics listener")
	return m.server.Shutdown(ctx)
}

// Job metric counter indices. Jobs are background summarization tasks.
const (
	JobMetricTotal = iota
	JobMetricTotalSuccess
	JobMetricTotalFailed
	JobMetricTotalKilled
)

func getJobMetricCounters() map[int]prometheus.Counter {
	m := make(map[int]prometheus.Counter)
	m[JobMetricTotal] = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "total_summary_jobs_started",
		Help:      "Total rollover summary jobs started",
	})
	m[JobMetricTotalSuccess] = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "total_summary_jobs_successful",
		Help:      "Total rollover summary jobs completed successfully",
	})
	m[JobMetricTotalFailed] = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "total_summary_jobs_failed",
		Help:      "Total rollover summary jobs that failed",
	})
	m[JobMetricTotalKilled] = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "total_summary_jobs_abandoned",
		Help:      "Total rollover summary jobs still running at shutdown",
	})
	return m
}

// IncrementJobCounter bumps one of the JobMetric* counters. Safe when job metrics are disabled.
func (m *Metrics) IncrementJobCounter(which int) {
	if m == nil || m.JobMetricCounters == nil {
		return
	}
	if c, ok := m.JobMetricCounters[which]; ok {
		c.Inc()
	}
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.customMetrics = append(m.customMetrics, c)
	m.reg.MustRegister(m.customMetrics[len(m.customMetrics)-1])
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	m.httpMu.Lock()
	c, ok := m.HTTPRequestsCounters[code]
	if !ok {
		c = newTotalHTTPReqMetric(code)
		m.HTTPRequestsCounters[code] = c
		m.reg.MustRegister(c)
	}
	m.httpMu.Unlock()
	c.Inc()
}

func newTotalHTTPReqMetric(code int) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      fmt.Sprintf("total_%d_http_responses", code),
		Help:      fmt.Sprintf("Total %s HTTP responses returned", http.StatusText(code)),
	})
}

// HTTPMiddleware returns a Chi-compatible middleware that tracks HTTP metrics
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
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
