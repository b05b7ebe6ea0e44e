package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lightly_upload_api_request_duration_seconds",
			Help:    "Platform API request duration in seconds by endpoint",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"endpoint", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lightly_upload_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by host",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"host"},
	)

	// Upload metrics
	uploadedFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lightly_upload_files_total",
			Help: "Files uploaded by kind and status",
		},
		[]string{"kind", "status"}, // kind: "metadata"/"thumbnail"/"full"
	)

	uploadedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lightly_upload_bytes_total",
			Help: "Bytes sent to signed upload URLs by kind",
		},
		[]string{"kind"},
	)

	embeddingRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lightly_upload_embedding_rows_total",
			Help: "Embedding rows uploaded",
		},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lightly_upload_active_workers",
			Help: "Number of image upload workers currently busy",
		},
	)
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordAPIRequest records an API request duration. A status of 0 means the
// request failed before a response arrived.
func (c *Collector) RecordAPIRequest(endpoint string, duration time.Duration, status int) {
	if c == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequestDuration.WithLabelValues(endpoint, label).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(host string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordUpload counts one uploaded file of the given kind
func (c *Collector) RecordUpload(kind string, bytes int64, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	uploadedFiles.WithLabelValues(kind, status).Inc()
	if success && bytes > 0 {
		uploadedBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// AddEmbeddingRows counts uploaded embedding rows
func (c *Collector) AddEmbeddingRows(n int) {
	if c == nil {
		return
	}
	embeddingRows.Add(float64(n))
}

// WorkerStarted and WorkerDone track busy upload workers
func (c *Collector) WorkerStarted() {
	if c == nil {
		return
	}
	activeWorkers.Inc()
}

func (c *Collector) WorkerDone() {
	if c == nil {
		return
	}
	activeWorkers.Dec()
}

// Serve exposes /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	c.logger.Info("Serving metrics", "addr", addr, "path", "/metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
