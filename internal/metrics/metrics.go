// Package metrics provides Prometheus metrics for the meme minter pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Run metrics
	RunsCompleted *prometheus.CounterVec
	StageFailures *prometheus.CounterVec

	// Timing metrics
	StageDuration *prometheus.HistogramVec
	RunDuration   prometheus.Histogram

	// Asset store
	Uploads     *prometheus.CounterVec
	UploadBytes prometheus.Histogram

	// Chain
	Transactions     *prometheus.CounterVec
	LowConfidenceIDs *prometheus.CounterVec
	VerifyAttempts   prometheus.Histogram

	// Pipeline
	UploadQueueDepth prometheus.Gauge
	SequencerPending prometheus.Gauge

	// Errors
	SubsystemErrors *prometheus.CounterVec
	RetryAttempts   *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init registers the global metrics with the default registry.
// Call this once at startup.
func Init(namespace string) *Metrics {
	defaultMetrics = New(namespace, prometheus.DefaultRegisterer)
	return defaultMetrics
}

// New registers a metric set with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "meme_minter"
	}
	f := promauto.With(reg)

	return &Metrics{
		RunsCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Asset runs that reached a terminal state",
			},
			[]string{"result"},
		),
		StageFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Runs that failed, by the stage that failed",
			},
			[]string{"stage"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"stage"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "End-to-end time for one asset",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		Uploads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Uploads to the asset store",
			},
			[]string{"kind", "result"},
		),
		UploadBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_bytes",
				Help:      "Size of uploaded assets in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
		),
		Transactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Mined transactions by method and receipt status",
			},
			[]string{"method", "status"},
		),
		LowConfidenceIDs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "low_confidence_ids_total",
				Help:      "Identifiers resolved from a counter read instead of an event",
			},
			[]string{"kind"},
		),
		VerifyAttempts: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "verify_attempts",
				Help:      "ownerOf reads needed per verification",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		UploadQueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upload_queue_depth",
				Help:      "Assets waiting for an upload worker",
			},
		),
		SequencerPending: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sequencer_pending",
				Help:      "Uploaded assets buffered ahead of the chain sequencer",
			},
		),
		SubsystemErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subsystem_errors_total",
				Help:      "Non-fatal errors from optional subsystems",
			},
			[]string{"subsystem"},
		),
		RetryAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	return http.ListenAndServe(address, Handler())
}

// IncRunCompleted counts a terminal run; result is "done" or "failed".
func (m *Metrics) IncRunCompleted(result string) {
	m.RunsCompleted.WithLabelValues(result).Inc()
}

// IncStageFailure counts a run failure at stage.
func (m *Metrics) IncStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// ObserveStageDuration records time spent in a stage.
func (m *Metrics) ObserveStageDuration(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// ObserveRunDuration records end-to-end time for one asset.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	m.RunDuration.Observe(seconds)
}

// IncUpload counts an upload; kind is "asset" or "metadata".
func (m *Metrics) IncUpload(kind, result string) {
	m.Uploads.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveUploadBytes(bytes float64) {
	m.UploadBytes.Observe(bytes)
}

// IncTransaction counts a mined transaction.
func (m *Metrics) IncTransaction(method, status string) {
	m.Transactions.WithLabelValues(method, status).Inc()
}

// IncLowConfidence counts a counter-derived id; kind is "token" or "listing".
func (m *Metrics) IncLowConfidence(kind string) {
	m.LowConfidenceIDs.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveVerifyAttempts(n float64) {
	m.VerifyAttempts.Observe(n)
}

func (m *Metrics) SetUploadQueueDepth(depth float64) {
	m.UploadQueueDepth.Set(depth)
}

func (m *Metrics) SetSequencerPending(pending float64) {
	m.SequencerPending.Set(pending)
}

// IncSubsystemError counts a non-fatal journal, results or catalog error.
func (m *Metrics) IncSubsystemError(subsystem string) {
	m.SubsystemErrors.WithLabelValues(subsystem).Inc()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(operation string) {
	m.RetryAttempts.WithLabelValues(operation).Inc()
}
