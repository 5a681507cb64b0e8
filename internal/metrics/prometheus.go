// Package metrics defines the Prometheus instrumentation for the voicescribe
// pipeline: segment recording, staging sweeps, transcription calls, and the
// monitoring HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter

	// Segment recorder metrics
	SegmentsStarted    prometheus.Counter
	SegmentsFinalized  prometheus.Counter
	RecorderCycleErrors prometheus.Counter
	SegmentDuration    prometheus.Histogram

	// Sweeper metrics
	SweepTicks        prometheus.Counter
	FilesObserved     prometheus.Counter
	FilesSettling     prometheus.Counter
	FilesUndersized   prometheus.Counter
	FilesMalformed    prometheus.Counter
	FilesDeleted      prometheus.Counter
	FileDeleteErrors  prometheus.Counter

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	TranscriptEvents      prometheus.Counter
	EmptyTranscripts      prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_sessions_started_total",
			Help: "Total number of transcription sessions started",
		}),
		SessionsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_sessions_stopped_total",
			Help: "Total number of transcription sessions stopped",
		}),

		SegmentsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_segments_started_total",
			Help: "Total number of capture segments started",
		}),
		SegmentsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_segments_finalized_total",
			Help: "Total number of capture segments finalized to the staging directory",
		}),
		RecorderCycleErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_recorder_cycle_errors_total",
			Help: "Total number of failed recorder capture cycles",
		}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicescribe_segment_duration_seconds",
			Help:    "Wall-clock duration of finalized capture segments",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2 minutes
		}),

		SweepTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_sweep_ticks_total",
			Help: "Total number of staging directory sweep passes",
		}),
		FilesObserved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_staging_files_observed_total",
			Help: "Total number of staging files examined by the sweeper",
		}),
		FilesSettling: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_staging_files_settling_total",
			Help: "Total number of staging files skipped because they were too young or speech was in progress",
		}),
		FilesUndersized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_staging_files_undersized_total",
			Help: "Total number of staging files deleted without transcription for being below the size floor",
		}),
		FilesMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_staging_files_malformed_total",
			Help: "Total number of staging files with unparseable names",
		}),
		FilesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_staging_files_deleted_total",
			Help: "Total number of staging files deleted after processing",
		}),
		FileDeleteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_staging_file_delete_errors_total",
			Help: "Total number of staging file deletions that failed",
		}),

		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_transcription_requests_total",
			Help: "Total number of transcription engine invocations",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_transcription_failures_total",
			Help: "Total number of failed transcription engine invocations",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicescribe_transcription_duration_seconds",
			Help:    "Latency of transcription engine invocations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		TranscriptEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_transcript_events_total",
			Help: "Total number of attributed transcript events emitted",
		}),
		EmptyTranscripts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_empty_transcripts_total",
			Help: "Total number of transcriptions discarded for empty or whitespace-only text",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicescribe_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicescribe_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicescribe_http_errors_total",
			Help: "Total number of HTTP API error responses",
		}, []string{"method", "endpoint", "type"}),
	}
}

// RecordHTTPRequest records an HTTP API request with its duration.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records an HTTP API error response.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
