package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation worker
type Metrics struct {
	// Recording session metrics
	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter
	SessionsCanceled prometheus.Counter
	SessionDuration  prometheus.Histogram
	ChunksReceived   prometheus.Counter
	SamplesBuffered  prometheus.Gauge

	// VAD metrics
	SpeechSegments prometheus.Histogram
	SpeechRatio    prometheus.Histogram

	// Engine metrics
	EngineRequests  *prometheus.CounterVec
	EngineSuccesses *prometheus.CounterVec
	EngineFailures  *prometheus.CounterVec
	EngineDuration  *prometheus.HistogramVec

	// Pipeline metrics
	PipelineRuns       prometheus.Counter
	PipelineEmpty      prometheus.Counter
	PipelineFailures   prometheus.Counter
	PipelineFallbacks  prometheus.Counter
	PipelineDuration   prometheus.Histogram
	TranscriptLength   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Recording session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_sessions_finished_total",
			Help: "Total number of recording sessions stopped normally",
		}),
		SessionsCanceled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_sessions_canceled_total",
			Help: "Total number of recording sessions canceled with audio discarded",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_session_duration_seconds",
			Help:    "Duration of recording sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8.5 minutes
		}),
		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_audio_chunks_received_total",
			Help: "Total number of audio chunks appended to sessions",
		}),
		SamplesBuffered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_samples_buffered",
			Help: "Current number of samples buffered in the active session",
		}),

		// VAD metrics
		SpeechSegments: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_speech_segments_per_run",
			Help:    "Number of speech segments detected per pipeline run",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 to 10 segments
		}),
		SpeechRatio: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_speech_ratio",
			Help:    "Fraction of session audio kept after silence trimming",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		// Engine metrics
		EngineRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_engine_requests_total",
			Help: "Total number of transcription requests sent",
		}, []string{"engine"}),
		EngineSuccesses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_engine_successes_total",
			Help: "Total number of successful transcription requests",
		}, []string{"engine"}),
		EngineFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_engine_failures_total",
			Help: "Total number of failed transcription requests",
		}, []string{"engine"}),
		EngineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictation_engine_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}, []string{"engine"}),

		// Pipeline metrics
		PipelineRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		}),
		PipelineEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_pipeline_empty_total",
			Help: "Total number of runs that produced no transcript (no speech)",
		}),
		PipelineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_pipeline_failures_total",
			Help: "Total number of pipeline runs that failed with an engine error",
		}),
		PipelineFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_pipeline_fallbacks_total",
			Help: "Total number of runs that produced a transcript without neural formatting",
		}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_pipeline_duration_seconds",
			Help:    "End-to-end duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_transcript_length_chars",
			Help:    "Length of produced transcripts in characters",
			Buckets: prometheus.ExponentialBuckets(8, 2, 10), // 8 chars to ~4K chars
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictation_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionFinished increments the finished counter and records duration
func (m *Metrics) RecordSessionFinished(durationSeconds float64) {
	m.SessionsFinished.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionCanceled increments the sessions canceled counter
func (m *Metrics) RecordSessionCanceled() {
	m.SessionsCanceled.Inc()
}

// RecordChunkReceived records an appended audio chunk and the buffer level
func (m *Metrics) RecordChunkReceived(samplesBuffered int) {
	m.ChunksReceived.Inc()
	m.SamplesBuffered.Set(float64(samplesBuffered))
}

// RecordSpeechDetection records segment count and kept-audio ratio for a run
func (m *Metrics) RecordSpeechDetection(segments int, speechRatio float64) {
	m.SpeechSegments.Observe(float64(segments))
	m.SpeechRatio.Observe(speechRatio)
}

// RecordEngineRequest increments the engine requests counter
func (m *Metrics) RecordEngineRequest(engine string) {
	m.EngineRequests.WithLabelValues(engine).Inc()
}

// RecordEngineSuccess records a successful transcription
func (m *Metrics) RecordEngineSuccess(engine string, durationSeconds float64) {
	m.EngineSuccesses.WithLabelValues(engine).Inc()
	m.EngineDuration.WithLabelValues(engine).Observe(durationSeconds)
}

// RecordEngineFailure records a failed transcription
func (m *Metrics) RecordEngineFailure(engine string, durationSeconds float64) {
	m.EngineFailures.WithLabelValues(engine).Inc()
	m.EngineDuration.WithLabelValues(engine).Observe(durationSeconds)
}

// RecordPipelineFailure records a pipeline run that ended in an engine error
func (m *Metrics) RecordPipelineFailure(durationSeconds float64) {
	m.PipelineRuns.Inc()
	m.PipelineFailures.Inc()
	m.PipelineDuration.Observe(durationSeconds)
}

// RecordPipelineRun records an end-to-end pipeline run
func (m *Metrics) RecordPipelineRun(durationSeconds float64, transcriptChars int, empty, fallback bool) {
	m.PipelineRuns.Inc()
	m.PipelineDuration.Observe(durationSeconds)
	if empty {
		m.PipelineEmpty.Inc()
		return
	}
	m.TranscriptLength.Observe(float64(transcriptChars))
	if fallback {
		m.PipelineFallbacks.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
