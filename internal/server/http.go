package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/projectsthataremine/narraflow-sub000/internal/audio"
	"github.com/projectsthataremine/narraflow-sub000/internal/config"
	"github.com/projectsthataremine/narraflow-sub000/internal/engine"
	"github.com/projectsthataremine/narraflow-sub000/internal/metrics"
	"github.com/projectsthataremine/narraflow-sub000/internal/pipeline"
)

// maxChunkBytes bounds a single audio chunk upload (4 bytes per sample).
const maxChunkBytes = 4 << 20

// HealthChecker reports whether a transcription backend is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// HTTPServer provides the worker control and monitoring API
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	recorder *audio.Recorder
	pipeline *pipeline.Pipeline
	engine   engine.Transcriber
	health   HealthChecker
	metrics  *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// NewHTTPServer creates a new worker API server. The health checker may be
// nil when the selected engine has no local readiness probe.
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	recorder *audio.Recorder, pl *pipeline.Pipeline, transcriber engine.Transcriber,
	health HealthChecker, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		recorder:  recorder,
		pipeline:  pl,
		engine:    transcriber,
		health:    health,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Stop runs the full pipeline before responding.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Session control endpoints
	mux.HandleFunc("/session/start", h.withMetrics("/session/start", h.handleSessionStart))
	mux.HandleFunc("/session/chunk", h.withMetrics("/session/chunk", h.handleSessionChunk))
	mux.HandleFunc("/session/stop", h.withMetrics("/session/stop", h.handleSessionStop))
	mux.HandleFunc("/session/cancel", h.withMetrics("/session/cancel", h.handleSessionCancel))
	mux.HandleFunc("/session", h.withMetrics("/session", h.handleSession))

	// Monitoring endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
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

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting worker API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping worker API server...")

	return h.server.Shutdown(ctx)
}

// handleSessionStart implements POST /session/start
func (h *HTTPServer) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.recorder.Start() {
		http.Error(w, "A recording session is already active", http.StatusConflict)
		return
	}

	h.metrics.RecordSessionStarted()

	stats := h.recorder.GetStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": stats.SessionID,
		"started_at": time.Now().UTC(),
	})
}

// handleSessionChunk implements POST /session/chunk. The request body is
// raw little-endian float32 PCM at the configured sample rate.
func (h *HTTPServer) handleSessionChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.recorder.Active() {
		http.Error(w, "No active recording session", http.StatusConflict)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBytes+1))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if len(body) > maxChunkBytes {
		http.Error(w, "Chunk too large", http.StatusRequestEntityTooLarge)
		return
	}

	samples, err := decodeChunk(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.recorder.AddChunk(samples)

	stats := h.recorder.GetStats()
	h.metrics.RecordChunkReceived(stats.SamplesBuffered)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"samples_received": len(samples),
		"samples_buffered": stats.SamplesBuffered,
	})
}

// handleSessionStop implements POST /session/stop: finalizes the session
// and runs the transcription pipeline on the accumulated audio.
func (h *HTTPServer) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session := h.recorder.Stop()
	if session == nil {
		http.Error(w, "No active recording session", http.StatusConflict)
		return
	}

	h.metrics.RecordSessionFinished(session.Duration.Seconds())

	result, err := h.pipeline.Run(r.Context(), session.Samples)
	if err != nil {
		h.logger.Error("Pipeline run failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)

		status := http.StatusBadGateway
		if errors.Is(err, engine.ErrMissingToken) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":       session.ID,
		"duration":         session.Duration.Seconds(),
		"rms_peak_db":      audio.ClampDecibels(session.RMSPeak),
		"raw":              result.Raw,
		"cleaned":          result.Cleaned,
		"text":             result.Text(),
		"fallback_used":    result.FallbackUsed,
		"processing_time":  result.ProcessingTime.Seconds(),
	})
}

// handleSessionCancel implements POST /session/cancel
func (h *HTTPServer) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.recorder.Active() {
		http.Error(w, "No active recording session", http.StatusConflict)
		return
	}

	h.recorder.Cancel()
	h.metrics.RecordSessionCanceled()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"canceled": true,
	})
}

// handleSession implements GET /session with the active session state
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.recorder.GetStats())
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	recorderStats := h.recorder.GetStats()
	pipelineStats := h.pipeline.GetStats()

	engineStatus := "unknown"
	if h.health != nil {
		if h.health.Healthy(r.Context()) {
			engineStatus = "ready"
		} else {
			engineStatus = "unreachable"
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "dictation-worker",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"recorder": map[string]interface{}{
				"status":            "running",
				"active_session":    recorderStats.Active,
				"sessions_finished": recorderStats.SessionsFinished,
				"sessions_canceled": recorderStats.SessionsCanceled,
			},
			"engine": map[string]interface{}{
				"name":   h.engine.Name(),
				"status": engineStatus,
			},
			"pipeline": map[string]interface{}{
				"status":     "running",
				"total_runs": pipelineStats.TotalRuns,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"engine":    h.engine.Name(),
		"recorder":  h.recorder.GetStats(),
		"pipeline":  h.pipeline.GetStats(),
	}

	writeJSON(w, http.StatusOK, status)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (no credentials)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":    h.config.Server.Port,
			"address": h.config.Server.Address,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"vad": map[string]interface{}{
			"model_path":        h.config.VAD.ModelPath,
			"speech_threshold":  h.config.VAD.SpeechThreshold,
			"silence_threshold": h.config.VAD.SilenceThreshold,
			"padding_ms":        h.config.VAD.PaddingMs,
			"min_speech_ms":     h.config.VAD.MinSpeechMs,
		},
		"engine": map[string]interface{}{
			"selected": h.config.Engine.Selected,
			"local": map[string]interface{}{
				"server_url":   h.config.Engine.Local.ServerURL,
				"model":        h.config.Engine.Local.Model,
				"language":     h.config.Engine.Local.Language,
				"max_attempts": h.config.Engine.Local.MaxAttempts,
			},
			"cloud": map[string]interface{}{
				"base_url":      h.config.Engine.Cloud.BaseURL,
				"function_name": h.config.Engine.Cloud.FunctionName,
				"model":         h.config.Engine.Cloud.Model,
				"language":      h.config.Engine.Cloud.Language,
				"max_attempts":  h.config.Engine.Cloud.MaxAttempts,
				// Note: the access token is intentionally omitted
			},
		},
		"pipeline": map[string]interface{}{
			"trim_silence":       h.config.Pipeline.TrimSilence,
			"enable_cleanup":     h.config.Pipeline.EnableCleanup,
			"cleanup_timeout_ms": h.config.Pipeline.CleanupTimeoutMs,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Dictation Worker",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"POST /session/start":      "Start a recording session",
			"POST /session/chunk":      "Append raw float32 audio to the session",
			"POST /session/stop":       "Finish the session and transcribe",
			"POST /session/cancel":     "Discard the active session",
			"GET /session":             "Active session state",
			"GET /health":              "Service health check",
			"GET /status":              "Service statistics",
			"GET /config":              "Service configuration",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

// decodeChunk interprets a request body as little-endian float32 samples
func decodeChunk(body []byte) ([]float32, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty chunk body")
	}

	if len(body)%4 != 0 {
		return nil, fmt.Errorf("chunk body length %d is not a multiple of 4", len(body))
	}

	samples := make([]float32, len(body)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(body[i*4:])
		samples[i] = math.Float32frombits(bits)
	}

	return samples, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
