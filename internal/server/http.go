package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicescribe/voicescribe/internal/activity"
	"github.com/voicescribe/voicescribe/internal/capture"
	"github.com/voicescribe/voicescribe/internal/config"
	"github.com/voicescribe/voicescribe/internal/metrics"
	"github.com/voicescribe/voicescribe/internal/resolver"
	"github.com/voicescribe/voicescribe/internal/session"
	"github.com/voicescribe/voicescribe/internal/transcription"
)

// HTTPServer provides HTTP API endpoints for session control and monitoring
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	controller *session.Controller
	tracker    *activity.Tracker
	source     *capture.ChanSource
	engine     *transcription.Client
	names      *resolver.Cache
	metrics    *metrics.Metrics

	// Base context for sessions started over the API; session lifetime is
	// bound to the process, not to the start request.
	baseCtx context.Context

	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(baseCtx context.Context, appConfig *config.Config, logger *slog.Logger,
	controller *session.Controller, tracker *activity.Tracker, source *capture.ChanSource,
	engine *transcription.Client, names *resolver.Cache, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		controller: controller,
		tracker:    tracker,
		source:     source,
		engine:     engine,
		names:      names,
		metrics:    m,
		baseCtx:    baseCtx,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session lifecycle endpoints
	mux.HandleFunc("/session", h.withMetrics("/session", h.handleSession))
	mux.HandleFunc("/session/start", h.withMetrics("/session/start", h.handleSessionStart))
	mux.HandleFunc("/session/stop", h.withMetrics("/session/stop", h.handleSessionStop))

	// Ingest endpoints for the platform glue feeding the pipeline
	mux.HandleFunc("/activity", h.withMetrics("/activity", h.handleActivity))
	mux.HandleFunc("/frames", h.withMetrics("/frames", h.handleFrames))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoints
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/transcription", h.withMetrics("/stats/transcription", h.handleTranscriptionStats))

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

		if h.metrics == nil {
			return
		}

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
	h.logger.Info("Starting HTTP API server",
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
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	info := h.controller.Info()
	engineStats := h.engine.Stats()

	sessionStatus := "idle"
	if info.Active {
		sessionStatus = "running"
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "voicescribe",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"session": map[string]interface{}{
				"status":           sessionStatus,
				"session_id":       info.SessionID,
				"cycles_started":   info.Recorder.CyclesStarted,
				"cycles_completed": info.Recorder.CyclesCompleted,
				"cycle_errors":     info.Recorder.CycleErrors,
			},
			"sweeper": map[string]interface{}{
				"status":         sessionStatus,
				"files_observed": info.Sweeper.FilesObserved,
				"files_deleted":  info.Sweeper.FilesDeleted,
			},
			"transcription": map[string]interface{}{
				"status":   "running",
				"requests": engineStats.TotalRequests,
				"failures": engineStats.FailedRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSession implements the GET /session endpoint
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := h.controller.Info()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// handleSessionStart implements the POST /session/start endpoint. Starting
// while a session is active performs a stop/settle/restart.
func (h *HTTPServer) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Start(h.baseCtx); err != nil {
		h.logger.Error("Failed to start session", slog.String("error", err.Error()))
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	info := h.controller.Info()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "started",
		"session_id": info.SessionID,
	})
}

// handleSessionStop implements the POST /session/stop endpoint
func (h *HTTPServer) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.controller.Stop()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "stopped",
	})
}

// activityRequest is the body of POST /activity.
type activityRequest struct {
	ParticipantID string `json:"participant_id"`
	Speaking      bool   `json:"speaking"`
}

// handleActivity implements the POST /activity endpoint. The platform glue
// reports speaking state transitions here.
func (h *HTTPServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ParticipantID == "" {
		http.Error(w, "participant_id required", http.StatusBadRequest)
		return
	}

	h.tracker.Observe(req.ParticipantID, req.Speaking)

	w.WriteHeader(http.StatusNoContent)
}

// frameRequest is the body of POST /frames.
type frameRequest struct {
	ParticipantID string  `json:"participant_id"`
	Samples       []int16 `json:"samples"`
}

// handleFrames implements the POST /frames endpoint. Frames pushed while no
// capture is active are dropped.
func (h *HTTPServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ParticipantID == "" {
		http.Error(w, "participant_id required", http.StatusBadRequest)
		return
	}

	accepted := h.source.Push(capture.Frame{
		ParticipantID: req.ParticipantID,
		Samples:       req.Samples,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": accepted,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"session": map[string]interface{}{
			"staging_dir":   h.config.Session.StagingDir,
			"base_duration": h.config.Session.BaseDuration,
			"grace":         h.config.Session.Grace,
			"silence_hold":  h.config.Session.SilenceHold,
			"tick_interval": h.config.Session.TickInterval,
			"backoff":       h.config.Session.Backoff,
			"settle":        h.config.Session.Settle,
		},
		"sweeper": map[string]interface{}{
			"interval":   h.config.Sweeper.Interval,
			"settle_age": h.config.Sweeper.SettleAge,
			"min_bytes":  h.config.Sweeper.MinBytes,
		},
		"audio": map[string]interface{}{
			"sample_rate":  h.config.Audio.SampleRate,
			"frame_buffer": h.config.Audio.FrameBuffer,
		},
		"transcription": map[string]interface{}{
			"endpoint": h.config.Transcription.Endpoint,
			"timeout":  h.config.Transcription.Timeout,
			"language": h.config.Transcription.Language,
			// Note: API key is intentionally omitted for security
		},
		"resolver": map[string]interface{}{
			"cache_ttl": h.config.Resolver.CacheTTL,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := h.controller.Info()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":        uptime.String(),
		"timestamp":     time.Now().UTC(),
		"session":       info,
		"transcription": h.engine.Stats(),
		"resolver":      h.names.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleTranscriptionStats implements the /stats/transcription endpoint
func (h *HTTPServer) handleTranscriptionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.engine.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
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
		"service": "Voicescribe Session Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /session":             "Current session snapshot",
			"POST /session/start":      "Start (or restart) a session",
			"POST /session/stop":       "Stop the active session",
			"POST /activity":           "Report a participant speaking state",
			"POST /frames":             "Push captured audio frames",
			"GET /config":              "Get service configuration",
			"GET /stats":               "Get service statistics",
			"GET /stats/transcription": "Get transcription statistics",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
