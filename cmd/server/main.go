package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicescribe/voicescribe/internal/activity"
	"github.com/voicescribe/voicescribe/internal/capture"
	"github.com/voicescribe/voicescribe/internal/config"
	"github.com/voicescribe/voicescribe/internal/metrics"
	"github.com/voicescribe/voicescribe/internal/recorder"
	"github.com/voicescribe/voicescribe/internal/resolver"
	"github.com/voicescribe/voicescribe/internal/server"
	"github.com/voicescribe/voicescribe/internal/session"
	"github.com/voicescribe/voicescribe/internal/sweeper"
	"github.com/voicescribe/voicescribe/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voicescribe"
	serviceVersion    = "1.0.0"
)

// logSink emits transcript events to the structured log. Downstream
// delivery (chat messages, files) hangs off the same interface.
type logSink struct {
	logger *slog.Logger
}

func (s *logSink) Emit(event sweeper.TranscriptEvent) {
	s.logger.Info("Transcript",
		slog.String("participant", event.DisplayName),
		slog.String("text", event.Text),
		slog.Time("timestamp", event.Timestamp),
	)
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	autostart := flag.Bool("autostart", true, "Start a session immediately on boot")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("staging_dir", cfg.Session.StagingDir),
		slog.Float64("base_duration", cfg.Session.BaseDuration),
		slog.Float64("grace", cfg.Session.Grace),
		slog.Float64("silence_hold", cfg.Session.SilenceHold),
		slog.Float64("sweep_interval", cfg.Sweeper.Interval),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize transcription client
	engine, err := transcription.NewClient(transcription.Config{
		Endpoint: cfg.Transcription.Endpoint,
		APIKey:   cfg.Transcription.APIKey,
		Timeout:  cfg.Transcription.GetTimeout(),
		Decode: transcription.DecodeOptions{
			Language:                  cfg.Transcription.Language,
			Task:                      "transcribe",
			Prompt:                    cfg.Transcription.Prompt,
			Temperature:               cfg.Transcription.Temperature,
			ConditionOnPrevious:       false,
			CompressionRatioThreshold: cfg.Transcription.CompressionRatioThreshold,
			NoSpeechThreshold:         cfg.Transcription.NoSpeechThreshold,
		},
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize voice activity tracker and capture pipeline
	tracker := activity.NewTracker()
	source := capture.NewChanSource(cfg.Audio.FrameBuffer)

	provider, err := capture.NewProvider(source, cfg.Audio.SampleRate, logger)
	if err != nil {
		logger.Error("Failed to create capture provider", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Participant name resolution. No platform lookup is wired in the
	// standalone binary, so every participant resolves to the fallback name.
	names := resolver.New(nil, cfg.Resolver.GetCacheTTL(), logger)

	// Initialize session controller
	sessionCfg := session.Config{
		StagingDir: cfg.Session.StagingDir,
		Settle:     cfg.Session.GetSettle(),
		Recorder: recorder.Config{
			BaseDuration: cfg.Session.GetBaseDuration(),
			Grace:        cfg.Session.GetGrace(),
			SilenceHold:  cfg.Session.GetSilenceHold(),
			TickInterval: cfg.Session.GetTickInterval(),
			Backoff:      cfg.Session.GetBackoff(),
		},
		Sweeper: sweeper.Config{
			Interval:      cfg.Sweeper.GetInterval(),
			SettleAge:     cfg.Sweeper.GetSettleAge(),
			MinBytes:      cfg.Sweeper.MinBytes,
			EngineTimeout: cfg.Transcription.GetTimeout(),
		},
	}

	sink := &logSink{logger: logger}
	controller, err := session.NewController(sessionCfg, provider, tracker, engine, names, sink, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create session controller", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session controller initialized",
		slog.String("staging_dir", cfg.Session.StagingDir),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
	)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(ctx, cfg, logger, controller, tracker, source, engine, names, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start a session immediately unless disabled
	if *autostart {
		if err := controller.Start(ctx); err != nil {
			logger.Error("Failed to start session", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the session (finalizes the in-flight segment, drains the sweeper)
	controller.Stop()

	// Get final statistics
	info := controller.Info()
	engineStats := engine.Stats()
	logger.Info("Final session statistics",
		slog.Uint64("cycles_started", info.Recorder.CyclesStarted),
		slog.Uint64("cycles_completed", info.Recorder.CyclesCompleted),
		slog.Uint64("files_observed", info.Sweeper.FilesObserved),
		slog.Uint64("events_emitted", info.Sweeper.EventsEmitted),
		slog.Uint64("transcription_requests", engineStats.TotalRequests),
		slog.Float64("transcription_success_rate", engineStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
