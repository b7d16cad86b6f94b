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

	"github.com/projectsthataremine/narraflow-sub000/internal/audio"
	"github.com/projectsthataremine/narraflow-sub000/internal/config"
	"github.com/projectsthataremine/narraflow-sub000/internal/engine"
	"github.com/projectsthataremine/narraflow-sub000/internal/metrics"
	"github.com/projectsthataremine/narraflow-sub000/internal/pipeline"
	"github.com/projectsthataremine/narraflow-sub000/internal/server"
	"github.com/projectsthataremine/narraflow-sub000/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "dictation-worker"
	serviceVersion    = "1.0.0"

	// accessTokenEnv carries the bearer token for the cloud engine; it is
	// injected by the host process rather than stored in the config file.
	accessTokenEnv = "DICTATION_ACCESS_TOKEN"

	// onnxLibraryEnv optionally points at the onnxruntime shared library.
	onnxLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("vad_model_path", cfg.VAD.ModelPath),
		slog.String("engine", cfg.Engine.Selected),
		slog.Bool("trim_silence", cfg.Pipeline.TrimSilence),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize VAD detector when silence trimming is enabled
	var detector *vad.Detector
	if cfg.Pipeline.TrimSilence {
		detectorConfig := vad.DefaultDetectorConfig()
		detectorConfig.SpeechThreshold = cfg.VAD.SpeechThreshold
		detectorConfig.SilenceThreshold = cfg.VAD.SilenceThreshold
		detectorConfig.SampleRate = cfg.Audio.SampleRate

		detector, err = vad.NewDetector(detectorConfig, logger)
		if err != nil {
			logger.Error("Failed to create VAD detector", slog.String("error", err.Error()))
			os.Exit(1)
		}

		model, err := vad.NewSileroModel(vad.SileroConfig{
			ModelPath:   cfg.VAD.ModelPath,
			SampleRate:  cfg.Audio.SampleRate,
			LibraryPath: os.Getenv(onnxLibraryEnv),
		})
		if err != nil {
			logger.Error("Failed to load VAD model", slog.String("error", err.Error()))
			os.Exit(1)
		}

		detector.Initialize(model)
		logger.Info("VAD detector initialized",
			slog.String("model_path", cfg.VAD.ModelPath),
			slog.Float64("speech_threshold", float64(cfg.VAD.SpeechThreshold)),
		)
	}

	// Initialize the selected transcription engine
	transcriber, health, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("Failed to create transcription engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription engine initialized", slog.String("engine", transcriber.Name()))

	// Initialize the transcription pipeline
	pl, err := pipeline.New(pipeline.Config{
		SampleRate:     cfg.Audio.SampleRate,
		TrimSilence:    cfg.Pipeline.TrimSilence,
		Padding:        cfg.VAD.GetPadding(),
		MinSpeech:      cfg.VAD.GetMinSpeech(),
		EnableCleanup:  cfg.Pipeline.EnableCleanup,
		CleanupTimeout: cfg.Pipeline.GetCleanupTimeout(),
	}, detector, transcriber, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the recorder and the worker API server
	recorder := audio.NewRecorder(cfg.Audio.SampleRate, logger)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:    cfg.Server.Port,
		Address: cfg.Server.Address,
	}, logger, cfg, recorder, pl, transcriber, health, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start worker API server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("api_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop the API server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping worker API server", slog.String("error", err.Error()))
	}

	// Discard any recording left in flight
	if recorder.Active() {
		recorder.Cancel()
	}

	// Release the VAD model
	if detector != nil {
		if err := detector.Close(); err != nil {
			logger.Error("Error closing VAD detector", slog.String("error", err.Error()))
		}
	}

	// Log final statistics
	recorderStats := recorder.GetStats()
	pipelineStats := pl.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("sessions_finished", recorderStats.SessionsFinished),
		slog.Uint64("sessions_canceled", recorderStats.SessionsCanceled),
		slog.Uint64("pipeline_runs", pipelineStats.TotalRuns),
		slog.Uint64("empty_runs", pipelineStats.EmptyRuns),
		slog.Uint64("failed_runs", pipelineStats.FailedRuns),
	)

	logger.Info("Service stopped")
}

// buildEngine constructs the configured transcription engine. The local
// engine doubles as the health checker for its model server; the cloud
// engine has no local readiness probe.
func buildEngine(cfg *config.Config, logger *slog.Logger) (engine.Transcriber, server.HealthChecker, error) {
	switch cfg.Engine.Selected {
	case "local":
		local, err := engine.NewLocal(engine.LocalConfig{
			ServerURL:   cfg.Engine.Local.ServerURL,
			Model:       cfg.Engine.Local.Model,
			Language:    cfg.Engine.Local.Language,
			MaxAttempts: cfg.Engine.Local.MaxAttempts,
			RetryDelay:  cfg.Engine.Local.GetRetryDelay(),
			Timeout:     cfg.Engine.Local.GetTimeout(),
			SampleRate:  cfg.Audio.SampleRate,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil

	case "cloud":
		tokens := engine.StaticToken(os.Getenv(accessTokenEnv))
		cloud, err := engine.NewCloud(engine.CloudConfig{
			BaseURL:      cfg.Engine.Cloud.BaseURL,
			FunctionName: cfg.Engine.Cloud.FunctionName,
			Model:        cfg.Engine.Cloud.Model,
			Language:     cfg.Engine.Cloud.Language,
			Format:       cfg.Engine.Cloud.Format,
			MaxAttempts:  cfg.Engine.Cloud.MaxAttempts,
			RetryDelay:   cfg.Engine.Cloud.GetRetryDelay(),
			Timeout:      cfg.Engine.Cloud.GetTimeout(),
			SampleRate:   cfg.Audio.SampleRate,
		}, tokens, logger)
		if err != nil {
			return nil, nil, err
		}
		return cloud, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine '%s'", cfg.Engine.Selected)
	}
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
