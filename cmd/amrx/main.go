package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/audio"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/config"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/discovery"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/metrics"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/server"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "amrx"
	serviceVersion    = "1.0.0"

	dialTimeout = 10 * time.Second
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	serverHost := flag.String("server", "", "Stream server host (overrides config)")
	serverPort := flag.Int("port", 0, "Stream server data port (overrides config)")
	volume := flag.Float64("volume", -1, "Audio volume multiplier (overrides config)")
	pcmStdout := flag.Bool("pcm-stdout", false, "Write raw s16le PCM to stdout")
	mute := flag.Bool("mute", false, "Disable audio device playback")
	flag.Parse()

	// Load configuration; a missing default path still starts with defaults
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlagOverrides(cfg, *serverHost, *serverPort, *volume, *pcmStdout, *mute)

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging, cfg.Output.PCMStdout)

	logger.Info("Receiver starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("server_host", cfg.Server.Host),
		slog.Int("server_port", cfg.Server.Port),
		slog.Bool("discovery", cfg.Discovery.Enabled),
		slog.Float64("cutoff_hz", cfg.DSP.CutoffHz),
		slog.Int("decimation_ratio", cfg.DSP.DecimationRatio),
		slog.Float64("volume", cfg.DSP.Volume),
		slog.Bool("audio", cfg.Audio.Enabled),
		slog.Bool("pcm_stdout", cfg.Output.PCMStdout),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Resolve the server endpoint, via discovery when enabled
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	if cfg.Discovery.Enabled {
		addr = resolveServer(ctx, cfg, logger, addr)
	}

	// Build the output sink destinations
	var raw io.Writer
	if cfg.Output.PCMStdout {
		raw = os.Stdout
	}

	var dev audio.Device
	if cfg.Audio.Enabled {
		device, err := audio.NewPortAudioDevice(cfg.Audio.SampleRate, cfg.Audio.BufferSize, cfg.Audio.DeviceBuffers)
		if err != nil {
			logger.Error("Failed to open audio device", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer device.Close()
		dev = device
		logger.Info("Audio device opened",
			slog.Int("sample_rate", cfg.Audio.SampleRate),
			slog.Int("buffer_size", cfg.Audio.BufferSize),
		)
	}

	if raw == nil && dev == nil {
		logger.Warn("No output destination enabled, demodulated audio is discarded")
	}

	sink, err := audio.NewSink(audio.SinkConfig{
		FlushThreshold: cfg.Audio.BufferSize,
		DeviceBuffers:  cfg.Audio.DeviceBuffers,
	}, raw, dev)
	if err != nil {
		logger.Error("Failed to create output sink", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Build the receive session
	sess := session.New(session.Config{
		Addr:            addr,
		DialTimeout:     dialTimeout,
		ReadTimeout:     cfg.Server.GetReadTimeout(),
		CutoffHz:        cfg.DSP.CutoffHz,
		DecimationRatio: cfg.DSP.DecimationRatio,
		DCAlpha:         cfg.DSP.DCAlpha,
		AGCTarget:       cfg.DSP.AGCTarget,
		Volume:          cfg.DSP.Volume,
	}, sink, appMetrics, logger)

	// Start HTTP status server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sess)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Run the session; its exit ends the program
	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- sess.Run(ctx)
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var sessionErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		sessionErr = <-sessionDone
	case sessionErr = <-sessionDone:
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Final statistics
	stats := sess.Stats()
	logger.Info("Final session statistics",
		slog.Uint64("data_frames", stats.DataFrames),
		slog.Uint64("metadata_frames", stats.MetadataFrames),
		slog.Uint64("sequence_gaps", stats.SequenceGaps),
		slog.Uint64("samples_flushed", stats.Sink.SamplesFlushed),
	)

	if sessionErr != nil {
		logger.Error("Session ended with error", slog.String("error", sessionErr.Error()))
		os.Exit(1)
	}

	logger.Info("Receiver stopped")
}

// loadConfig reads the configuration file, falling back to built-in
// defaults when the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// applyFlagOverrides folds the convenience flags into the loaded
// configuration. Zero values mean the flag was not given.
func applyFlagOverrides(cfg *config.Config, host string, port int, volume float64, pcmStdout, mute bool) {
	if host != "" {
		cfg.Server.Host = host
		// An explicit server address wins over discovery.
		cfg.Discovery.Enabled = false
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if volume >= 0 {
		cfg.DSP.Volume = volume
	}
	if pcmStdout {
		cfg.Output.PCMStdout = true
	}
	if mute {
		cfg.Audio.Enabled = false
	}
}

// resolveServer waits for a discovery announcement of the stream
// service and returns its endpoint, or fallback when none arrives in
// time.
func resolveServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, fallback string) string {
	resolver := discovery.NewResolver(cfg.Discovery.Service)
	listenAddr := net.JoinHostPort(cfg.Discovery.ListenAddress, strconv.Itoa(cfg.Discovery.ListenPort))
	listener := discovery.NewListener(listenAddr, logger, resolver.Notify)

	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()

	go func() {
		if err := listener.Run(listenCtx); err != nil {
			logger.Warn("Discovery listener stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("Waiting for server announcement",
		slog.String("service", cfg.Discovery.Service),
		slog.String("listen_addr", listenAddr),
		slog.Duration("timeout", cfg.Discovery.GetTimeoutDuration()),
	)

	ep, ok := resolver.Wait(ctx, cfg.Discovery.GetTimeoutDuration())
	if !ok {
		logger.Warn("No server announcement received, using configured address",
			slog.String("addr", fallback))
		return fallback
	}

	logger.Info("Server discovered", slog.String("addr", ep.String()))
	return ep.String()
}

// initLogger creates and configures the structured logger based on
// configuration. When raw PCM goes to stdout the log output is forced
// to stderr so the two streams never mix.
func initLogger(cfg config.LoggingConfig, pcmStdout bool) *slog.Logger {
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
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch {
	case pcmStdout:
		output = os.Stderr
	case cfg.Output == "stdout" || cfg.Output == "":
		output = os.Stdout
	case cfg.Output == "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
