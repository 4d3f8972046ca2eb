package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haltyt/visionpal/internal/config"
	"github.com/haltyt/visionpal/internal/emitter"
	"github.com/haltyt/visionpal/internal/httpapi"
	"github.com/haltyt/visionpal/mjpeg"
)

const (
	defaultConfigPath   = "config/visionpal.yaml"
	statusPublishPeriod = 10 * time.Second
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting visionpal service",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := run(ctx, cfg, sigChan); err != nil {
		slog.Error("service error", "error", err)
		os.Exit(1)
	}

	slog.Info("visionpal service stopped successfully")
}

func run(ctx context.Context, cfg *config.Config, sigChan <-chan os.Signal) error {
	// Optional MQTT status telemetry.
	var mq *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mq = emitter.NewMQTTEmitter(cfg)
		if err := mq.Connect(); err != nil {
			// Telemetry is not worth refusing to start over; the paho
			// client retries in the background.
			slog.Warn("mqtt connect failed, continuing without telemetry", "error", err)
		}
		defer mq.Disconnect()
	}

	var client mjpeg.Client

	// Primary consumer: log frame arrival at debug level, publish a
	// status snapshot on every connectivity edge. Downstream
	// processors attach here.
	consumer := mjpeg.SinkFuncs{
		Frame: func(f mjpeg.Frame) {
			slog.Debug("frame received",
				"seq", f.Seq,
				"size", len(f.Data),
			)
		},
		Connectivity: func(connected bool) {
			slog.Info("stream connectivity changed", "connected", connected)
			if mq != nil {
				if err := mq.PublishStatus(client.Stats()); err != nil {
					slog.Debug("status publish skipped", "error", err)
				}
			}
		},
	}

	// Diagnostics server holds the latest frame for /snap and reads
	// client counters for /status.
	api := httpapi.NewServer(cfg.HTTP.Listen)
	if cfg.Stream.SnapshotURL != "" {
		api.SetSnapshotURL(cfg.Stream.SnapshotURL)
	}

	client, err := mjpeg.New(streamConfig(cfg), mjpeg.MultiSink(consumer, api.Sink()))
	if err != nil {
		return err
	}
	api.SetStats(client)
	api.Start()

	if err := client.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(statusPublishPeriod)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig)
			return shutdown(cfg, client, api)
		case <-ctx.Done():
			return shutdown(cfg, client, api)
		case <-ticker.C:
			if mq != nil {
				if err := mq.PublishStatus(client.Stats()); err != nil {
					slog.Debug("status publish skipped", "error", err)
				}
			}
		}
	}
}

func shutdown(cfg *config.Config, client mjpeg.Client, api *httpapi.Server) error {
	timeout := time.Duration(cfg.ShutdownTimeoutS) * time.Second
	slog.Info("shutting down gracefully", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Stop(); err != nil {
		return err
	}
	return api.Shutdown(shutdownCtx)
}

// streamConfig maps the daemon configuration onto the client package.
func streamConfig(cfg *config.Config) mjpeg.Config {
	return mjpeg.Config{
		URL:            cfg.Stream.URL,
		MaxBufferBytes: cfg.Stream.MaxBufferBytes,
		ReconnectDelay: time.Duration(cfg.Stream.ReconnectDelayS) * time.Second,
		ReadTimeout:    time.Duration(cfg.Stream.ReadTimeoutS) * time.Second,
		MaxReconnects:  cfg.Stream.MaxReconnects,
		ChunkSize:      cfg.Stream.ChunkSize,
		SkipValidation: cfg.Stream.SkipValidation,
	}
}
