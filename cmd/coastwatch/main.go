// Package main provides the coastwatch service entry point: a
// beach-webcam crowd estimation pipeline with an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coastwatch/coastwatch/internal/api"
	"github.com/coastwatch/coastwatch/internal/capture"
	"github.com/coastwatch/coastwatch/internal/config"
	"github.com/coastwatch/coastwatch/internal/database"
	"github.com/coastwatch/coastwatch/internal/events"
	"github.com/coastwatch/coastwatch/internal/logging"
	"github.com/coastwatch/coastwatch/internal/metrics"
	"github.com/coastwatch/coastwatch/internal/orchestrator"
	"github.com/coastwatch/coastwatch/internal/snapshot"
	"github.com/coastwatch/coastwatch/internal/vision"
)

const version = "0.1.0"

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		runOnce    = flag.Bool("once", false, "probe all enabled webcams once and exit")
		sweepEvery = flag.Duration("sweep-interval", time.Hour, "retention sweep interval")
	)
	flag.Parse()

	cfg, err := config.Load(findConfigFile(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logBuffer := logging.NewRingBuffer(1000)
	setupLogging(cfg.System.Logging, logBuffer)

	slog.Info("Starting coastwatch",
		"version", version,
		"webcams", len(cfg.Webcams),
		"media_root", cfg.System.MediaRoot,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.System.MediaRoot, 0755); err != nil {
		slog.Error("Failed to create media root", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(database.DefaultConfig(cfg.System.DataPath))
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.NewMigrator(db).Run(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	repo := snapshot.NewSQLiteRepository(db.DB)
	m := metrics.New()

	bus, err := events.NewBus(events.Config{Host: cfg.Bus.Host, Port: cfg.Bus.Port}, slog.Default())
	if err != nil {
		slog.Error("Failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Stop()

	extractor := capture.NewExtractor(nil, capture.NewChromeProbe(), capture.NewYTDLPResolver())
	fetcher := capture.NewFetcher(cfg.System.MediaRoot, extractor, capture.NewTranscoder())

	estimator := vision.NewEstimator(cfg.Vision.ModelPath, vision.HeatmapOptions{
		AlphaGain: cfg.Vision.Heatmap.AlphaGain,
		AlphaCeil: cfg.Vision.Heatmap.AlphaCeil,
	})

	runner := orchestrator.NewRunner(cfg, repo, fetcher, estimator, bus, m)
	if err := runner.SyncWebcams(ctx); err != nil {
		slog.Error("Failed to sync webcams", "error", err)
		os.Exit(1)
	}

	sweeper := orchestrator.NewSweeper(cfg, repo, m)

	if *runOnce {
		if err := runner.RunOnce(ctx); err != nil {
			slog.Error("Probe pass failed", "error", err)
			os.Exit(1)
		}
		if _, err := sweeper.RunCleanup(ctx); err != nil {
			slog.Error("Retention cleanup failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Hot-reload announces config changes; new webcams are picked up
	// on the next sync.
	if err := cfg.Watch(); err != nil {
		slog.Warn("Config watching unavailable", "error", err)
	}
	cfg.OnChange(func(c *config.Config) {
		if err := runner.SyncWebcams(ctx); err != nil {
			slog.Error("Failed to re-sync webcams", "error", err)
			return
		}
		for _, w := range c.WebcamList() {
			if err := bus.PublishWebcamUpdated(events.WebcamEvent{
				WebcamSlug: w.Slug,
				Enabled:    w.Enabled,
				Timestamp:  time.Now().UTC(),
			}); err != nil {
				slog.Warn("Failed to publish webcam update", "webcam", w.Slug, "error", err)
			}
		}
	})

	sweeper.Start(ctx, *sweepEvery)
	defer sweeper.Stop()

	scheduler := orchestrator.NewScheduler(runner, time.Minute)
	go func() {
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Scheduler stopped", "error", err)
			cancel()
		}
	}()

	var server *api.Server
	if cfg.API.Enabled {
		hub := api.NewHub()
		go hub.Run()
		if err := hub.Bridge(bus); err != nil {
			slog.Error("Failed to bridge event bus", "error", err)
			os.Exit(1)
		}

		server = api.NewServer(cfg.API.Listen, repo, estimator, hub, db, m, logBuffer)
		go func() {
			if err := server.Start(); err != nil {
				slog.Error("API server error", "error", err)
				cancel()
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		slog.Info("Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}

	slog.Info("Stopped")
}

// setupLogging installs the default slog handler per config, with
// recent records mirrored into the ring buffer for the logs API.
func setupLogging(cfg config.LoggingConfig, buffer *logging.RingBuffer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var fallback slog.Handler
	if cfg.Format == "text" {
		fallback = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		fallback = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(logging.NewStreamHandler(buffer, fallback, level)))
}

// findConfigFile looks for the config file in multiple locations
func findConfigFile(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	locations := []string{
		"./config.yaml",
		"/config/config.yaml",
		filepath.Join("/data", "config.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return "./config.yaml"
}
