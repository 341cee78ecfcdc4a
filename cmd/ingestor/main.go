package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/handler"
	"github.com/riot-match-ingestor/internal/websocket"
	"github.com/riot-match-ingestor/internal/worker"
)

const usage = `Usage: ingestor [flags] <command>

Commands:
  run     execute one ingestion run and print its statistics
  serve   serve the HTTP API and run on the configured schedule
  check   verify the store connection and print row counts

Flags:
`

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envFile := flag.String("env-file", "", "Path to a .env file (default: search the working directory and its parents)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}

	var envPath string
	if *envFile != "" {
		envPath = config.LoadDotEnv(*envFile)
	} else {
		envPath = config.LoadDotEnv()
	}

	// Load configuration; only a missing file falls back to defaults
	cfg, fileMissing, err := config.LoadOrDefault(*configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration",
			"path", *configPath,
			"error", err,
		)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if fileMissing {
		logger.Warn("config file not found, using defaults", "path", *configPath)
	}
	if envPath != "" {
		logger.Debug("loaded environment file", "path", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch command {
	case "run":
		code = runOnce(ctx, cfg, logger)
	case "serve":
		code = serve(ctx, cfg, logger)
	case "check":
		code = check(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		flag.Usage()
		code = 2
	}
	stop()
	os.Exit(code)
}

// runOnce executes a single ingestion run
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.close()

	stats, err := a.ingestion.Run(ctx)
	if err != nil {
		logger.Error("ingestion run not started", "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		logger.Error("failed to print run statistics", "error", err)
		return 1
	}
	return 0
}

// serve runs the HTTP API and the scheduler until interrupted
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.close()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(a.ingestion, logger)
	go wsHub.Run()
	a.ingestion.AddPublisher(wsHub)
	logger.Info("WebSocket hub initialized")

	// Start the scheduler
	var scheduler *worker.Scheduler
	if cfg.Schedule.Enabled {
		scheduler, err = worker.NewScheduler(a.ingestion, &cfg.Schedule, logger)
		if err != nil {
			logger.Error("failed to create scheduler", "error", err)
			return 1
		}
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			return 1
		}
	}

	httpHandler := handler.NewHandler(a.ingestion, a.store, wsHub, a.metrics.Handler(), logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			code = 1
		}
	}

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Error("failed to stop scheduler", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Wait for triggered runs before the hub and the store go away
	a.ingestion.Shutdown()
	wsHub.Stop()

	logger.Info("server stopped")
	return code
}

// checkReport is printed by the check command
type checkReport struct {
	Driver       string          `json:"driver"`
	Tables       map[string]bool `json:"tables,omitempty"`
	Matches      int64           `json:"matches"`
	Participants int64           `json:"participants"`
}

// check verifies that the store is reachable and reports what it holds
func check(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		return 1
	}
	defer closeStore()

	if err := st.Ping(ctx); err != nil {
		logger.Error("store is not reachable", "error", err)
		return 1
	}

	report := checkReport{Driver: cfg.Store.Driver}
	if lister, ok := st.(tableLister); ok {
		tables, err := lister.Tables(ctx)
		if err != nil {
			logger.Error("failed to list tables", "error", err)
			return 1
		}
		report.Tables = tables
	}

	counts, err := st.Counts(ctx)
	if err != nil {
		logger.Error("failed to count rows", "error", err)
		return 1
	}
	report.Matches = counts.Matches
	report.Participants = counts.Participants

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to print report", "error", err)
		return 1
	}
	return 0
}
