// Package main is the entry point for the calendar reminder API server.
//
// It loads configuration, opens the database pool, wires the reminder
// services, builds the HTTP server with the core chassis (middleware,
// routing, health checks), and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"

	"calwatch/internal/alarm"
	"calwatch/internal/api/handlers"
	"calwatch/internal/auth"
	"calwatch/internal/config"
	"calwatch/internal/core"
	"calwatch/internal/db"
	"calwatch/internal/metrics"
	"calwatch/internal/recurrence"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("calwatch API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	eventRepo := db.NewEventRepository(pool)
	cursorRepo := db.NewCursorRepository(pool)
	partnerRepo := db.NewPartnerRepository(pool)

	finder := alarm.NewFinder(eventRepo, eventRepo, cfg.Reminder.BootstrapGrace, logger)
	expander := recurrence.NewExpander(cfg.Reminder.MaxOccurrences)
	notifySvc := alarm.NewNotifyService(
		eventRepo,
		cursorRepo,
		finder,
		expander,
		cfg.Reminder.NotifLookahead,
		logger,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	srv.Authenticator = auth.NewKeyService(partnerRepo, nil, logger)
	srv.Metrics = newMetricsRecorder(ctx, cfg, logger)
	srv.HealthProbes = []core.HealthProbe{
		core.PingProbe{ProbeName: "database", Ping: pool.Ping},
	}

	reminderHandler := handlers.NewReminderHandler(notifySvc, nil, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Route("/reminders", reminderHandler.RegisterRoutes)
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newMetricsRecorder builds the CloudWatch recorder, or returns nil (metrics
// disabled) when the AWS configuration cannot be loaded. The API must still
// serve traffic without telemetry.
func newMetricsRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) core.APIMetrics {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Warn("AWS configuration unavailable, metrics disabled", "error", err)
		return nil
	}

	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	return metrics.NewCloudWatchRecorder(cwClient, cfg.AWS.MetricsNamespace, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
