// Package main is the entry point for the reminder worker.
//
// The worker runs the periodic reminder pass on a cron cadence: it finds
// every alarm due since the previous pass, sends grouped reminder emails,
// publishes push payloads to the reminder bus, and advances the global
// watermark. One pass also runs immediately at startup so a redeploy never
// delays overdue reminders by a full interval.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM);
// an in-flight pass is allowed to finish before the process exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"calwatch/internal/alarm"
	"calwatch/internal/config"
	"calwatch/internal/db"
	"calwatch/internal/metrics"
	"calwatch/internal/notifications/bus"
	"calwatch/internal/notifications/email"
	"calwatch/internal/recurrence"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("reminder worker starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"pass_interval", cfg.Reminder.PassInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	eventRepo := db.NewEventRepository(pool)
	alarmRepo := db.NewAlarmRepository(pool)
	cursorRepo := db.NewCursorRepository(pool)

	mailSender, err := email.NewSender(cfg.SMTP, logger)
	if err != nil {
		return fmt.Errorf("creating mail sender: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	pass := alarm.NewPass(alarm.PassConfig{
		Events:   eventRepo,
		Alarms:   alarmRepo,
		Cursors:  cursorRepo,
		Finder:   alarm.NewFinder(eventRepo, eventRepo, cfg.Reminder.BootstrapGrace, logger),
		Expander: recurrence.NewExpander(cfg.Reminder.MaxOccurrences),
		Mail:     mailSender,
		Bus:      bus.NewPublisher(sqsClient, cfg.AWS, logger),
		Interval: cfg.Reminder.PassInterval,
		Recorder: metrics.NewCloudWatchRecorder(cwClient, cfg.AWS.MetricsNamespace, logger),
		Logger:   logger,
	})

	runPass := func() {
		if _, err := pass.Run(ctx, time.Now()); err != nil {
			logger.Error("reminder pass failed", "error", err)
		}
	}

	// Overlapping passes would double-send; skip the tick instead.
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	schedule := fmt.Sprintf("@every %s", cfg.Reminder.PassInterval)
	if _, err := scheduler.AddFunc(schedule, runPass); err != nil {
		return fmt.Errorf("scheduling reminder pass: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Catch-up pass before the first tick.
		runPass()
		scheduler.Start()
		<-gctx.Done()
		logger.Info("shutdown signal received, waiting for in-flight pass")
		<-scheduler.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("reminder worker stopped cleanly")
	return nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Info(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err}, keysAndValues...)
	c.logger.Error(msg, args...)
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
