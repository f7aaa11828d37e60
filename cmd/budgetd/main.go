package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetd/internal/amqp"
	"budgetd/internal/config"
	"budgetd/internal/log"
	"budgetd/internal/scheduler"
	"budgetd/internal/services"
	"budgetd/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.Setup(cfg.LogLevel)
	logger.Info("Starting budgetd")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Notifications are persisted either way; the broker only fans them out.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, notifications will only be persisted", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, notifications will only be persisted")
	}

	notifier := services.NewNotificationService(repo, repo, publisher)
	limitService := services.NewLimitService(repo, repo, notifier)
	limitService.SetSweepConcurrency(cfg.SweepConcurrency)
	processor := services.NewRecurringProcessor(repo, limitService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Jobs configured",
		"recurring_interval", cfg.RecurringInterval,
		"limit_sweep_time", cfg.LimitSweepTime,
		"sqlite_db", cfg.SQLiteDBPath)

	// Catch up on recurring transactions before the first tick.
	logger.Info("Running initial recurring transaction processing...")
	if count, err := processor.ProcessDue(ctx, time.Now().UTC()); err != nil {
		logger.Error("Initial processing failed", "error", err)
	} else {
		logger.Info("Initial processing complete", "transactions_created", count)
	}

	sched := scheduler.New(logger)

	if _, err := sched.AddInterval(cfg.RecurringInterval, func() {
		logger.Info("Processing due recurring transactions...")
		count, err := processor.ProcessDue(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("Recurring processing failed", "error", err)
			return
		}
		logger.Info("Recurring processing complete", "transactions_created", count)
	}); err != nil {
		logger.Error("Failed to schedule recurring processing", "error", err)
		os.Exit(1)
	}

	if _, err := sched.AddDaily(cfg.LimitSweepTime, func() {
		logger.Info("Running limit sweep...")
		if err := limitService.RunLimitSweep(ctx, time.Now().UTC()); err != nil {
			logger.Error("Limit sweep failed", "error", err)
			return
		}
		logger.Info("Limit sweep complete")
	}); err != nil {
		logger.Error("Failed to schedule limit sweep", "error", err)
		os.Exit(1)
	}

	sched.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	sched.Stop()
	logger.Info("budgetd shutdown complete")
}
