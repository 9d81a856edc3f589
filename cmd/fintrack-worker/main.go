package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	cfg = cli.LoadAndValidateConfig(logger)

	logger.Info("Starting fintrack-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker; without it the API evaluates budget checks itself")
		os.Exit(1)
	}
	if cfg.DataBackend == "memory" {
		logger.Warn("Worker uses a private memory store; it will not see the API's records")
	}

	res := cli.InitStore(context.Background(), logger, cfg)
	store := res.Store

	sinks := services.MultiSink{services.NewLogSink(logger), services.NewRecordingSink(store)}
	if cfg.SheetsEnabled() {
		sheets, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleAlertsSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		sinks = append(sinks, sheets)
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}
	alertWorker := worker.NewAlertWorker(services.NewBudgetEvaluator(store, store, sinks, logger), logger)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	scheduler := worker.NewScheduler(store, cfg.AlertRetention, logger)
	if err := scheduler.Start(cfg.RetentionSchedule); err != nil {
		logger.Error("Failed to start retention scheduler", log.FieldError, err)
		os.Exit(1)
	}

	consumed := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		select {
		case <-consumed:
		case <-ctx.Done():
		}
		scheduler.Stop()
		_ = amqpClient.Close()
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close record store", log.FieldError, err)
			}
		}
	})

	go func() {
		defer close(consumed)
		err := amqpClient.ConsumeBudgetChecks(ctx, alertWorker.HandleBudgetCheck)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
