package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/records"
	"fintrack/internal/services"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

const (
	dashboardCacheSize = 1000
	dashboardCacheTTL  = 5 * time.Minute
	shutdownTimeout    = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	cfg = cli.LoadAndValidateConfig(logger)

	res := cli.InitStore(context.Background(), logger, cfg)
	store := res.Store

	sink := alertSink(logger, cfg, store)
	evaluator := services.NewBudgetEvaluator(store, store, sink, logger)

	// Budget checks either go to the broker for fintrack-worker, or are
	// evaluated by an in-process pool.
	var (
		dispatcher services.AlertDispatcher
		pool       *worker.Pool
		broker     *amqp.Client
		scheduler  *worker.Scheduler
		alertStats func() (int64, int64, int64)
	)
	if cfg.AMQPURL != "" {
		var err error
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		dispatcher = broker
		logger.Info("Budget checks published to broker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		pool = worker.NewPool(evaluator, worker.PoolConfig{
			Workers:     cfg.AlertWorkers,
			QueueSize:   cfg.AlertQueueSize,
			EvalTimeout: worker.DefaultPoolConfig().EvalTimeout,
		}, logger)
		if err := pool.Start(context.Background()); err != nil {
			logger.Error("Failed to start alert pool", log.FieldError, err)
			os.Exit(1)
		}
		dispatcher = pool
		alertStats = pool.Stats

		scheduler = worker.NewScheduler(store, cfg.AlertRetention, logger)
		if err := scheduler.Start(cfg.RetentionSchedule); err != nil {
			logger.Error("Failed to start retention scheduler", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Budget checks evaluated in-process", "workers", cfg.AlertWorkers)
	}

	dashboards := cache.NewLRUCache[core.DashboardStats](dashboardCacheSize, dashboardCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(dashboards)
	if err := cacheManager.StartCleanup(cfg.CacheCleanupSchedule); err != nil {
		logger.Error("Failed to start cache cleanup", log.FieldError, err)
		os.Exit(1)
	}

	signer, err := auth.NewTokenSigner(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("Failed to initialize token signer", log.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Transactions: services.NewTransactionService(store, dispatcher,
			services.WithDashboardCache(dashboards),
			services.WithTransactionLogger(logger)),
		Budgets:        services.NewBudgetService(store, store, logger),
		Auth:           auth.NewService(store, signer, auth.WithLogger(logger)),
		Store:          store,
		DashboardCache: dashboards,
		AlertStats:     alertStats,
	}, apphttp.Options{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if pool != nil {
			if err := pool.Stop(ctx); err != nil {
				logger.Error("Alert pool shutdown error", log.FieldError, err)
			}
		}
		if scheduler != nil {
			scheduler.Stop()
		}
		if broker != nil {
			_ = broker.Close()
		}
		cacheManager.Stop()
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close record store", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting fintrack server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// alertSink logs every alert, records it for the alerts endpoint and, when a
// spreadsheet is configured, appends it there too.
func alertSink(logger *log.Logger, cfg *config.Config, store records.AlertLog) services.AlertSink {
	sinks := services.MultiSink{services.NewLogSink(logger), services.NewRecordingSink(store)}
	if !cfg.SheetsEnabled() {
		return sinks
	}
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
	logger.Info("Alerts mirrored to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return append(sinks, sheets)
}
