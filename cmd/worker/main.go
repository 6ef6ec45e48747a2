package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/invoicecheck/internal/app"
	"github.com/odyssey-erp/invoicecheck/internal/checker"
	jobmetrics "github.com/odyssey-erp/invoicecheck/internal/jobs"
	"github.com/odyssey-erp/invoicecheck/internal/platform/cache"
	"github.com/odyssey-erp/invoicecheck/internal/textextract"
	"github.com/odyssey-erp/invoicecheck/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("text cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := jobmetrics.NewMetrics(nil)
	extractor := textextract.TextFallback{
		Next: textextract.NewCachedExtractor(
			textextract.NewClient(cfg.TextExtractorURL, cfg.TextExtractorTimeout),
			redisClient, cfg.TextCacheTTL, logger,
		),
	}
	service, err := checker.NewService(cfg.Checker(), extractor, metrics, logger)
	if err != nil {
		logger.Error("init checker", slog.Any("error", err))
		os.Exit(1)
	}

	renameJob := checker.NewRenameJob(service, metrics, logger)
	folderJob := checker.NewFolderCheckJob(service, cfg.OutputDir, logger)

	var cron []jobs.CronRegistration
	if cfg.WatchDir != "" {
		nightly, err := jobs.NewCheckFolderTask(jobs.CheckFolderPayload{
			Dir:       cfg.WatchDir,
			OutputDir: cfg.OutputDir,
			XLSX:      true,
		})
		if err != nil {
			logger.Error("build folder check task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    "0 2 * * *",
			Task:    nightly,
			Options: []asynq.Option{asynq.MaxRetry(1)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.CheckConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRenameInvoice, Handler: renameJob.Handle},
			{Type: jobs.TaskCheckFolder, Handler: folderJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
