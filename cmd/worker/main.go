package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/flowcast/flowcast/internal/app"
	jobmetrics "github.com/flowcast/flowcast/internal/jobs"
	"github.com/flowcast/flowcast/internal/platform/cache"
	"github.com/flowcast/flowcast/internal/platform/db"
	"github.com/flowcast/flowcast/internal/projection"
	"github.com/flowcast/flowcast/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := projection.NewRepository(pool)
	projCache := projection.NewCache(redisClient, cfg.CacheTTL)
	projService := projection.NewService(repo, projCache, logger, projection.Defaults{
		LagDays:      cfg.LagDays,
		LookbackDays: cfg.LookbackDays,
		HorizonDays:  cfg.HorizonDays,
		WIPLeadDays:  cfg.WIPLeadDays,
	})

	metrics := jobmetrics.NewMetrics(nil)
	warmupJob := jobs.NewWarmupJob(projService, logger, metrics)
	invalidateJob := jobs.NewInvalidateJob(projService, logger, metrics)

	warmupTask, err := jobs.NewProjectionWarmupTask(jobs.ProjectionWarmupPayload{
		Centers:      cfg.WarmupCenters,
		Items:        cfg.WarmupItems,
		WithForecast: true,
	})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskProjectionWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskCacheInvalidate, Handler: invalidateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
