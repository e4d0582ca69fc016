package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/flowcast/flowcast/internal/jobs"
	"github.com/flowcast/flowcast/internal/projection"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// WarmupJob pre-populates the projection cache so the first dashboard hit of
// the day is served warm. Registered on a cron schedule by the worker.
type WarmupJob struct {
	Projection *projection.Service
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(svc *projection.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Projection: svc,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes projection warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Projection == nil {
		return errors.New("projection warmup: handler not configured")
	}
	var payload ProjectionWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskProjectionWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting projection warmup",
		slog.Int("centers", len(payload.Centers)),
		slog.Int("items", len(payload.Items)))

	today := j.now()
	q := projection.Query{
		Centers:      payload.Centers,
		Items:        payload.Items,
		Today:        today,
		WithForecast: payload.WithForecast,
	}

	warmed := 0
	scopeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if _, err := j.Projection.Project(scopeCtx, q); err != nil {
		resultErr = err
		logger.Error("warm timeline", slog.Any("error", err))
		return resultErr
	}
	warmed++
	if _, err := j.Projection.Rates(scopeCtx, q); err != nil {
		resultErr = err
		logger.Error("warm rates", slog.Any("error", err))
		return resultErr
	}
	warmed++
	if _, err := j.Projection.Summary(scopeCtx, q); err != nil {
		resultErr = err
		logger.Error("warm summary", slog.Any("error", err))
		return resultErr
	}
	warmed++

	j.metrics().AddWarmedQueries(scopeToken(payload), warmed)
	logger.Info("completed projection warmup",
		slog.Int("queries", warmed),
		slog.Duration("duration", time.Since(today)))
	return resultErr
}

// InvalidateJob bumps the projection cache version after a data load.
type InvalidateJob struct {
	Projection *projection.Service
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewInvalidateJob wires dependencies for the invalidation handler.
func NewInvalidateJob(svc *projection.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvalidateJob {
	return &InvalidateJob{Projection: svc, Logger: logger, Metrics: metrics}
}

// Handle processes cache invalidation tasks.
func (j *InvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Projection == nil {
		return errors.New("cache invalidate: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskCacheInvalidate)
	err := j.Projection.Invalidate(ctx)
	if err != nil && j.Logger != nil {
		j.Logger.Error("bump projection cache", slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskProjectionWarmup))
	}
	return slog.Default().With(slog.String("job", TaskProjectionWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func scopeToken(p ProjectionWarmupPayload) string {
	if len(p.Centers) == 0 && len(p.Items) == 0 {
		return "all"
	}
	return "filtered"
}
