// Package jobs defines the background task surface: asynq task types,
// payloads, the worker bootstrap, and the cache warmup job.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProjectionWarmup primes the projection cache for a scope.
	TaskProjectionWarmup = "projection:warmup"
	// TaskCacheInvalidate bumps the projection cache version after data loads.
	TaskCacheInvalidate = "projection:invalidate"
)

// ProjectionWarmupPayload narrows the warmup to a center/item scope.
// Empty lists mean every center or item known to the repository.
type ProjectionWarmupPayload struct {
	Centers      []string `json:"centers,omitempty"`
	Items        []string `json:"items,omitempty"`
	WithForecast bool     `json:"with_forecast"`
}

// NewProjectionWarmupTask constructs an Asynq task.
func NewProjectionWarmupTask(payload ProjectionWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProjectionWarmup, data), nil
}

// NewCacheInvalidateTask constructs an Asynq task.
func NewCacheInvalidateTask() *asynq.Task {
	return asynq.NewTask(TaskCacheInvalidate, nil)
}
