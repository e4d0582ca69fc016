package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flowcast/flowcast/internal/projection"
	"github.com/flowcast/flowcast/internal/timeline"
	"github.com/flowcast/flowcast/internal/wip"
)

type fixedStore struct {
	snapshots     []timeline.SnapshotRecord
	snapshotCalls int
}

func (s *fixedStore) SnapshotRows(ctx context.Context, centers, items []string) ([]timeline.SnapshotRecord, error) {
	s.snapshotCalls++
	return s.snapshots, nil
}

func (s *fixedStore) MoveRows(ctx context.Context, items []string) ([]timeline.MoveRecord, error) {
	return nil, nil
}

func (s *fixedStore) WIPOrders(ctx context.Context, items []string) ([]wip.Order, error) {
	return nil, nil
}

func (s *fixedStore) Centers(ctx context.Context) ([]string, error) { return []string{"A"}, nil }
func (s *fixedStore) Items(ctx context.Context) ([]string, error)   { return []string{"X"}, nil }

func TestWarmupJobPrimesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &fixedStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), StockQty: 50},
		},
	}
	svc := projection.NewService(store, projection.NewCache(client, time.Minute), slog.New(slog.NewTextHandler(io.Discard, nil)), projection.Defaults{
		LagDays: 7, LookbackDays: 28, HorizonDays: 20, WIPLeadDays: 30,
	})
	svc.WithNow(func() time.Time { return time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC) })

	job := NewWarmupJob(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	job.clock = func() time.Time { return time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC) }

	task, err := NewProjectionWarmupTask(ProjectionWarmupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	loadsAfterWarmup := store.snapshotCalls
	require.Greater(t, loadsAfterWarmup, 0)

	// A subsequent projection for the warmed scope must come from cache.
	_, err = svc.Project(context.Background(), projection.Query{Today: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, loadsAfterWarmup, store.snapshotCalls)
}

func TestWarmupJobRejectsMalformedPayload(t *testing.T) {
	svc := projection.NewService(&fixedStore{}, nil, nil, projection.Defaults{})
	job := NewWarmupJob(svc, nil, nil)

	task := asynq.NewTask(TaskProjectionWarmup, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
