package projection

import (
	"context"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flowcast/flowcast/internal/timeline"
	"github.com/flowcast/flowcast/internal/wip"
)

type stubStore struct {
	snapshots []timeline.SnapshotRecord
	moves     []timeline.MoveRecord
	orders    []wip.Order
	centers   []string
	items     []string

	snapshotCalls int
	moveCalls     int
	orderCalls    int
}

func (s *stubStore) SnapshotRows(ctx context.Context, centers, items []string) ([]timeline.SnapshotRecord, error) {
	s.snapshotCalls++
	return s.snapshots, nil
}

func (s *stubStore) MoveRows(ctx context.Context, items []string) ([]timeline.MoveRecord, error) {
	s.moveCalls++
	return s.moves, nil
}

func (s *stubStore) WIPOrders(ctx context.Context, items []string) ([]wip.Order, error) {
	s.orderCalls++
	return s.orders, nil
}

func (s *stubStore) Centers(ctx context.Context) ([]string, error) { return s.centers, nil }
func (s *stubStore) Items(ctx context.Context) ([]string, error)   { return s.items, nil }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dayp(y int, m time.Month, d int) *time.Time {
	t := day(y, m, d)
	return &t
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	svc := NewService(store, cache, slog.Default(), Defaults{
		LagDays:      7,
		LookbackDays: 28,
		HorizonDays:  20,
		WIPLeadDays:  30,
	})
	svc.WithNow(func() time.Time { return day(2024, 3, 3) })
	return svc
}

func baseQuery() Query {
	return Query{
		Centers: []string{"A"},
		Items:   []string{"X"},
		Start:   day(2024, 3, 1),
		End:     day(2024, 3, 8),
		Today:   day(2024, 3, 3),
	}
}

func TestProjectEndToEnd(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 100},
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 3), StockQty: 95},
		},
		moves: []timeline.MoveRecord{
			{ResourceCode: "X", FromCenter: "A", ToCenter: "B", QtyEA: 20, OnboardDate: dayp(2024, 3, 5)},
		},
	}
	svc := newTestService(t, store)

	points, err := svc.Project(context.Background(), baseQuery())
	require.NoError(t, err)
	require.NotEmpty(t, points)

	byDay := make(map[time.Time]int64)
	for _, p := range points {
		require.Equal(t, "A", p.Center)
		require.Equal(t, "X", p.ResourceCode)
		byDay[p.Date] = p.StockQty
	}
	require.EqualValues(t, 95, byDay[day(2024, 3, 3)], "today is anchored to the latest snapshot")
	require.EqualValues(t, 95, byDay[day(2024, 3, 4)])
	require.EqualValues(t, 75, byDay[day(2024, 3, 5)], "outbound leaves on onboard day")
	require.EqualValues(t, 75, byDay[day(2024, 3, 8)])
}

func TestProjectCachesByQuery(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 10},
		},
	}
	svc := newTestService(t, store)
	ctx := context.Background()
	q := baseQuery()

	_, err := svc.Project(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, store.snapshotCalls)

	_, err = svc.Project(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, store.snapshotCalls, "second call must be served from cache")

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Project(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 2, store.snapshotCalls, "bump must force a reload")
}

func TestProjectResolvesScopeFromRepository(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 10},
		},
		centers: []string{"A"},
		items:   []string{"X"},
	}
	svc := newTestService(t, store)

	q := baseQuery()
	q.Centers = nil
	q.Items = nil
	points, err := svc.Project(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, points)
}

func TestProjectEmptyScope(t *testing.T) {
	svc := newTestService(t, &stubStore{})
	q := baseQuery()
	q.Centers = nil
	_, err := svc.Project(context.Background(), q)
	require.ErrorIs(t, err, ErrEmptyScope)
}

func TestProjectInvalidRange(t *testing.T) {
	svc := newTestService(t, &stubStore{})
	q := baseQuery()
	q.End = day(2024, 2, 1)
	_, err := svc.Project(context.Background(), q)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestProjectAppliesDefaultHorizonWhenUnset(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 10},
		},
	}
	svc := newTestService(t, store)

	q := baseQuery()
	require.Zero(t, q.HorizonDays)
	points, err := svc.Project(context.Background(), q)
	require.NoError(t, err)

	byDay := make(map[time.Time]int64)
	for _, p := range points {
		byDay[p.Date] = p.StockQty
	}
	// End 2024-03-08 plus the configured 20-day horizon.
	_, ok := byDay[day(2024, 3, 28)]
	require.True(t, ok, "omitted horizon must fall back to the configured default")
	_, ok = byDay[day(2024, 3, 29)]
	require.False(t, ok)
}

func TestProjectWithForecastDecays(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 60},
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 2), StockQty: 55},
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 3), StockQty: 50},
		},
		moves: []timeline.MoveRecord{
			{ResourceCode: "X", FromCenter: "A", ToCenter: "B", QtyEA: 1, OnboardDate: dayp(2024, 3, 2)},
		},
	}
	svc := newTestService(t, store)

	q := baseQuery()
	q.WithForecast = true
	points, err := svc.Project(context.Background(), q)
	require.NoError(t, err)

	byDay := make(map[time.Time]int64)
	for _, p := range points {
		if p.Center == "A" {
			byDay[p.Date] = p.StockQty
		}
	}
	require.EqualValues(t, 50, byDay[day(2024, 3, 3)])
	require.Less(t, byDay[day(2024, 3, 5)], byDay[day(2024, 3, 3)], "forecast must decay future days")
}

func TestRates(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 100},
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 2), StockQty: 95},
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 3), StockQty: 90},
		},
		moves: []timeline.MoveRecord{
			{ResourceCode: "X", FromCenter: "A", ToCenter: "B", QtyEA: 5, OnboardDate: dayp(2024, 3, 2)},
		},
	}
	svc := newTestService(t, store)

	rates, err := svc.Rates(context.Background(), baseQuery())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	require.InDelta(t, 5.0, rates[0].DailyConsumption, 1e-9)
}

func TestSummaryKPIs(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 100},
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 3), StockQty: 95},
		},
		moves: []timeline.MoveRecord{
			// On the road: onboarded before today, arrives later.
			{ResourceCode: "X", FromCenter: "C", ToCenter: "A", QtyEA: 20, OnboardDate: dayp(2024, 3, 2), ArrivalDate: dayp(2024, 3, 7)},
			// Already booked: inbound on the onboard day, no longer in transit.
			{ResourceCode: "X", FromCenter: "C", ToCenter: "A", QtyEA: 9, OnboardDate: dayp(2024, 3, 1), InboundDate: dayp(2024, 3, 2)},
			// Not yet onboarded.
			{ResourceCode: "X", FromCenter: "C", ToCenter: "A", QtyEA: 5, OnboardDate: dayp(2024, 3, 9)},
		},
		orders: []wip.Order{
			{ResourceCode: "X", PONumber: "PO-1", PODate: dayp(2024, 3, 1), QtyEA: 40, ToCenter: "A"},
		},
	}
	svc := newTestService(t, store)

	summary, err := svc.Summary(context.Background(), baseQuery())
	require.NoError(t, err)
	require.EqualValues(t, 95, summary.CurrentStock)
	require.EqualValues(t, 20, summary.InTransit)
	require.EqualValues(t, 40, summary.WIP)
	require.EqualValues(t, 155, summary.Total)
	require.Equal(t, 1, summary.OrderBook.DelayedOrders)
}

func TestLoadRawDerivesOrderStatus(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 10},
		},
		orders: []wip.Order{
			{ResourceCode: "X", PONumber: "PO-1", PODate: dayp(2024, 2, 20), QtyEA: 5},
			{ResourceCode: "X", PONumber: "PO-2", PODate: dayp(2024, 3, 10), QtyEA: 5},
			{ResourceCode: "X", PONumber: "PO-3", QtyEA: 5},
		},
	}
	svc := newTestService(t, store)

	_, _, orders, err := svc.loadRaw(context.Background(), baseQuery())
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, wip.StatusDelayed, orders[0].Status)
	require.Equal(t, wip.StatusInProduction, orders[1].Status)
	require.Equal(t, wip.StatusInProduction, orders[2].Status)
}

func TestValuationDefaultsUnitCost(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 3), StockQty: 95},
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 1), StockQty: 100},
		},
	}
	svc := newTestService(t, store)

	rows, err := svc.Valuation(context.Background(), baseQuery())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 95, rows[0].StockQty)
	require.InDelta(t, 95.0, rows[0].Cost, 1e-9)
}

func TestValuationCustomUnitCost(t *testing.T) {
	store := &stubStore{
		snapshots: []timeline.SnapshotRecord{
			{ResourceCode: "X", Center: "A", Date: day(2024, 3, 3), StockQty: 10},
		},
	}
	svc := newTestService(t, store)

	q := baseQuery()
	q.CostPerUnit = 2.5
	rows, err := svc.Valuation(context.Background(), q)
	require.NoError(t, err)
	require.InDelta(t, 25.0, rows[0].Cost, 1e-9)
}
