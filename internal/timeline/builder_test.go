package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pointsFor(points []TimelinePoint, center, item string) map[time.Time]int64 {
	out := make(map[time.Time]int64)
	for _, p := range points {
		if p.Center == center && p.ResourceCode == item {
			out[p.Date] = p.StockQty
		}
	}
	return out
}

func TestBuildOutboundAndInboundDeltas(t *testing.T) {
	// Baseline 100 at center A on day 0; 20 leave on day 2; 20 arrive on
	// day 5 (future arrival, booked on arrival).
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 3, 1), StockQty: 100},
	}
	moves := []MoveRecord{
		{ResourceCode: "X", FromCenter: "A", ToCenter: "B", QtyEA: 20, OnboardDate: dp(2024, 3, 3)},
		{ResourceCode: "X", FromCenter: "C", ToCenter: "A", QtyEA: 20, ArrivalDate: dp(2024, 3, 6)},
	}
	points := Build(snapshot, moves, BuildParams{
		Centers: []string{"A"},
		Items:   []string{"X"},
		Start:   d(2024, 3, 1),
		End:     d(2024, 3, 8),
		Today:   d(2024, 3, 1),
		LagDays: 7,
	})

	byDay := pointsFor(points, "A", "X")
	require.Len(t, byDay, 8)
	require.EqualValues(t, 100, byDay[d(2024, 3, 1)])
	require.EqualValues(t, 100, byDay[d(2024, 3, 2)])
	require.EqualValues(t, 80, byDay[d(2024, 3, 3)])
	require.EqualValues(t, 80, byDay[d(2024, 3, 5)])
	require.EqualValues(t, 100, byDay[d(2024, 3, 6)])
	require.EqualValues(t, 100, byDay[d(2024, 3, 8)])
}

func TestBuildLaggedArrivalShiftsInboundDay(t *testing.T) {
	// Arrival was three days before today and never booked: the inbound
	// delta lands lagDays after arrival, not on the arrival day.
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 2, 20), StockQty: 100},
	}
	moves := []MoveRecord{
		{ResourceCode: "X", FromCenter: "C", ToCenter: "A", QtyEA: 20, ArrivalDate: dp(2024, 2, 27)},
	}
	points := Build(snapshot, moves, BuildParams{
		Centers: []string{"A"},
		Items:   []string{"X"},
		Start:   d(2024, 2, 25),
		End:     d(2024, 3, 8),
		Today:   d(2024, 3, 1),
		LagDays: 7,
	})

	byDay := pointsFor(points, "A", "X")
	require.EqualValues(t, 100, byDay[d(2024, 2, 27)])
	require.EqualValues(t, 100, byDay[d(2024, 3, 4)])
	require.EqualValues(t, 120, byDay[d(2024, 3, 5)])
}

func TestBuildDateDensity(t *testing.T) {
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 3, 1), StockQty: 40},
	}
	points := Build(snapshot, nil, BuildParams{
		Centers:     []string{"A"},
		Items:       []string{"X"},
		Start:       d(2024, 3, 1),
		End:         d(2024, 3, 5),
		HorizonDays: 3,
		Today:       d(2024, 3, 1),
		LagDays:     7,
	})

	require.Len(t, points, 8)
	seen := make(map[time.Time]bool)
	for i, p := range points {
		require.False(t, seen[p.Date], "duplicate day %s", p.Date)
		seen[p.Date] = true
		require.EqualValues(t, 40, p.StockQty)
		if i > 0 {
			require.Equal(t, points[i-1].Date.AddDate(0, 0, 1), p.Date)
		}
	}
}

func TestBuildSkipsPairsWithoutSnapshot(t *testing.T) {
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 3, 1), StockQty: 10},
	}
	points := Build(snapshot, nil, BuildParams{
		Centers: []string{"A", "B"},
		Items:   []string{"X", "Y"},
		Start:   d(2024, 3, 1),
		End:     d(2024, 3, 3),
		Today:   d(2024, 3, 1),
	})
	for _, p := range points {
		require.Equal(t, "A", p.Center)
		require.Equal(t, "X", p.ResourceCode)
	}
	require.Len(t, points, 3)
}

func TestBuildClipsAtZeroWithoutRestoring(t *testing.T) {
	// Raw cumulative sum goes 10, -20, -15: the floor reports zero but the
	// later +5 inbound must not resurface quantity that was already lost.
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 3, 1), StockQty: 10},
	}
	moves := []MoveRecord{
		{ResourceCode: "X", FromCenter: "A", ToCenter: "B", QtyEA: 30, OnboardDate: dp(2024, 3, 2)},
		{ResourceCode: "X", FromCenter: "C", ToCenter: "A", QtyEA: 5, InboundDate: dp(2024, 3, 4)},
	}
	points := Build(snapshot, moves, BuildParams{
		Centers: []string{"A"},
		Items:   []string{"X"},
		Start:   d(2024, 3, 1),
		End:     d(2024, 3, 5),
		Today:   d(2024, 3, 1),
	})
	byDay := pointsFor(points, "A", "X")
	require.EqualValues(t, 10, byDay[d(2024, 3, 1)])
	require.EqualValues(t, 0, byDay[d(2024, 3, 2)])
	require.EqualValues(t, 0, byDay[d(2024, 3, 4)])
	require.EqualValues(t, 0, byDay[d(2024, 3, 5)])
}

func TestBuildInTransitPoolAggregatesByItem(t *testing.T) {
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 3, 1), StockQty: 50},
		{ResourceCode: "X", Center: "B", Date: d(2024, 3, 1), StockQty: 30},
	}
	moves := []MoveRecord{
		{ResourceCode: "X", FromCenter: "C", ToCenter: "A", QtyEA: 10, OnboardDate: dp(2024, 3, 2), ArrivalDate: dp(2024, 3, 5)},
		{ResourceCode: "X", FromCenter: "C", ToCenter: "B", QtyEA: 7, OnboardDate: dp(2024, 3, 3), ArrivalDate: dp(2024, 3, 6)},
	}
	points := Build(snapshot, moves, BuildParams{
		Centers: []string{"A", "B"},
		Items:   []string{"X"},
		Start:   d(2024, 3, 1),
		End:     d(2024, 3, 7),
		Today:   d(2024, 3, 1),
		LagDays: 7,
	})

	transit := pointsFor(points, CenterInTransit, "X")
	require.Len(t, transit, 7, "one in-transit series per item, not per destination")
	require.EqualValues(t, 0, transit[d(2024, 3, 1)])
	require.EqualValues(t, 10, transit[d(2024, 3, 2)])
	require.EqualValues(t, 17, transit[d(2024, 3, 3)])
	require.EqualValues(t, 7, transit[d(2024, 3, 5)])
	require.EqualValues(t, 0, transit[d(2024, 3, 6)])
}

func TestBuildInTransitExcludesWIP(t *testing.T) {
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 3, 1), StockQty: 50},
	}
	moves := []MoveRecord{
		{ResourceCode: "X", FromCenter: CenterWIP, ToCenter: "A", QtyEA: 99, OnboardDate: dp(2024, 3, 2), ArrivalDate: dp(2024, 3, 20), CarrierMode: CarrierModeWIP},
	}
	points := Build(snapshot, moves, BuildParams{
		Centers: []string{"A"},
		Items:   []string{"X"},
		Start:   d(2024, 3, 1),
		End:     d(2024, 3, 10),
		Today:   d(2024, 3, 1),
		LagDays: 7,
	})
	require.Empty(t, pointsFor(points, CenterInTransit, "X"))
}

func TestBuildNonNegativity(t *testing.T) {
	snapshot := []SnapshotRecord{
		{ResourceCode: "X", Center: "A", Date: d(2024, 3, 1), StockQty: 5},
	}
	moves := []MoveRecord{
		{ResourceCode: "X", FromCenter: "A", ToCenter: "B", QtyEA: 100, OnboardDate: dp(2024, 3, 2)},
	}
	points := Build(snapshot, moves, BuildParams{
		Centers: []string{"A"},
		Items:   []string{"X"},
		Start:   d(2024, 3, 1),
		End:     d(2024, 3, 6),
		Today:   d(2024, 3, 1),
	})
	for _, p := range points {
		require.GreaterOrEqual(t, p.StockQty, int64(0))
	}
}
