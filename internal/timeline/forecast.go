package timeline

import (
	"math"
	"sort"
	"time"
)

// ForecastParams controls the consumption overlay.
type ForecastParams struct {
	Centers      []string
	Items        []string
	Start        time.Time
	End          time.Time
	Today        time.Time
	LookbackDays int
	Events       []UpliftEvent
}

type pairKey struct {
	center string
	item   string
}

// ApplyConsumption walks each projected (center, item) trajectory forward
// from the first forecastable day, subtracting the estimated daily demand
// scaled by any uplift multiplier for that day. Each subtraction permanently
// reduces every subsequent day and clamps at zero, so a demand impulse never
// produces negative stock and never restores quantity already lost.
//
// Forecasting starts at max(latest snapshot + 1, today + 1, Start): the past
// and the current day are never overwritten. In-transit rows and pairs with
// no positive estimated rate pass through untouched. A fresh slice is always
// returned; the input is never mutated.
func ApplyConsumption(points []TimelinePoint, snapshot []SnapshotRecord, moves []MoveRecord, p ForecastParams) []TimelinePoint {
	out := make([]TimelinePoint, len(points))
	copy(out, points)
	if len(out) == 0 {
		return out
	}

	rates := EstimateDailyConsumption(snapshot, moves, EstimateParams{
		Centers:      p.Centers,
		Items:        p.Items,
		LookbackDays: p.LookbackDays,
	})
	if len(rates) == 0 {
		return out
	}
	rateByPair := make(map[pairKey]float64, len(rates))
	for _, r := range rates {
		rateByPair[pairKey{r.Center, r.ResourceCode}] = r.DailyConsumption
	}

	var latest time.Time
	for _, s := range snapshot {
		if Day(s.Date).After(latest) {
			latest = Day(s.Date)
		}
	}
	end := Day(p.End)
	consStart := maxDay(latest.AddDate(0, 0, 1), Day(p.Today).AddDate(0, 0, 1), p.Start)
	if consStart.After(end) {
		return out
	}
	uplift := dailyMultipliers(consStart, end, p.Events)

	for _, idxs := range groupByPair(out) {
		key := pairKey{out[idxs[0]].Center, out[idxs[0]].ResourceCode}
		if key.center == CenterInTransit {
			continue
		}
		rate, ok := rateByPair[key]
		if !ok || rate <= 0 {
			continue
		}

		forecastable := make([]int, 0, len(idxs))
		for _, i := range idxs {
			if !out[i].Date.Before(consStart) {
				forecastable = append(forecastable, i)
			}
		}
		if len(forecastable) == 0 {
			continue
		}
		sort.Slice(forecastable, func(a, b int) bool {
			return out[forecastable[a]].Date.Before(out[forecastable[b]].Date)
		})

		stock := make([]float64, len(forecastable))
		for i, idx := range forecastable {
			stock[i] = float64(out[idx].StockQty)
		}
		for i := range stock {
			dec := rate * multiplierFor(uplift, out[forecastable[i]].Date)
			for j := i; j < len(stock); j++ {
				stock[j] -= dec
				if stock[j] < 0 {
					stock[j] = 0
				}
			}
		}
		for i, idx := range forecastable {
			out[idx].StockQty = roundQty(stock[i])
		}
	}
	return out
}

// dailyMultipliers expands ranged uplift events into one multiplier entry
// per covered day within [start, end]. Events replace the default multiplier
// rather than compounding it; the last event written to a day wins.
func dailyMultipliers(start, end time.Time, events []UpliftEvent) map[time.Time]float64 {
	out := make(map[time.Time]float64)
	for _, ev := range events {
		for _, d := range days(ev.Start, ev.End) {
			if d.Before(start) || d.After(end) {
				continue
			}
			out[d] = 1 + ev.Uplift
		}
	}
	return out
}

func multiplierFor(uplift map[time.Time]float64, d time.Time) float64 {
	if m, ok := uplift[Day(d)]; ok {
		return m
	}
	return 1
}

// roundQty coerces a forecasted value back to a renderable quantity:
// non-finite values become zero, everything else rounds to the nearest
// integer and floors at zero.
func roundQty(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	return int64(r)
}

// groupByPair buckets point indices by (center, item) preserving first-seen
// group order.
func groupByPair(points []TimelinePoint) [][]int {
	order := make([]pairKey, 0)
	byPair := make(map[pairKey][]int)
	for i, pt := range points {
		key := pairKey{pt.Center, pt.ResourceCode}
		if _, ok := byPair[key]; !ok {
			order = append(order, key)
		}
		byPair[key] = append(byPair[key], i)
	}
	out := make([][]int, 0, len(order))
	for _, key := range order {
		out = append(out, byPair[key])
	}
	return out
}
