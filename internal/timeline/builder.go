package timeline

import "time"

// BuildParams selects the scope and window of a projection run.
type BuildParams struct {
	Centers     []string
	Items       []string
	Start       time.Time
	End         time.Time
	HorizonDays int
	Today       time.Time
	LagDays     int
}

// Build simulates the daily on-hand quantity per (center, item) pair from the
// pair's latest snapshot plus dated move deltas, and emits a separate
// in-transit series per item under the synthetic CenterInTransit center.
//
// The value at day D is max(0, base + sum of deltas on days <= D); deltas
// dated outside [Start, End+HorizonDays] are dropped, not accumulated. A pair
// with no snapshot rows produces nothing; a pair with snapshots but no
// relevant moves produces a flat trajectory at its baseline.
func Build(snapshot []SnapshotRecord, moves []MoveRecord, p BuildParams) []TimelinePoint {
	idx := days(p.Start, Day(p.End).AddDate(0, 0, p.HorizonDays))
	if len(idx) == 0 {
		return nil
	}
	selected := stringSet(p.Centers)

	var out []TimelinePoint
	for _, item := range p.Items {
		snapItem := make([]SnapshotRecord, 0)
		for _, s := range snapshot {
			if s.ResourceCode == item && selected[s.Center] {
				snapItem = append(snapItem, s)
			}
		}
		if len(snapItem) == 0 {
			continue
		}

		itemMoves := make([]MoveRecord, 0)
		for _, mv := range moves {
			if mv.ResourceCode == item {
				itemMoves = append(itemMoves, mv)
			}
		}
		predicted := predictAll(itemMoves, p.Today, p.LagDays)

		// Centers that clear the snapshot check also feed the item's
		// shared in-transit pool below.
		transitCenters := make(map[string]bool, len(p.Centers))

		for _, center := range p.Centers {
			var latest time.Time
			for _, s := range snapItem {
				if s.Center == center && Day(s.Date).After(latest) {
					latest = Day(s.Date)
				}
			}
			if latest.IsZero() {
				continue
			}
			transitCenters[center] = true

			var base int64
			for _, s := range snapItem {
				if s.Center == center && Day(s.Date).Equal(latest) {
					base += s.StockQty
				}
			}

			deltas := make(map[time.Time]int64)
			for _, mv := range predicted {
				if mv.FromCenter == center && mv.OnboardDate != nil && Day(*mv.OnboardDate).After(latest) {
					deltas[Day(*mv.OnboardDate)] -= mv.QtyEA
				}
				if mv.ToCenter == center && mv.PredInboundDate != nil && mv.PredInboundDate.After(latest) {
					deltas[*mv.PredInboundDate] += mv.QtyEA
				}
			}

			running := base
			for _, d := range idx {
				running += deltas[d]
				qty := running
				if qty < 0 {
					qty = 0
				}
				out = append(out, TimelinePoint{Date: d, Center: center, ResourceCode: item, StockQty: qty})
			}
		}

		out = append(out, transitSeries(predicted, transitCenters, item, idx)...)
	}
	return out
}

// transitSeries computes the in-flight quantity for one item: +qty when a
// shipment departs, -qty when its predicted transit window ends, prefix
// summed and clipped at zero. The pool is aggregated by item across all
// destination centers rather than tracked per destination.
func transitSeries(predicted []PredictedMove, destinations map[string]bool, item string, idx []time.Time) []TimelinePoint {
	deltas := make(map[time.Time]int64)
	relevant := false
	for _, mv := range predicted {
		if mv.IsWIP() || !destinations[mv.ToCenter] {
			continue
		}
		relevant = true
		if mv.OnboardDate != nil {
			deltas[Day(*mv.OnboardDate)] += mv.QtyEA
		}
		deltas[mv.PredTransitEnd] -= mv.QtyEA
	}
	if !relevant {
		return nil
	}

	points := make([]TimelinePoint, 0, len(idx))
	var running, peak int64
	for _, d := range idx {
		running += deltas[d]
		qty := running
		if qty < 0 {
			qty = 0
		}
		if qty > peak {
			peak = qty
		}
		points = append(points, TimelinePoint{Date: d, Center: CenterInTransit, ResourceCode: item, StockQty: qty})
	}
	if peak == 0 {
		return nil
	}
	return points
}
