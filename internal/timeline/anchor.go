package timeline

import "time"

// AnchorToday overwrites the point at today's date for every selected
// (center, item) pair with the literal summed quantity of that pair's most
// recent snapshot. Projection and forecast are directional guidance for past
// and future days; today is always ground truth. Applying the anchor twice
// yields the same result as applying it once.
func AnchorToday(points []TimelinePoint, snapshot []SnapshotRecord, centers, items []string, today time.Time) []TimelinePoint {
	out := make([]TimelinePoint, len(points))
	copy(out, points)

	centerSel := stringSet(centers)
	itemSel := stringSet(items)
	today = Day(today)

	latest := make(map[pairKey]time.Time)
	sums := make(map[pairKey]int64)
	for _, s := range snapshot {
		if !centerSel[s.Center] || !itemSel[s.ResourceCode] {
			continue
		}
		key := pairKey{s.Center, s.ResourceCode}
		d := Day(s.Date)
		switch cur, ok := latest[key]; {
		case !ok || d.After(cur):
			latest[key] = d
			sums[key] = s.StockQty
		case d.Equal(cur):
			sums[key] += s.StockQty
		}
	}

	for i := range out {
		if !Day(out[i].Date).Equal(today) {
			continue
		}
		if qty, ok := sums[pairKey{out[i].Center, out[i].ResourceCode}]; ok {
			out[i].StockQty = qty
		}
	}
	return out
}
