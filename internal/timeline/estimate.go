package timeline

import "sort"

// EstimateParams controls the consumption regression.
type EstimateParams struct {
	Centers      []string
	Items        []string
	LookbackDays int
}

// EstimateDailyConsumption fits an ordinary-least-squares trend through the
// recent snapshot history of each (center, item) pair and reports the daily
// decline as that pair's consumption rate.
//
// A pair needs at least two snapshot observations and at least one outbound
// move with a recorded departure date; anything less is silently skipped.
// The rate is the negative of the fitted slope, clamped at zero: a model
// that predicts inventory growth means zero consumption, not negative demand.
func EstimateDailyConsumption(snapshot []SnapshotRecord, moves []MoveRecord, p EstimateParams) []ConsumptionRate {
	var out []ConsumptionRate
	for _, item := range p.Items {
		for _, center := range p.Centers {
			series := make([]SnapshotRecord, 0)
			for _, s := range snapshot {
				if s.ResourceCode == item && s.Center == center {
					series = append(series, s)
				}
			}
			if len(series) < 2 {
				continue
			}
			sort.SliceStable(series, func(i, j int) bool {
				return Day(series[i].Date).Before(Day(series[j].Date))
			})

			if !hasOutbound(moves, item, center) {
				continue
			}

			stock := make([]float64, len(series))
			for i, s := range series {
				stock[i] = float64(s.StockQty)
			}
			if p.LookbackDays >= 1 && len(stock) > p.LookbackDays {
				stock = stock[len(stock)-p.LookbackDays:]
			}
			if len(stock) < 2 {
				continue
			}

			rate, ok := declineSlope(stock)
			if !ok {
				continue
			}
			out = append(out, ConsumptionRate{Center: center, ResourceCode: item, DailyConsumption: rate})
		}
	}
	return out
}

// hasOutbound reports whether the pair shipped anything with a known
// departure date. Pairs that never ship have no observable demand trend.
func hasOutbound(moves []MoveRecord, item, center string) bool {
	for _, mv := range moves {
		if mv.ResourceCode == item && mv.FromCenter == center && mv.OnboardDate != nil {
			return true
		}
	}
	return false
}

// declineSlope returns the OLS daily decline of y over index positions
// 0..n-1, clamped at zero. ok is false when the denominator degenerates,
// which cannot happen for n >= 2 distinct positions but is guarded anyway.
func declineSlope(y []float64) (float64, bool) {
	n := float64(len(y))
	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}
	den := n*sumX2 - sumX*sumX
	if den == 0 {
		return 0, false
	}
	slope := (n*sumXY - sumX*sumY) / den
	rate := -slope
	if rate < 0 {
		rate = 0
	}
	return rate, true
}
