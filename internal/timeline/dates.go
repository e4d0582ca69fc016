package timeline

import "time"

// Day truncates t to UTC midnight. All engine math runs on Day values.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// days returns the inclusive contiguous daily index [start, end].
func days(start, end time.Time) []time.Time {
	start = Day(start)
	end = Day(end)
	if end.Before(start) {
		return nil
	}
	n := int(end.Sub(start).Hours()/24) + 1
	out := make([]time.Time, 0, n)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func maxDay(dates ...time.Time) time.Time {
	var out time.Time
	for _, d := range dates {
		d = Day(d)
		if d.After(out) {
			out = d
		}
	}
	return out
}

func dayPtr(t time.Time) *time.Time {
	d := Day(t)
	return &d
}

func stringSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
