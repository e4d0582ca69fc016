package timeline

import "time"

// PredictInbound derives the predicted inbound date and transit-end date for
// a single move:
//
//   - a logged inbound date is ground truth and wins;
//   - a future arrival is assumed booked the day it arrives;
//   - an arrival on or before today that was never logged as received is
//     assumed booked lagDays after physical arrival;
//   - with no arrival date at all the inbound date stays unknown and the
//     move counts as in-transit through the horizon (end falls back to
//     today+1 so the start delta is never cancelled).
func PredictInbound(mv MoveRecord, today time.Time, lagDays int) PredictedMove {
	today = Day(today)
	pm := PredictedMove{MoveRecord: mv}

	switch {
	case mv.InboundDate != nil:
		pm.PredInboundDate = dayPtr(*mv.InboundDate)
	case mv.ArrivalDate != nil:
		arrival := Day(*mv.ArrivalDate)
		if arrival.After(today) {
			pm.PredInboundDate = &arrival
		} else {
			pm.PredInboundDate = dayPtr(arrival.AddDate(0, 0, lagDays))
		}
	}

	if pm.PredInboundDate != nil {
		pm.PredTransitEnd = *pm.PredInboundDate
	} else {
		pm.PredTransitEnd = today.AddDate(0, 0, 1)
	}
	return pm
}

func predictAll(moves []MoveRecord, today time.Time, lagDays int) []PredictedMove {
	out := make([]PredictedMove, 0, len(moves))
	for _, mv := range moves {
		out = append(out, PredictInbound(mv, today, lagDays))
	}
	return out
}
