// Package wip turns open production orders into synthetic move records so
// the timeline engine can show inbound supply that has not shipped yet.
package wip

import (
	"time"

	"github.com/flowcast/flowcast/internal/timeline"
)

const (
	StatusInProduction = "In Production"
	StatusDelayed      = "Delayed"
)

// ToCenterUnknown is used when a production order carries no destination.
const ToCenterUnknown = "Unknown"

// Order is one open production order awaiting completion.
type Order struct {
	ResourceCode string     `json:"resource_code"`
	PONumber     string     `json:"po_number"`
	PODate       *time.Time `json:"po_date,omitempty"`
	QtyEA        int64      `json:"qty_ea"`
	ToCenter     string     `json:"to_center,omitempty"`
	Status       string     `json:"status"`
}

// Summary aggregates the open order book for KPI reporting.
type Summary struct {
	TotalQty      int64   `json:"total_qty"`
	DelayedOrders int     `json:"delayed_orders"`
	AvgLeadAge    float64 `json:"avg_lead_age_days"`
}

// DeriveStatus classifies an order: anything ordered before today and still
// open is delayed.
func DeriveStatus(poDate *time.Time, today time.Time) string {
	if poDate != nil && poDate.Before(timeline.Day(today)) {
		return StatusDelayed
	}
	return StatusInProduction
}

// MergeAsMoves appends one synthetic move per order to the given move set.
// The move leaves the reserved WIP pseudo-center, arrives leadDays after the
// PO date (or after today when the PO date is unknown), and never carries an
// inbound date, so the engine's lag prediction applies on top.
func MergeAsMoves(moves []timeline.MoveRecord, orders []Order, leadDays int, today time.Time) []timeline.MoveRecord {
	out := make([]timeline.MoveRecord, len(moves), len(moves)+len(orders))
	copy(out, moves)
	day := timeline.Day(today)
	for _, ord := range orders {
		if ord.QtyEA <= 0 {
			continue
		}
		var onboard *time.Time
		anchor := day
		if ord.PODate != nil {
			po := timeline.Day(*ord.PODate)
			onboard = &po
			anchor = po
		}
		arrival := anchor.AddDate(0, 0, leadDays)
		to := ord.ToCenter
		if to == "" {
			to = ToCenterUnknown
		}
		out = append(out, timeline.MoveRecord{
			ResourceCode: ord.ResourceCode,
			FromCenter:   timeline.CenterWIP,
			ToCenter:     to,
			QtyEA:        ord.QtyEA,
			OnboardDate:  onboard,
			ArrivalDate:  &arrival,
			CarrierMode:  timeline.CarrierModeWIP,
		})
	}
	return out
}

// Metrics summarizes the order book: total open quantity, how many orders
// are delayed, and the mean age in days of dated orders. An order's recorded
// status wins; orders without one are classified by PO date.
func Metrics(orders []Order, today time.Time) Summary {
	var s Summary
	day := timeline.Day(today)
	var ageSum float64
	var dated int
	for _, ord := range orders {
		s.TotalQty += ord.QtyEA
		status := ord.Status
		if status == "" {
			status = DeriveStatus(ord.PODate, today)
		}
		if status == StatusDelayed {
			s.DelayedOrders++
		}
		if ord.PODate != nil {
			ageSum += day.Sub(timeline.Day(*ord.PODate)).Hours() / 24
			dated++
		}
	}
	if dated > 0 {
		s.AvgLeadAge = ageSum / float64(dated)
	}
	return s
}
