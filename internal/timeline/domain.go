// Package timeline projects multi-center inventory levels forward and
// backward in time from periodic stock snapshots plus a log of discrete
// movement events, and overlays a regression-based consumption forecast.
// Every operation is a pure function over immutable inputs; the reference
// "today" is always an explicit parameter so results are reproducible.
package timeline

import "time"

const (
	// CarrierModeWIP marks a production order rather than a physical shipment.
	CarrierModeWIP = "WIP"
	// CenterWIP is the reserved origin pseudo-center for production orders.
	CenterWIP = "WIP"
	// CenterInTransit is the synthetic center aggregating movement-in-flight
	// quantity per item across all destinations.
	CenterInTransit = "In-Transit"
)

// SnapshotRecord is one recorded stock quantity for an (item, center) pair
// on a calendar day. Rows are unique per (ResourceCode, Center, Date).
type SnapshotRecord struct {
	ResourceCode string
	Center       string
	Date         time.Time
	StockQty     int64
}

// MoveRecord is a dated transfer of quantity between centers, or a
// production order when FromCenter is the reserved WIP pseudo-center.
// Date fields are optional; a nil date means the step was never logged.
type MoveRecord struct {
	ResourceCode string
	FromCenter   string
	ToCenter     string
	QtyEA        int64
	OnboardDate  *time.Time
	ArrivalDate  *time.Time
	InboundDate  *time.Time
	CarrierMode  string
}

// IsWIP reports whether the move represents a production order.
func (m MoveRecord) IsWIP() bool { return m.CarrierMode == CarrierModeWIP }

// PredictedMove is a MoveRecord augmented with the derived inbound and
// transit-end dates. Derived, never stored.
type PredictedMove struct {
	MoveRecord
	// PredInboundDate is the day the quantity is assumed booked into
	// ToCenter. Nil for open-ended shipments with no arrival date.
	PredInboundDate *time.Time
	// PredTransitEnd is the day the move stops counting as in-transit.
	// Always set: open-ended shipments fall back to today+1.
	PredTransitEnd time.Time
}

// TimelinePoint is one projected stock quantity for a single calendar day.
// Center may be the synthetic CenterInTransit.
type TimelinePoint struct {
	Date         time.Time `json:"date"`
	Center       string    `json:"center"`
	ResourceCode string    `json:"resource_code"`
	StockQty     int64     `json:"stock_qty"`
}

// ConsumptionRate is the estimated daily demand for one (center, item) pair.
type ConsumptionRate struct {
	Center           string  `json:"center"`
	ResourceCode     string  `json:"resource_code"`
	DailyConsumption float64 `json:"daily_consumption"`
}

// UpliftEvent is a calendar-bound multiplicative demand adjustment,
// e.g. Uplift 0.30 means +30% demand on every day in [Start, End].
type UpliftEvent struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Uplift float64   `json:"uplift"`
}
