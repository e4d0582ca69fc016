// Package projection is the serving layer around the timeline engine: it
// loads raw records from PostgreSQL, runs them through the normalize and WIP
// boundaries, executes the engine, and memoizes results in Redis.
package projection

import (
	"errors"
	"time"

	"github.com/flowcast/flowcast/internal/timeline"
	"github.com/flowcast/flowcast/internal/wip"
)

var (
	// ErrEmptyScope indicates no centers or items survived scope resolution.
	ErrEmptyScope = errors.New("projection: empty scope")
	// ErrInvalidRange indicates End precedes Start.
	ErrInvalidRange = errors.New("projection: end before start")
)

// Query describes one projection request. Zero-valued tuning fields are
// filled from the service defaults; an empty Centers or Items list means
// "everything known to the repository".
type Query struct {
	Centers      []string
	Items        []string
	Start        time.Time
	End          time.Time
	Today        time.Time
	HorizonDays  int
	LagDays      int
	LookbackDays int
	WithForecast bool
	Events       []timeline.UpliftEvent
	CostPerUnit  float64
}

// Defaults carries the engine tuning knobs sourced from configuration.
type Defaults struct {
	LagDays      int
	LookbackDays int
	HorizonDays  int
	WIPLeadDays  int
}

// KPISummary is the dashboard card row: stock visible now, quantity on the
// road, quantity still in production, and their sum.
type KPISummary struct {
	AsOf         time.Time   `json:"as_of"`
	CurrentStock int64       `json:"current_stock"`
	InTransit    int64       `json:"in_transit"`
	WIP          int64       `json:"wip"`
	Total        int64       `json:"total"`
	OrderBook    wip.Summary `json:"order_book"`
}

// ValuationRow is one (center, item) quantity priced at a flat unit cost.
type ValuationRow struct {
	Center       string  `json:"center"`
	ResourceCode string  `json:"resource_code"`
	StockQty     int64   `json:"stock_qty"`
	Cost         float64 `json:"cost"`
}
