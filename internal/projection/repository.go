package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowcast/flowcast/internal/timeline"
	"github.com/flowcast/flowcast/internal/wip"
)

// ErrSchemaMissing indicates the projection tables have not been created.
var ErrSchemaMissing = errors.New("projection: schema missing")

// Store is the persistence contract the service depends on.
type Store interface {
	SnapshotRows(ctx context.Context, centers, items []string) ([]timeline.SnapshotRecord, error)
	MoveRows(ctx context.Context, items []string) ([]timeline.MoveRecord, error)
	WIPOrders(ctx context.Context, items []string) ([]wip.Order, error)
	Centers(ctx context.Context) ([]string, error)
	Items(ctx context.Context) ([]string, error)
}

// Repository reads projection inputs from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) SnapshotRows(ctx context.Context, centers, items []string) ([]timeline.SnapshotRecord, error) {
	query := `
		SELECT resource_code, center, snapshot_date, stock_qty
		FROM stock_snapshots
		WHERE ($1::text[] IS NULL OR center = ANY($1))
		  AND ($2::text[] IS NULL OR resource_code = ANY($2))
		ORDER BY resource_code, center, snapshot_date
	`
	rows, err := r.pool.Query(ctx, query, textArray(centers), textArray(items))
	if err != nil {
		return nil, mapPgError("load snapshots", err)
	}
	defer rows.Close()

	var out []timeline.SnapshotRecord
	for rows.Next() {
		var rec timeline.SnapshotRecord
		if err := rows.Scan(&rec.ResourceCode, &rec.Center, &rec.Date, &rec.StockQty); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) MoveRows(ctx context.Context, items []string) ([]timeline.MoveRecord, error) {
	query := `
		SELECT resource_code, from_center, to_center, qty_ea,
		       onboard_date, arrival_date, inbound_date, carrier_mode
		FROM stock_moves
		WHERE ($1::text[] IS NULL OR resource_code = ANY($1))
		ORDER BY resource_code, onboard_date NULLS LAST, id
	`
	rows, err := r.pool.Query(ctx, query, textArray(items))
	if err != nil {
		return nil, mapPgError("load moves", err)
	}
	defer rows.Close()

	var out []timeline.MoveRecord
	for rows.Next() {
		var rec timeline.MoveRecord
		var carrier *string
		if err := rows.Scan(
			&rec.ResourceCode, &rec.FromCenter, &rec.ToCenter, &rec.QtyEA,
			&rec.OnboardDate, &rec.ArrivalDate, &rec.InboundDate, &carrier,
		); err != nil {
			return nil, err
		}
		if carrier != nil {
			rec.CarrierMode = *carrier
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) WIPOrders(ctx context.Context, items []string) ([]wip.Order, error) {
	query := `
		SELECT resource_code, po_number, po_date, qty_ea, COALESCE(to_center, '')
		FROM wip_orders
		WHERE closed_at IS NULL
		  AND ($1::text[] IS NULL OR resource_code = ANY($1))
		ORDER BY resource_code, po_number
	`
	rows, err := r.pool.Query(ctx, query, textArray(items))
	if err != nil {
		return nil, mapPgError("load wip orders", err)
	}
	defer rows.Close()

	var out []wip.Order
	for rows.Next() {
		var ord wip.Order
		if err := rows.Scan(&ord.ResourceCode, &ord.PONumber, &ord.PODate, &ord.QtyEA, &ord.ToCenter); err != nil {
			return nil, err
		}
		if ord.PODate != nil {
			d := timeline.Day(*ord.PODate)
			ord.PODate = &d
		}
		out = append(out, ord)
	}
	return out, rows.Err()
}

func (r *Repository) Centers(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT center FROM stock_snapshots ORDER BY center`)
}

func (r *Repository) Items(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT resource_code FROM stock_snapshots ORDER BY resource_code`)
}

func (r *Repository) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapPgError("load scope", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// textArray returns nil for an empty filter so the SQL predicate collapses
// to "match everything".
func textArray(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}

func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("%s: %w", op, ErrSchemaMissing)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Store = (*Repository)(nil)
