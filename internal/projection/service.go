package projection

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/flowcast/flowcast/internal/normalize"
	"github.com/flowcast/flowcast/internal/timeline"
	"github.com/flowcast/flowcast/internal/wip"
)

// Service coordinates repository loads, the engine pipeline, and the cache.
type Service struct {
	repo     Store
	cache    *Cache
	logger   *slog.Logger
	defaults Defaults
	now      func() time.Time
}

// NewService wires a Store with a Cache helper.
func NewService(repo Store, cache *Cache, logger *slog.Logger, defaults Defaults) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, defaults: defaults, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Scope returns every center and item known to the repository.
func (s *Service) Scope(ctx context.Context) ([]string, []string, error) {
	centers, err := s.repo.Centers(ctx)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.Items(ctx)
	if err != nil {
		return nil, nil, err
	}
	return centers, items, nil
}

// Invalidate drops every cached projection. Called after data loads.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Project runs the full pipeline for the query and returns dense daily
// points: load, clean, merge production orders, build, optionally forecast,
// then anchor today to the recorded snapshot.
func (s *Service) Project(ctx context.Context, q Query) ([]timeline.TimelinePoint, error) {
	q, err := s.resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	key, err := s.cache.BuildKey(ctx, keyTimeline(q))
	if err != nil {
		return nil, err
	}
	var points []timeline.TimelinePoint
	err = s.cache.FetchJSON(ctx, key, &points, func(ctx context.Context) (interface{}, error) {
		return s.project(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Service) project(ctx context.Context, q Query) ([]timeline.TimelinePoint, error) {
	snapshot, moves, err := s.loadInputs(ctx, q)
	if err != nil {
		return nil, err
	}

	points := timeline.Build(snapshot, moves, timeline.BuildParams{
		Centers:     q.Centers,
		Items:       q.Items,
		Start:       q.Start,
		End:         q.End,
		HorizonDays: q.HorizonDays,
		Today:       q.Today,
		LagDays:     q.LagDays,
	})
	if q.WithForecast {
		points = timeline.ApplyConsumption(points, snapshot, moves, timeline.ForecastParams{
			Centers:      q.Centers,
			Items:        q.Items,
			Start:        q.Start,
			End:          q.End.AddDate(0, 0, q.HorizonDays),
			Today:        q.Today,
			LookbackDays: q.LookbackDays,
			Events:       q.Events,
		})
	}
	points = timeline.AnchorToday(points, snapshot, q.Centers, q.Items, q.Today)

	s.logger.Info("projection built",
		slog.Int("centers", len(q.Centers)),
		slog.Int("items", len(q.Items)),
		slog.Int("points", len(points)),
		slog.Bool("forecast", q.WithForecast))
	return points, nil
}

// Rates returns the estimated daily consumption per (center, item) pair.
func (s *Service) Rates(ctx context.Context, q Query) ([]timeline.ConsumptionRate, error) {
	q, err := s.resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	key, err := s.cache.BuildKey(ctx, keyRates(q))
	if err != nil {
		return nil, err
	}
	var rates []timeline.ConsumptionRate
	err = s.cache.FetchJSON(ctx, key, &rates, func(ctx context.Context) (interface{}, error) {
		snapshot, moves, err := s.loadInputs(ctx, q)
		if err != nil {
			return nil, err
		}
		return timeline.EstimateDailyConsumption(snapshot, moves, timeline.EstimateParams{
			Centers:      q.Centers,
			Items:        q.Items,
			LookbackDays: q.LookbackDays,
		}), nil
	})
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// Summary computes the KPI card numbers: stock at the latest snapshot,
// quantity currently on the road, quantity in production, and the order
// book aggregate.
func (s *Service) Summary(ctx context.Context, q Query) (KPISummary, error) {
	q, err := s.resolve(ctx, q)
	if err != nil {
		return KPISummary{}, err
	}

	key, err := s.cache.BuildKey(ctx, keySummary(q))
	if err != nil {
		return KPISummary{}, err
	}
	var summary KPISummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return s.summarize(ctx, q)
	})
	if err != nil {
		return KPISummary{}, err
	}
	return summary, nil
}

func (s *Service) summarize(ctx context.Context, q Query) (KPISummary, error) {
	snapshot, moves, orders, err := s.loadRaw(ctx, q)
	if err != nil {
		return KPISummary{}, err
	}
	merged := wip.MergeAsMoves(moves, orders, s.defaults.WIPLeadDays, q.Today)

	centers := toSet(q.Centers)
	items := toSet(q.Items)

	latest := latestSnapshotDate(snapshot, centers, items)
	summary := KPISummary{AsOf: q.Today, OrderBook: wip.Metrics(orders, q.Today)}
	for _, rec := range snapshot {
		if rec.Date.Equal(latest) && centers[rec.Center] && items[rec.ResourceCode] {
			summary.CurrentStock += rec.StockQty
		}
	}

	for _, mv := range merged {
		if !centers[mv.ToCenter] || !items[mv.ResourceCode] {
			continue
		}
		if mv.IsWIP() {
			summary.WIP += mv.QtyEA
			continue
		}
		if mv.OnboardDate == nil || timeline.Day(*mv.OnboardDate).After(q.Today) {
			continue
		}
		pm := timeline.PredictInbound(mv, q.Today, q.LagDays)
		if q.Today.Before(pm.PredTransitEnd) {
			summary.InTransit += mv.QtyEA
		}
	}
	summary.Total = summary.CurrentStock + summary.InTransit + summary.WIP
	return summary, nil
}

// Valuation prices the latest snapshot per (center, item) at a flat unit
// cost (1.0 when unset).
func (s *Service) Valuation(ctx context.Context, q Query) ([]ValuationRow, error) {
	q, err := s.resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.CostPerUnit <= 0 {
		q.CostPerUnit = 1.0
	}

	key, err := s.cache.BuildKey(ctx, keyValuation(q))
	if err != nil {
		return nil, err
	}
	var rows []ValuationRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.valuate(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) valuate(ctx context.Context, q Query) ([]ValuationRow, error) {
	raw, err := s.repo.SnapshotRows(ctx, q.Centers, q.Items)
	if err != nil {
		return nil, err
	}
	snapshot, err := normalize.CleanSnapshot(raw)
	if err != nil {
		return nil, err
	}

	centers := toSet(q.Centers)
	items := toSet(q.Items)
	latest := latestSnapshotDate(snapshot, centers, items)

	type pair struct{ center, item string }
	qty := make(map[pair]int64)
	for _, rec := range snapshot {
		if rec.Date.Equal(latest) && centers[rec.Center] && items[rec.ResourceCode] {
			qty[pair{rec.Center, rec.ResourceCode}] += rec.StockQty
		}
	}

	rows := make([]ValuationRow, 0, len(qty))
	for k, v := range qty {
		rows = append(rows, ValuationRow{
			Center:       k.center,
			ResourceCode: k.item,
			StockQty:     v,
			Cost:         float64(v) * q.CostPerUnit,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Center != rows[j].Center {
			return rows[i].Center < rows[j].Center
		}
		return rows[i].ResourceCode < rows[j].ResourceCode
	})
	return rows, nil
}

// resolve fills tuning defaults, resolves the scope, and validates the range.
func (s *Service) resolve(ctx context.Context, q Query) (Query, error) {
	if q.LagDays <= 0 {
		q.LagDays = s.defaults.LagDays
	}
	if q.LookbackDays <= 0 {
		q.LookbackDays = s.defaults.LookbackDays
	}
	if q.HorizonDays <= 0 {
		q.HorizonDays = s.defaults.HorizonDays
	}
	if q.Today.IsZero() {
		q.Today = s.now().UTC()
	}
	q.Today = timeline.Day(q.Today)
	if q.Start.IsZero() {
		q.Start = q.Today.AddDate(0, 0, -q.LookbackDays)
	}
	if q.End.IsZero() {
		q.End = q.Today
	}
	q.Start = timeline.Day(q.Start)
	q.End = timeline.Day(q.End)
	if q.End.Before(q.Start) {
		return Query{}, ErrInvalidRange
	}

	var err error
	if len(q.Centers) == 0 {
		if q.Centers, err = s.repo.Centers(ctx); err != nil {
			return Query{}, err
		}
	}
	if len(q.Items) == 0 {
		if q.Items, err = s.repo.Items(ctx); err != nil {
			return Query{}, err
		}
	}
	if len(q.Centers) == 0 || len(q.Items) == 0 {
		return Query{}, ErrEmptyScope
	}
	for i, c := range q.Centers {
		q.Centers[i] = normalize.CanonicalCenter(c)
	}
	sort.Strings(q.Centers)
	sort.Strings(q.Items)
	return q, nil
}

// loadInputs returns cleaned snapshot rows and the move log with production
// orders merged in as synthetic moves.
func (s *Service) loadInputs(ctx context.Context, q Query) ([]timeline.SnapshotRecord, []timeline.MoveRecord, error) {
	snapshot, moves, orders, err := s.loadRaw(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return snapshot, wip.MergeAsMoves(moves, orders, s.defaults.WIPLeadDays, q.Today), nil
}

func (s *Service) loadRaw(ctx context.Context, q Query) ([]timeline.SnapshotRecord, []timeline.MoveRecord, []wip.Order, error) {
	rawSnap, err := s.repo.SnapshotRows(ctx, q.Centers, q.Items)
	if err != nil {
		return nil, nil, nil, err
	}
	snapshot, err := normalize.CleanSnapshot(rawSnap)
	if err != nil {
		return nil, nil, nil, err
	}
	rawMoves, err := s.repo.MoveRows(ctx, q.Items)
	if err != nil {
		return nil, nil, nil, err
	}
	moves, err := normalize.CleanMoves(rawMoves)
	if err != nil {
		return nil, nil, nil, err
	}
	orders, err := s.repo.WIPOrders(ctx, q.Items)
	if err != nil {
		return nil, nil, nil, err
	}
	for i := range orders {
		orders[i].Status = wip.DeriveStatus(orders[i].PODate, q.Today)
	}
	return snapshot, moves, orders, nil
}

func latestSnapshotDate(snapshot []timeline.SnapshotRecord, centers, items map[string]bool) time.Time {
	var latest time.Time
	for _, rec := range snapshot {
		if centers[rec.Center] && items[rec.ResourceCode] && rec.Date.After(latest) {
			latest = rec.Date
		}
	}
	return latest
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
