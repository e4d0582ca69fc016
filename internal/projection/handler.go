package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flowcast/flowcast/internal/normalize"
	"github.com/flowcast/flowcast/internal/platform/httpx"
	"github.com/flowcast/flowcast/internal/timeline"
)

const requestTimeout = 10 * time.Second

// Handler exposes the projection service as a JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler constructs the projection HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// MountRoutes registers projection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/timeline", h.handleTimeline)
	r.Get("/rates", h.handleRates)
	r.Get("/summary", h.handleSummary)
	r.Get("/valuation", h.handleValuation)
}

type upliftEventRequest struct {
	Start  string  `json:"start" validate:"required,datetime=2006-01-02"`
	End    string  `json:"end" validate:"required,datetime=2006-01-02"`
	Uplift float64 `json:"uplift" validate:"gte=0,lte=10"`
}

type timelineRequest struct {
	Centers      []string             `json:"centers"`
	Items        []string             `json:"items"`
	Start        string               `json:"start" validate:"required,datetime=2006-01-02"`
	End          string               `json:"end" validate:"required,datetime=2006-01-02"`
	Today        string               `json:"today" validate:"omitempty,datetime=2006-01-02"`
	HorizonDays  int                  `json:"horizon_days" validate:"gte=0,lte=365"`
	LagDays      int                  `json:"lag_days" validate:"gte=0,lte=90"`
	LookbackDays int                  `json:"lookback_days" validate:"gte=0,lte=365"`
	WithForecast bool                 `json:"with_forecast"`
	IncludeRates bool                 `json:"include_rates"`
	Events       []upliftEventRequest `json:"uplift_events" validate:"dive"`
}

type timelineResponse struct {
	RunID  string                     `json:"run_id"`
	Points []timeline.TimelinePoint   `json:"points"`
	Rates  []timeline.ConsumptionRate `json:"rates,omitempty"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	var req timelineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	q, err := h.toQuery(req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp := timelineResponse{RunID: uuid.NewString()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := h.service.Project(gctx, q)
		if err != nil {
			return err
		}
		resp.Points = points
		return nil
	})
	if req.IncludeRates {
		g.Go(func() error {
			rates, err := h.service.Rates(gctx, q)
			if err != nil {
				return err
			}
			resp.Rates = rates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.respondError(w, "build timeline", resp.RunID, err)
		return
	}

	h.logger.Info("timeline served",
		slog.String("run_id", resp.RunID),
		slog.Int("points", len(resp.Points)),
		slog.Bool("rates", req.IncludeRates))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRates(w http.ResponseWriter, r *http.Request) {
	q, err := h.queryFromParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rates, err := h.service.Rates(ctx, q)
	if err != nil {
		h.respondError(w, "estimate rates", "", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": rates})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, err := h.queryFromParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.Summary(ctx, q)
	if err != nil {
		h.respondError(w, "summarize", "", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	q, err := h.queryFromParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if costStr := strings.TrimSpace(r.URL.Query().Get("cost_per_unit")); costStr != "" {
		if _, err := fmt.Sscanf(costStr, "%f", &q.CostPerUnit); err != nil || q.CostPerUnit <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: cost_per_unit must be a positive number", httpx.ErrValidation))
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rows, err := h.service.Valuation(ctx, q)
	if err != nil {
		h.respondError(w, "valuate", "", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) toQuery(req timelineRequest) (Query, error) {
	start, _ := time.Parse("2006-01-02", req.Start)
	end, _ := time.Parse("2006-01-02", req.End)
	if end.Before(start) {
		return Query{}, fmt.Errorf("%w: end %s precedes start %s", httpx.ErrValidation, req.End, req.Start)
	}
	today := timeline.Day(h.now().UTC())
	if req.Today != "" {
		today, _ = time.Parse("2006-01-02", req.Today)
	}

	q := Query{
		Centers:      req.Centers,
		Items:        req.Items,
		Start:        start,
		End:          end,
		Today:        today,
		HorizonDays:  req.HorizonDays,
		LagDays:      req.LagDays,
		LookbackDays: req.LookbackDays,
		WithForecast: req.WithForecast,
	}
	for _, ev := range req.Events {
		evStart, _ := time.Parse("2006-01-02", ev.Start)
		evEnd, _ := time.Parse("2006-01-02", ev.End)
		if evEnd.Before(evStart) {
			return Query{}, fmt.Errorf("%w: uplift event end %s precedes start %s", httpx.ErrValidation, ev.End, ev.Start)
		}
		q.Events = append(q.Events, timeline.UpliftEvent{Start: evStart, End: evEnd, Uplift: ev.Uplift})
	}
	return q, nil
}

// queryFromParams builds a Query from GET parameters; scope lists arrive
// comma-separated and dates default to the handler clock.
func (h *Handler) queryFromParams(r *http.Request) (Query, error) {
	params := r.URL.Query()
	q := Query{
		Centers: splitList(params.Get("centers")),
		Items:   splitList(params.Get("items")),
		Today:   timeline.Day(h.now().UTC()),
	}
	if v := strings.TrimSpace(params.Get("today")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return Query{}, fmt.Errorf("%w: today must be YYYY-MM-DD", httpx.ErrValidation)
		}
		q.Today = t
	}
	return q, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op, runID string, err error) {
	attrs := []any{slog.Any("error", err)}
	if runID != "" {
		attrs = append(attrs, slog.String("run_id", runID))
	}
	h.logger.Error(op, attrs...)
	switch {
	case errors.Is(err, ErrEmptyScope), errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, normalize.ErrMissingField):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Bad Feed", err.Error())
	case errors.Is(err, ErrSchemaMissing):
		httpx.Problem(w, http.StatusServiceUnavailable, "Schema Missing", "projection tables are not provisioned")
	default:
		httpx.RespondError(w, err)
	}
}

func validationDetail(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return "request is invalid"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
