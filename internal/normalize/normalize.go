// Package normalize is the receiving contract for canonical record streams
// produced by the external data normalizer. Column-name reconciliation and
// spreadsheet parsing happen upstream; this package only enforces the
// canonical shapes, applies the static center alias table and drops rows the
// engine must never see (zero quantities, unusable dates).
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/flowcast/flowcast/internal/timeline"
)

// ErrMissingField indicates a canonical record arrived without a field the
// engine requires. The engine does not guess; the caller fixes the feed.
var ErrMissingField = errors.New("normalize: missing required field")

// centerAliases folds alternate spellings onto one canonical center name.
// Applied once here, never inside the engine.
var centerAliases = map[string]string{
	"AcrossBUS": "어크로스비US",
}

// CanonicalCenter trims, NFC-normalizes and de-aliases a raw center name.
func CanonicalCenter(raw string) string {
	s := norm.NFC.String(strings.TrimSpace(raw))
	if canonical, ok := centerAliases[s]; ok {
		return canonical
	}
	return s
}

// CleanSnapshot validates and canonicalizes snapshot rows: identity fields
// must be present, rows without a usable date are dropped, negative
// quantities clamp to zero, and duplicate (item, center, day) keys are
// summed. Output is sorted by (item, center, date).
func CleanSnapshot(records []timeline.SnapshotRecord) ([]timeline.SnapshotRecord, error) {
	type key struct {
		item   string
		center string
		date   time.Time
	}
	agg := make(map[key]int64)
	for i, rec := range records {
		if strings.TrimSpace(rec.ResourceCode) == "" {
			return nil, fmt.Errorf("%w: snapshot[%d].resource_code", ErrMissingField, i)
		}
		if strings.TrimSpace(rec.Center) == "" {
			return nil, fmt.Errorf("%w: snapshot[%d].center", ErrMissingField, i)
		}
		if rec.Date.IsZero() {
			continue
		}
		qty := rec.StockQty
		if qty < 0 {
			qty = 0
		}
		k := key{
			item:   strings.TrimSpace(rec.ResourceCode),
			center: CanonicalCenter(rec.Center),
			date:   timeline.Day(rec.Date),
		}
		agg[k] += qty
	}

	out := make([]timeline.SnapshotRecord, 0, len(agg))
	for k, qty := range agg {
		out = append(out, timeline.SnapshotRecord{
			ResourceCode: k.item,
			Center:       k.center,
			Date:         k.date,
			StockQty:     qty,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceCode != out[j].ResourceCode {
			return out[i].ResourceCode < out[j].ResourceCode
		}
		if out[i].Center != out[j].Center {
			return out[i].Center < out[j].Center
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// CleanMoves validates and canonicalizes move rows: identity fields must be
// present, non-positive quantities are dropped, dates are truncated to days,
// and exact duplicates are removed. The reserved WIP pseudo-center is never
// aliased.
func CleanMoves(records []timeline.MoveRecord) ([]timeline.MoveRecord, error) {
	out := make([]timeline.MoveRecord, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.ResourceCode) == "" {
			return nil, fmt.Errorf("%w: move[%d].resource_code", ErrMissingField, i)
		}
		if strings.TrimSpace(rec.ToCenter) == "" {
			return nil, fmt.Errorf("%w: move[%d].to_center", ErrMissingField, i)
		}
		if rec.QtyEA <= 0 {
			continue
		}
		mv := timeline.MoveRecord{
			ResourceCode: strings.TrimSpace(rec.ResourceCode),
			FromCenter:   canonicalMoveCenter(rec.FromCenter),
			ToCenter:     canonicalMoveCenter(rec.ToCenter),
			QtyEA:        rec.QtyEA,
			OnboardDate:  dayOrNil(rec.OnboardDate),
			ArrivalDate:  dayOrNil(rec.ArrivalDate),
			InboundDate:  dayOrNil(rec.InboundDate),
			CarrierMode:  strings.TrimSpace(rec.CarrierMode),
		}
		fp := fingerprint(mv)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, mv)
	}
	return out, nil
}

func canonicalMoveCenter(raw string) string {
	s := strings.TrimSpace(raw)
	if s == timeline.CenterWIP {
		return s
	}
	return CanonicalCenter(s)
}

func dayOrNil(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := timeline.Day(*t)
	return &d
}

func fingerprint(mv timeline.MoveRecord) string {
	var b strings.Builder
	b.WriteString(mv.ResourceCode)
	b.WriteByte('|')
	b.WriteString(mv.FromCenter)
	b.WriteByte('|')
	b.WriteString(mv.ToCenter)
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d|%s|", mv.QtyEA, mv.CarrierMode)
	for _, t := range []*time.Time{mv.OnboardDate, mv.ArrivalDate, mv.InboundDate} {
		if t != nil {
			b.WriteString(t.Format("2006-01-02"))
		}
		b.WriteByte('|')
	}
	return b.String()
}
