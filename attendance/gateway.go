/*
gateway.go - Attendance store gateway

PURPOSE:
  The only path from the engine to the store's span records. Wraps a Store
  with the checks that belong to every backend:
  - fail fast: zero ids and zero times are rejected before any round trip
  - at most one: FindOpenSpan returns the most recent open span even if a
    store hands back several
  - error shape: anything that is not already a domain error is reported
    as ErrStoreUnavailable

SEE ALSO:
  - store.go: the Store contract
  - reaper.go, reconciler.go: the two callers
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/warp/attendance-bridge/logger"
)

// Gateway exposes idempotent-intent span operations over a Store.
type Gateway struct {
	store Store
	log   *logger.Logger
}

// NewGateway wraps store. log may be nil.
func NewGateway(store Store, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{store: store, log: log}
}

// OpenSpan creates a span for employee starting at checkIn.
func (g *Gateway) OpenSpan(ctx context.Context, employee EmployeeID, checkIn time.Time) (SpanID, error) {
	if employee.IsZero() {
		return 0, invalidRequest("open span: empty employee id")
	}
	if checkIn.IsZero() {
		return 0, invalidRequest("open span: empty check-in time")
	}

	id, err := g.store.CreateSpan(ctx, employee, checkIn.UTC())
	if err != nil {
		return 0, g.classify("open span", err)
	}
	if id.IsZero() {
		return 0, fmt.Errorf("%w: open span: store returned no span id", ErrStoreUnavailable)
	}

	g.log.Info().
		Int64("employee_id", int64(employee)).
		Int64("span_id", int64(id)).
		Str("check_in", FormatStorage(checkIn)).
		Msg("span opened")
	return id, nil
}

// CloseSpan sets the check-out of span id.
func (g *Gateway) CloseSpan(ctx context.Context, id SpanID, checkOut time.Time) error {
	if id.IsZero() {
		return invalidRequest("close span: empty span id")
	}
	if checkOut.IsZero() {
		return invalidRequest("close span: empty check-out time")
	}

	if err := g.store.CloseSpan(ctx, id, checkOut.UTC()); err != nil {
		return g.classify("close span", err)
	}

	g.log.Info().
		Int64("span_id", int64(id)).
		Str("check_out", FormatStorage(checkOut)).
		Msg("span closed")
	return nil
}

// FindOpenSpan returns the employee's open span, or nil.
func (g *Gateway) FindOpenSpan(ctx context.Context, employee EmployeeID) (*Span, error) {
	if employee.IsZero() {
		return nil, invalidRequest("find open span: empty employee id")
	}

	spans, err := g.store.OpenSpans(ctx, employee)
	if err != nil {
		return nil, g.classify("find open span", err)
	}
	open := openOnly(spans)
	if len(open) == 0 {
		return nil, nil
	}
	if len(open) > 1 {
		g.log.Warn().
			Int64("employee_id", int64(employee)).
			Int("open_spans", len(open)).
			Msg("store returned more than one open span; using the most recent")
	}
	latest := open[0]
	return &latest, nil
}

// State reads the employee's current resolver state.
func (g *Gateway) State(ctx context.Context, employee EmployeeID) (State, error) {
	open, err := g.FindOpenSpan(ctx, employee)
	if err != nil {
		return State{}, err
	}
	if open == nil {
		return NoOpenSpan(), nil
	}
	return OpenSpanState(*open), nil
}

// StaleOpenSpans returns open spans with check-in before cutoff.
func (g *Gateway) StaleOpenSpans(ctx context.Context, cutoff time.Time) ([]Span, error) {
	spans, err := g.store.StaleOpenSpans(ctx, cutoff.UTC())
	if err != nil {
		return nil, g.classify("list stale spans", err)
	}
	return openOnly(spans), nil
}

// SpansBetween lists spans in [from, to) if the store supports it.
func (g *Gateway) SpansBetween(ctx context.Context, employee EmployeeID, from, to time.Time) ([]Span, error) {
	if employee.IsZero() {
		return nil, invalidRequest("list spans: empty employee id")
	}
	if !to.After(from) {
		return nil, invalidRequest("list spans: range end must be after start")
	}
	h, ok := g.store.(SpanHistory)
	if !ok {
		return nil, fmt.Errorf("%w: store does not support span history", ErrInvalidRequest)
	}
	spans, err := h.SpansBetween(ctx, employee, from.UTC(), to.UTC())
	if err != nil {
		return nil, g.classify("list spans", err)
	}
	return spans, nil
}

// classify keeps domain errors as they are and reports everything else as
// a store outage.
func (g *Gateway) classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrWriteRejected),
		errors.Is(err, ErrSpanNotFound),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrStoreFault):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}

// openOnly drops closed spans and sorts newest check-in first.
func openOnly(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.IsOpen() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CheckIn.After(out[j].CheckIn)
	})
	return out
}
