/*
reaper.go - Stale-span sweep

PURPOSE:
  Force-closes spans left open longer than a threshold (default 24h).
  An unclosed terminal session is assumed to have ended the day it began,
  so each stale span is closed at 23:59:59 of its check-in's local calendar
  day, never at "now".

POLICY:
  - stale:  check-in before now - threshold
  - close:  EndOfLocalDay(check-in), converted to storage UTC
  - skip:   if that instant is still in the future (threshold < 24h)

ISOLATION:
  Every closure is attempted independently. A failure is recorded in the
  result and the sweep moves on.

SINGLE-FLIGHT:
  Sweep never runs concurrently with itself. Callers arriving while a sweep
  is in flight wait for it and receive its result.

NOT IN THE EVENT PATH:
  The reconciler never auto-closes stale spans inline; doing so would apply
  this policy twice.

SEE ALSO:
  - api/scheduler.go: periodic trigger
  - cli/reap.go: external trigger
*/
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/warp/attendance-bridge/logger"
)

// DefaultStaleThresholdHours is the sweep threshold when none is given.
const DefaultStaleThresholdHours = 24

// SweepFailure is one span the sweep could not close.
type SweepFailure struct {
	SpanID     SpanID
	EmployeeID EmployeeID
	Err        error
}

// ClosedSpan is one span the sweep closed.
type ClosedSpan struct {
	SpanID     SpanID
	EmployeeID EmployeeID
	CheckIn    time.Time
	CheckOut   time.Time
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	ID             string
	ThresholdHours int
	StartedAt      time.Time
	CompletedAt    time.Time
	Found          int
	Closed         []ClosedSpan
	Skipped        []SpanID
	Failures       []SweepFailure
}

// Record converts the result into its journal form.
func (r SweepResult) Record() SweepRecord {
	return SweepRecord{
		ID:             r.ID,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		ThresholdHours: r.ThresholdHours,
		Found:          r.Found,
		Closed:         len(r.Closed),
		Skipped:        len(r.Skipped),
		Failed:         len(r.Failures),
		Status:         "completed",
	}
}

// Reaper closes stale open spans.
type Reaper struct {
	gateway    *Gateway
	normalizer *Normalizer
	locks      *KeyedMutex
	journal    Journal
	now        func() time.Time
	log        *logger.Logger

	group singleflight.Group
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithReaperClock overrides time.Now.
func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = now }
}

// WithReaperLocks shares the reconciler's per-employee locks so a sweep
// never closes a span while an event for the same employee is in flight.
func WithReaperLocks(locks *KeyedMutex) ReaperOption {
	return func(r *Reaper) { r.locks = locks }
}

// WithReaperJournal records every sweep.
func WithReaperJournal(j Journal) ReaperOption {
	return func(r *Reaper) { r.journal = j }
}

// WithReaperLogger sets the logger.
func WithReaperLogger(log *logger.Logger) ReaperOption {
	return func(r *Reaper) { r.log = log }
}

// NewReaper creates a reaper.
func NewReaper(gateway *Gateway, normalizer *Normalizer, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		gateway:    gateway,
		normalizer: normalizer,
		journal:    NopJournal{},
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep closes every open span older than thresholdHours. A threshold
// below 1 uses DefaultStaleThresholdHours.
func (r *Reaper) Sweep(ctx context.Context, thresholdHours int) (SweepResult, error) {
	if thresholdHours < 1 {
		thresholdHours = DefaultStaleThresholdHours
	}
	v, err, shared := r.group.Do("sweep", func() (any, error) {
		return r.sweep(ctx, thresholdHours)
	})
	if shared {
		r.log.Debug().Msg("joined an in-flight sweep")
	}
	res, _ := v.(SweepResult)
	return res, err
}

func (r *Reaper) sweep(ctx context.Context, thresholdHours int) (SweepResult, error) {
	now := r.now().UTC()
	res := SweepResult{
		ID:             uuid.NewString(),
		ThresholdHours: thresholdHours,
		StartedAt:      now,
	}
	cutoff := now.Add(-time.Duration(thresholdHours) * time.Hour)

	r.log.Info().
		Str("sweep_id", res.ID).
		Int("threshold_hours", thresholdHours).
		Str("cutoff", FormatStorage(cutoff)).
		Msg("sweep started")

	stale, err := r.gateway.StaleOpenSpans(ctx, cutoff)
	if err != nil {
		res.CompletedAt = r.now().UTC()
		rec := res.Record()
		rec.Status = "failed"
		rec.Error = err.Error()
		r.record(ctx, rec)
		return res, fmt.Errorf("sweep: %w", err)
	}
	res.Found = len(stale)

	for _, span := range stale {
		closeAt := r.normalizer.EndOfLocalDay(span.CheckIn)
		if closeAt.After(now) {
			res.Skipped = append(res.Skipped, span.ID)
			continue
		}
		if err := r.closeOne(ctx, span, closeAt); err != nil {
			r.log.Error().Err(err).
				Int64("span_id", int64(span.ID)).
				Int64("employee_id", int64(span.EmployeeID)).
				Msg("sweep could not close span")
			res.Failures = append(res.Failures, SweepFailure{SpanID: span.ID, EmployeeID: span.EmployeeID, Err: err})
			continue
		}
		res.Closed = append(res.Closed, ClosedSpan{
			SpanID:     span.ID,
			EmployeeID: span.EmployeeID,
			CheckIn:    span.CheckIn,
			CheckOut:   closeAt,
		})
	}

	res.CompletedAt = r.now().UTC()
	r.record(ctx, res.Record())

	r.log.Info().
		Str("sweep_id", res.ID).
		Int("found", res.Found).
		Int("closed", len(res.Closed)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failures)).
		Msg("sweep completed")
	return res, nil
}

func (r *Reaper) closeOne(ctx context.Context, span Span, closeAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.locks != nil {
		unlock := r.locks.Lock(span.EmployeeID)
		defer unlock()
	}
	return r.gateway.CloseSpan(ctx, span.ID, closeAt)
}

func (r *Reaper) record(ctx context.Context, rec SweepRecord) {
	if err := r.journal.RecordSweep(ctx, rec); err != nil {
		r.log.Warn().Err(err).Str("sweep_id", rec.ID).Msg("could not journal sweep")
	}
}
