/*
reconciler.go - One terminal event, end to end

REQUEST FLOW:
  1. Normalize the wall clock and map the vendor action (independent)
  2. Resolve the badge number through the directory
  3. Take the employee's lock
  4. Read the current state through the gateway (never cached)
  5. Resolve the decision
  6. Issue the one write the decision calls for
  7. Journal the outcome (journal failures never fail the event)

CONCURRENCY:
  Events are independent units of work. The only shared state is the
  per-employee lock, which closes the read-decide-write race for events
  handled by this process. Across processes the store's uniqueness guard
  (ErrWriteRejected) is the remaining defense.

ERRORS:
  Directory and gateway failures propagate unchanged. The noop guard is a
  valid decision, not an error.
*/
package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/attendance-bridge/logger"
)

// ActionMapper translates a vendor action token into the domain vocabulary.
type ActionMapper interface {
	MapAction(token string) Action
}

// ActionMapperFunc adapts a function to ActionMapper.
type ActionMapperFunc func(token string) Action

func (f ActionMapperFunc) MapAction(token string) Action { return f(token) }

// Reconciler turns terminal events into span writes.
type Reconciler struct {
	normalizer *Normalizer
	actions    ActionMapper
	directory  *Directory
	gateway    *Gateway
	locks      *KeyedMutex
	journal    Journal
	now        func() time.Time
	log        *logger.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithLocks shares a lock table (e.g. with the reaper).
func WithLocks(locks *KeyedMutex) ReconcilerOption {
	return func(r *Reconciler) { r.locks = locks }
}

// WithJournal records every handled event.
func WithJournal(j Journal) ReconcilerOption {
	return func(r *Reconciler) { r.journal = j }
}

// WithClock overrides time.Now for journal timestamps.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = log }
}

// NewReconciler wires the engine's collaborators.
func NewReconciler(normalizer *Normalizer, actions ActionMapper, directory *Directory, gateway *Gateway, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		normalizer: normalizer,
		actions:    actions,
		directory:  directory,
		gateway:    gateway,
		journal:    NopJournal{},
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.locks == nil {
		r.locks = NewKeyedMutex()
	}
	return r
}

// Locks returns the reconciler's lock table.
func (r *Reconciler) Locks() *KeyedMutex { return r.locks }

// Handle reconciles one terminal event.
func (r *Reconciler) Handle(ctx context.Context, ev TerminalEvent) (out Outcome, err error) {
	rec := EventRecord{
		ID:           uuid.NewString(),
		ReceivedAt:   r.now().UTC(),
		EmployeeRef:  ev.EmployeeRef,
		RawTime:      ev.RawTime,
		VendorAction: ev.VendorAction,
	}
	defer func() { r.journalOutcome(ctx, rec, out, err) }()

	if !ev.HasData() {
		return Outcome{}, invalidRequest("event has no employee reference or time")
	}

	at, err := r.normalizer.Parse(ev.RawTime)
	if err != nil {
		return Outcome{}, err
	}
	action := r.actions.MapAction(ev.VendorAction)

	emp, err := r.directory.Resolve(ctx, ev.EmployeeRef)
	if err != nil {
		return Outcome{}, err
	}
	out.Employee = emp

	unlock := r.locks.Lock(emp.ID)
	defer unlock()

	state, err := r.gateway.State(ctx, emp.ID)
	if err != nil {
		return out, err
	}

	d, err := Resolve(ResolveInput{Employee: emp.ID, At: at, Action: action, State: state})
	if err != nil {
		return out, err
	}
	out.Decision = d

	log := r.log.With().
		Str("employee_ref", ev.EmployeeRef).
		Int64("employee_id", int64(emp.ID)).
		Str("vendor_action", ev.VendorAction).
		Str("mapped_action", action.String()).
		Str("decision", string(d.Kind)).
		Logger()

	switch d.Kind {
	case DecisionOpen:
		id, err := r.gateway.OpenSpan(ctx, emp.ID, d.At)
		if err != nil {
			return out, err
		}
		out.SpanID = id
		if d.Substituted {
			log.Warn().Int64("span_id", int64(id)).Msg("checkout without open span; checked in instead")
		}

	case DecisionClose:
		if err := r.gateway.CloseSpan(ctx, d.TargetSpan, d.At); err != nil {
			return out, err
		}
		out.SpanID = d.TargetSpan
		log.Info().
			Int64("span_id", int64(d.TargetSpan)).
			Str("hours_worked", d.HoursWorkedText()).
			Msg("checked out")

	case DecisionNoop:
		out.SpanID = d.TargetSpan
		log.Info().
			Int64("open_span_id", int64(d.TargetSpan)).
			Msg(d.Advisory)
	}
	return out, nil
}

func (r *Reconciler) journalOutcome(ctx context.Context, rec EventRecord, out Outcome, err error) {
	rec.EmployeeID = out.Employee.ID
	rec.Decision = out.Decision.Kind
	rec.Action = out.Decision.Action
	rec.SpanID = out.SpanID
	rec.Substituted = out.Decision.Substituted
	switch {
	case err != nil:
		rec.Status = EventFailed
		rec.Error = err.Error()
	case out.Decision.Kind == DecisionNoop:
		rec.Status = EventNoop
	default:
		rec.Status = EventApplied
	}
	// The journal must not inherit a cancelled request context.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if jerr := r.journal.RecordEvent(jctx, rec); jerr != nil {
		r.log.Warn().Err(jerr).Str("event_id", rec.ID).Msg("could not journal event")
	}
}
