/*
resolver.go - Attendance state machine

PURPOSE:
  Decides, for one terminal event, whether to open a span, close the open
  span, or do nothing. Pure: the current state is passed in (freshly read
  from the store by the caller), the decision is returned, nothing is
  written here.

STATES (derived, never stored):
  NoOpenSpan
  OpenSpan(spanID, checkIn)

TRANSITIONS, given (state, eventTime, mappedAction):
  1. An explicit action (checkin / checkout) is authoritative.
  2. An unspecified action is inferred: NoOpenSpan -> checkin,
    OpenSpan -> checkout.
  3. checkin + OpenSpan -> noop with advisory. A second open span is never
    forked for the same employee.
  4. checkout + NoOpenSpan -> checkin, marked Substituted.
  5. checkout + OpenSpan -> close that span; hours worked are reported but
    never change the decision.

FAILURES:
  Only precondition violations (missing employee, zero event time) fail,
  with ErrInvalidRequest.

SEE ALSO:
  - reconciler.go: reads state, calls Resolve, issues the write
*/
package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AdvisoryAlreadyOpen = "check-in not registered: employee has not checked out since the last check-in"
	AdvisorySubstituted = "check-in registered: checkout expected but no open span to close"
)

// State is the employee's derived attendance state.
type State struct {
	Open *Span // nil means NoOpenSpan
}

// NoOpenSpan is the state with nothing open.
func NoOpenSpan() State { return State{} }

// OpenSpanState is the state with s open.
func OpenSpanState(s Span) State { return State{Open: &s} }

// HasOpenSpan reports whether the state holds a genuinely open span.
// A span that was returned as "open" but carries a check-out is a data
// inconsistency and does not count.
func (st State) HasOpenSpan() bool { return st.Open != nil && st.Open.IsOpen() }

// ResolveInput is everything the resolver needs for one decision.
type ResolveInput struct {
	Employee EmployeeID
	At       time.Time // normalized event instant
	Action   Action    // mapped terminal action
	State    State
}

// Resolve applies the transition function.
func Resolve(in ResolveInput) (Decision, error) {
	if in.Employee.IsZero() {
		return Decision{}, invalidRequest("missing employee identity")
	}
	if in.At.IsZero() {
		return Decision{}, invalidRequest("missing normalized event time")
	}

	d := Decision{
		Requested: in.Action,
		Action:    in.Action,
		At:        in.At.UTC(),
	}
	open := in.State.HasOpenSpan()

	if !in.Action.IsExplicit() {
		d.Inferred = true
		if open {
			d.Action = ActionCheckOut
		} else {
			d.Action = ActionCheckIn
		}
	}

	switch d.Action {
	case ActionCheckIn:
		if open {
			d.Kind = DecisionNoop
			d.TargetSpan = in.State.Open.ID
			d.OpenedAt = in.State.Open.CheckIn
			d.Advisory = AdvisoryAlreadyOpen
			return d, nil
		}
		d.Kind = DecisionOpen
		return d, nil

	default: // ActionCheckOut
		if !open {
			d.Kind = DecisionOpen
			d.Action = ActionCheckIn
			d.Substituted = true
			d.Advisory = AdvisorySubstituted
			return d, nil
		}
		d.Kind = DecisionClose
		d.TargetSpan = in.State.Open.ID
		d.OpenedAt = in.State.Open.CheckIn
		d.HoursWorked = HoursBetween(d.OpenedAt, d.At)
		return d, nil
	}
}

// HoursBetween is (to - from) in hours, rounded to two decimals.
// No shift-boundary rounding; negative when events arrive out of order.
func HoursBetween(from, to time.Time) decimal.Decimal {
	secs := decimal.NewFromInt(int64(to.Sub(from) / time.Second))
	return secs.Div(decimal.NewFromInt(3600)).Round(2)
}
