/*
Package attendance provides the attendance reconciliation engine.

PURPOSE:
  Turns ambiguous terminal pulses (badge scans reported by access-control
  hardware) into a consistent set of attendance spans per employee in the
  HR store. The engine decides whether a pulse opens a new span or closes
  the one already open, and normalizes wall-clock times into the store's
  UTC convention before anything is written.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee: identity resolved from the HR directory
  - Span: one continuous presence interval (check-in, optional check-out)
  - TerminalEvent: one webhook delivery, consumed once and discarded
  - Action: the two-state vocabulary {checkin, checkout} plus "unspecified"
  - Decision: the resolver's output, drives exactly one gateway call

INVARIANT:
  At most one span per employee has no check-out ("open span").
  CheckIn is set at creation and never mutated. CheckOut is set exactly
  once; closing is terminal. Spans are never deleted.

SEE ALSO:
  - resolver.go: the state machine deciding checkin vs. checkout
  - gateway.go: write operations against the backing store
  - reaper.go: force-closes spans left open past a threshold
*/
package attendance

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EmployeeID is the HR store's internal employee identifier.
type EmployeeID int64

// SpanID identifies one attendance span in the HR store.
type SpanID int64

func (id EmployeeID) IsZero() bool   { return id <= 0 }
func (id EmployeeID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id SpanID) IsZero() bool       { return id <= 0 }
func (id SpanID) String() string     { return strconv.FormatInt(int64(id), 10) }

// =============================================================================
// EMPLOYEE & SPAN
// =============================================================================

// Employee is an immutable directory lookup result, held for one reconciliation.
type Employee struct {
	ID                 EmployeeID
	RegistrationNumber string
	Name               string
}

// Span is one continuous presence interval. Times are UTC.
type Span struct {
	ID         SpanID
	EmployeeID EmployeeID
	CheckIn    time.Time
	CheckOut   *time.Time
}

// IsOpen reports whether the span has no recorded check-out.
func (s Span) IsOpen() bool { return s.CheckOut == nil || s.CheckOut.IsZero() }

// Duration returns check-out minus check-in, or zero while the span is open.
func (s Span) Duration() time.Duration {
	if s.IsOpen() {
		return 0
	}
	return s.CheckOut.Sub(s.CheckIn)
}

// =============================================================================
// ACTIONS
// =============================================================================

// Action is the domain's two-state vocabulary. The zero value is unspecified.
type Action string

const (
	ActionUnspecified Action = ""
	ActionCheckIn     Action = "checkin"
	ActionCheckOut    Action = "checkout"
)

func (a Action) IsExplicit() bool { return a == ActionCheckIn || a == ActionCheckOut }

func (a Action) String() string {
	if a == ActionUnspecified {
		return "unspecified"
	}
	return string(a)
}

// =============================================================================
// TERMINAL EVENT
// =============================================================================

// TerminalEvent is one badge scan reported by a terminal. Transient.
type TerminalEvent struct {
	EmployeeRef  string // badge / registration number as sent by the terminal
	EmployeeName string // display name as sent by the terminal, informational
	RawTime      string // local wall clock, "YYYY-MM-DD HH:mm:ss"
	VendorAction string // vendor token, may be empty
}

// HasData reports whether the event carries enough to be reconciled.
func (e TerminalEvent) HasData() bool { return e.EmployeeRef != "" && e.RawTime != "" }

// =============================================================================
// DECISION
// =============================================================================

// DecisionKind says which gateway call a decision drives.
type DecisionKind string

const (
	DecisionOpen  DecisionKind = "open"  // create a new span
	DecisionClose DecisionKind = "close" // close TargetSpan
	DecisionNoop  DecisionKind = "noop"  // write nothing
)

// Decision is the resolver's output. It exists only to drive one gateway call.
type Decision struct {
	Kind DecisionKind

	// Action is the resolved action after inference and fallback.
	Action Action

	// Requested is the mapped terminal action (possibly unspecified).
	Requested Action

	// At is the normalized event instant (UTC).
	At time.Time

	// TargetSpan is set for DecisionClose, and for DecisionNoop it names the
	// span that blocked the check-in.
	TargetSpan SpanID
	OpenedAt   time.Time

	// Inferred is true when Requested was unspecified.
	Inferred bool

	// Substituted is true when a checkout had no open span to close and a
	// checkin was issued instead.
	Substituted bool

	// HoursWorked is informational only (At - OpenedAt), set on close.
	HoursWorked decimal.Decimal

	// Advisory explains noop and substituted decisions.
	Advisory string
}

// HoursWorkedText renders HoursWorked with two decimals.
func (d Decision) HoursWorkedText() string { return d.HoursWorked.StringFixed(2) }

// Outcome is what the reconciler reports for one terminal event.
type Outcome struct {
	Employee Employee
	Decision Decision
	SpanID   SpanID // created or closed span; blocking span for noop
}
