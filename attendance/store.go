/*
store.go - Backing store and journal contracts

PURPOSE:
  Defines the narrow operation-based contract the engine needs from the HR
  store. The legacy wire shape (method names, positional arguments, domain
  filters) stays inside the backend packages; the resolver and the reaper
  only ever see these operations.

KEY INTERFACES:
  Store:       employee listing + span read/write (the HR system)
  SpanHistory: optional range query used for attendance summaries
  Journal:     local append-only record of handled events and sweeps

UNIQUENESS GUARD:
  CreateSpan MUST fail with ErrWriteRejected (or *WriteRejectedError) when
  the store already holds an open span for the employee. It is the only
  cross-process defense against two near-simultaneous check-ins.

IMPLEMENTATIONS:
  - odoo/store.go:          XML-RPC HR store (production)
  - store/sqlite/sqlite.go: standalone SQLite store, also the Journal
  - attendance/store:       in-memory store for tests and dev

SEE ALSO:
  - gateway.go: validating wrapper over Store
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// STORE - The HR system, seen through domain operations
// =============================================================================

// Store is the attendance-record store accessed by the gateway and directory.
type Store interface {
	// ListEmployees returns every directory entry.
	ListEmployees(ctx context.Context) ([]Employee, error)

	// OpenSpans returns the employee's spans without check-out, most
	// recent check-in first. The store is expected to return at most one.
	OpenSpans(ctx context.Context, employee EmployeeID) ([]Span, error)

	// CreateSpan opens a span. Fails with ErrWriteRejected if one is open.
	CreateSpan(ctx context.Context, employee EmployeeID, checkIn time.Time) (SpanID, error)

	// CloseSpan sets the check-out of an open span. Fails with
	// ErrSpanNotFound if the id does not resolve to an open span, and
	// with ErrStoreFault if checkOut is before the span's check-in.
	CloseSpan(ctx context.Context, id SpanID, checkOut time.Time) error

	// StaleOpenSpans returns open spans whose check-in is before cutoff.
	StaleOpenSpans(ctx context.Context, cutoff time.Time) ([]Span, error)
}

// SpanHistory is implemented by stores that can list spans in a range.
type SpanHistory interface {
	// SpansBetween returns spans with check-in in [from, to), oldest first.
	SpansBetween(ctx context.Context, employee EmployeeID, from, to time.Time) ([]Span, error)
}

// =============================================================================
// JOURNAL - Local audit trail, separate from the HR store
// =============================================================================

// EventStatus is the journal outcome of one terminal event.
type EventStatus string

const (
	EventApplied EventStatus = "applied"
	EventNoop    EventStatus = "noop"
	EventFailed  EventStatus = "failed"
)

// EventRecord is one handled terminal event.
type EventRecord struct {
	ID           string
	ReceivedAt   time.Time
	EmployeeRef  string
	EmployeeID   EmployeeID
	RawTime      string
	VendorAction string
	Decision     DecisionKind
	Action       Action
	SpanID       SpanID
	Substituted  bool
	Status       EventStatus
	Error        string
}

// SweepRecord is one reaper run.
type SweepRecord struct {
	ID             string
	StartedAt      time.Time
	CompletedAt    time.Time
	ThresholdHours int
	Found          int
	Closed         int
	Skipped        int
	Failed         int
	Status         string // "completed" | "failed"
	Error          string
}

// Journal stores event and sweep records. Append-only.
type Journal interface {
	RecordEvent(ctx context.Context, rec EventRecord) error
	RecordSweep(ctx context.Context, rec SweepRecord) error
}

// SweepLister is implemented by journals that can list past sweeps.
type SweepLister interface {
	ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error)
}

// EventLister is implemented by journals that can list recent events.
type EventLister interface {
	ListEvents(ctx context.Context, limit int) ([]EventRecord, error)
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) RecordEvent(context.Context, EventRecord) error { return nil }
func (NopJournal) RecordSweep(context.Context, SweepRecord) error { return nil }
