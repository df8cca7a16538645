/*
errors.go - Error taxonomy for the reconciliation engine

PURPOSE:
  All error types in one place. Collaborators (directory, gateway, backing
  stores) return these so the HTTP boundary can map them without knowing
  which backend produced them.

ERROR CATEGORIES:
  1. Client errors     - InvalidRequest, InvalidTimeFormat (400)
  2. Not found         - EmployeeNotFound (404)
  3. Dependency outage - DirectoryUnavailable, StoreUnavailable (503, retryable)
  4. Conflicts         - WriteRejected, SpanNotFound (409, not retried here)
  5. Store faults      - StoreFault (500)

USAGE:
  Backends wrap transport failures so the cause survives:
    return fmt.Errorf("%w: %w", attendance.ErrStoreUnavailable, err)

SEE ALSO:
  - api/handlers.go: statusFor maps these to HTTP status codes
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRequest is a precondition violation by the caller.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTimeFormat is returned when a wall-clock string does not
	// parse under the expected local layout.
	ErrInvalidTimeFormat = errors.New("invalid time format")

	// ErrEmployeeNotFound is returned when no directory entry matches.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrDirectoryUnavailable is returned when the directory cannot be reached.
	ErrDirectoryUnavailable = errors.New("employee directory unavailable")

	// ErrStoreUnavailable is returned on transport, auth or timeout failures
	// against the attendance store.
	ErrStoreUnavailable = errors.New("attendance store unavailable")

	// ErrWriteRejected is returned when the store already holds an open
	// span for the employee.
	ErrWriteRejected = errors.New("write rejected: employee has an open span")

	// ErrSpanNotFound is returned when a span id no longer resolves to an
	// open span (e.g. closed concurrently).
	ErrSpanNotFound = errors.New("span not found")

	// ErrStoreFault is an application error reported by a reachable store
	// (validation, access rights). Retrying does not help.
	ErrStoreFault = errors.New("attendance store fault")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTimeFormatError names the rejected input.
type InvalidTimeFormatError struct {
	Input  string
	Layout string
}

func (e *InvalidTimeFormatError) Error() string {
	return fmt.Sprintf("invalid time format: %q (expected %s)", e.Input, e.Layout)
}

func (e *InvalidTimeFormatError) Unwrap() error { return ErrInvalidTimeFormat }

// EmployeeNotFoundError names the registration number that did not match.
type EmployeeNotFoundError struct {
	RegistrationNumber string
}

func (e *EmployeeNotFoundError) Error() string {
	return fmt.Sprintf("employee with registration number %s not found", e.RegistrationNumber)
}

func (e *EmployeeNotFoundError) Unwrap() error { return ErrEmployeeNotFound }

// WriteRejectedError is the store's uniqueness guard firing.
// OpenSince is the store's own rendering of the blocking check-in, if known.
type WriteRejectedError struct {
	EmployeeID EmployeeID
	OpenSince  string
}

func (e *WriteRejectedError) Error() string {
	if e.OpenSince == "" {
		return fmt.Sprintf("write rejected: employee %s has an open span", e.EmployeeID)
	}
	return fmt.Sprintf("write rejected: employee %s has an open span since %s", e.EmployeeID, e.OpenSince)
}

func (e *WriteRejectedError) Unwrap() error { return ErrWriteRejected }

// SpanNotFoundError names the span that no longer resolves.
type SpanNotFoundError struct {
	SpanID SpanID
}

func (e *SpanNotFoundError) Error() string {
	return fmt.Sprintf("span %s not found or already closed", e.SpanID)
}

func (e *SpanNotFoundError) Unwrap() error { return ErrSpanNotFound }

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true for dependency outages; the terminal re-delivers.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrDirectoryUnavailable)
}

// IsClientError returns true if the error is due to bad caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidTimeFormat)
}

// IsNotFound returns true if the employee could not be resolved.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound)
}

// IsConflict returns true for concurrency conflicts reported by the store.
func IsConflict(err error) bool {
	return errors.Is(err, ErrWriteRejected) ||
		errors.Is(err, ErrSpanNotFound)
}
