/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP surface. Terminals and the HR team's tooling read
  these; the engine's types never go on the wire directly.

ENVELOPE:
  Every response is {success, message?, data?} or
  {success:false, error, details?}. Terminals only look at the status code;
  the body is for people reading device logs.

TIMES:
  Span times are rendered in the storage convention (UTC,
  "YYYY-MM-DD HH:mm:ss"), with a *Local twin in the configured zone where a
  person is likely to read it.

SEE ALSO:
  - handlers.go: builds these
*/
package api

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENVELOPES
// =============================================================================

// Response is the success envelope.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// ConflictDetails explains a rejected check-in.
type ConflictDetails struct {
	OpenSince  string `json:"openSince"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// =============================================================================
// WEBHOOK
// =============================================================================

// AttendanceDTO is the result of one terminal event.
type AttendanceDTO struct {
	AttendanceID   int64  `json:"attendanceId,omitempty"`
	EmployeeID     int64  `json:"employeeId"`
	EmployeeName   string `json:"employeeName"`
	CheckIn        string `json:"checkIn,omitempty"`
	CheckOut       string `json:"checkOut,omitempty"`
	Action         string `json:"action"`
	HoursWorked    string `json:"hoursWorked,omitempty"`
	TerminalAction string `json:"terminalAction,omitempty"`
	Note           string `json:"note,omitempty"`
}

// =============================================================================
// SPANS
// =============================================================================

// SpanDTO is one attendance span.
type SpanDTO struct {
	ID            int64            `json:"id"`
	EmployeeID    int64            `json:"employeeId"`
	CheckIn       string           `json:"checkIn"`
	CheckInLocal  string           `json:"checkInLocal"`
	CheckOut      string           `json:"checkOut,omitempty"`
	CheckOutLocal string           `json:"checkOutLocal,omitempty"`
	Hours         *decimal.Decimal `json:"hours,omitempty"`
}

// NoOpenSpanDTO is the 404 body of the open-span lookup.
type NoOpenSpanDTO struct {
	Message string `json:"message"`
	Date    string `json:"date"`
}

// SpansQuery is the range of the attendance summary, local calendar days.
type SpansQuery struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// SummaryTotals aggregates a span range.
type SummaryTotals struct {
	Completed int             `json:"completed"`
	Open      int             `json:"open"`
	Hours     decimal.Decimal `json:"hours"`
}

// SummaryDTO is the attendance summary of one employee.
type SummaryDTO struct {
	EmployeeID int64         `json:"employeeId"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Spans      []SpanDTO     `json:"spans"`
	Totals     SummaryTotals `json:"totals"`
}

// =============================================================================
// REAPER & JOURNAL
// =============================================================================

// RunReaperRequest is the optional body of a manual sweep.
type RunReaperRequest struct {
	ThresholdHours int `json:"threshold_hours" validate:"omitempty,gte=1,lte=720"`
}

// ClosedSpanDTO is one span closed by a sweep.
type ClosedSpanDTO struct {
	SpanID     int64  `json:"spanId"`
	EmployeeID int64  `json:"employeeId"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
}

// SweepFailureDTO is one span a sweep could not close.
type SweepFailureDTO struct {
	SpanID     int64  `json:"spanId"`
	EmployeeID int64  `json:"employeeId"`
	Error      string `json:"error"`
}

// SweepDTO is the result of one sweep.
type SweepDTO struct {
	ID             string            `json:"id"`
	ThresholdHours int               `json:"thresholdHours"`
	StartedAt      string            `json:"startedAt"`
	CompletedAt    string            `json:"completedAt"`
	Found          int               `json:"found"`
	Closed         []ClosedSpanDTO   `json:"closed"`
	Skipped        []int64           `json:"skipped"`
	Failures       []SweepFailureDTO `json:"failures"`
}

// SweepRunDTO is one journaled sweep.
type SweepRunDTO struct {
	ID             string `json:"id"`
	StartedAt      string `json:"startedAt"`
	CompletedAt    string `json:"completedAt,omitempty"`
	ThresholdHours int    `json:"thresholdHours"`
	Found          int    `json:"found"`
	Closed         int    `json:"closed"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// EventDTO is one journaled terminal event.
type EventDTO struct {
	ID           string `json:"id"`
	ReceivedAt   string `json:"receivedAt"`
	EmployeeRef  string `json:"employeeRef"`
	EmployeeID   int64  `json:"employeeId,omitempty"`
	RawTime      string `json:"rawTime"`
	VendorAction string `json:"vendorAction,omitempty"`
	Decision     string `json:"decision,omitempty"`
	Action       string `json:"action,omitempty"`
	SpanID       int64  `json:"spanId,omitempty"`
	Substituted  bool   `json:"substituted,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// HealthDTO is the /health body.
type HealthDTO struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Backend   string `json:"backend"`
	Store     string `json:"store"`
	NextSweep string `json:"next_sweep,omitempty"`
	Error     string `json:"error,omitempty"`
}
