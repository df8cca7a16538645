/*
handlers.go - HTTP API handlers for the attendance bridge

PURPOSE:
  Exposes the reconciliation engine over HTTP. Handles request decoding,
  response envelopes and the error-to-status mapping; every decision is
  delegated to the attendance package.

ENDPOINTS:
  Terminal webhook:
    POST   /api/attendance/send-attendance          One badge scan

  Attendance:
    GET    /api/attendance/employees/{id}/open      Open span of an employee
    GET    /api/attendance/employees/{id}/spans     Summary, ?from=&to= (local days)

  Admin:
    POST   /api/admin/reaper/run                    Sweep stale spans now
    GET    /api/admin/reaper/runs                   Journaled sweeps
    GET    /api/admin/events                        Journaled terminal events

  Health:
    GET    /health

WEBHOOK STATUS CODES:
  200  no employee data (soft accept), span closed, or check-in ignored
       because a span is already open
  201  span opened (including a checkout substituted by a check-in)
  400  undecodable body, bad time format
  404  unknown registration number
  409  the store rejected the write (open span, or span already closed)
  413  body over the configured limit
  503  directory or store unreachable; the terminal re-delivers
  500  anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/hikvision"
	"github.com/warp/attendance-bridge/validate"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// DefaultMaxBodyBytes caps a webhook body.
const DefaultMaxBodyBytes = 10 << 20

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers delegate to. Sweeps, Events and
// Health may be nil.
// Schedule reports when the next background sweep runs.
type Schedule interface {
	NextRunTime() time.Time
}

type Deps struct {
	Reconciler *attendance.Reconciler
	Reaper     *attendance.Reaper
	Gateway    *attendance.Gateway
	Normalizer *attendance.Normalizer
	Sweeps     attendance.SweepLister
	Events     attendance.EventLister
	Health     Pinger
	Schedule   Schedule

	Backend        string
	ThresholdHours int
	MaxBodyBytes   int64
	Now            func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a handler.
func NewHandler(deps Deps) *Handler {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if deps.ThresholdHours < 1 {
		deps.ThresholdHours = attendance.DefaultStaleThresholdHours
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps}
}

// =============================================================================
// TERMINAL WEBHOOK
// =============================================================================

// SendAttendance reconciles one terminal delivery.
// POST /api/attendance/send-attendance
func (h *Handler) SendAttendance(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.deps.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Could not read request body", err)
		return
	}

	payload, err := hikvision.Parse(r.Header.Get("Content-Type"), body)
	if err != nil {
		log.Warn().Err(err).Str("content_type", r.Header.Get("Content-Type")).Msg("undecodable terminal payload")
		writeError(w, statusFor(err), "Invalid event payload", err)
		return
	}

	ev := payload.TerminalEvent()
	if !ev.HasData() {
		log.Debug().Str("source", string(payload.Source)).Str("event_type", payload.EventType).Msg("no employee data to process")
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "No employee data to process"})
		return
	}

	log.Info().
		Str("employee_ref", ev.EmployeeRef).
		Str("employee_name", ev.EmployeeName).
		Str("terminal_action", ev.VendorAction).
		Str("source", string(payload.Source)).
		Msg("terminal event")

	// A terminal hanging up must not abort a write already in flight.
	out, err := h.deps.Reconciler.Handle(context.WithoutCancel(r.Context()), ev)
	if err != nil {
		h.writeReconcileError(w, r, err)
		return
	}

	d := out.Decision
	dto := AttendanceDTO{
		AttendanceID:   int64(out.SpanID),
		EmployeeID:     int64(out.Employee.ID),
		EmployeeName:   out.Employee.Name,
		Action:         string(d.Action),
		TerminalAction: ev.VendorAction,
	}

	switch d.Kind {
	case attendance.DecisionOpen:
		dto.CheckIn = attendance.FormatStorage(d.At)
		msg := "Check-in registered"
		if d.Substituted {
			msg = "Check-in registered (no open attendance to check out)"
			dto.Note = d.Advisory
		}
		writeJSON(w, http.StatusCreated, Response{Success: true, Message: msg, Data: dto})

	case attendance.DecisionClose:
		dto.CheckIn = attendance.FormatStorage(d.OpenedAt)
		dto.CheckOut = attendance.FormatStorage(d.At)
		dto.HoursWorked = d.HoursWorkedText()
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "Check-out registered", Data: dto})

	default:
		dto.Action = "none"
		dto.CheckIn = attendance.FormatStorage(d.OpenedAt)
		writeJSON(w, http.StatusOK, Response{Success: true, Message: d.Advisory, Data: dto})
	}
}

func (h *Handler) writeReconcileError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	evt := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		evt = hlog.FromRequest(r).Error()
	}
	evt.Err(err).Int("status", status).Msg("terminal event not reconciled")

	var rejected *attendance.WriteRejectedError
	if errors.As(err, &rejected) {
		openSince := rejected.OpenSince
		if openSince == "" {
			openSince = "unknown"
		}
		writeJSON(w, status, ErrorResponse{
			Error: "Employee has an attendance that is still open",
			Details: ConflictDetails{
				OpenSince:  openSince,
				Message:    "The previous attendance must be closed before a new one is created",
				Suggestion: "The next event will register the check-out",
			},
		})
		return
	}
	writeError(w, status, messageFor(err), err)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// GetOpenSpan returns the employee's open span.
// GET /api/attendance/employees/{id}/open
func (h *Handler) GetOpenSpan(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeParam(w, r)
	if !ok {
		return
	}

	span, err := h.deps.Gateway.FindOpenSpan(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), messageFor(err), err)
		return
	}
	if span == nil {
		writeJSON(w, http.StatusNotFound, NoOpenSpanDTO{
			Message: "No open attendance found for this employee",
			Date:    h.deps.Now().In(h.deps.Normalizer.Location()).Format(attendance.StorageLayout),
		})
		return
	}
	writeJSON(w, http.StatusOK, h.spanDTO(*span))
}

// GetSummary lists the employee's spans over local calendar days.
// GET /api/attendance/employees/{id}/spans?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeParam(w, r)
	if !ok {
		return
	}
	q := SpansQuery{From: r.URL.Query().Get("from"), To: r.URL.Query().Get("to")}
	if err := validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}

	loc := h.deps.Normalizer.Location()
	from, _ := time.ParseInLocation(time.DateOnly, q.From, loc)
	to, _ := time.ParseInLocation(time.DateOnly, q.To, loc)
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "Invalid range", errors.New("to is before from"))
		return
	}

	spans, err := h.deps.Gateway.SpansBetween(r.Context(), id, from, to.AddDate(0, 0, 1))
	if err != nil {
		writeError(w, statusFor(err), messageFor(err), err)
		return
	}

	out := SummaryDTO{EmployeeID: int64(id), From: q.From, To: q.To, Spans: make([]SpanDTO, 0, len(spans))}
	out.Totals.Hours = decimal.Zero
	for _, s := range spans {
		dto := h.spanDTO(s)
		out.Spans = append(out.Spans, dto)
		if s.IsOpen() {
			out.Totals.Open++
			continue
		}
		out.Totals.Completed++
		out.Totals.Hours = out.Totals.Hours.Add(*dto.Hours)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) spanDTO(s attendance.Span) SpanDTO {
	loc := h.deps.Normalizer.Location()
	dto := SpanDTO{
		ID:           int64(s.ID),
		EmployeeID:   int64(s.EmployeeID),
		CheckIn:      attendance.FormatStorage(s.CheckIn),
		CheckInLocal: s.CheckIn.In(loc).Format(attendance.StorageLayout),
	}
	if !s.IsOpen() {
		hours := attendance.HoursBetween(s.CheckIn, *s.CheckOut)
		dto.CheckOut = attendance.FormatStorage(*s.CheckOut)
		dto.CheckOutLocal = s.CheckOut.In(loc).Format(attendance.StorageLayout)
		dto.Hours = &hours
	}
	return dto
}

// =============================================================================
// ADMIN
// =============================================================================

// RunReaper sweeps stale open spans now.
// POST /api/admin/reaper/run
func (h *Handler) RunReaper(w http.ResponseWriter, r *http.Request) {
	var req RunReaperRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	threshold := req.ThresholdHours
	if threshold == 0 {
		threshold = h.deps.ThresholdHours
	}

	res, err := h.deps.Reaper.Sweep(context.WithoutCancel(r.Context()), threshold)
	if err != nil {
		writeError(w, statusFor(err), "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Sweep completed", Data: sweepDTO(res)})
}

// ListReaperRuns returns journaled sweeps, newest first.
// GET /api/admin/reaper/runs?limit=N
func (h *Handler) ListReaperRuns(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sweeps == nil {
		writeError(w, http.StatusNotImplemented, "Journal is disabled", nil)
		return
	}
	limit, ok := limitParam(w, r, 20)
	if !ok {
		return
	}

	runs, err := h.deps.Sweeps.ListSweeps(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list sweeps", err)
		return
	}

	dtos := make([]SweepRunDTO, 0, len(runs))
	for _, run := range runs {
		dto := SweepRunDTO{
			ID:             run.ID,
			StartedAt:      run.StartedAt.UTC().Format(time.RFC3339),
			ThresholdHours: run.ThresholdHours,
			Found:          run.Found,
			Closed:         run.Closed,
			Skipped:        run.Skipped,
			Failed:         run.Failed,
			Status:         run.Status,
			Error:          run.Error,
		}
		if !run.CompletedAt.IsZero() {
			dto.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// ListEvents returns journaled terminal events, newest first.
// GET /api/admin/events?limit=N
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		writeError(w, http.StatusNotImplemented, "Journal is disabled", nil)
		return
	}
	limit, ok := limitParam(w, r, 100)
	if !ok {
		return
	}

	events, err := h.deps.Events.ListEvents(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list events", err)
		return
	}

	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, EventDTO{
			ID:           e.ID,
			ReceivedAt:   e.ReceivedAt.UTC().Format(time.RFC3339),
			EmployeeRef:  e.EmployeeRef,
			EmployeeID:   int64(e.EmployeeID),
			RawTime:      e.RawTime,
			VendorAction: e.VendorAction,
			Decision:     string(e.Decision),
			Action:       string(e.Action),
			SpanID:       int64(e.SpanID),
			Substituted:  e.Substituted,
			Status:       string(e.Status),
			Error:        e.Error,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": dtos})
}

// Health reports liveness and store reachability.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	out := HealthDTO{
		Status:    "ok",
		Timestamp: h.deps.Now().UTC().Format(time.RFC3339),
		Backend:   h.deps.Backend,
		Store:     "connected",
	}
	if h.deps.Schedule != nil {
		if next := h.deps.Schedule.NextRunTime(); !next.IsZero() {
			out.NextSweep = next.UTC().Format(time.RFC3339)
		}
	}
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.deps.Health.Ping(ctx); err != nil {
			out.Status = "degraded"
			out.Store = "unreachable"
			out.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, out)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// NotFound is the JSON 404 for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found", nil)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case attendance.IsClientError(err):
		return http.StatusBadRequest
	case attendance.IsNotFound(err):
		return http.StatusNotFound
	case attendance.IsConflict(err):
		return http.StatusConflict
	case attendance.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	var notFound *attendance.EmployeeNotFoundError
	switch {
	case errors.Is(err, attendance.ErrInvalidTimeFormat):
		return "Invalid event time"
	case attendance.IsClientError(err):
		return "Invalid request"
	case errors.As(err, &notFound):
		return notFound.Error()
	case attendance.IsNotFound(err):
		return "Employee not found"
	case errors.Is(err, attendance.ErrSpanNotFound):
		return "Attendance already closed"
	case attendance.IsConflict(err):
		return "Employee has an attendance that is still open"
	case attendance.IsRetryable(err):
		return "Service unavailable: could not reach the HR store"
	default:
		return "Internal error while registering attendance"
	}
}

func employeeParam(w http.ResponseWriter, r *http.Request) (attendance.EmployeeID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid employee id", nil)
		return 0, false
	}
	return attendance.EmployeeID(n), true
}

func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 500 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", nil)
		return 0, false
	}
	return n, true
}

func sweepDTO(res attendance.SweepResult) SweepDTO {
	dto := SweepDTO{
		ID:             res.ID,
		ThresholdHours: res.ThresholdHours,
		StartedAt:      res.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:    res.CompletedAt.UTC().Format(time.RFC3339),
		Found:          res.Found,
		Closed:         make([]ClosedSpanDTO, 0, len(res.Closed)),
		Skipped:        make([]int64, 0, len(res.Skipped)),
		Failures:       make([]SweepFailureDTO, 0, len(res.Failures)),
	}
	for _, c := range res.Closed {
		dto.Closed = append(dto.Closed, ClosedSpanDTO{
			SpanID:     int64(c.SpanID),
			EmployeeID: int64(c.EmployeeID),
			CheckIn:    attendance.FormatStorage(c.CheckIn),
			CheckOut:   attendance.FormatStorage(c.CheckOut),
		})
	}
	for _, id := range res.Skipped {
		dto.Skipped = append(dto.Skipped, int64(id))
	}
	for _, f := range res.Failures {
		dto.Failures = append(dto.Failures, SweepFailureDTO{
			SpanID:     int64(f.SpanID),
			EmployeeID: int64(f.EmployeeID),
			Error:      f.Err.Error(),
		})
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		resp.Details = verr.Fields
	case err != nil:
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
