package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/attendance-bridge/attendance"
)

// =============================================================================
// JOURNAL (attendance.Journal interface)
// =============================================================================

// RecordEvent appends one handled terminal event.
func (s *Store) RecordEvent(ctx context.Context, rec attendance.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO terminal_events (id, received_at, employee_ref, employee_id, raw_time,
			vendor_action, decision, action, span_id, substituted, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, formatTime(rec.ReceivedAt), rec.EmployeeRef, nullInt(int64(rec.EmployeeID)), rec.RawTime,
		rec.VendorAction, nullString(string(rec.Decision)), nullString(string(rec.Action)),
		nullInt(int64(rec.SpanID)), rec.Substituted, string(rec.Status), nullString(rec.Error),
	)
	if err != nil {
		return storeError("record event", err)
	}
	return nil
}

// ListEvents returns the most recent events, newest first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]attendance.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, received_at, employee_ref, employee_id, raw_time, vendor_action,
			decision, action, span_id, substituted, status, error
		FROM terminal_events
		ORDER BY received_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storeError("list events", err)
	}
	defer rows.Close()

	var events []attendance.EventRecord
	for rows.Next() {
		var (
			rec                       attendance.EventRecord
			receivedAt, status        string
			employeeID, spanID        sql.NullInt64
			decision, action, errText sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &receivedAt, &rec.EmployeeRef, &employeeID, &rec.RawTime, &rec.VendorAction,
			&decision, &action, &spanID, &rec.Substituted, &status, &errText,
		); err != nil {
			return nil, storeError("list events", err)
		}
		rec.ReceivedAt = parseTime(receivedAt)
		rec.EmployeeID = attendance.EmployeeID(employeeID.Int64)
		rec.SpanID = attendance.SpanID(spanID.Int64)
		rec.Decision = attendance.DecisionKind(decision.String)
		rec.Action = attendance.Action(action.String)
		rec.Status = attendance.EventStatus(status)
		rec.Error = errText.String
		events = append(events, rec)
	}
	return events, rows.Err()
}

// RecordSweep saves a reaper run. Recording the same id again updates it.
func (s *Store) RecordSweep(ctx context.Context, rec attendance.SweepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reaper_runs (id, started_at, completed_at, threshold_hours,
			found, closed, skipped, failed, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			found = excluded.found,
			closed = excluded.closed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			status = excluded.status,
			error = excluded.error
	`

	var completedAt *string
	if !rec.CompletedAt.IsZero() {
		c := formatTime(rec.CompletedAt)
		completedAt = &c
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, formatTime(rec.StartedAt), completedAt, rec.ThresholdHours,
		rec.Found, rec.Closed, rec.Skipped, rec.Failed, rec.Status, nullString(rec.Error),
	)
	if err != nil {
		return storeError("record sweep", err)
	}
	return nil
}

// ListSweeps returns the most recent reaper runs, newest first.
func (s *Store) ListSweeps(ctx context.Context, limit int) ([]attendance.SweepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, threshold_hours,
			found, closed, skipped, failed, status, error
		FROM reaper_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storeError("list sweeps", err)
	}
	defer rows.Close()

	var runs []attendance.SweepRecord
	for rows.Next() {
		var (
			r                    attendance.SweepRecord
			startedAt            string
			completedAt, errText sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &startedAt, &completedAt, &r.ThresholdHours,
			&r.Found, &r.Closed, &r.Skipped, &r.Failed, &r.Status, &errText,
		); err != nil {
			return nil, storeError("list sweeps", err)
		}
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			r.CompletedAt = parseTime(completedAt.String)
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
