package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/attendance-bridge/attendance"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveEmployee inserts an employee, or updates it when ID is set.
func (s *Store) SaveEmployee(ctx context.Context, emp attendance.Employee) (attendance.EmployeeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if emp.ID.IsZero() {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO employees (name, registration_number, created_at) VALUES (?, ?, ?)`,
			emp.Name, strings.TrimSpace(emp.RegistrationNumber), formatTime(s.now()),
		)
		if err != nil {
			return 0, storeError("save employee", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, storeError("save employee", err)
		}
		return attendance.EmployeeID(id), nil
	}

	query := `
		INSERT INTO employees (id, name, registration_number, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			registration_number = excluded.registration_number
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(emp.ID), emp.Name, strings.TrimSpace(emp.RegistrationNumber), formatTime(s.now()),
	)
	if err != nil {
		return 0, storeError("save employee", err)
	}
	return emp.ID, nil
}

// ListEmployees returns all employees ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]attendance.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, registration_number FROM employees ORDER BY id",
	)
	if err != nil {
		return nil, storeError("list employees", err)
	}
	defer rows.Close()

	var employees []attendance.Employee
	for rows.Next() {
		var emp attendance.Employee
		var id int64
		if err := rows.Scan(&id, &emp.Name, &emp.RegistrationNumber); err != nil {
			return nil, storeError("list employees", err)
		}
		emp.ID = attendance.EmployeeID(id)
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// =============================================================================
// SPANS (attendance.Store interface)
// =============================================================================

const spanColumns = "id, employee_id, check_in, check_out"

// OpenSpans returns the employee's open spans, most recent first.
func (s *Store) OpenSpans(ctx context.Context, employee attendance.EmployeeID) ([]attendance.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySpans(ctx, "find open span", `
		SELECT `+spanColumns+` FROM attendances
		WHERE employee_id = ? AND check_out IS NULL
		ORDER BY check_in DESC
	`, int64(employee))
}

// CreateSpan opens a span. The partial unique index rejects a second open
// span for the same employee.
func (s *Store) CreateSpan(ctx context.Context, employee attendance.EmployeeID, checkIn time.Time) (attendance.SpanID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendances (employee_id, check_in, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, int64(employee), attendance.FormatStorage(checkIn), now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, s.writeRejected(ctx, employee)
		}
		return 0, storeError("create span", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeError("create span", err)
	}
	return attendance.SpanID(id), nil
}

func (s *Store) writeRejected(ctx context.Context, employee attendance.EmployeeID) error {
	rej := &attendance.WriteRejectedError{EmployeeID: employee}
	err := s.db.QueryRowContext(ctx,
		"SELECT check_in FROM attendances WHERE employee_id = ? AND check_out IS NULL",
		int64(employee),
	).Scan(&rej.OpenSince)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w (open-since lookup failed: %v)", rej, err)
	}
	return rej
}

// CloseSpan sets the check-out of an open span. Closed and unknown spans
// are not found.
func (s *Store) CloseSpan(ctx context.Context, id attendance.SpanID, checkOut time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE attendances SET check_out = ?, updated_at = ?
		WHERE id = ? AND check_out IS NULL
	`, attendance.FormatStorage(checkOut), formatTime(s.now()), int64(id))
	if err != nil {
		return storeError("close span", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("close span", err)
	}
	if n == 0 {
		return &attendance.SpanNotFoundError{SpanID: id}
	}
	return nil
}

// StaleOpenSpans returns open spans with check-in before cutoff, oldest first.
func (s *Store) StaleOpenSpans(ctx context.Context, cutoff time.Time) ([]attendance.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySpans(ctx, "list stale spans", `
		SELECT `+spanColumns+` FROM attendances
		WHERE check_out IS NULL AND check_in < ?
		ORDER BY check_in ASC, id ASC
	`, attendance.FormatStorage(cutoff))
}

// SpansBetween returns the employee's spans with check-in in [from, to).
func (s *Store) SpansBetween(ctx context.Context, employee attendance.EmployeeID, from, to time.Time) ([]attendance.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySpans(ctx, "list spans", `
		SELECT `+spanColumns+` FROM attendances
		WHERE employee_id = ? AND check_in >= ? AND check_in < ?
		ORDER BY check_in ASC, id ASC
	`, int64(employee), attendance.FormatStorage(from), attendance.FormatStorage(to))
}

func (s *Store) querySpans(ctx context.Context, op, query string, args ...any) ([]attendance.Span, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(op, err)
	}
	defer rows.Close()

	var spans []attendance.Span
	for rows.Next() {
		span, err := scanSpan(rows)
		if err != nil {
			return nil, storeError(op, err)
		}
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(op, err)
	}
	return spans, nil
}

func scanSpan(rows *sql.Rows) (attendance.Span, error) {
	var (
		id, employee int64
		checkIn      string
		checkOut     sql.NullString
	)
	if err := rows.Scan(&id, &employee, &checkIn, &checkOut); err != nil {
		return attendance.Span{}, err
	}

	span := attendance.Span{ID: attendance.SpanID(id), EmployeeID: attendance.EmployeeID(employee)}
	var err error
	if span.CheckIn, err = attendance.ParseStorage(checkIn); err != nil {
		return attendance.Span{}, err
	}
	if checkOut.Valid {
		t, err := attendance.ParseStorage(checkOut.String)
		if err != nil {
			return attendance.Span{}, err
		}
		span.CheckOut = &t
	}
	return span, nil
}
