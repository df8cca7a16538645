package odoo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/logger"
)

// =============================================================================
// MODELS
// =============================================================================

const (
	ModelEmployee   = "hr.employee"
	ModelAttendance = "hr.attendance"
)

var (
	employeeFields   = []string{"id", "name", "registration_number"}
	attendanceFields = []string{"id", "employee_id", "check_in", "check_out"}
)

// openSinceRx pulls the timestamp out of hr.attendance's "already checked
// in" constraint message, in English or Spanish.
var openSinceRx = regexp.MustCompile(`(?:hasn't checked out since|no ha registrado su salida desde)\s+([^\n]+)`)

// Store implements attendance.Store and attendance.SpanHistory over the
// hr.employee and hr.attendance models.
type Store struct {
	client *Client
	log    *logger.Logger
}

// NewStore wraps client.
func NewStore(client *Client, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{client: client, log: log}
}

// Ping checks the server answers on the common endpoint.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Version(ctx)
	return err
}

// Close releases the client's connections.
func (s *Store) Close() error { return s.client.Close() }

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) ListEmployees(ctx context.Context) ([]attendance.Employee, error) {
	rows, err := s.client.SearchRead(ctx, ModelEmployee, nil, SearchReadOptions{Fields: employeeFields})
	if err != nil {
		return nil, s.fail("list employees", err)
	}
	out := make([]attendance.Employee, 0, len(rows))
	for _, r := range rows {
		id, _ := asInt64(r["id"])
		out = append(out, attendance.Employee{
			ID:                 attendance.EmployeeID(id),
			Name:               str(r["name"]),
			RegistrationNumber: str(r["registration_number"]),
		})
	}
	return out, nil
}

// =============================================================================
// SPANS
// =============================================================================

func (s *Store) OpenSpans(ctx context.Context, employee attendance.EmployeeID) ([]attendance.Span, error) {
	rows, err := s.client.SearchRead(ctx, ModelAttendance,
		Domain{
			Term("employee_id", "=", int64(employee)),
			Term("check_out", "=", false),
		},
		SearchReadOptions{Fields: attendanceFields, Order: "check_in desc"},
	)
	if err != nil {
		return nil, s.fail("find open attendance", err)
	}
	return s.spans(rows)
}

func (s *Store) CreateSpan(ctx context.Context, employee attendance.EmployeeID, checkIn time.Time) (attendance.SpanID, error) {
	id, err := s.client.Create(ctx, ModelAttendance, map[string]any{
		"employee_id": int64(employee),
		"check_in":    attendance.FormatStorage(checkIn),
	})
	if err != nil {
		var fault *Fault
		if errors.As(err, &fault) {
			if since, ok := openSince(fault.Message); ok {
				return 0, fmt.Errorf("odoo: %w", &attendance.WriteRejectedError{EmployeeID: employee, OpenSince: since})
			}
		}
		return 0, s.fail("create attendance", err)
	}
	return attendance.SpanID(id), nil
}

func (s *Store) CloseSpan(ctx context.Context, id attendance.SpanID, checkOut time.Time) error {
	n, err := s.client.SearchCount(ctx, ModelAttendance, Domain{
		Term("id", "=", int64(id)),
		Term("check_out", "=", false),
	})
	if err != nil {
		return s.fail("check attendance", err)
	}
	if n == 0 {
		return &attendance.SpanNotFoundError{SpanID: id}
	}

	err = s.client.Write(ctx, ModelAttendance, []int64{int64(id)}, map[string]any{
		"check_out": attendance.FormatStorage(checkOut),
	})
	if err != nil {
		var fault *Fault
		if errors.As(err, &fault) && isMissingRecord(fault.Message) {
			return &attendance.SpanNotFoundError{SpanID: id}
		}
		return s.fail("write check-out", err)
	}
	return nil
}

func (s *Store) StaleOpenSpans(ctx context.Context, cutoff time.Time) ([]attendance.Span, error) {
	rows, err := s.client.SearchRead(ctx, ModelAttendance,
		Domain{
			Term("check_out", "=", false),
			Term("check_in", "<", attendance.FormatStorage(cutoff)),
		},
		SearchReadOptions{Fields: attendanceFields, Order: "check_in asc"},
	)
	if err != nil {
		return nil, s.fail("list stale attendances", err)
	}
	return s.spans(rows)
}

func (s *Store) SpansBetween(ctx context.Context, employee attendance.EmployeeID, from, to time.Time) ([]attendance.Span, error) {
	rows, err := s.client.SearchRead(ctx, ModelAttendance,
		Domain{
			Term("employee_id", "=", int64(employee)),
			Term("check_in", ">=", attendance.FormatStorage(from)),
			Term("check_in", "<", attendance.FormatStorage(to)),
		},
		SearchReadOptions{Fields: attendanceFields, Order: "check_in asc"},
	)
	if err != nil {
		return nil, s.fail("list attendances", err)
	}
	return s.spans(rows)
}

// =============================================================================
// RECORD DECODING
// =============================================================================

func (s *Store) spans(rows []map[string]any) ([]attendance.Span, error) {
	out := make([]attendance.Span, 0, len(rows))
	for _, r := range rows {
		span, err := decodeSpan(r)
		if err != nil {
			s.log.Warn().Err(err).Interface("record", r).Msg("skipping undecodable attendance")
			continue
		}
		out = append(out, span)
	}
	return out, nil
}

func decodeSpan(r map[string]any) (attendance.Span, error) {
	id, ok := asInt64(r["id"])
	if !ok {
		return attendance.Span{}, fmt.Errorf("attendance without id")
	}
	span := attendance.Span{ID: attendance.SpanID(id), EmployeeID: attendance.EmployeeID(many2oneID(r["employee_id"]))}

	checkIn, err := attendance.ParseStorage(str(r["check_in"]))
	if err != nil {
		return attendance.Span{}, fmt.Errorf("attendance %d check_in: %w", id, err)
	}
	span.CheckIn = checkIn

	if raw := str(r["check_out"]); raw != "" {
		checkOut, err := attendance.ParseStorage(raw)
		if err != nil {
			return attendance.Span{}, fmt.Errorf("attendance %d check_out: %w", id, err)
		}
		span.CheckOut = &checkOut
	}
	return span, nil
}

// str reads a char/datetime field. Odoo sends false for empty values.
func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// many2oneID reads [id, display_name] pairs.
func many2oneID(v any) int64 {
	switch t := v.(type) {
	case []any:
		if len(t) > 0 {
			id, _ := asInt64(t[0])
			return id
		}
	default:
		id, _ := asInt64(v)
		return id
	}
	return 0
}

func openSince(message string) (string, bool) {
	m := openSinceRx.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(m[1]), ".\"'"), true
}

func isMissingRecord(message string) bool {
	return strings.Contains(message, "does not exist or has been deleted") ||
		strings.Contains(message, "no existe o ha sido eliminado")
}

// fail tags err with the operation.
func (s *Store) fail(op string, err error) error {
	return fmt.Errorf("odoo %s: %w", op, err)
}
