// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-bridge/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps employees and spans in maps. It enforces the same open-span
// uniqueness guard the HR store does.
type Memory struct {
	mu        sync.RWMutex
	employees []attendance.Employee
	spans     map[attendance.SpanID]attendance.Span
	open      map[attendance.EmployeeID]attendance.SpanID
	nextSpan  attendance.SpanID
}

func NewMemory(employees ...attendance.Employee) *Memory {
	m := &Memory{
		spans: make(map[attendance.SpanID]attendance.Span),
		open:  make(map[attendance.EmployeeID]attendance.SpanID),
	}
	m.employees = append(m.employees, employees...)
	return m
}

// AddEmployee appends a directory entry.
func (m *Memory) AddEmployee(e attendance.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = append(m.employees, e)
}

func (m *Memory) ListEmployees(_ context.Context) ([]attendance.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]attendance.Employee, len(m.employees))
	copy(out, m.employees)
	return out, nil
}

func (m *Memory) OpenSpans(_ context.Context, employee attendance.EmployeeID) ([]attendance.Span, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.open[employee]
	if !ok {
		return nil, nil
	}
	return []attendance.Span{m.spans[id]}, nil
}

// CreateSpan opens a span. Rejected while the employee has one open.
func (m *Memory) CreateSpan(_ context.Context, employee attendance.EmployeeID, checkIn time.Time) (attendance.SpanID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.open[employee]; ok {
		return 0, &attendance.WriteRejectedError{
			EmployeeID: employee,
			OpenSince:  attendance.FormatStorage(m.spans[id].CheckIn),
		}
	}
	m.nextSpan++
	id := m.nextSpan
	m.spans[id] = attendance.Span{ID: id, EmployeeID: employee, CheckIn: checkIn.UTC()}
	m.open[employee] = id
	return id, nil
}

// CloseSpan sets the check-out once. Closed or unknown ids are not found;
// a check-out before the check-in is a store fault.
func (m *Memory) CloseSpan(_ context.Context, id attendance.SpanID, checkOut time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.spans[id]
	if !ok || !s.IsOpen() {
		return &attendance.SpanNotFoundError{SpanID: id}
	}
	out := checkOut.UTC()
	if out.Before(s.CheckIn) {
		return fmt.Errorf("%w: span %d check-out %s before check-in %s", attendance.ErrStoreFault,
			id, attendance.FormatStorage(out), attendance.FormatStorage(s.CheckIn))
	}
	s.CheckOut = &out
	m.spans[id] = s
	delete(m.open, s.EmployeeID)
	return nil
}

func (m *Memory) StaleOpenSpans(_ context.Context, cutoff time.Time) ([]attendance.Span, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Span
	for _, id := range m.open {
		if s := m.spans[id]; s.CheckIn.Before(cutoff) {
			out = append(out, s)
		}
	}
	sortByCheckIn(out)
	return out, nil
}

func (m *Memory) SpansBetween(_ context.Context, employee attendance.EmployeeID, from, to time.Time) ([]attendance.Span, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Span
	for _, s := range m.spans {
		if s.EmployeeID == employee && !s.CheckIn.Before(from) && s.CheckIn.Before(to) {
			out = append(out, s)
		}
	}
	sortByCheckIn(out)
	return out, nil
}

// Spans returns every span of the employee, oldest first. For assertions.
func (m *Memory) Spans(employee attendance.EmployeeID) []attendance.Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Span
	for _, s := range m.spans {
		if s.EmployeeID == employee {
			out = append(out, s)
		}
	}
	sortByCheckIn(out)
	return out
}

// Seed inserts a span as-is (open or closed). For tests and demos.
func (m *Memory) Seed(s attendance.Span) attendance.SpanID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSpan++
	s.ID = m.nextSpan
	m.spans[s.ID] = s
	if s.IsOpen() {
		m.open[s.EmployeeID] = s.ID
	}
	return s.ID
}

func sortByCheckIn(spans []attendance.Span) {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].CheckIn.Equal(spans[j].CheckIn) {
			return spans[i].ID < spans[j].ID
		}
		return spans[i].CheckIn.Before(spans[j].CheckIn)
	})
}
