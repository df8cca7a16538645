package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-bridge/attendance"
)

func TestJournal_Events(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	received := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordEvent(ctx, attendance.EventRecord{
		ID: "e1", ReceivedAt: received, EmployeeRef: "999", RawTime: "2024-05-01 08:00:00",
		Status: attendance.EventFailed, Error: "employee not found",
	}))
	require.NoError(t, s.RecordEvent(ctx, attendance.EventRecord{
		ID: "e2", ReceivedAt: received.Add(time.Minute), EmployeeRef: "45", EmployeeID: 7,
		RawTime: "2024-05-01 08:01:00", VendorAction: "checkIn",
		Decision: attendance.DecisionOpen, Action: attendance.ActionCheckIn, SpanID: 3,
		Status: attendance.EventApplied,
	}))

	events, err := s.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "e2", events[0].ID, "newest first")
	assert.Equal(t, attendance.EmployeeID(7), events[0].EmployeeID)
	assert.Equal(t, attendance.DecisionOpen, events[0].Decision)
	assert.Equal(t, attendance.SpanID(3), events[0].SpanID)
	assert.Equal(t, received.Add(time.Minute), events[0].ReceivedAt)

	assert.Zero(t, events[1].EmployeeID)
	assert.Equal(t, "employee not found", events[1].Error)

	// Journal ids are unique.
	err = s.RecordEvent(ctx, attendance.EventRecord{ID: "e1", ReceivedAt: received, Status: attendance.EventNoop})
	assert.Error(t, err)
}

func TestJournal_Sweeps(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordSweep(ctx, attendance.SweepRecord{
		ID: "s1", StartedAt: start, CompletedAt: start.Add(time.Second), ThresholdHours: 24,
		Found: 3, Closed: 2, Failed: 1, Status: "completed",
	}))
	require.NoError(t, s.RecordSweep(ctx, attendance.SweepRecord{
		ID: "s2", StartedAt: start.Add(time.Hour), ThresholdHours: 24,
		Status: "failed", Error: "attendance store unavailable",
	}))

	runs, err := s.ListSweeps(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "s2", runs[0].ID)
	assert.True(t, runs[0].CompletedAt.IsZero())
	assert.Equal(t, "attendance store unavailable", runs[0].Error)
	assert.Equal(t, 2, runs[1].Closed)
	assert.Equal(t, start.Add(time.Second), runs[1].CompletedAt)

	runs, err = s.ListSweeps(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestJournal_WithReaper(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	emp := addEmployee(t, s, "45", "Luis")
	_, err := s.CreateSpan(ctx, emp, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	norm, err := attendance.NewNormalizer("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	now := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)
	r := attendance.NewReaper(attendance.NewGateway(s, nil), norm,
		attendance.WithReaperJournal(s),
		attendance.WithReaperClock(func() time.Time { return now }),
	)

	res, err := r.Sweep(ctx, 24)
	require.NoError(t, err)
	require.Len(t, res.Closed, 1)

	runs, err := s.ListSweeps(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.ID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Closed)
}
