package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/attendance/store"
)

func newSchedulerFixture(t *testing.T) (*store.Memory, *attendance.Reaper) {
	t.Helper()
	mem := store.NewMemory(attendance.Employee{ID: 7, RegistrationNumber: "45", Name: "Luis"})
	norm, err := attendance.NewNormalizer(zone)
	require.NoError(t, err)
	reaper := attendance.NewReaper(attendance.NewGateway(mem, nil), norm,
		attendance.WithReaperClock(func() time.Time { return sweepNow }))
	return mem, reaper
}

func TestReaperScheduler_SweepsOnStart(t *testing.T) {
	// GIVEN: A stale open span
	mem, reaper := newSchedulerFixture(t)
	mem.Seed(attendance.Span{EmployeeID: 7, CheckIn: sweepNow.Add(-30 * time.Hour)})

	// WHEN: The scheduler starts
	s := NewReaperScheduler(reaper, nil)
	s.Interval = time.Hour
	s.Start()
	defer s.Stop()

	// THEN: The first sweep closes it without waiting for a tick
	require.Eventually(t, func() bool {
		spans := mem.Spans(7)
		return len(spans) == 1 && !spans[0].IsOpen()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReaperScheduler_Disabled(t *testing.T) {
	mem, reaper := newSchedulerFixture(t)
	mem.Seed(attendance.Span{EmployeeID: 7, CheckIn: sweepNow.Add(-30 * time.Hour)})

	s := NewReaperScheduler(reaper, nil)
	s.Enabled = false
	s.Start()
	s.Stop()

	assert.True(t, mem.Spans(7)[0].IsOpen())
}

func TestReaperScheduler_RunNow(t *testing.T) {
	mem, reaper := newSchedulerFixture(t)
	mem.Seed(attendance.Span{EmployeeID: 7, CheckIn: sweepNow.Add(-30 * time.Hour)})
	mem.Seed(attendance.Span{EmployeeID: 8, CheckIn: sweepNow.Add(-2 * time.Hour)})

	s := NewReaperScheduler(reaper, nil)
	s.ThresholdHours = 24
	res, err := s.RunNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Len(t, res.Closed, 1)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.NextRunTime(), time.Minute)
}

func TestReaperScheduler_StopIsIdempotent(t *testing.T) {
	_, reaper := newSchedulerFixture(t)
	s := NewReaperScheduler(reaper, nil)
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
