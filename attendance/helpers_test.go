package attendance_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/attendance/store"
)

var errConnRefused = errors.New("dial tcp 10.0.0.5:8069: connection refused")

// flakyStore wraps a Memory store with call counters and injectable failures.
type flakyStore struct {
	*store.Memory

	creates atomic.Int32
	closes  atomic.Int32
	reads   atomic.Int32

	mu         sync.Mutex
	failCreate error
	failRead   error
	failStale  error
	failClose  map[attendance.SpanID]error
	extraOpen  []attendance.Span
}

func newFlakyStore(employees ...attendance.Employee) *flakyStore {
	return &flakyStore{Memory: store.NewMemory(employees...), failClose: map[attendance.SpanID]error{}}
}

func (f *flakyStore) OpenSpans(ctx context.Context, employee attendance.EmployeeID) ([]attendance.Span, error) {
	f.reads.Add(1)
	f.mu.Lock()
	err, extra := f.failRead, f.extraOpen
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	spans, err := f.Memory.OpenSpans(ctx, employee)
	return append(spans, extra...), err
}

func (f *flakyStore) CreateSpan(ctx context.Context, employee attendance.EmployeeID, checkIn time.Time) (attendance.SpanID, error) {
	f.creates.Add(1)
	f.mu.Lock()
	err := f.failCreate
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.Memory.CreateSpan(ctx, employee, checkIn)
}

func (f *flakyStore) CloseSpan(ctx context.Context, id attendance.SpanID, checkOut time.Time) error {
	f.closes.Add(1)
	f.mu.Lock()
	err := f.failClose[id]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.CloseSpan(ctx, id, checkOut)
}

func (f *flakyStore) StaleOpenSpans(ctx context.Context, cutoff time.Time) ([]attendance.Span, error) {
	f.mu.Lock()
	err := f.failStale
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Memory.StaleOpenSpans(ctx, cutoff)
}

// recordingJournal keeps everything in memory.
type recordingJournal struct {
	mu     sync.Mutex
	events []attendance.EventRecord
	sweeps []attendance.SweepRecord
	err    error
}

func (j *recordingJournal) RecordEvent(_ context.Context, rec attendance.EventRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, rec)
	return j.err
}

func (j *recordingJournal) RecordSweep(_ context.Context, rec attendance.SweepRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweeps = append(j.sweeps, rec)
	return j.err
}

func (j *recordingJournal) Events() []attendance.EventRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]attendance.EventRecord(nil), j.events...)
}

func (j *recordingJournal) Sweeps() []attendance.SweepRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]attendance.SweepRecord(nil), j.sweeps...)
}

func ptr(t time.Time) *time.Time { return &t }
