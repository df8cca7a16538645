/*
scheduler.go - Stale-span sweep scheduler

PURPOSE:
  Runs the reaper on a timer so spans left open by a missed checkout get
  closed without anyone calling the admin endpoint.

DESIGN:
  - One background goroutine, first sweep right after Start
  - Sweeps go through attendance.Reaper, which is single-flight: a tick
    that lands during a manual sweep joins it instead of running twice
  - Every sweep is journaled by the reaper itself

CONFIGURATION:
  - Interval:       How often to sweep (default: 1 hour)
  - ThresholdHours: Age after which an open span is stale (default: 24)
  - Enabled:        Whether the scheduler starts at all (default: true)

USAGE:
  scheduler := NewReaperScheduler(reaper, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunReaper endpoint (manual sweep)
  - attendance/reaper.go: the sweep itself
*/
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/logger"
)

// ReaperScheduler sweeps stale spans periodically.
type ReaperScheduler struct {
	Reaper         *attendance.Reaper
	Interval       time.Duration
	ThresholdHours int
	Enabled        bool
	SweepTimeout   time.Duration

	log     *logger.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun atomic.Int64 // unix nanos
}

// NewReaperScheduler creates a new scheduler.
func NewReaperScheduler(reaper *attendance.Reaper, log *logger.Logger) *ReaperScheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &ReaperScheduler{
		Reaper:         reaper,
		Interval:       time.Hour,
		ThresholdHours: attendance.DefaultStaleThresholdHours,
		Enabled:        true,
		SweepTimeout:   5 * time.Minute,
		log:            log,
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (rs *ReaperScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("reaper scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.log.Info().
		Dur("interval", rs.Interval).
		Int("threshold_hours", rs.ThresholdHours).
		Msg("reaper scheduler started")
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (rs *ReaperScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.log.Info().Msg("reaper scheduler stopped")
	}
}

func (rs *ReaperScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.sweep(stop)

	for {
		select {
		case <-ticker.C:
			rs.sweep(stop)
		case <-stop:
			return
		}
	}
}

func (rs *ReaperScheduler) sweep(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), rs.SweepTimeout)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	_, _ = rs.RunNow(ctx)
}

// RunNow sweeps immediately (for testing/admin).
func (rs *ReaperScheduler) RunNow(ctx context.Context) (attendance.SweepResult, error) {
	res, err := rs.Reaper.Sweep(ctx, rs.ThresholdHours)
	rs.lastRun.Store(time.Now().UnixNano())

	if err != nil {
		rs.log.Error().Err(err).Msg("scheduled sweep failed")
		return res, err
	}
	if res.Found > 0 {
		rs.log.Info().
			Int("found", res.Found).
			Int("closed", len(res.Closed)).
			Int("skipped", len(res.Skipped)).
			Int("failed", len(res.Failures)).
			Msg("scheduled sweep completed")
	}
	return res, nil
}

// NextRunTime returns when the next scheduled sweep will occur, or the
// zero time when the scheduler is disabled.
func (rs *ReaperScheduler) NextRunTime() time.Time {
	if !rs.Enabled {
		return time.Time{}
	}
	last := rs.lastRun.Load()
	if last == 0 {
		return time.Now()
	}
	return time.Unix(0, last).Add(rs.Interval)
}
