package attendance_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-bridge/attendance"
)

type countingSource struct {
	employees []attendance.Employee
	err       error
	calls     atomic.Int32
}

func (s *countingSource) ListEmployees(context.Context) ([]attendance.Employee, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.employees, nil
}

func TestNormalizeDigits(t *testing.T) {
	cases := map[string]string{
		"45":      "45",
		"045":     "45",
		"0045":    "45",
		" 45 ":    "45",
		"EMP-045": "45",
		"4-5":     "45",
		"０４５":     "45",
		"000":     "0",
		"":        "",
		"abc":     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, attendance.NormalizeDigits(in), "input %q", in)
	}
}

func TestDirectory_Resolve_DigitNormalizedMatch(t *testing.T) {
	// GIVEN: The directory stores registration number "45"
	// WHEN: A terminal sends "045"
	// THEN: Resolution succeeds
	src := &countingSource{employees: []attendance.Employee{
		{ID: 1, RegistrationNumber: "12", Name: "Ana"},
		{ID: 2, RegistrationNumber: "45", Name: "Luis"},
	}}
	dir := attendance.NewDirectory(src)

	emp, err := dir.Resolve(context.Background(), "045")
	require.NoError(t, err)
	assert.Equal(t, attendance.EmployeeID(2), emp.ID)
	assert.Equal(t, "Luis", emp.Name)
}

func TestDirectory_Resolve_NotFound(t *testing.T) {
	dir := attendance.NewDirectory(&countingSource{employees: []attendance.Employee{{ID: 1, RegistrationNumber: "12"}}})

	_, err := dir.Resolve(context.Background(), "99")
	assert.ErrorIs(t, err, attendance.ErrEmployeeNotFound)
	assert.False(t, errors.Is(err, attendance.ErrDirectoryUnavailable))

	var nf *attendance.EmployeeNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "99", nf.RegistrationNumber)
}

func TestDirectory_Resolve_NoDigitsNeverMatches(t *testing.T) {
	// An entry without a registration number must not match an empty badge.
	src := &countingSource{employees: []attendance.Employee{{ID: 1, RegistrationNumber: ""}}}
	dir := attendance.NewDirectory(src)

	_, err := dir.Resolve(context.Background(), "n/a")
	assert.ErrorIs(t, err, attendance.ErrEmployeeNotFound)
	assert.Zero(t, src.calls.Load(), "no store call for an unmatchable badge")
}

func TestDirectory_Resolve_Unavailable(t *testing.T) {
	src := &countingSource{err: errors.New("dial tcp: connection refused")}
	dir := attendance.NewDirectory(src)

	_, err := dir.Resolve(context.Background(), "45")
	assert.ErrorIs(t, err, attendance.ErrDirectoryUnavailable)
	assert.False(t, errors.Is(err, attendance.ErrEmployeeNotFound))
	assert.True(t, attendance.IsRetryable(err))
}

func TestDirectory_Cache_HitAndRefreshOnMiss(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &countingSource{employees: []attendance.Employee{{ID: 1, RegistrationNumber: "12"}}}
	dir := attendance.NewDirectory(src,
		attendance.WithCacheTTL(5*time.Minute),
		attendance.WithDirectoryClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	_, err := dir.Resolve(ctx, "12")
	require.NoError(t, err)
	_, err = dir.Resolve(ctx, "12")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load(), "second lookup served from cache")

	// A newly hired employee is found on the first scan.
	src.employees = append(src.employees, attendance.Employee{ID: 2, RegistrationNumber: "77"})
	emp, err := dir.Resolve(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, attendance.EmployeeID(2), emp.ID)
	assert.Equal(t, int32(2), src.calls.Load())

	// Expired cache refreshes.
	now = now.Add(6 * time.Minute)
	_, err = dir.Resolve(ctx, "12")
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestDirectory_NoCache_ReadsEveryTime(t *testing.T) {
	src := &countingSource{employees: []attendance.Employee{{ID: 1, RegistrationNumber: "12"}}}
	dir := attendance.NewDirectory(src)

	for i := 0; i < 3; i++ {
		_, err := dir.Resolve(context.Background(), "12")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestDirectory_DuplicateDigits_FirstWins(t *testing.T) {
	src := &countingSource{employees: []attendance.Employee{
		{ID: 1, RegistrationNumber: "045"},
		{ID: 2, RegistrationNumber: "45"},
	}}
	dir := attendance.NewDirectory(src)

	emp, err := dir.Resolve(context.Background(), "45")
	require.NoError(t, err)
	assert.Equal(t, attendance.EmployeeID(1), emp.ID)
}
