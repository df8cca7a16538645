/*
directory.go - Employee directory facade

PURPOSE:
  Resolves the badge / registration number a terminal sends into an
  Employee. Terminals pad and format badge numbers inconsistently, so
  matching compares digit-normalized values, never raw strings.

DIGIT NORMALIZATION:
  1. fold full-width forms to ASCII ("０４５" -> "045")
  2. keep only 0-9 ("EMP-045" -> "045")
  3. drop leading zeros ("045" -> "45"; "000" -> "0")
    An input with no digits never matches anything.

CACHING:
  The employee list is cached for CacheTTL. A miss against a cached list
  triggers one refresh before reporting EmployeeNotFound, so a newly hired
  employee is found on their first scan. Concurrent refreshes share one
  store call.

ERRORS:
  ErrEmployeeNotFound      - no entry matches (client data problem)
  ErrDirectoryUnavailable  - the store could not be read (dependency outage)
*/
package attendance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/width"

	"github.com/warp/attendance-bridge/logger"
)

// EmployeeSource lists directory entries. Store satisfies it.
type EmployeeSource interface {
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// Directory resolves registration numbers to employees.
type Directory struct {
	source   EmployeeSource
	cacheTTL time.Duration
	now      func() time.Time
	log      *logger.Logger

	mu        sync.RWMutex
	byDigits  map[string]Employee
	fetchedAt time.Time
	group     singleflight.Group
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithCacheTTL caches the employee list for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) { d.cacheTTL = ttl }
}

// WithDirectoryClock overrides time.Now.
func WithDirectoryClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) { d.now = now }
}

// WithDirectoryLogger sets the logger.
func WithDirectoryLogger(log *logger.Logger) DirectoryOption {
	return func(d *Directory) { d.log = log }
}

// NewDirectory creates a directory over source.
func NewDirectory(source EmployeeSource, opts ...DirectoryOption) *Directory {
	d := &Directory{source: source, now: time.Now, log: logger.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve finds the employee whose registration number digit-matches
// registrationNumber.
func (d *Directory) Resolve(ctx context.Context, registrationNumber string) (Employee, error) {
	key := NormalizeDigits(registrationNumber)
	if key == "" {
		return Employee{}, &EmployeeNotFoundError{RegistrationNumber: registrationNumber}
	}

	if idx, fresh := d.cached(); fresh {
		if emp, ok := idx[key]; ok {
			return emp, nil
		}
	}

	idx, err := d.refresh(ctx)
	if err != nil {
		return Employee{}, err
	}
	if emp, ok := idx[key]; ok {
		return emp, nil
	}
	return Employee{}, &EmployeeNotFoundError{RegistrationNumber: registrationNumber}
}

func (d *Directory) cached() (map[string]Employee, bool) {
	if d.cacheTTL <= 0 {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.byDigits == nil || d.now().Sub(d.fetchedAt) > d.cacheTTL {
		return nil, false
	}
	return d.byDigits, true
}

func (d *Directory) refresh(ctx context.Context) (map[string]Employee, error) {
	v, err, _ := d.group.Do("employees", func() (any, error) {
		employees, err := d.source.ListEmployees(ctx)
		if err != nil {
			return nil, err
		}
		idx := indexByDigits(employees, d.log)
		d.mu.Lock()
		d.byDigits = idx
		d.fetchedAt = d.now()
		d.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return v.(map[string]Employee), nil
}

// indexByDigits keys employees by normalized registration number. When two
// entries collide the first one wins and the collision is logged.
func indexByDigits(employees []Employee, log *logger.Logger) map[string]Employee {
	idx := make(map[string]Employee, len(employees))
	for _, e := range employees {
		key := NormalizeDigits(e.RegistrationNumber)
		if key == "" {
			continue
		}
		if prev, dup := idx[key]; dup {
			log.Warn().
				Str("registration_number", e.RegistrationNumber).
				Int64("kept_employee_id", int64(prev.ID)).
				Int64("ignored_employee_id", int64(e.ID)).
				Msg("duplicate registration number in directory")
			continue
		}
		idx[key] = e
	}
	return idx
}

// NormalizeDigits returns the digit-only form used for matching.
func NormalizeDigits(s string) string {
	folded := width.Fold.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
