/*
Package factory builds the attendance backend from configuration.

PURPOSE:
  Turns the config's store/journal sections into the concrete collaborators
  the engine needs, so cmd and cli never import a backend package directly.

BACKENDS:
  odoo    XML-RPC HR store (production). Journal optional, separate SQLite file.
  sqlite  standalone store. Journal optional; shares the store's database
          when journal.path equals sqlite.path.
  memory  in-process store seeded from memory.employees (dev, demos).

USAGE:
  b, err := factory.Build(cfg, log)
  defer b.Close()
  gw := attendance.NewGateway(b.Store, log)

SEE ALSO:
  - config/config.go: the sections read here
  - attendance/store.go: Store, Journal, SweepLister, EventLister
*/
package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/attendance/store"
	"github.com/warp/attendance-bridge/config"
	"github.com/warp/attendance-bridge/logger"
	"github.com/warp/attendance-bridge/odoo"
	"github.com/warp/attendance-bridge/store/sqlite"
)

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is the set of collaborators built from one configuration.
type Backend struct {
	Name    string
	Store   attendance.Store
	Journal attendance.Journal

	// Sweeps and Events are nil when the journal is disabled.
	Sweeps attendance.SweepLister
	Events attendance.EventLister

	pingers []Pinger
	closers []io.Closer
}

// Ping checks every dependency that can be checked.
func (b *Backend) Ping(ctx context.Context) error {
	var errs []error
	for _, p := range b.pingers {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases everything Build opened, in reverse order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Build creates the store and journal selected by cfg. On failure
// everything opened so far is closed before returning.
func Build(cfg *config.Config, log *logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Nop()
	}
	backend := &Backend{Name: cfg.Store.Backend, Journal: attendance.NopJournal{}}
	if err := assemble(cfg, log, backend); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return backend, nil
}

func assemble(cfg *config.Config, log *logger.Logger, b *Backend) error {
	var primary *sqlite.Store
	switch cfg.Store.Backend {
	case config.BackendOdoo:
		client, err := odoo.NewClient(odoo.Config{
			URL:                cfg.Odoo.Endpoint(),
			DB:                 cfg.Odoo.DB,
			Username:           cfg.Odoo.Username,
			Password:           cfg.Odoo.Password,
			CommonTimeout:      cfg.Odoo.CommonTimeout.Std(),
			ObjectTimeout:      cfg.Odoo.ObjectTimeout.Std(),
			InsecureSkipVerify: cfg.Odoo.InsecureSkipVerify,
		}, log)
		if err != nil {
			return err
		}
		s := odoo.NewStore(client, log)
		b.Store = s
		b.pingers = append(b.pingers, s)
		b.closers = append(b.closers, s)

	case config.BackendSQLite:
		s, err := openSQLite(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		primary = s
		b.Store = s
		b.pingers = append(b.pingers, s)
		b.closers = append(b.closers, s)

	case config.BackendMemory:
		b.Store = NewSeededMemory(cfg.Memory.Employees)

	default:
		return fmt.Errorf("factory: unknown store backend %q", cfg.Store.Backend)
	}

	if !cfg.Journal.Enabled {
		return nil
	}
	journal := primary
	if journal == nil || !samePath(cfg.Journal.Path, cfg.SQLite.Path) {
		var err error
		journal, err = openSQLite(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("factory: journal: %w", err)
		}
		b.closers = append(b.closers, journal)
	}
	b.Journal = journal
	b.Sweeps = journal
	b.Events = journal
	log.Debug().Str("path", cfg.Journal.Path).Msg("event journal enabled")
	return nil
}

// NewSeededMemory returns an in-memory store holding seeds. Seeds without
// an id are numbered after the highest explicit one.
func NewSeededMemory(seeds []config.EmployeeSeed) *store.Memory {
	var next int64
	for _, s := range seeds {
		if s.ID > next {
			next = s.ID
		}
	}
	employees := make([]attendance.Employee, 0, len(seeds))
	for _, s := range seeds {
		id := s.ID
		if id == 0 {
			next++
			id = next
		}
		employees = append(employees, attendance.Employee{
			ID:                 attendance.EmployeeID(id),
			RegistrationNumber: s.RegistrationNumber,
			Name:               s.Name,
		})
	}
	return store.NewMemory(employees...)
}

func openSQLite(path string) (*sqlite.Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("factory: create %s: %w", dir, err)
			}
		}
	}
	return sqlite.New(path)
}

func samePath(a, b string) bool {
	if a == ":memory:" || b == ":memory:" {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
