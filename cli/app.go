package cli

import (
	"fmt"

	"github.com/warp/attendance-bridge/api"
	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/config"
	"github.com/warp/attendance-bridge/factory"
	"github.com/warp/attendance-bridge/hikvision"
	"github.com/warp/attendance-bridge/logger"
)

// App is the engine wired from one configuration.
type App struct {
	Config     *config.Config
	Log        *logger.Logger
	Backend    *factory.Backend
	Normalizer *attendance.Normalizer
	Gateway    *attendance.Gateway
	Directory  *attendance.Directory
	Reconciler *attendance.Reconciler
	Reaper     *attendance.Reaper
}

// NewApp builds the backend and the engine on top of it.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	norm, err := attendance.NewNormalizer(cfg.Attendance.Timezone)
	if err != nil {
		return nil, err
	}
	backend, err := factory.Build(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build %s backend: %w", cfg.Store.Backend, err)
	}

	locks := attendance.NewKeyedMutex()
	gateway := attendance.NewGateway(backend.Store, logger.Component(log, "gateway"))
	directory := attendance.NewDirectory(backend.Store,
		attendance.WithCacheTTL(cfg.Attendance.DirectoryCacheTTL.Std()),
		attendance.WithDirectoryLogger(logger.Component(log, "directory")))

	return &App{
		Config:     cfg,
		Log:        log,
		Backend:    backend,
		Normalizer: norm,
		Gateway:    gateway,
		Directory:  directory,
		Reconciler: attendance.NewReconciler(norm, hikvision.DefaultVocabulary(), directory, gateway,
			attendance.WithLocks(locks),
			attendance.WithJournal(backend.Journal),
			attendance.WithLogger(logger.Component(log, "reconciler"))),
		Reaper: attendance.NewReaper(gateway, norm,
			attendance.WithReaperLocks(locks),
			attendance.WithReaperJournal(backend.Journal),
			attendance.WithReaperLogger(logger.Component(log, "reaper"))),
	}, nil
}

// Handler builds the HTTP handler over the app. schedule may be nil.
func (a *App) Handler(schedule api.Schedule) *api.Handler {
	return api.NewHandler(api.Deps{
		Reconciler:     a.Reconciler,
		Reaper:         a.Reaper,
		Gateway:        a.Gateway,
		Normalizer:     a.Normalizer,
		Sweeps:         a.Backend.Sweeps,
		Events:         a.Backend.Events,
		Health:         a.Backend,
		Schedule:       schedule,
		Backend:        a.Backend.Name,
		ThresholdHours: a.Config.Reaper.ThresholdHours,
		MaxBodyBytes:   a.Config.Server.MaxBodyBytes,
	})
}

// Close releases the backend.
func (a *App) Close() error { return a.Backend.Close() }
