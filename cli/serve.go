package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/attendance-bridge/api"
	"github.com/warp/attendance-bridge/logger"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr            string
	NoReaper        bool
	ShutdownTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the scheduled reaper",
		Long: `Start the HTTP server terminals post their events to, and the
background sweep that closes spans left open past the threshold.

Example:
  attendance-bridge serve --config ./bridge.yaml
  PORT=8080 STORE_BACKEND=sqlite attendance-bridge serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().BoolVar(&opts.NoReaper, "no-reaper", false, "do not start the scheduled reaper")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period for in-flight requests")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	cfg, log := opts.Config(), opts.Logger()
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	app, err := NewApp(cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("error closing backend")
		}
	}()

	scheduler := api.NewReaperScheduler(app.Reaper, logger.Named("scheduler"))
	scheduler.Enabled = cfg.Reaper.Enabled && !opts.NoReaper
	scheduler.Interval = cfg.Reaper.Interval.Std()
	scheduler.ThresholdHours = cfg.Reaper.ThresholdHours

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(app.Handler(scheduler), api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         log,
			SlowRequest:    2 * time.Second,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("backend", app.Backend.Name).
			Str("timezone", cfg.Attendance.Timezone).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	scheduler.Start()
	defer scheduler.Stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitFailure, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server forced to shutdown", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
