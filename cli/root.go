/*
Package cli is the attendance-bridge command tree.

COMMANDS:
  serve          HTTP server + scheduled reaper (the production process)
  reap           One stale-span sweep, summary on stdout
  employee add   Register an employee in the sqlite backend
  employee list  List the configured backend's directory

GLOBAL FLAGS:
  --config       YAML file (env ATTENDANCE_CONFIG); env vars still override
  --log-level    overrides log.level
  --log-format   overrides log.format (console|json)

EXIT CODES:
  0 success, 1 operation failed, 2 bad invocation or configuration

SEE ALSO:
  - app.go: wiring shared by every command
  - config/config.go: configuration sources
*/
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/attendance-bridge/config"
	"github.com/warp/attendance-bridge/logger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitFailure by default.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	cfg *config.Config
	log *logger.Logger
}

// Config returns the configuration loaded by the root command.
func (o *RootOptions) Config() *config.Config { return o.cfg }

// Logger returns the process logger.
func (o *RootOptions) Logger() *logger.Logger { return o.log }

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "attendance-bridge",
		Short: "Biometric terminal events into HR attendance",
		Long: `attendance-bridge receives badge scans from access-control terminals and
reconciles them into attendance spans in the HR store, keeping at most one
open span per employee.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("ATTENDANCE_CONFIG"), "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (console|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReapCommand(opts))
	cmd.AddCommand(NewEmployeeCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	o.cfg = cfg
	o.log = logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "attendance-bridge",
		Writer:  cmd.ErrOrStderr(),
	})
	return nil
}
