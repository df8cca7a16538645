package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/config"
	"github.com/warp/attendance-bridge/factory"
	"github.com/warp/attendance-bridge/logger"
	"github.com/warp/attendance-bridge/store/sqlite"
)

// EmployeeOptions holds flags for the employee commands.
type EmployeeOptions struct {
	*RootOptions
	ID                 int64
	RegistrationNumber string
	Name               string
}

// NewEmployeeCommand creates the employee command group.
func NewEmployeeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmployeeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "employee",
		Short: "Manage the employee directory",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Register an employee (sqlite backend)",
		Long: `Register or update an employee in the sqlite backend. The odoo backend's
directory is managed in Odoo itself.

Example:
  attendance-bridge employee add --registration 045 --name "Luis Pérez"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmployeeAdd(cmd, opts)
		},
	}
	add.Flags().Int64Var(&opts.ID, "id", 0, "employee id (update when it exists)")
	add.Flags().StringVar(&opts.RegistrationNumber, "registration", "", "badge / registration number (required)")
	add.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	_ = add.MarkFlagRequired("registration")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the configured backend's directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmployeeList(cmd, opts)
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func runEmployeeAdd(cmd *cobra.Command, opts *EmployeeOptions) error {
	cfg := opts.Config()
	if cfg.Store.Backend != config.BackendSQLite {
		return WrapExitError(ExitCommandError, "employee add needs the sqlite backend",
			fmt.Errorf("store.backend is %q", cfg.Store.Backend))
	}
	if attendance.NormalizeDigits(opts.RegistrationNumber) == "" {
		return WrapExitError(ExitCommandError, "invalid registration number",
			errors.New("it must contain at least one digit"))
	}

	store, err := sqlite.New(cfg.SQLite.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	id, err := store.SaveEmployee(cmd.Context(), attendance.Employee{
		ID:                 attendance.EmployeeID(opts.ID),
		RegistrationNumber: opts.RegistrationNumber,
		Name:               opts.Name,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to save employee", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "employee %s saved (registration %s)\n", id, opts.RegistrationNumber)
	return nil
}

func runEmployeeList(cmd *cobra.Command, opts *EmployeeOptions) error {
	backend, err := factory.Build(opts.Config(), logger.Named("factory"))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer backend.Close()

	employees, err := backend.Store.ListEmployees(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list employees", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREGISTRATION\tNAME")
	for _, e := range employees {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.RegistrationNumber, e.Name)
	}
	return tw.Flush()
}
