package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/attendance-bridge/attendance"
)

// ReapOptions holds flags for the reap command.
type ReapOptions struct {
	*RootOptions
	Threshold int
}

// ReapSummary is the JSON the reap command prints.
type ReapSummary struct {
	ID             string   `json:"id"`
	ThresholdHours int      `json:"threshold_hours"`
	Found          int      `json:"found"`
	Closed         []int64  `json:"closed"`
	Skipped        []int64  `json:"skipped"`
	Failures       []string `json:"failures"`
}

// NewReapCommand creates the reap command.
func NewReapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReapOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Close stale open spans once",
		Long: `Close every open span whose check-in is older than the threshold, at
23:59:59 of the check-in's local day. Meant for cron when the server's own
scheduler is disabled.

Example:
  attendance-bridge reap --threshold 36`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReap(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Threshold, "threshold", 0, "stale threshold in hours (default reaper.threshold_hours)")

	return cmd
}

func runReap(cmd *cobra.Command, opts *ReapOptions) error {
	cfg := opts.Config()
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = cfg.Reaper.ThresholdHours
	}
	if threshold < 1 {
		return WrapExitError(ExitCommandError, "invalid threshold", fmt.Errorf("%d hours", threshold))
	}

	app, err := NewApp(cfg, opts.Logger())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer app.Close()

	res, err := app.Reaper.Sweep(cmd.Context(), threshold)
	if err != nil {
		return WrapExitError(ExitFailure, "sweep failed", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summarize(res)); err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d spans could not be closed", len(res.Failures)), nil)
	}
	return nil
}

func summarize(res attendance.SweepResult) ReapSummary {
	out := ReapSummary{
		ID:             res.ID,
		ThresholdHours: res.ThresholdHours,
		Found:          res.Found,
		Closed:         []int64{},
		Skipped:        []int64{},
		Failures:       []string{},
	}
	for _, c := range res.Closed {
		out.Closed = append(out.Closed, int64(c.SpanID))
	}
	for _, id := range res.Skipped {
		out.Skipped = append(out.Skipped, int64(id))
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, fmt.Sprintf("span %s: %v", f.SpanID, f.Err))
	}
	return out
}
