package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/treecontract/internal/tracelog"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Run      string
	Limit    int
}

// HistoryRun is one recorded run with its events.
type HistoryRun struct {
	Run    tracelog.Run     `json:"run" yaml:"run"`
	Events []tracelog.Event `json:"events" yaml:"events"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show runs recorded by eval --db",
		Long: `List recorded runs, most recent first, or show the contraction trace
of one run.

Examples:
  treecontract history --db runs.db
  treecontract history --db runs.db --run 0190c6f5-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace log")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show the trace of the run with this ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if !cmd.Flags().Changed("db") && opts.settings().Database != "" {
		opts.Database = opts.settings().Database
	}
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	st, err := tracelog.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	out := &OutputFormatter{Format: opts.Format, Writer: w}

	if opts.Run != "" {
		run, err := st.GetRun(ctx, opts.Run)
		if errors.Is(err, tracelog.ErrNotFound) {
			return WrapExitError(ExitFailure, "no such run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		events, err := st.Events(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
		if opts.Format != "text" {
			return out.Success(HistoryRun{Run: run, Events: events})
		}
		fmt.Fprintf(w, "%s = %s (%d rounds, %d rakes)\n", run.Expr, run.Result, run.Rounds, run.Rakes)
		for _, ev := range events {
			fmt.Fprintln(w, ev.Line)
		}
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.Format != "text" {
		return out.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  %s = %s\n", run.ID, run.CreatedAt.Format(time.RFC3339), run.Expr, run.Result)
	}
	return nil
}
