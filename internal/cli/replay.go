package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tagbatch/internal/tracelog"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - check one run only
	Against  string // optional - compare RunID sweep by sweep with this run
}

// ReplayRunResult is the determinism check of one run.
type ReplayRunResult struct {
	RunID         string   `json:"run_id"`
	Sweeps        int      `json:"sweeps"`
	Compared      int      `json:"compared"`
	Deterministic bool     `json:"deterministic"`
	Mismatches    []string `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	Incomplete       []string          `json:"incomplete,omitempty"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Verify determinism of recorded runs",
		Long: `Re-check every recorded run. Each sweep's outputs hash is recomputed
from its stored outputs, and consecutive sweeps with no mutation in
between must have produced identical outputs.

With --run and --against, two runs (for example the same scenario at
different worker counts) are compared sweep by sweep instead.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed
  2 - Command error (database not found, etc.)

Examples:
  tagbatch replay --db ./trace.db
  tagbatch replay --db ./trace.db --run <id> --against <id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "check one run only")
	cmd.Flags().StringVar(&opts.Against, "against", "", "compare --run with this run")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Against != "" && opts.RunID == "" {
		return NewExitError(ExitCommandError, "--against requires --run")
	}

	st, err := openTraceLog(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var checks []tracelog.RunCheck
	switch {
	case opts.Against != "":
		mismatches, err := st.CompareRuns(ctx, opts.RunID, opts.Against)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to compare runs", err)
		}
		checks = []tracelog.RunCheck{{RunID: opts.RunID + " vs " + opts.Against, Mismatches: mismatches}}
	case opts.RunID != "":
		if _, err := st.ReadRun(ctx, opts.RunID); err != nil {
			return WrapExitError(ExitCommandError, "no such run", err)
		}
		c, err := st.CheckRun(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to check run", err)
		}
		checks = []tracelog.RunCheck{c}
	default:
		checks, err = st.CheckAll(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to check runs", err)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(checks)),
		TotalRuns:        len(checks),
		AllDeterministic: true,
	}
	for _, c := range checks {
		rr := ReplayRunResult{
			RunID:         c.RunID,
			Sweeps:        c.Sweeps,
			Compared:      c.Compared,
			Deterministic: c.OK(),
		}
		for _, m := range c.Mismatches {
			rr.Mismatches = append(rr.Mismatches, fmt.Sprintf("sweep %d: %s", m.Sweep, m.Reason))
		}
		if !rr.Deterministic {
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, rr)
	}

	incomplete, err := st.FindIncompleteRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	for _, r := range incomplete {
		result.Incomplete = append(result.Incomplete, r.ID)
	}

	if err := formatter.Result(result, !result.AllDeterministic, func(w io.Writer) {
		writeReplayText(w, result, opts.Verbose)
	}); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func writeReplayText(w io.Writer, result ReplayResult, verbose bool) {
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return
	}
	for _, r := range result.Runs {
		mark := "✓"
		if !r.Deterministic {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s", mark, r.RunID)
		if verbose {
			fmt.Fprintf(w, " (%d sweep(s), %d compared)", r.Sweeps, r.Compared)
		}
		fmt.Fprintln(w)
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
	for _, id := range result.Incomplete {
		fmt.Fprintf(w, "! %s never finished\n", id)
	}
	if result.AllDeterministic {
		fmt.Fprintf(w, "\nAll %d run(s) deterministic\n", result.TotalRuns)
	} else {
		fmt.Fprintln(w, "\nDeterminism verification failed")
	}
}
