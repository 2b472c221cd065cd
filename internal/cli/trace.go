package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/tracelog"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	RecordID string // optional - history of one record
	List     bool
}

// TraceResult holds the recorded sweeps of one run.
type TraceResult struct {
	Run     ir.RunRecord      `json:"run"`
	LastSeq int64             `json:"last_seq"`
	Sweeps  []ir.SweepRecord  `json:"sweeps,omitempty"`
	History []ir.OutputRecord `json:"history,omitempty"` // with --id
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the recorded sweeps of a run",
		Long: `Print the sweeps recorded for a run: the tag runs each sweep visited,
its lookup and grouping counts, and its outputs in visit order.

Without --run the most recent run is shown. --id narrows the output to
the values one record produced across the run's sweeps; --list prints
the recorded runs instead.

Examples:
  tagbatch trace --db ./trace.db
  tagbatch trace --db ./trace.db --run 0192f0c4-... --id a1
  tagbatch trace --db ./trace.db --list --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest)")
	cmd.Flags().StringVar(&opts.RecordID, "id", "", "show the history of one record ID")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs")

	return cmd
}

// openTraceLog opens an existing trace log. Opening a missing path would
// create an empty database, which is never what trace or replay want.
func openTraceLog(path string) (*tracelog.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := tracelog.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openTraceLog(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.List {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return formatter.Result(runs, false, func(w io.Writer) {
			writeRunList(w, runs)
		})
	}

	var run ir.RunRecord
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, tracelog.ErrRunNotFound) {
		_ = formatter.Error("NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "no such run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result := TraceResult{Run: run}
	if result.LastSeq, err = st.LastSeq(ctx, run.ID); err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	if opts.RecordID != "" {
		result.History, err = st.RecordHistory(ctx, run.ID, opts.RecordID)
	} else {
		result.Sweeps, err = st.ReadSweeps(ctx, run.ID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sweeps", err)
	}

	return formatter.Result(result, false, func(w io.Writer) {
		writeTraceText(w, result, opts.RecordID, opts.Verbose)
	})
}

func writeRunList(w io.Writer, runs []ir.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-8s %-20s workers=%d\n", r.ID, r.Status, r.Name, r.Workers)
	}
}

func writeTraceText(w io.Writer, result TraceResult, recordID string, verbose bool) {
	run := result.Run
	fmt.Fprintf(w, "Run %s (%s) status=%s workers=%d\n", run.ID, run.Name, run.Status, run.Workers)
	if run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", run.Error)
	}
	if verbose {
		fmt.Fprintf(w, "  spec %s, engine %s, last seq %d\n", truncateID(run.SpecHash), run.EngineVersion, result.LastSeq)
	}

	if recordID != "" {
		fmt.Fprintf(w, "\nHistory of %s:\n", recordID)
		if len(result.History) == 0 {
			fmt.Fprintln(w, "  (no outputs)")
		}
		for i, o := range result.History {
			fmt.Fprintf(w, "  %d  %-10s slot %-4d %s\n", i, o.Label, o.Slot, o.Value)
		}
		return
	}

	for _, sw := range result.Sweeps {
		fmt.Fprintf(w, "\nSweep %d  seq=%d epoch=%d lookups=%d passes=%d  %s\n",
			sw.Index, sw.Seq, sw.Epoch, sw.Lookups, sw.Passes, truncateID(sw.OutputsHash))
		fmt.Fprintf(w, "  runs: %s\n", formatRuns(sw.Runs))
		for _, o := range sw.Outputs {
			fmt.Fprintf(w, "  %-12s %-10s slot %-4d %s\n", o.ID, o.Label, o.Slot, o.Value)
		}
	}
}

func formatRuns(runs []ir.RunSpan) string {
	if len(runs) == 0 {
		return "(none)"
	}
	parts := make([]string, len(runs))
	for i, r := range runs {
		parts[i] = fmt.Sprintf("%s[%d:%d]", r.Label, r.Start, r.Start+r.Len)
	}
	return strings.Join(parts, " ")
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
