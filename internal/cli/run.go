package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tagbatch/internal/engine"
	"github.com/roach88/tagbatch/internal/harness"
	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/tracelog"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Workers  int

	// RunIDs overrides the UUIDv7 run ID generator (for testing).
	RunIDs engine.RunIDGenerator
}

// RunOutput is the run command's result.
type RunOutput struct {
	Scenario string            `json:"scenario"`
	RunID    string            `json:"run_id"`
	SpecHash string            `json:"spec_hash"`
	Pass     bool              `json:"pass"`
	Errors   []string          `json:"errors,omitempty"`
	Sweeps   int               `json:"sweeps"`
	Outputs  []ir.OutputRecord `json:"outputs"` // final sweep
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario",
		Long: `Execute a scenario file against a fresh engine and print the outputs of
its final sweep.

With --db, the run and every sweep are recorded to a SQLite trace log
under a UUIDv7 run ID; the log can be read back with trace and checked
with replay.

Example:
  tagbatch run ./scenarios/shapes.yaml
  tagbatch run --db ./trace.db --workers 4 ./scenarios/shapes.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run to this SQLite database")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "sweep workers (0 uses the scenario's setting)")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	hopts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithRunIDGenerator(runIDs),
	}
	if opts.Workers > 0 {
		hopts = append(hopts, harness.WithWorkers(opts.Workers))
	}

	if opts.Database != "" {
		logger.Info("opening trace log", "path", opts.Database)
		st, err := tracelog.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		hopts = append(hopts, harness.WithRecorder(st))
	}

	result, err := harness.Run(scenario, hopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}
	logger.Debug("scenario finished", "scenario", scenario.Name, "run_id", result.RunID, "pass", result.Pass)

	out := RunOutput{
		Scenario: scenario.Name,
		RunID:    result.RunID,
		SpecHash: result.SpecHash,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Sweeps:   len(result.Sweeps()),
		Outputs:  []ir.OutputRecord{},
	}
	if last, ok := result.LastSweep(); ok {
		out.Outputs = last.Outputs
	}

	if err := formatter.Result(out, !out.Pass, func(w io.Writer) {
		writeRunText(w, out)
	}); err != nil {
		return err
	}
	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func writeRunText(w io.Writer, out RunOutput) {
	mark := "✓"
	if !out.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (run %s, %d sweep(s))\n", mark, out.Scenario, out.RunID, out.Sweeps)
	for _, o := range out.Outputs {
		fmt.Fprintf(w, "  %-12s %-10s %s\n", o.ID, o.Label, o.Value)
	}
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}
