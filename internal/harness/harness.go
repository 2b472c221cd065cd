package harness

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/tagbatch/internal/compiler"
	"github.com/roach88/tagbatch/internal/engine"
	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/testutil"
)

// Option configures a harness run.
type Option func(*config)

type config struct {
	workers  int
	recorder engine.Recorder
	runIDs   engine.RunIDGenerator
	logger   *slog.Logger
}

// WithWorkers overrides the scenario's worker count.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithRecorder forwards the run to r, for example a tracelog.Store.
func WithRecorder(r engine.Recorder) Option {
	return func(c *config) { c.recorder = r }
}

// WithRunIDGenerator replaces the fixed test run ID.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(c *config) { c.runIDs = g }
}

// WithLogger sets the engine logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Harness executes one scenario on one engine.
type Harness struct {
	eng    *engine.Engine
	logger *slog.Logger
	last   *engine.SweepResult
}

// LoadVariants compiles and validates the scenario's variant files.
func LoadVariants(s *Scenario) (*ir.VariantSet, error) {
	set, err := compiler.LoadFiles(s.Variants...)
	if err != nil {
		return nil, fmt.Errorf("compile variants: %w", err)
	}
	if errs := compiler.Validate(set); len(errs) > 0 {
		return nil, fmt.Errorf("invalid variant set: %w", errs[0])
	}
	return set, nil
}

// Run executes scenario on a fresh engine.
//
// The returned error covers setup failures only: unreadable variants or a
// recorder that cannot be written. Step and assertion failures are
// reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{
		workers: scenario.Workers,
		runIDs:  testutil.NewFixedRunID(""),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	set, err := LoadVariants(scenario)
	if err != nil {
		return nil, err
	}

	engOpts := []engine.EngineOption{
		engine.WithWorkers(cfg.workers),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithRunIDGenerator(cfg.runIDs),
		engine.WithLogger(cfg.logger),
	}
	if cfg.recorder != nil {
		engOpts = append(engOpts, engine.WithRecorder(cfg.recorder))
	}
	eng, err := engine.New(*set, engOpts...)
	if err != nil {
		return nil, err
	}

	h := &Harness{eng: eng, logger: cfg.logger}
	ctx := context.Background()

	if err := eng.Start(ctx, scenario.Name); err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = eng.RunID()
	result.SpecHash = eng.SpecHash()

	runErr := h.executeSteps(ctx, scenario.Steps, result)
	if runErr == nil {
		actx := &AssertionContext{Engine: eng, Result: result}
		for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
			result.AddError(msg)
		}
	}

	if err := eng.Finish(ctx, runErr); err != nil {
		return nil, err
	}
	return result, nil
}

// executeSteps runs the steps in order. It returns the first unexpected
// step error, after recording it in result.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		event := TraceEvent{Step: i, Kind: step.Kind()}
		err := h.execute(ctx, step, &event)

		if step.Error != "" {
			want := engine.NormalizeCode(step.Error)
			got := engine.CodeOf(err)
			if err == nil {
				result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got success", i, event.Kind, want))
			} else if got != want {
				result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %s (%v)", i, event.Kind, want, got, err))
			}
			event.Error = got
			result.Trace = append(result.Trace, event)
			continue
		}

		if err != nil {
			result.AddError(fmt.Sprintf("step %d (%s): %v", i, event.Kind, err))
			return err
		}
		result.Trace = append(result.Trace, event)

		if step.Sweep != nil {
			checkExpect(i, step.Sweep, h.last, result)
		}

		h.logger.Debug("step completed", "step", i, "kind", event.Kind, "id", event.ID)
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, step Step, event *TraceEvent) error {
	switch {
	case step.Insert != nil:
		event.ID = step.Insert.ID
		_, err := h.eng.Insert(step.Insert.ID, step.Insert.Variant, step.Insert.Fields)
		return err
	case step.Fill != nil:
		event.ID = step.Fill.IDPrefix
		event.Count = step.Fill.Count
		items := make([]engine.FillItem, len(step.Fill.Cycle))
		for i, c := range step.Fill.Cycle {
			items[i] = engine.FillItem{Variant: c.Variant, Fields: c.Fields}
		}
		return h.eng.Fill(step.Fill.IDPrefix, step.Fill.Count, items)
	case step.Remove != nil:
		event.ID = step.Remove.ID
		return h.eng.Remove(step.Remove.ID)
	case step.Write != nil:
		event.ID = step.Write.ID
		return h.eng.Write(step.Write.ID, step.Write.Fields)
	case step.Sweep != nil:
		res, err := h.eng.Sweep(ctx)
		if err != nil {
			return err
		}
		h.last = res
		sweeps := h.eng.Sweeps()
		event.Sweep = &sweeps[len(sweeps)-1]
		return nil
	}
	return fmt.Errorf("step has no action")
}

// checkExpect compares expected values against the raw sweep outputs.
func checkExpect(i int, step *SweepStep, res *engine.SweepResult, result *Result) {
	tol := step.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	ids := make([]string, 0, len(step.Expect))
	for id := range step.Expect {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		want := step.Expect[id]
		got, ok := res.ByID(id)
		if !ok {
			result.AddError(fmt.Sprintf("step %d (sweep): no output for %q", i, id))
			continue
		}
		if math.Abs(got-want) > tol {
			result.AddError(fmt.Sprintf("step %d (sweep): %s = %v, want %v (tolerance %v)", i, id, got, want, tol))
		}
	}
}
