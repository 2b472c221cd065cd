package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tagbatch/internal/catalog"
	"github.com/roach88/tagbatch/internal/compiler"
	"github.com/roach88/tagbatch/internal/dispatch"
	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/store"
	"github.com/roach88/tagbatch/internal/variant"
)

// Recorder receives run and sweep traces. tracelog.Store implements it.
type Recorder interface {
	RecordRun(ctx context.Context, run ir.RunRecord) error
	RecordSweep(ctx context.Context, sweep ir.SweepRecord) error
	FinishRun(ctx context.Context, runID, status, errMsg string) error
}

// Engine executes steps against one sealed variant set.
type Engine struct {
	set      ir.VariantSet
	specHash string

	reg     *variant.Registry[float64]
	layouts []variant.Layout // by tag
	st      *store.Store
	disp    *dispatch.Dispatcher[float64]

	clock    SeqSource
	runIDs   RunIDGenerator
	logger   *slog.Logger
	recorder Recorder
	workers  int
	capacity int

	runID   string
	name    string
	ids     map[string]store.Handle
	names   map[store.Handle]string
	epoch   int
	sweeps  []ir.SweepRecord
	started bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers dispatches sweeps across n goroutines. n <= 1 keeps sweeps
// on the calling goroutine.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder forwards run and sweep traces to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.runIDs = g
		}
	}
}

// WithClock sets the step sequence source. Default: a fresh Clock.
func WithClock(c SeqSource) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithCapacity pre-sizes the Store for n records.
func WithCapacity(n int) EngineOption {
	return func(e *Engine) {
		e.capacity = n
	}
}

// New registers every variant of set, seals the Registry and creates an
// empty Store and Dispatcher on it.
func New(set ir.VariantSet, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		set:    set,
		clock:  NewClock(),
		runIDs: UUIDv7Generator{},
		logger: slog.New(slog.DiscardHandler),
		ids:    make(map[string]store.Handle),
		names:  make(map[store.Handle]string),
	}
	for _, opt := range opts {
		opt(e)
	}

	hash, err := ir.SpecHash(set)
	if err != nil {
		return nil, err
	}
	e.specHash = hash

	var regOpts []variant.Option
	if set.MaxPayload > 0 {
		regOpts = append(regOpts, variant.WithMaxPayload(set.MaxPayload))
	}
	e.reg = variant.NewRegistry[float64](regOpts...)

	for _, spec := range set.Variants {
		layout, err := compiler.LayoutOf(spec)
		if err != nil {
			return nil, invalidSet(err)
		}
		op, err := catalog.Build(spec.Op, layout)
		if err != nil {
			return nil, invalidSet(fmt.Errorf("variant %q: %w", spec.Label, err))
		}
		if _, err := e.reg.Register(spec.Label, op, layout); err != nil {
			return nil, invalidSet(err)
		}
		e.layouts = append(e.layouts, layout)
	}
	if err := e.reg.Seal(); err != nil {
		return nil, invalidSet(err)
	}

	e.st, err = store.New(e.reg, store.WithCapacity(e.capacity))
	if err != nil {
		return nil, invalidSet(err)
	}
	e.disp = dispatch.New(e.reg, e.st)

	e.logger.Debug("engine ready",
		"variants", e.reg.Len(),
		"capacity", e.reg.Capacity(),
		"spec_hash", e.specHash)
	return e, nil
}

func invalidSet(err error) error {
	return &StepError{Code: ErrCodeInvalidVariantSet, Message: "registering variant set", Err: err}
}

// Start opens a run named name and records it.
func (e *Engine) Start(ctx context.Context, name string) error {
	e.runID = e.runIDs.Generate()
	e.name = name
	e.started = true

	e.logger.Debug("run started", "run_id", e.runID, "name", name)
	if e.recorder == nil {
		return nil
	}
	err := e.recorder.RecordRun(ctx, ir.RunRecord{
		ID:            e.runID,
		Name:          name,
		SpecHash:      e.specHash,
		EngineVersion: ir.EngineVersion,
		Workers:       e.workers,
		Status:        ir.RunStatusRunning,
	})
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Finish closes the run. runErr decides the recorded status.
func (e *Engine) Finish(ctx context.Context, runErr error) error {
	status, msg := ir.RunStatusOK, ""
	if runErr != nil {
		status, msg = ir.RunStatusFailed, runErr.Error()
	}
	e.logger.Debug("run finished", "run_id", e.runID, "status", status)
	if e.recorder == nil || !e.started {
		return nil
	}
	if err := e.recorder.FinishRun(ctx, e.runID, status, msg); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Insert binds id to a new record of the variant label.
//
// An ID whose record was removed may be bound again.
func (e *Engine) Insert(id, label string, fields map[string]float64) (store.Handle, error) {
	seq := e.clock.Next()
	if h, ok := e.ids[id]; ok && e.st.Contains(h) {
		return store.Handle{}, &StepError{Code: ErrCodeDuplicateID, Message: "id is already live", ID: id}
	}
	tag, err := e.reg.TagOf(label)
	if err != nil {
		return store.Handle{}, err
	}
	payload, err := e.layouts[tag].Encode(fields)
	if err != nil {
		return store.Handle{}, &StepError{Code: ErrCodeInvalidFields, Message: "encoding fields", ID: id, Err: err}
	}
	h, err := e.st.Insert(tag, payload)
	if err != nil {
		return store.Handle{}, err
	}
	if old, ok := e.ids[id]; ok {
		delete(e.names, old)
	}
	e.ids[id] = h
	e.names[h] = id
	e.epoch++

	e.logger.Debug("insert", "seq", seq, "id", id, "variant", label, "handle", h.String())
	return h, nil
}

// FillItem is one template of a Fill step.
type FillItem struct {
	Variant string
	Fields  map[string]float64
}

// Fill inserts count records with IDs prefix0..prefix{count-1}, cycling
// through items. It stops at the first failure.
func (e *Engine) Fill(prefix string, count int, items []FillItem) error {
	if len(items) == 0 {
		return &StepError{Code: ErrCodeInvalidFields, Message: "fill needs at least one item"}
	}
	for i := range count {
		item := items[i%len(items)]
		if _, err := e.Insert(fmt.Sprintf("%s%d", prefix, i), item.Variant, item.Fields); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the record behind id. The ID stays known, so later steps
// on it fail with InvalidHandle rather than UnknownID.
func (e *Engine) Remove(id string) error {
	seq := e.clock.Next()
	h, err := e.handle(id)
	if err != nil {
		return err
	}
	if err := e.st.Remove(h); err != nil {
		return err
	}
	e.epoch++
	e.logger.Debug("remove", "seq", seq, "id", id, "handle", h.String())
	return nil
}

// Write replaces the fields of the record behind id. Fields not named in
// fields become zero.
func (e *Engine) Write(id string, fields map[string]float64) error {
	seq := e.clock.Next()
	h, err := e.handle(id)
	if err != nil {
		return err
	}
	tag, err := e.st.Tag(h)
	if err != nil {
		return err
	}
	payload, err := e.layouts[tag].Encode(fields)
	if err != nil {
		return &StepError{Code: ErrCodeInvalidFields, Message: "encoding fields", ID: id, Err: err}
	}
	if err := e.st.Write(h, payload); err != nil {
		return err
	}
	e.epoch++
	e.logger.Debug("write", "seq", seq, "id", id)
	return nil
}

// Read decodes the fields of the record behind id.
func (e *Engine) Read(id string) (string, map[string]float64, error) {
	h, err := e.handle(id)
	if err != nil {
		return "", nil, err
	}
	rec, err := e.st.Read(h)
	if err != nil {
		return "", nil, err
	}
	entry, err := e.reg.Lookup(rec.Tag)
	if err != nil {
		return "", nil, err
	}
	fields, err := entry.Layout.Decode(rec.Bytes())
	if err != nil {
		return "", nil, err
	}
	return entry.Label, fields, nil
}

// Sweep dispatches every live record and returns the trace. The trace is
// forwarded to the Recorder when one is set.
func (e *Engine) Sweep(ctx context.Context) (*SweepResult, error) {
	seq := e.clock.Next()

	var sink dispatch.SliceSink[float64]
	var err error
	if e.workers > 1 {
		err = e.disp.SweepParallel(ctx, &sink, e.workers)
	} else {
		err = e.disp.Sweep(&sink)
	}
	if err != nil {
		e.logger.Debug("sweep failed", "seq", seq, "error", err)
		return nil, err
	}

	stats := e.disp.LastSweep()
	res := &SweepResult{
		Seq:     seq,
		Index:   len(e.sweeps),
		Epoch:   e.epoch,
		Stats:   stats,
		Outputs: make([]Output, len(sink.Outputs)),
	}
	for _, run := range e.st.Runs() {
		entry, err := e.reg.Lookup(run.Tag)
		if err != nil {
			return nil, err
		}
		res.Runs = append(res.Runs, ir.RunSpan{Label: entry.Label, Tag: int(run.Tag), Start: run.Start, Len: run.Len})
	}
	for i, o := range sink.Outputs {
		entry, err := e.reg.Lookup(o.Tag)
		if err != nil {
			return nil, err
		}
		res.Outputs[i] = Output{
			ID:     e.idOf(o.Handle),
			Handle: o.Handle,
			Label:  entry.Label,
			Slot:   o.Slot,
			Value:  o.Value,
		}
	}

	rec, err := res.Record(e.runID)
	if err != nil {
		return nil, err
	}
	e.sweeps = append(e.sweeps, rec)

	e.logger.Debug("sweep",
		"seq", seq,
		"records", len(res.Outputs),
		"runs", stats.Runs,
		"lookups", stats.Lookups,
		"passes", stats.Passes)

	if e.recorder != nil && e.started {
		if err := e.recorder.RecordSweep(ctx, rec); err != nil {
			return nil, fmt.Errorf("record sweep: %w", err)
		}
	}
	return res, nil
}

func (e *Engine) handle(id string) (store.Handle, error) {
	h, ok := e.ids[id]
	if !ok {
		return store.Handle{}, &StepError{Code: ErrCodeUnknownID, Message: "id was never inserted", ID: id}
	}
	return h, nil
}

func (e *Engine) idOf(h store.Handle) string {
	if id, ok := e.names[h]; ok {
		return id
	}
	return h.String()
}

// Handle returns the handle bound to id.
func (e *Engine) Handle(id string) (store.Handle, bool) {
	h, ok := e.ids[id]
	return h, ok
}

// Contains reports whether id is bound to a live record.
func (e *Engine) Contains(id string) bool {
	h, ok := e.ids[id]
	return ok && e.st.Contains(h)
}

// Len returns the number of live records.
func (e *Engine) Len() int { return e.st.Len() }

// RunCount returns the number of runs the current grouping has, grouping
// first if the Store is dirty.
func (e *Engine) RunCount() int { return len(e.st.Group()) }

// Stats returns dispatcher totals.
func (e *Engine) Stats() dispatch.Stats { return e.disp.Stats() }

// LastSweep returns the counters of the most recent sweep.
func (e *Engine) LastSweep() dispatch.Stats { return e.disp.LastSweep() }

// Sweeps returns the sweep records of this run.
func (e *Engine) Sweeps() []ir.SweepRecord { return e.sweeps }

// RunID returns the current run ID, empty before Start.
func (e *Engine) RunID() string { return e.runID }

// SpecHash returns the hash of the variant set.
func (e *Engine) SpecHash() string { return e.specHash }

// Registry exposes the sealed Registry.
func (e *Engine) Registry() *variant.Registry[float64] { return e.reg }
