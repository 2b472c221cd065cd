package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tagbatch/internal/store"
	"github.com/roach88/tagbatch/internal/variant"
)

// minChunk is the smallest slot range handed to one parallel worker.
const minChunk = 256

// Stats counts dispatcher work.
type Stats struct {
	Sweeps      int
	Runs        int
	Lookups     int
	Invocations int
	// Passes is the number of grouping passes the sweeps triggered.
	Passes int
}

func (s *Stats) add(o Stats) {
	s.Sweeps += o.Sweeps
	s.Runs += o.Runs
	s.Lookups += o.Lookups
	s.Invocations += o.Invocations
	s.Passes += o.Passes
}

// Dispatcher sweeps one Store with the operations of one Registry.
//
// A Dispatcher is not safe for concurrent use. It shares the Store's
// single-writer contract.
type Dispatcher[O any] struct {
	reg   *variant.Registry[O]
	st    *store.Store
	total Stats
	last  Stats
}

// New creates a Dispatcher. st must have been created from reg.
func New[O any](reg *variant.Registry[O], st *store.Store) *Dispatcher[O] {
	return &Dispatcher[O]{reg: reg, st: st}
}

// Stats returns totals across every sweep so far.
func (d *Dispatcher[O]) Stats() Stats { return d.total }

// LastSweep returns the counters of the most recent sweep.
func (d *Dispatcher[O]) LastSweep() Stats { return d.last }

func (d *Dispatcher[O]) record(s Stats) {
	d.last = s
	d.total.add(s)
}

// Sweep emits one output per live record, grouping first when the Store
// is dirty.
//
// Operation and sink errors abort the sweep. Operation failures come back
// as *OpError; the cause stays reachable through errors.Is and errors.As.
func (d *Dispatcher[O]) Sweep(sink Sink[O]) error {
	if err := d.st.BeginSweep(); err != nil {
		return err
	}
	defer d.st.EndSweep()

	before := d.st.Passes()
	runs := d.st.Group()
	stats := Stats{Sweeps: 1, Runs: len(runs), Passes: d.st.Passes() - before}
	defer func() { d.record(stats) }()

	for _, run := range runs {
		entry, err := d.reg.Lookup(run.Tag)
		stats.Lookups++
		if err != nil {
			return fmt.Errorf("resolve run at slot %d: %w", run.Start, err)
		}
		size := entry.Layout.Size

		for slot := run.Start; slot < run.End(); slot++ {
			v, err := entry.Op(d.st.PayloadAt(slot)[:size:size])
			stats.Invocations++
			if err != nil {
				return d.opError(slot, entry, err)
			}
			out := Output[O]{Slot: slot, Handle: d.st.HandleAt(slot), Tag: run.Tag, Value: v}
			if err := sink.Emit(out); err != nil {
				return fmt.Errorf("emit slot %d: %w", slot, err)
			}
		}
	}
	return nil
}

// SweepParallel is Sweep with runs partitioned across at most workers
// goroutines. Operations must be free of shared mutable state.
//
// Entries are resolved once per run before any worker starts. Workers fill
// a slot-indexed buffer; after they join, outputs reach the sink in the
// same order Sweep would produce. The first failure cancels the remaining
// chunks. workers <= 1 falls back to Sweep.
func (d *Dispatcher[O]) SweepParallel(ctx context.Context, sink Sink[O], workers int) error {
	if workers <= 1 {
		return d.Sweep(sink)
	}
	if err := d.st.BeginSweep(); err != nil {
		return err
	}
	defer d.st.EndSweep()

	before := d.st.Passes()
	runs := d.st.Group()
	stats := Stats{Sweeps: 1, Runs: len(runs), Passes: d.st.Passes() - before}
	var invoked atomic.Int64
	defer func() {
		stats.Invocations = int(invoked.Load())
		d.record(stats)
	}()

	entries := make([]variant.Entry[O], len(runs))
	for i, run := range runs {
		entry, err := d.reg.Lookup(run.Tag)
		stats.Lookups++
		if err != nil {
			return fmt.Errorf("resolve run at slot %d: %w", run.Start, err)
		}
		entries[i] = entry
	}

	n := d.st.Len()
	results := make([]O, n)
	chunk := max(minChunk, (n+workers*4-1)/(workers*4))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

schedule:
	for i, run := range runs {
		entry := entries[i]
		for start := run.Start; start < run.End(); start += chunk {
			if gctx.Err() != nil {
				break schedule
			}
			end := min(start+chunk, run.End())
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				size := entry.Layout.Size
				for slot := start; slot < end; slot++ {
					v, err := entry.Op(d.st.PayloadAt(slot)[:size:size])
					invoked.Add(1)
					if err != nil {
						return d.opError(slot, entry, err)
					}
					results[slot] = v
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, run := range runs {
		for slot := run.Start; slot < run.End(); slot++ {
			out := Output[O]{Slot: slot, Handle: d.st.HandleAt(slot), Tag: run.Tag, Value: results[slot]}
			if err := sink.Emit(out); err != nil {
				return fmt.Errorf("emit slot %d: %w", slot, err)
			}
		}
	}
	return nil
}

func (d *Dispatcher[O]) opError(slot int, entry variant.Entry[O], err error) error {
	return &OpError{
		Slot:   slot,
		Handle: d.st.HandleAt(slot),
		Tag:    entry.Tag,
		Label:  entry.Label,
		Err:    err,
	}
}
