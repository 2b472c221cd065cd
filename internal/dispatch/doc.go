// Package dispatch runs batch sweeps over a grouped Store.
//
// A sweep groups the Store when it is dirty, then walks the runs in order.
// For every run the Registry entry is resolved once and its operation is
// applied to each payload in the run's contiguous slot range:
//
//	for _, run := range st.Group() {
//	    entry := reg.Lookup(run.Tag)        // once per run
//	    for slot := run.Start; slot < run.End(); slot++ {
//	        v := entry.Op(payload(slot))    // same target every time
//	        sink.Emit(...)
//	    }
//	}
//
// Outputs are visited in run order, then slot order. The first operation
// error aborts the sweep.
//
// SweepParallel partitions the runs across an errgroup and joins before
// anything reaches the sink, so callers observe the same order as Sweep.
package dispatch
