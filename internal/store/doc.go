// Package store holds tagged records in one dense, contiguous array and
// groups them into tag-contiguous runs for batch dispatch.
//
// # Layout
//
// A Store keeps records as a structure of arrays:
//
//	tags:  [t0 t1 t2 ... tn-1]
//	arena: [payload0 | payload1 | ... ]   stride = Registry capacity
//
// Live records always occupy slots 0..Len()-1. Removal swaps the last slot
// into the hole, so the array never has gaps.
//
// # Handles
//
// Records move: removal relocates the last record, and grouping permutes
// everything. Callers therefore hold a Handle, an {Index, Generation} pair
// that resolves through a handle->slot map. Removing a record bumps the
// generation of its index before the index is reused, so a stale Handle
// never resolves to a different record.
//
// # Grouping
//
// Group reorders the array into runs of equal tags with a stable counting
// sort in O(n + k). It is lazy: the Store tracks a dirty flag set by
// Insert and Remove, and a clean Store returns its cached runs.
//
// # Concurrency
//
// A Store performs no locking. Callers serialize mutation against sweeps.
// BeginSweep/EndSweep mark a sweep in flight, and any mutation attempted
// in that window fails with DirtyStoreViolation instead of corrupting the
// array under the dispatcher.
package store
