// Package engine drives a variant set through a sequence of steps.
//
// An Engine compiles an ir.VariantSet into a sealed Registry whose
// operations come from the catalog, owns the Store and Dispatcher built on
// it, and executes steps against them:
//
//	insert  bind a caller-chosen ID to a new record
//	remove  swap-remove the record behind an ID
//	write   overwrite the payload behind an ID
//	fill    bulk insert, cycling through a list of templates
//	sweep   group if dirty, dispatch, trace the outputs
//
// Every step is stamped with a logical sequence number. Wall-clock time
// never enters a trace, so two runs of the same steps produce identical
// sweep records apart from their run ID.
//
// Sweeps are forwarded to an optional Recorder, which the trace log
// implements.
//
// An Engine is single-writer: call its methods from one goroutine.
// WithWorkers only parallelizes the dispatch inside a sweep.
package engine
