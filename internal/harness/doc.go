// Package harness runs YAML scenarios against the engine and checks the
// outcome.
//
// A scenario names one or more CUE variant-set files, a list of steps and
// a list of assertions:
//
//	name: mixed_shapes
//	description: circles and rects share one store
//	variants: [shapes.cue]
//	steps:
//	  - insert: {id: c1, variant: circle, fields: {radius: 5}}
//	  - sweep: {expect: {c1: 78.5397}, tolerance: 0.001}
//	  - remove: {id: c1}
//	  - write: {id: c1, fields: {radius: 1}}
//	    error: InvalidHandle
//	assertions:
//	  - {type: live_count, count: 0}
//
// Steps run in order on a fresh Engine with a deterministic clock and a
// fixed run ID, so the trace of a scenario is byte-identical across runs
// and can be compared against a golden file. A step with an error field
// must fail with that code; any other failure stops the scenario.
package harness
