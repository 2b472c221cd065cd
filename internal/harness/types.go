package harness

import "github.com/roach88/tagbatch/internal/ir"

// TraceEvent records one executed step.
type TraceEvent struct {
	Step  int             `json:"step"`
	Kind  string          `json:"kind"`
	ID    string          `json:"id,omitempty"`
	Count int             `json:"count,omitempty"` // fill only
	Error string          `json:"error,omitempty"` // canonical code of an expected failure
	Sweep *ir.SweepRecord `json:"sweep,omitempty"`
}

// ToValue returns the canonical form used in golden files.
func (e TraceEvent) ToValue() ir.Object {
	obj := ir.Object{
		"step": ir.Int(e.Step),
		"kind": ir.String(e.Kind),
	}
	if e.ID != "" {
		obj["id"] = ir.String(e.ID)
	}
	if e.Count != 0 {
		obj["count"] = ir.Int(e.Count)
	}
	if e.Error != "" {
		obj["error"] = ir.String(e.Error)
	}
	if e.Sweep != nil {
		obj["sweep"] = e.Sweep.ToValue()
	}
	return obj
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every step, expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// RunID and SpecHash identify the engine run.
	RunID    string `json:"run_id"`
	SpecHash string `json:"spec_hash"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Sweeps returns the sweep records of the trace in order.
func (r *Result) Sweeps() []ir.SweepRecord {
	var out []ir.SweepRecord
	for _, e := range r.Trace {
		if e.Sweep != nil {
			out = append(out, *e.Sweep)
		}
	}
	return out
}

// LastSweep returns the most recent sweep record.
func (r *Result) LastSweep() (ir.SweepRecord, bool) {
	for i := len(r.Trace) - 1; i >= 0; i-- {
		if r.Trace[i].Sweep != nil {
			return *r.Trace[i].Sweep, true
		}
	}
	return ir.SweepRecord{}, false
}
