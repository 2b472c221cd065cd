package engine

import (
	"github.com/roach88/tagbatch/internal/dispatch"
	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/store"
)

// Output is one sweep result bound back to its caller-chosen ID.
type Output struct {
	ID     string
	Handle store.Handle
	Label  string
	Slot   int
	Value  float64
}

// SweepResult is what one Sweep step produced.
type SweepResult struct {
	Seq     int64
	Index   int
	Epoch   int
	Stats   dispatch.Stats
	Runs    []ir.RunSpan
	Outputs []Output
}

// Values returns the output values in visit order.
func (r *SweepResult) Values() []float64 {
	vals := make([]float64, len(r.Outputs))
	for i, o := range r.Outputs {
		vals[i] = o.Value
	}
	return vals
}

// IDs returns the output IDs in visit order.
func (r *SweepResult) IDs() []string {
	ids := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		ids[i] = o.ID
	}
	return ids
}

// ByID returns the value emitted for id.
func (r *SweepResult) ByID(id string) (float64, bool) {
	for _, o := range r.Outputs {
		if o.ID == id {
			return o.Value, true
		}
	}
	return 0, false
}

// Record converts the result to its trace form. Values are fixed to six
// decimals so the outputs hash does not depend on float formatting.
func (r *SweepResult) Record(runID string) (ir.SweepRecord, error) {
	rec := ir.SweepRecord{
		RunID:   runID,
		Seq:     r.Seq,
		Index:   r.Index,
		Epoch:   r.Epoch,
		Runs:    r.Runs,
		Lookups: r.Stats.Lookups,
		Passes:  r.Stats.Passes,
		Outputs: make([]ir.OutputRecord, len(r.Outputs)),
	}
	if rec.Runs == nil {
		rec.Runs = []ir.RunSpan{}
	}
	for i, o := range r.Outputs {
		rec.Outputs[i] = ir.OutputRecord{
			ID:    o.ID,
			Label: o.Label,
			Slot:  o.Slot,
			Value: ir.FormatValue(o.Value),
		}
	}
	hash, err := ir.OutputsHash(rec.OutputsValue())
	if err != nil {
		return ir.SweepRecord{}, err
	}
	rec.OutputsHash = hash
	return rec, nil
}
