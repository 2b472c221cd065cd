package ir

// RunRecord describes one engine run.
type RunRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SpecHash      string `json:"spec_hash"`
	EngineVersion string `json:"engine_version"`
	Workers       int    `json:"workers"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusFailed  = "failed"
)

// SweepRecord is the trace of one sweep.
//
// Epoch counts the successful mutations applied before the sweep. Two
// sweeps of the same run with equal Epoch saw the same Store contents and
// must have equal OutputsHash.
type SweepRecord struct {
	RunID       string         `json:"run_id,omitempty"`
	Seq         int64          `json:"seq"`
	Index       int            `json:"index"`
	Epoch       int            `json:"epoch"`
	Runs        []RunSpan      `json:"runs"`
	Lookups     int            `json:"lookups"`
	Passes      int            `json:"passes"`
	OutputsHash string         `json:"outputs_hash"`
	Outputs     []OutputRecord `json:"outputs"`
}

// RunSpan is one tag-contiguous run as seen by a sweep.
type RunSpan struct {
	Label string `json:"label"`
	Tag   int    `json:"tag"`
	Start int    `json:"start"`
	Len   int    `json:"len"`
}

// OutputRecord is one emitted value, in visit order.
type OutputRecord struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slot  int    `json:"slot"`
	Value string `json:"value"`
}

// OutputsValue returns the canonical form of the outputs, which is what
// OutputsHash digests.
func (s SweepRecord) OutputsValue() Array {
	arr := make(Array, len(s.Outputs))
	for i, o := range s.Outputs {
		arr[i] = Object{
			"id":    String(o.ID),
			"label": String(o.Label),
			"slot":  Int(o.Slot),
			"value": String(o.Value),
		}
	}
	return arr
}

// ToValue returns the canonical form of the sweep without its run ID, so
// traces of different runs compare equal when their behaviour does.
func (s SweepRecord) ToValue() Object {
	runs := make(Array, len(s.Runs))
	for i, r := range s.Runs {
		runs[i] = Object{
			"label": String(r.Label),
			"tag":   Int(r.Tag),
			"start": Int(r.Start),
			"len":   Int(r.Len),
		}
	}
	return Object{
		"seq":          Int(s.Seq),
		"index":        Int(s.Index),
		"epoch":        Int(s.Epoch),
		"runs":         runs,
		"lookups":      Int(s.Lookups),
		"passes":       Int(s.Passes),
		"outputs_hash": String(s.OutputsHash),
		"outputs":      s.OutputsValue(),
	}
}
