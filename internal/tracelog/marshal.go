package tracelog

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tagbatch/internal/ir"
)

// marshalRuns stores a sweep's run list as canonical JSON TEXT.
func marshalRuns(runs []ir.RunSpan) (string, error) {
	arr := make(ir.Array, len(runs))
	for i, r := range runs {
		arr[i] = ir.Object{
			"label": ir.String(r.Label),
			"tag":   ir.Int(r.Tag),
			"start": ir.Int(r.Start),
			"len":   ir.Int(r.Len),
		}
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal runs: %w", err)
	}
	return string(data), nil
}

// unmarshalRuns parses the run list back. Empty input yields an empty,
// non-nil slice.
func unmarshalRuns(data string) ([]ir.RunSpan, error) {
	runs := []ir.RunSpan{}
	if data == "" || data == "[]" {
		return runs, nil
	}
	if err := json.Unmarshal([]byte(data), &runs); err != nil {
		return nil, fmt.Errorf("unmarshal runs: %w", err)
	}
	return runs, nil
}
