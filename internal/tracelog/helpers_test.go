package tracelog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tagbatch/internal/ir"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string) ir.RunRecord {
	return ir.RunRecord{
		ID:            id,
		Name:          "scenario",
		SpecHash:      "spec-hash",
		EngineVersion: ir.EngineVersion,
		Status:        ir.RunStatusRunning,
	}
}

// testSweep builds a sweep with a correct outputs hash.
func testSweep(t *testing.T, runID string, idx, epoch int, values ...string) ir.SweepRecord {
	t.Helper()
	sw := ir.SweepRecord{
		RunID:   runID,
		Seq:     int64(10 * (idx + 1)),
		Index:   idx,
		Epoch:   epoch,
		Runs:    []ir.RunSpan{{Label: "circle", Tag: 0, Start: 0, Len: len(values)}},
		Lookups: 1,
		Passes:  1,
	}
	for i, v := range values {
		sw.Outputs = append(sw.Outputs, ir.OutputRecord{
			ID:    string(rune('a' + i)),
			Label: "circle",
			Slot:  i,
			Value: v,
		})
	}
	hash, err := ir.OutputsHash(sw.OutputsValue())
	require.NoError(t, err)
	sw.OutputsHash = hash
	return sw
}

func recordRun(t *testing.T, s *Store, id string, sweeps ...ir.SweepRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.RecordRun(ctx, testRun(id)))
	for _, sw := range sweeps {
		require.NoError(t, s.RecordSweep(ctx, sw))
	}
}
