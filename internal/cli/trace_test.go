package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/tracelog"
)

// recordedDB runs the shapes scenario twice, sequentially and with four
// workers, into a fresh trace log.
func recordedDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "trace.db")
	_, err := runWithIDs(t, []string{"run-seq"}, "--db", db, "testdata/scenarios/shapes.yaml")
	require.NoError(t, err)
	_, err = runWithIDs(t, []string{"run-par"}, "--db", db, "--workers", "4", "testdata/scenarios/shapes.yaml")
	require.NoError(t, err)
	return db
}

func TestTraceLatestRun(t *testing.T) {
	db := recordedDB(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-par (shapes) status=ok workers=4")
	assert.Contains(t, out, "Sweep 0  seq=3 epoch=2 lookups=2 passes=1")
	assert.Contains(t, out, "runs: circle[0:1] rect[1:2]")
	assert.Contains(t, out, "Sweep 2  seq=6 epoch=3 lookups=1 passes=0")
}

func TestTraceJSON(t *testing.T) {
	db := recordedDB(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--run", "run-seq")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-seq", resp.Data.Run.ID)
	assert.Equal(t, int64(6), resp.Data.LastSeq)
	require.Len(t, resp.Data.Sweeps, 3)
	assert.Equal(t, []ir.OutputRecord{{ID: "b1", Label: "rect", Slot: 0, Value: "6.000000"}}, resp.Data.Sweeps[2].Outputs)
}

func TestTraceRecordHistory(t *testing.T) {
	db := recordedDB(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--run", "run-seq", "--id", "b1")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.History, 3)
	assert.Empty(t, resp.Data.Sweeps)
	for _, o := range resp.Data.History {
		assert.Equal(t, "6.000000", o.Value)
	}
}

func TestTraceList(t *testing.T) {
	db := recordedDB(t)

	out, err := execute(t, "trace", "--db", db, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-seq  ok")
	assert.Contains(t, out, "run-par  ok")
}

func TestTraceErrors(t *testing.T) {
	_, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	db := recordedDB(t)
	out, err := execute(t, "trace", "--db", db, "--run", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestReplayAllDeterministic(t *testing.T) {
	db := recordedDB(t)

	out, err := execute(t, "--verbose", "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ run-seq (3 sweep(s), 1 compared)")
	assert.Contains(t, out, "✓ run-par")
	assert.Contains(t, out, "All 2 run(s) deterministic")
}

func TestReplayAgainst(t *testing.T) {
	db := recordedDB(t)

	out, err := execute(t, "--format", "json", "replay", "--db", db, "--run", "run-seq", "--against", "run-par")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.AllDeterministic)

	_, err = execute(t, "replay", "--db", db, "--against", "run-par")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayDetectsTampering(t *testing.T) {
	db := recordedDB(t)

	st, err := tracelog.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE outputs SET value = '7.000000' WHERE run_id = 'run-seq' AND sweep_idx = 2`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ run-seq")
	assert.Contains(t, out, "sweep 2:")
	assert.Contains(t, out, "Determinism verification failed")

	_, err = execute(t, "replay", "--db", db, "--run", "run-par")
	require.NoError(t, err)
}

func TestReplayReportsIncompleteRuns(t *testing.T) {
	db := recordedDB(t)

	st, err := tracelog.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.RecordRun(t.Context(), ir.RunRecord{
		ID: "run-crashed", Name: "shapes", Status: ir.RunStatusRunning, Workers: 1,
	}))
	require.NoError(t, st.Close())

	out, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "! run-crashed never finished")
}
