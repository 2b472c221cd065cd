package tracelog

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagbatch/internal/ir"
)

func TestRecordAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sweeps := []ir.SweepRecord{
		testSweep(t, "r1", 0, 3, "78.539816", "12.566371", "12.000000"),
		testSweep(t, "r1", 1, 4, "78.539816"),
	}
	recordRun(t, s, "r1", sweeps...)

	got, err := s.ReadSweeps(ctx, "r1")
	require.NoError(t, err)
	if diff := cmp.Diff(sweeps, got); diff != "" {
		t.Errorf("sweeps mismatch (-want +got):\n%s", diff)
	}

	run, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, testRun("r1"), run)
}

func TestRecordSweep_Idempotent(t *testing.T) {
	s := openTestStore(t)
	sw := testSweep(t, "r1", 0, 1, "1.000000", "2.000000")
	recordRun(t, s, "r1", sw, sw)

	got, err := s.ReadSweeps(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Outputs, 2)
}

func TestRecordSweep_EmptyOutputs(t *testing.T) {
	s := openTestStore(t)
	sw := testSweep(t, "r1", 0, 0)
	sw.Runs = []ir.RunSpan{}
	recordRun(t, s, "r1", sw)

	got, err := s.ReadSweeps(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []ir.OutputRecord{}, got[0].Outputs)
	assert.Equal(t, []ir.RunSpan{}, got[0].Runs)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordRun(ctx, testRun("r1")))
	assert.Error(t, s.RecordRun(ctx, testRun("r1")))
}

func TestFinishRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recordRun(t, s, "r1")

	require.NoError(t, s.FinishRun(ctx, "r1", ir.RunStatusFailed, "OPERATION_FAILED: boom"))
	run, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ir.RunStatusFailed, run.Status)
	assert.Equal(t, "OPERATION_FAILED: boom", run.Error)

	err = s.FinishRun(ctx, "nope", ir.RunStatusOK, "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListAndLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)

	_, err = s.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)

	// IDs deliberately out of lexical order: listing follows recording order.
	for _, id := range []string{"zz", "aa", "mm"} {
		recordRun(t, s, id)
	}
	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"zz", "aa", "mm"}, ids)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mm", latest.ID)

	_, err = s.ReadRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordHistory(t *testing.T) {
	s := openTestStore(t)
	recordRun(t, s, "r1",
		testSweep(t, "r1", 0, 1, "1.000000", "2.000000"),
		testSweep(t, "r1", 1, 2, "3.000000"),
	)

	hist, err := s.RecordHistory(context.Background(), "r1", "a")
	require.NoError(t, err)
	vals := make([]string, len(hist))
	for i, h := range hist {
		vals[i] = h.Value
	}
	assert.Equal(t, []string{"1.000000", "3.000000"}, vals)
}

func TestCheckRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	recordRun(t, s, "good",
		testSweep(t, "good", 0, 2, "1.000000", "2.000000"),
		testSweep(t, "good", 1, 2, "1.000000", "2.000000"),
		testSweep(t, "good", 2, 3, "5.000000"),
	)
	check, err := s.CheckRun(ctx, "good")
	require.NoError(t, err)
	assert.True(t, check.OK(), "%+v", check.Mismatches)
	assert.Equal(t, 3, check.Sweeps)
	assert.Equal(t, 1, check.Compared)

	// Same epoch, different outputs.
	recordRun(t, s, "drift",
		testSweep(t, "drift", 0, 2, "1.000000"),
		testSweep(t, "drift", 1, 2, "1.000001"),
	)
	check, err = s.CheckRun(ctx, "drift")
	require.NoError(t, err)
	require.Len(t, check.Mismatches, 1)
	assert.Equal(t, 1, check.Mismatches[0].Sweep)
	assert.Equal(t, 0, check.Mismatches[0].Prior)

	// Stored hash that does not match the stored outputs.
	bad := testSweep(t, "tampered", 0, 1, "1.000000")
	bad.OutputsHash = "0000"
	recordRun(t, s, "tampered", bad)
	check, err = s.CheckRun(ctx, "tampered")
	require.NoError(t, err)
	require.Len(t, check.Mismatches, 1)
	assert.Equal(t, -1, check.Mismatches[0].Prior)

	all, err := s.CheckAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].OK())
	assert.False(t, all[1].OK())
	assert.False(t, all[2].OK())
}

func TestCompareRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recordRun(t, s, "seq", testSweep(t, "seq", 0, 1, "1.000000"), testSweep(t, "seq", 1, 2, "2.000000"))
	recordRun(t, s, "par", testSweep(t, "par", 0, 1, "1.000000"), testSweep(t, "par", 1, 2, "2.000000"))
	recordRun(t, s, "short", testSweep(t, "short", 0, 1, "9.000000"))

	diff, err := s.CompareRuns(ctx, "seq", "par")
	require.NoError(t, err)
	assert.Empty(t, diff)

	diff, err = s.CompareRuns(ctx, "seq", "short")
	require.NoError(t, err)
	require.Len(t, diff, 2)
	assert.Contains(t, diff[1].Reason, "sweep count differs")
}

func TestFindIncompleteRunsAndLastSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recordRun(t, s, "open", testSweep(t, "open", 0, 1, "1.000000"), testSweep(t, "open", 1, 1, "1.000000"))
	recordRun(t, s, "closed")
	require.NoError(t, s.FinishRun(ctx, "closed", ir.RunStatusOK, ""))

	runs, err := s.FindIncompleteRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "open", runs[0].ID)

	seq, err := s.LastSeq(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, int64(20), seq)

	seq, err = s.LastSeq(ctx, "closed")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}
