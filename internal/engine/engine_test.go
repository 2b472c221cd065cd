package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagbatch/internal/catalog"
	"github.com/roach88/tagbatch/internal/compiler"
	"github.com/roach88/tagbatch/internal/ir"
	"github.com/roach88/tagbatch/internal/variant"
)

const shapesCUE = `
variant: circle: {
	op: "circle_area"
	fields: [{name: "radius", type: "float32"}]
}

variant: rect: {
	op: "rect_area"
	fields: [
		{name: "width", type: "float32"},
		{name: "height", type: "float32"},
	]
}

variant: inv: {
	op: "reciprocal"
	fields: [{name: "x", type: "float64"}]
}
`

func shapesSet(t *testing.T) ir.VariantSet {
	t.Helper()
	set, err := compiler.CompileString(shapesCUE)
	require.NoError(t, err)
	return *set
}

func newEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := New(shapesSet(t), opts...)
	require.NoError(t, err)
	return e
}

// fakeRecorder keeps everything in memory.
type fakeRecorder struct {
	runs     []ir.RunRecord
	sweeps   []ir.SweepRecord
	finished map[string]string
	failOn   string
}

func (r *fakeRecorder) RecordRun(_ context.Context, run ir.RunRecord) error {
	if r.failOn == "run" {
		return errors.New("disk full")
	}
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRecorder) RecordSweep(_ context.Context, sweep ir.SweepRecord) error {
	if r.failOn == "sweep" {
		return errors.New("disk full")
	}
	r.sweeps = append(r.sweeps, sweep)
	return nil
}

func (r *fakeRecorder) FinishRun(_ context.Context, runID, status, errMsg string) error {
	if r.finished == nil {
		r.finished = make(map[string]string)
	}
	r.finished[runID] = status
	return nil
}

func TestNewRegistersInDeclarationOrder(t *testing.T) {
	e := newEngine(t)
	reg := e.Registry()
	require.True(t, reg.Sealed())
	assert.Equal(t, 3, reg.Len())

	for want, label := range []string{"circle", "rect", "inv"} {
		tag, err := reg.TagOf(label)
		require.NoError(t, err)
		assert.Equal(t, variant.Tag(want), tag)
	}
	// float64 field aligns the widest payload to 8 bytes.
	assert.Equal(t, 8, reg.Capacity())
	assert.Len(t, e.SpecHash(), 64)
}

func TestNewRejectsBadSet(t *testing.T) {
	tests := []struct {
		name string
		set  ir.VariantSet
	}{
		{"unknown op", ir.VariantSet{Variants: []ir.VariantSpec{
			{Label: "a", Op: "nope", Fields: []ir.FieldSpec{{Name: "x", Type: "float32"}}},
		}}},
		{"op needs missing field", ir.VariantSet{Variants: []ir.VariantSpec{
			{Label: "a", Op: "circle_area", Fields: []ir.FieldSpec{{Name: "x", Type: "float32"}}},
		}}},
		{"bad type", ir.VariantSet{Variants: []ir.VariantSpec{
			{Label: "a", Op: "sum", Fields: []ir.FieldSpec{{Name: "x", Type: "complex"}}},
		}}},
		{"over the cap", ir.VariantSet{MaxPayload: 4, Variants: []ir.VariantSpec{
			{Label: "a", Op: "sum", Fields: []ir.FieldSpec{{Name: "x", Type: "float64"}}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.set)
			require.Error(t, err)
			var se *StepError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, ErrCodeInvalidVariantSet, se.Code)
		})
	}

	_, err := New(ir.VariantSet{MaxPayload: 4, Variants: []ir.VariantSpec{
		{Label: "a", Op: "sum", Fields: []ir.FieldSpec{{Name: "x", Type: "float64"}}},
	}})
	assert.Equal(t, string(variant.CodeOversizedPayload), CodeOf(err))
}

func TestScenarioMixedShapes(t *testing.T) {
	e := newEngine(t)
	_, err := e.Insert("c1", "circle", map[string]float64{"radius": 5})
	require.NoError(t, err)
	_, err = e.Insert("r1", "rect", map[string]float64{"width": 3, "height": 4})
	require.NoError(t, err)
	_, err = e.Insert("c2", "circle", map[string]float64{"radius": 2})
	require.NoError(t, err)

	res, err := e.Sweep(context.Background())
	require.NoError(t, err)

	// circles come first: tag 0 precedes tag 1, insertion order kept inside.
	assert.Equal(t, []string{"c1", "c2", "r1"}, res.IDs())
	c1, _ := res.ByID("c1")
	r1, _ := res.ByID("r1")
	c2, _ := res.ByID("c2")
	assert.InDelta(t, 78.5397, c1, 1e-3)
	assert.InDelta(t, 12.0, r1, 1e-3)
	assert.InDelta(t, 12.566, c2, 1e-3)

	assert.Equal(t, 2, res.Stats.Runs)
	assert.Equal(t, 2, res.Stats.Lookups)
	assert.Equal(t, 1, res.Stats.Passes)
	assert.Equal(t, 3, res.Epoch)

	want := []ir.RunSpan{
		{Label: "circle", Tag: 0, Start: 0, Len: 2},
		{Label: "rect", Tag: 1, Start: 2, Len: 1},
	}
	if diff := cmp.Diff(want, res.Runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSweepWithoutMutationSkipsGrouping(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Fill("s", 1000, []FillItem{
		{Variant: "circle", Fields: map[string]float64{"radius": 1}},
		{Variant: "rect", Fields: map[string]float64{"width": 2, "height": 3}},
	}))

	first, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.Passes)

	second, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.Passes)
	assert.Equal(t, 2, second.Stats.Lookups)
	assert.Equal(t, 1000, second.Stats.Invocations)

	sweeps := e.Sweeps()
	require.Len(t, sweeps, 2)
	assert.Equal(t, sweeps[0].Epoch, sweeps[1].Epoch)
	assert.Equal(t, sweeps[0].OutputsHash, sweeps[1].OutputsHash)
	assert.Equal(t, 0, sweeps[0].Index)
	assert.Equal(t, 1, sweeps[1].Index)
	assert.Less(t, sweeps[0].Seq, sweeps[1].Seq)
}

func TestInsertErrors(t *testing.T) {
	e := newEngine(t)
	_, err := e.Insert("a", "circle", map[string]float64{"radius": 1})
	require.NoError(t, err)

	_, err = e.Insert("a", "circle", nil)
	assert.Equal(t, string(ErrCodeDuplicateID), CodeOf(err))

	_, err = e.Insert("b", "hexagon", nil)
	assert.Equal(t, string(variant.CodeUnknownTag), CodeOf(err))

	_, err = e.Insert("b", "circle", map[string]float64{"diameter": 1})
	assert.Equal(t, string(ErrCodeInvalidFields), CodeOf(err))

	assert.Equal(t, 1, e.Len())
	assert.False(t, e.Contains("b"))
}

func TestRemoveThenUse(t *testing.T) {
	e := newEngine(t)
	_, err := e.Insert("a", "circle", map[string]float64{"radius": 1})
	require.NoError(t, err)
	_, err = e.Insert("b", "rect", map[string]float64{"width": 1, "height": 1})
	require.NoError(t, err)

	require.NoError(t, e.Remove("a"))
	assert.False(t, e.Contains("a"))
	assert.True(t, e.Contains("b"))
	assert.Equal(t, 1, e.Len())

	err = e.Remove("a")
	assert.Equal(t, string(variant.CodeInvalidHandle), CodeOf(err))
	err = e.Write("a", map[string]float64{"radius": 2})
	assert.Equal(t, string(variant.CodeInvalidHandle), CodeOf(err))
	_, _, err = e.Read("a")
	assert.Equal(t, string(variant.CodeInvalidHandle), CodeOf(err))

	err = e.Remove("never")
	assert.Equal(t, string(ErrCodeUnknownID), CodeOf(err))

	// A removed ID may be bound again.
	_, err = e.Insert("a", "circle", map[string]float64{"radius": 3})
	require.NoError(t, err)
	assert.True(t, e.Contains("a"))
}

func TestWriteAndRead(t *testing.T) {
	e := newEngine(t)
	_, err := e.Insert("r", "rect", map[string]float64{"width": 2, "height": 3})
	require.NoError(t, err)

	_, err = e.Sweep(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Write("r", map[string]float64{"width": 5, "height": 5}))
	label, fields, err := e.Read("r")
	require.NoError(t, err)
	assert.Equal(t, "rect", label)
	assert.Equal(t, map[string]float64{"width": 5, "height": 5}, fields)

	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Passes, "write must not force a regroup")
	v, ok := res.ByID("r")
	require.True(t, ok)
	assert.InDelta(t, 25.0, v, 1e-9)
	assert.Equal(t, 2, res.Epoch)

	err = e.Write("r", map[string]float64{"radius": 1})
	assert.Equal(t, string(ErrCodeInvalidFields), CodeOf(err))
}

func TestSweepOperationFailure(t *testing.T) {
	e := newEngine(t)
	_, err := e.Insert("one", "inv", map[string]float64{"x": 2})
	require.NoError(t, err)
	_, err = e.Insert("zero", "inv", map[string]float64{"x": 0})
	require.NoError(t, err)

	_, err = e.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, string(ErrCodeOperationFailed), CodeOf(err))
	assert.ErrorIs(t, err, catalog.ErrDivideByZero)
	assert.Empty(t, e.Sweeps())
}

func TestFill(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Fill("p", 5, []FillItem{
		{Variant: "rect", Fields: map[string]float64{"width": 1, "height": 1}},
		{Variant: "circle", Fields: map[string]float64{"radius": 1}},
	}))
	assert.Equal(t, 5, e.Len())
	assert.Equal(t, 2, e.RunCount())
	for i := range 5 {
		assert.True(t, e.Contains(fmt.Sprintf("p%d", i)))
	}

	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3", "p0", "p2", "p4"}, res.IDs())

	err = e.Fill("q", 1, nil)
	assert.Equal(t, string(ErrCodeInvalidFields), CodeOf(err))
	err = e.Fill("p", 1, []FillItem{{Variant: "circle"}})
	assert.Equal(t, string(ErrCodeDuplicateID), CodeOf(err))
}

func TestParallelSweepMatchesSequential(t *testing.T) {
	items := []FillItem{
		{Variant: "circle", Fields: map[string]float64{"radius": 1.5}},
		{Variant: "rect", Fields: map[string]float64{"width": 2, "height": 3}},
		{Variant: "inv", Fields: map[string]float64{"x": 4}},
	}
	run := func(workers int) ir.SweepRecord {
		e := newEngine(t, WithWorkers(workers))
		require.NoError(t, e.Fill("n", 3000, items))
		require.NoError(t, e.Remove("n7"))
		_, err := e.Sweep(context.Background())
		require.NoError(t, err)
		return e.Sweeps()[0]
	}

	seq := run(1)
	for _, w := range []int{2, 4, 8} {
		par := run(w)
		if diff := cmp.Diff(seq, par); diff != "" {
			t.Errorf("workers=%d differs from sequential (-want +got):\n%s", w, diff)
		}
	}
}

func TestRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	e := newEngine(t,
		WithRecorder(rec),
		WithRunIDGenerator(NewFixedGenerator("run-1")),
		WithWorkers(2),
	)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx, "demo"))
	assert.Equal(t, "run-1", e.RunID())

	_, err := e.Insert("c", "circle", map[string]float64{"radius": 1})
	require.NoError(t, err)
	_, err = e.Sweep(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Finish(ctx, nil))

	require.Len(t, rec.runs, 1)
	assert.Equal(t, ir.RunRecord{
		ID:            "run-1",
		Name:          "demo",
		SpecHash:      e.SpecHash(),
		EngineVersion: ir.EngineVersion,
		Workers:       2,
		Status:        ir.RunStatusRunning,
	}, rec.runs[0])

	require.Len(t, rec.sweeps, 1)
	assert.Equal(t, "run-1", rec.sweeps[0].RunID)
	require.Len(t, rec.sweeps[0].Outputs, 1)
	assert.Equal(t, "3.141593", rec.sweeps[0].Outputs[0].Value)
	assert.Equal(t, ir.RunStatusOK, rec.finished["run-1"])
}

func TestRecorderFailures(t *testing.T) {
	ctx := context.Background()

	e := newEngine(t, WithRecorder(&fakeRecorder{failOn: "run"}))
	assert.ErrorContains(t, e.Start(ctx, "x"), "record run")

	rec := &fakeRecorder{failOn: "sweep"}
	e = newEngine(t, WithRecorder(rec), WithRunIDGenerator(NewFixedGenerator("r")))
	require.NoError(t, e.Start(ctx, "x"))
	_, err := e.Sweep(ctx)
	assert.ErrorContains(t, err, "record sweep")

	require.NoError(t, e.Finish(ctx, errors.New("boom")))
	assert.Equal(t, ir.RunStatusFailed, rec.finished["r"])
}

func TestSweepSeqFollowsClock(t *testing.T) {
	e := newEngine(t, WithClock(NewClockAt(40)))
	_, err := e.Insert("c", "circle", map[string]float64{"radius": 1})
	require.NoError(t, err)
	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Seq)
}

func TestNormalizeCode(t *testing.T) {
	tests := map[string]string{
		"InvalidHandle":       "INVALID_HANDLE",
		"invalid_handle":      "INVALID_HANDLE",
		"INVALID_HANDLE":      "INVALID_HANDLE",
		"DirtyStoreViolation": "DIRTY_STORE_VIOLATION",
		" UnknownId ":         "UNKNOWN_ID",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeCode(in), in)
	}
	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}
