package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagbatch/internal/variant"
)

func fields(names ...string) variant.Layout {
	fs := make([]variant.Field, len(names))
	for i, n := range names {
		fs[i] = variant.Field{Name: n, Kind: variant.Float64}
	}
	return variant.Struct(fs...)
}

func run(t *testing.T, name string, layout variant.Layout, values map[string]float64) (float64, error) {
	t.Helper()
	op, err := Build(name, layout)
	require.NoError(t, err)
	p, err := layout.Encode(values)
	require.NoError(t, err)
	return op(p)
}

func TestOperations(t *testing.T) {
	abc := fields("a", "b", "c")
	vals := map[string]float64{"a": 2, "b": -3, "c": 7}

	tests := []struct {
		name   string
		layout variant.Layout
		values map[string]float64
		want   float64
	}{
		{"circle_area", fields("radius"), map[string]float64{"radius": 2}, math.Pi * 4},
		{"rect_area", fields("height", "width"), map[string]float64{"width": 3, "height": 4}, 12},
		{"triangle_area", fields("base", "height"), map[string]float64{"base": 3, "height": 4}, 6},
		{"sum", abc, vals, 6},
		{"product", abc, vals, -42},
		{"max", abc, vals, 7},
		{"min", abc, vals, -3},
		{"mean", abc, vals, 2},
		{"reciprocal", fields("x"), map[string]float64{"x": 4}, 0.25},
		{"relu", fields("x"), map[string]float64{"x": -1}, 0},
		{"sigmoid", fields("x"), map[string]float64{"x": 0}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.name, tt.layout, tt.values)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMixedKinds(t *testing.T) {
	layout := variant.Struct(
		variant.Field{Name: "width", Kind: variant.Uint8},
		variant.Field{Name: "height", Kind: variant.Float32},
	)
	got, err := run(t, "rect_area", layout, map[string]float64{"width": 3, "height": 1.5})
	require.NoError(t, err)
	assert.InDelta(t, 4.5, got, 1e-6)
}

func TestReciprocalOfZero(t *testing.T) {
	_, err := run(t, "reciprocal", fields("x"), map[string]float64{"x": 0})
	assert.ErrorIs(t, err, ErrDivideByZero)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		op      string
		layout  variant.Layout
		wantErr string
	}{
		{"nope", fields("x"), "unknown operation"},
		{"circle_area", fields("r"), `no field "radius"`},
		{"rect_area", fields("width"), `no field "height"`},
		{"reciprocal", fields("x", "y"), "exactly one field"},
		{"mean", variant.Struct(), "at least one field"},
		{"max", variant.Struct(), "at least one field"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			_, err := Build(tt.op, tt.layout)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEmptySumIsZero(t *testing.T) {
	op, err := Build("sum", variant.Struct())
	require.NoError(t, err)
	v, err := op(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestNames(t *testing.T) {
	names := Names()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "circle_area")
	_, ok := Lookup("circle_area")
	assert.True(t, ok)
}
