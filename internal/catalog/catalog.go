// Package catalog provides the named numeric operations that variant-set
// definitions refer to by their "op" field.
//
// Every entry is a Factory: given the variant's payload layout it checks
// the fields it needs and returns an Operation bound to their indices, so
// the per-record path does no name lookups.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/tagbatch/internal/variant"
)

// ErrDivideByZero is returned by reciprocal for a zero input.
var ErrDivideByZero = errors.New("divide by zero")

// Factory builds an operation for a payload layout.
type Factory func(layout variant.Layout) (variant.Operation[float64], error)

var factories = map[string]Factory{
	"circle_area":   circleArea,
	"rect_area":     rectArea,
	"triangle_area": triangleArea,
	"sum":           reduce(0, func(acc, v float64) float64 { return acc + v }),
	"product":       reduce(1, func(acc, v float64) float64 { return acc * v }),
	"max":           extreme("max", math.Max),
	"min":           extreme("min", math.Min),
	"mean":          mean,
	"reciprocal":    unary("reciprocal", reciprocal),
	"relu":          unary("relu", func(x float64) (float64, error) { return max(0, x), nil }),
	"sigmoid":       unary("sigmoid", func(x float64) (float64, error) { return 1 / (1 + math.Exp(-x)), nil }),
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	f, ok := factories[name]
	return f, ok
}

// Names returns every operation name, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Build resolves name and binds it to layout.
func Build(name string, layout variant.Layout) (variant.Operation[float64], error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	op, err := f(layout)
	if err != nil {
		return nil, fmt.Errorf("operation %q: %w", name, err)
	}
	return op, nil
}

func requireFields(layout variant.Layout, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j := layout.FieldIndex(n)
		if j < 0 {
			return nil, fmt.Errorf("layout has no field %q", n)
		}
		idx[i] = j
	}
	return idx, nil
}

func circleArea(layout variant.Layout) (variant.Operation[float64], error) {
	idx, err := requireFields(layout, "radius")
	if err != nil {
		return nil, err
	}
	r := idx[0]
	return func(p []byte) (float64, error) {
		x := layout.Float(p, r)
		return math.Pi * x * x, nil
	}, nil
}

func rectArea(layout variant.Layout) (variant.Operation[float64], error) {
	idx, err := requireFields(layout, "width", "height")
	if err != nil {
		return nil, err
	}
	w, h := idx[0], idx[1]
	return func(p []byte) (float64, error) {
		return layout.Float(p, w) * layout.Float(p, h), nil
	}, nil
}

func triangleArea(layout variant.Layout) (variant.Operation[float64], error) {
	idx, err := requireFields(layout, "base", "height")
	if err != nil {
		return nil, err
	}
	b, h := idx[0], idx[1]
	return func(p []byte) (float64, error) {
		return 0.5 * layout.Float(p, b) * layout.Float(p, h), nil
	}, nil
}

func reduce(init float64, fn func(acc, v float64) float64) Factory {
	return func(layout variant.Layout) (variant.Operation[float64], error) {
		n := len(layout.Fields)
		return func(p []byte) (float64, error) {
			acc := init
			for i := range n {
				acc = fn(acc, layout.Float(p, i))
			}
			return acc, nil
		}, nil
	}
}

func extreme(name string, pick func(a, b float64) float64) Factory {
	return func(layout variant.Layout) (variant.Operation[float64], error) {
		n := len(layout.Fields)
		if n == 0 {
			return nil, fmt.Errorf("%s needs at least one field", name)
		}
		return func(p []byte) (float64, error) {
			acc := layout.Float(p, 0)
			for i := 1; i < n; i++ {
				acc = pick(acc, layout.Float(p, i))
			}
			return acc, nil
		}, nil
	}
}

func mean(layout variant.Layout) (variant.Operation[float64], error) {
	n := len(layout.Fields)
	if n == 0 {
		return nil, errors.New("mean needs at least one field")
	}
	return func(p []byte) (float64, error) {
		var sum float64
		for i := range n {
			sum += layout.Float(p, i)
		}
		return sum / float64(n), nil
	}, nil
}

func unary(name string, fn func(x float64) (float64, error)) Factory {
	return func(layout variant.Layout) (variant.Operation[float64], error) {
		if len(layout.Fields) != 1 {
			return nil, fmt.Errorf("%s needs exactly one field, layout has %d", name, len(layout.Fields))
		}
		return func(p []byte) (float64, error) {
			return fn(layout.Float(p, 0))
		}, nil
	}
}

func reciprocal(x float64) (float64, error) {
	if x == 0 {
		return 0, ErrDivideByZero
	}
	return 1 / x, nil
}
