package dispatch

import (
	"github.com/roach88/tagbatch/internal/store"
	"github.com/roach88/tagbatch/internal/variant"
)

// Output is one operation result.
type Output[O any] struct {
	Slot   int
	Handle store.Handle
	Tag    variant.Tag
	Value  O
}

// Sink receives sweep outputs. Returning an error aborts the sweep.
type Sink[O any] interface {
	Emit(out Output[O]) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc[O any] func(Output[O]) error

// Emit calls f(out).
func (f SinkFunc[O]) Emit(out Output[O]) error { return f(out) }

// SliceSink collects outputs in visit order.
type SliceSink[O any] struct {
	Outputs []Output[O]
}

// Emit appends out.
func (s *SliceSink[O]) Emit(out Output[O]) error {
	s.Outputs = append(s.Outputs, out)
	return nil
}

// Values returns the collected values in visit order.
func (s *SliceSink[O]) Values() []O {
	vals := make([]O, len(s.Outputs))
	for i, o := range s.Outputs {
		vals[i] = o.Value
	}
	return vals
}

// Reset drops collected outputs and keeps the backing array.
func (s *SliceSink[O]) Reset() {
	s.Outputs = s.Outputs[:0]
}

// HandleSink collects outputs keyed by Handle, for callers that need to map
// results back to their own insertion order.
type HandleSink[O any] map[store.Handle]O

// Emit records out.Value under out.Handle.
func (s HandleSink[O]) Emit(out Output[O]) error {
	s[out.Handle] = out.Value
	return nil
}
