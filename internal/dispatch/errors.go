package dispatch

import (
	"fmt"

	"github.com/roach88/tagbatch/internal/store"
	"github.com/roach88/tagbatch/internal/variant"
)

// OpError reports an operation that failed during a sweep.
type OpError struct {
	Slot   int
	Handle store.Handle
	Tag    variant.Tag
	Label  string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("operation %q (tag %d) failed at slot %d, handle %s: %v",
		e.Label, e.Tag, e.Slot, e.Handle, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
