package store

import (
	"fmt"

	"github.com/roach88/tagbatch/internal/variant"
)

// Handle is a stable external identity for a record, independent of the
// record's physical slot.
//
// The zero Handle is never valid: generations start at 1.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.Generation == 0
}

// String formats h as "index.generation".
func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.Index, h.Generation)
}

func invalidHandle(h Handle, msg string) *variant.Error {
	return &variant.Error{
		Code:    variant.CodeInvalidHandle,
		Message: fmt.Sprintf("handle %s: %s", h, msg),
	}
}

func sweepViolation(op string) *variant.Error {
	return &variant.Error{
		Code:    variant.CodeDirtyStoreViolation,
		Message: op + " attempted while a sweep is in flight",
	}
}

// resolve returns the slot of h or an InvalidHandle error.
func (s *Store) resolve(h Handle) (int, error) {
	if h.IsZero() {
		return 0, invalidHandle(h, "zero handle")
	}
	if int(h.Index) >= len(s.gens) {
		return 0, invalidHandle(h, "unknown index")
	}
	if s.gens[h.Index] != h.Generation {
		return 0, invalidHandle(h, "stale generation")
	}
	slot := s.handleSlot[h.Index]
	if slot < 0 {
		return 0, invalidHandle(h, "already removed")
	}
	return int(slot), nil
}

// allocHandle pops a free index or mints a new one.
func (s *Store) allocHandle() uint32 {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		return idx
	}
	idx := uint32(len(s.gens))
	s.gens = append(s.gens, 1)
	s.handleSlot = append(s.handleSlot, -1)
	return idx
}

// releaseHandle invalidates idx and queues it for reuse under a new
// generation.
func (s *Store) releaseHandle(idx uint32) {
	s.handleSlot[idx] = -1
	s.gens[idx]++
	if s.gens[idx] == 0 {
		s.gens[idx] = 1
	}
	s.free = append(s.free, idx)
}
