package store

import (
	"fmt"
	"slices"

	"github.com/roach88/tagbatch/internal/variant"
)

// Option configures a Store.
type Option func(*config)

type config struct {
	capacity int
}

// WithCapacity pre-sizes the record arrays for n records.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// Store owns a dense array of records drawn from one sealed variant set.
//
// Slot i holds tags[i] and arena[i*stride : (i+1)*stride]. Only the first
// PayloadSize(tags[i]) bytes of a slot are meaningful.
type Store struct {
	layouts variant.Layouts
	stride  int

	tags       []variant.Tag
	arena      []byte
	slotHandle []uint32 // slot -> handle index

	handleSlot []int32  // handle index -> slot, -1 when free
	gens       []uint32 // handle index -> current generation
	free       []uint32

	dirty    bool
	sweeping bool
	runs     []Run
	passes   int

	// Grouping scratch, reused between passes.
	auxTags    []variant.Tag
	auxArena   []byte
	auxHandles []uint32
	counts     []int
}

// New creates an empty Store backed by layouts.
//
// Fails with RegistryOpen if layouts is not sealed: the slot stride is the
// sealed capacity and cannot change afterwards.
func New(layouts variant.Layouts, opts ...Option) (*Store, error) {
	if layouts == nil || !layouts.Sealed() {
		return nil, &variant.Error{
			Code:    variant.CodeRegistryOpen,
			Message: "store requires a sealed registry",
		}
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	stride := layouts.Capacity()
	s := &Store{
		layouts: layouts,
		stride:  stride,
	}
	if n := cfg.capacity; n > 0 {
		s.tags = make([]variant.Tag, 0, n)
		s.arena = make([]byte, 0, n*stride)
		s.slotHandle = make([]uint32, 0, n)
		s.handleSlot = make([]int32, 0, n)
		s.gens = make([]uint32, 0, n)
	}
	return s, nil
}

// Insert appends a record and returns its Handle.
//
// Fails with UnknownTag or PayloadSizeMismatch, and with
// DirtyStoreViolation during a sweep.
func (s *Store) Insert(tag variant.Tag, payload []byte) (Handle, error) {
	if s.sweeping {
		return Handle{}, sweepViolation("insert")
	}
	if _, err := variant.CheckPayload(s.layouts, tag, payload); err != nil {
		return Handle{}, err
	}

	idx := s.allocHandle()
	slot := len(s.tags)

	s.tags = append(s.tags, tag)
	off := len(s.arena)
	s.arena = slices.Grow(s.arena, s.stride)[:off+s.stride]
	n := copy(s.arena[off:], payload)
	clear(s.arena[off+n : off+s.stride])
	s.slotHandle = append(s.slotHandle, idx)
	s.handleSlot[idx] = int32(slot)

	s.dirty = true
	return Handle{Index: idx, Generation: s.gens[idx]}, nil
}

// InsertRecord inserts rec's tag and meaningful payload bytes.
func (s *Store) InsertRecord(rec variant.Record) (Handle, error) {
	if rec.Size > len(rec.Payload) || rec.Size < 0 {
		return Handle{}, &variant.Error{
			Code:    variant.CodePayloadSizeMismatch,
			Message: fmt.Sprintf("record size %d exceeds buffer of %d bytes", rec.Size, len(rec.Payload)),
			Tag:     rec.Tag,
			HasTag:  true,
		}
	}
	return s.Insert(rec.Tag, rec.Bytes())
}

// Remove deletes the record behind h by moving the last record into its
// slot. h is invalid afterwards; every other Handle still resolves.
func (s *Store) Remove(h Handle) error {
	if s.sweeping {
		return sweepViolation("remove")
	}
	slot, err := s.resolve(h)
	if err != nil {
		return err
	}

	last := len(s.tags) - 1
	if slot != last {
		s.tags[slot] = s.tags[last]
		copy(s.slotBytes(slot), s.slotBytes(last))
		moved := s.slotHandle[last]
		s.slotHandle[slot] = moved
		s.handleSlot[moved] = int32(slot)
	}
	s.tags = s.tags[:last]
	s.arena = s.arena[:last*s.stride]
	s.slotHandle = s.slotHandle[:last]

	s.releaseHandle(h.Index)
	s.dirty = true
	return nil
}

// Read returns a copy of the record behind h.
func (s *Store) Read(h Handle) (variant.Record, error) {
	slot, err := s.resolve(h)
	if err != nil {
		return variant.Record{}, err
	}
	tag := s.tags[slot]
	size, err := s.layouts.PayloadSize(tag)
	if err != nil {
		return variant.Record{}, err
	}
	return variant.Record{
		Tag:     tag,
		Size:    size,
		Payload: slices.Clone(s.slotBytes(slot)),
	}, nil
}

// Write replaces the payload of the record behind h. The tag never
// changes: switching variant means Remove then Insert.
//
// Write leaves the dirty flag alone since grouping depends on tags only.
func (s *Store) Write(h Handle, payload []byte) error {
	if s.sweeping {
		return sweepViolation("write")
	}
	slot, err := s.resolve(h)
	if err != nil {
		return err
	}
	if _, err := variant.CheckPayload(s.layouts, s.tags[slot], payload); err != nil {
		return err
	}
	copy(s.slotBytes(slot), payload)
	return nil
}

// Tag returns the variant tag of the record behind h.
func (s *Store) Tag(h Handle) (variant.Tag, error) {
	slot, err := s.resolve(h)
	if err != nil {
		return 0, err
	}
	return s.tags[slot], nil
}

// Contains reports whether h resolves to a live record.
func (s *Store) Contains(h Handle) bool {
	_, err := s.resolve(h)
	return err == nil
}

// SlotOf returns the current slot of h. Slots change on Remove and Group.
func (s *Store) SlotOf(h Handle) (int, error) {
	return s.resolve(h)
}

// Len returns the number of live records.
func (s *Store) Len() int { return len(s.tags) }

// IsEmpty reports whether the Store has no live records.
func (s *Store) IsEmpty() bool { return len(s.tags) == 0 }

// Dirty reports whether the tag layout changed since the last Group.
func (s *Store) Dirty() bool { return s.dirty }

// Capacity returns the slot stride in bytes.
func (s *Store) Capacity() int { return s.stride }

// Passes returns the number of grouping passes executed so far.
func (s *Store) Passes() int { return s.passes }

// TagAt returns the tag in slot. slot must be in [0, Len()).
func (s *Store) TagAt(slot int) variant.Tag { return s.tags[slot] }

// HandleAt returns the Handle of the record in slot.
func (s *Store) HandleAt(slot int) Handle {
	idx := s.slotHandle[slot]
	return Handle{Index: idx, Generation: s.gens[idx]}
}

// PayloadAt returns the full slot buffer of slot as a view into the arena.
// Callers trim it to the variant size and must not retain it across
// mutations.
func (s *Store) PayloadAt(slot int) []byte {
	return s.slotBytes(slot)
}

// Handles returns the live Handles in slot order.
func (s *Store) Handles() []Handle {
	out := make([]Handle, len(s.slotHandle))
	for i := range s.slotHandle {
		out[i] = s.HandleAt(i)
	}
	return out
}

// BeginSweep marks a sweep in flight. Until EndSweep, mutations and nested
// sweeps fail with DirtyStoreViolation.
func (s *Store) BeginSweep() error {
	if s.sweeping {
		return sweepViolation("sweep")
	}
	s.sweeping = true
	return nil
}

// EndSweep clears the in-flight mark.
func (s *Store) EndSweep() {
	s.sweeping = false
}

// Sweeping reports whether a sweep is in flight.
func (s *Store) Sweeping() bool { return s.sweeping }

func (s *Store) slotBytes(slot int) []byte {
	off := slot * s.stride
	return s.arena[off : off+s.stride : off+s.stride]
}
