package store

import (
	"slices"

	"github.com/roach88/tagbatch/internal/variant"
)

// Run is a maximal range of slots sharing one tag.
type Run struct {
	Tag   variant.Tag
	Start int
	Len   int
}

// End returns the slot one past the run.
func (r Run) End() int { return r.Start + r.Len }

// Group reorders the records into tag-contiguous runs and returns them in
// ascending tag order.
//
// A clean Store returns the cached runs without moving anything. The
// returned slice is owned by the Store and is valid until the next
// mutation.
func (s *Store) Group() []Run {
	if !s.dirty {
		return s.runs
	}

	n := len(s.tags)
	if n == 0 {
		s.runs = s.runs[:0]
		s.dirty = false
		s.passes++
		return s.runs
	}

	// Count.
	var maxTag variant.Tag
	for _, t := range s.tags {
		maxTag = max(maxTag, t)
	}
	k := int(maxTag) + 1
	s.counts = slices.Grow(s.counts[:0], k)[:k]
	clear(s.counts)
	for _, t := range s.tags {
		s.counts[t]++
	}

	// Prefix sum into start offsets, collecting runs as we go.
	s.runs = s.runs[:0]
	pos := 0
	for t, c := range s.counts {
		if c == 0 {
			continue
		}
		s.runs = append(s.runs, Run{Tag: variant.Tag(t), Start: pos, Len: c})
		s.counts[t] = pos
		pos += c
	}

	// Stable permute into the scratch buffers, then swap them in.
	s.auxTags = slices.Grow(s.auxTags[:0], n)[:n]
	s.auxHandles = slices.Grow(s.auxHandles[:0], n)[:n]
	s.auxArena = slices.Grow(s.auxArena[:0], n*s.stride)[:n*s.stride]
	for i, t := range s.tags {
		dst := s.counts[t]
		s.counts[t]++
		s.auxTags[dst] = t
		s.auxHandles[dst] = s.slotHandle[i]
		copy(s.auxArena[dst*s.stride:(dst+1)*s.stride], s.arena[i*s.stride:(i+1)*s.stride])
	}
	s.tags, s.auxTags = s.auxTags, s.tags
	s.slotHandle, s.auxHandles = s.auxHandles, s.slotHandle
	s.arena, s.auxArena = s.auxArena, s.arena

	for slot, idx := range s.slotHandle {
		s.handleSlot[idx] = int32(slot)
	}

	s.dirty = false
	s.passes++
	return s.runs
}

// Runs returns a copy of the cached runs from the last Group.
func (s *Store) Runs() []Run {
	return slices.Clone(s.runs)
}
