package store

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagbatch/internal/variant"
)

func TestGroupEmpty(t *testing.T) {
	f := newFixture(t)
	s := newStore(t, f)

	assert.Empty(t, s.Group())
	assert.Equal(t, 0, s.Passes(), "a clean empty store needs no pass")

	h, _ := s.Insert(f.circle, circlePayload(1))
	require.NoError(t, s.Remove(h))
	assert.Empty(t, s.Group())
	assert.False(t, s.Dirty())
}

func TestGroupSingleTag(t *testing.T) {
	f := newFixture(t)
	s := newStore(t, f)
	for i := range 5 {
		_, err := s.Insert(f.rect, rectPayload(byte(i)))
		require.NoError(t, err)
	}

	assert.Equal(t, []Run{{Tag: f.rect, Start: 0, Len: 5}}, s.Group())
}

func TestGroupIsStable(t *testing.T) {
	f := newFixture(t)
	s := newStore(t, f)

	// Insertion order: r0 c1 b2 c3 r4 c5
	tags := []variant.Tag{f.rect, f.circle, f.blob, f.circle, f.rect, f.circle}
	var handles []Handle
	for i, tag := range tags {
		h, err := s.Insert(tag, payloadFor(f, tag, byte(i)))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	runs := s.Group()
	want := []Run{
		{Tag: f.circle, Start: 0, Len: 3},
		{Tag: f.rect, Start: 3, Len: 2},
		{Tag: f.blob, Start: 5, Len: 1},
	}
	if diff := cmp.Diff(want, runs); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}

	wantOrder := []Handle{handles[1], handles[3], handles[5], handles[0], handles[4], handles[2]}
	assert.Equal(t, wantOrder, s.Handles())

	for i, h := range handles {
		rec, err := s.Read(h)
		require.NoError(t, err)
		assert.Equal(t, byte(i), rec.Payload[0], "handle %s", h)
	}
}

func TestGroupIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s := newStore(t, f)
	fillRandom(t, f, s, rand.New(rand.NewPCG(1, 2)), 200)

	first := slices.Clone(s.Group())
	arena := slices.Clone(s.arena)
	order := s.Handles()
	passes := s.Passes()

	second := s.Group()
	assert.Equal(t, passes, s.Passes(), "clean store reuses cached runs")
	assert.Equal(t, first, second)
	assert.Equal(t, arena, s.arena)
	assert.Equal(t, order, s.Handles())
}

func TestGroupAfterMutationRegroups(t *testing.T) {
	f := newFixture(t)
	s := newStore(t, f)

	a, _ := s.Insert(f.circle, circlePayload(0))
	_, _ = s.Insert(f.rect, rectPayload(1))
	_, _ = s.Insert(f.circle, circlePayload(2))
	s.Group()
	require.Equal(t, 1, s.Passes())

	require.NoError(t, s.Remove(a))
	assert.True(t, s.Dirty())
	runs := s.Group()
	assert.Equal(t, 2, s.Passes())
	assert.Equal(t, []Run{{Tag: f.circle, Start: 0, Len: 1}, {Tag: f.rect, Start: 1, Len: 1}}, runs)
}

// Random insert/remove sequences interleaved with grouping must keep every
// surviving handle bound to its own payload.
func TestRoundTripAndHandleIsolation(t *testing.T) {
	f := newFixture(t)
	s := newStore(t, f)
	rng := rand.New(rand.NewPCG(7, 11))

	type want struct {
		tag     variant.Tag
		payload []byte
	}
	live := map[Handle]want{}
	var removed []Handle

	for i := range 2000 {
		switch {
		case len(live) > 0 && rng.IntN(3) == 0:
			h := anyHandle(live, rng)
			require.NoError(t, s.Remove(h))
			delete(live, h)
			removed = append(removed, h)
		default:
			tag := variant.Tag(rng.IntN(3))
			p := payloadFor(f, tag, byte(i))
			h, err := s.Insert(tag, p)
			require.NoError(t, err)
			live[h] = want{tag, p}
		}
		if i%97 == 0 {
			s.Group()
		}
	}
	s.Group()

	require.Equal(t, len(live), s.Len())
	for h, w := range live {
		rec, err := s.Read(h)
		require.NoError(t, err)
		assert.Equal(t, w.tag, rec.Tag)
		assert.Equal(t, w.payload, rec.Bytes())
	}
	for _, h := range removed {
		assert.False(t, s.Contains(h), "removed handle %s still resolves", h)
	}

	// Runs cover the array exactly and every slot matches its run tag.
	next := 0
	for _, r := range s.Group() {
		assert.Equal(t, next, r.Start)
		for slot := r.Start; slot < r.End(); slot++ {
			assert.Equal(t, r.Tag, s.TagAt(slot))
		}
		next = r.End()
	}
	assert.Equal(t, s.Len(), next)
}

func payloadFor(f fixture, tag variant.Tag, id byte) []byte {
	switch tag {
	case f.circle:
		return circlePayload(id)
	case f.rect:
		return rectPayload(id)
	default:
		return []byte{id, id, id}
	}
}

func fillRandom(t *testing.T, f fixture, s *Store, rng *rand.Rand, n int) {
	t.Helper()
	for i := range n {
		tag := variant.Tag(rng.IntN(3))
		_, err := s.Insert(tag, payloadFor(f, tag, byte(i)))
		require.NoError(t, err)
	}
}

func anyHandle[V any](m map[Handle]V, rng *rand.Rand) Handle {
	n := rng.IntN(len(m))
	for h := range m {
		if n == 0 {
			return h
		}
		n--
	}
	panic("unreachable")
}
