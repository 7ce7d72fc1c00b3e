package frameid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDIsStable(t *testing.T) {
	a := New(0)
	first := a.ID(7, 3, 0x4010f0)
	second := a.ID(7, 3, 0x4010f0)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, a.Len())

	// A fresh allocator derives the same id for the same frame.
	assert.Equal(t, first, New(0).ID(7, 3, 0x4010f0))
}

func TestIDDistinguishesThreadDepthAndPC(t *testing.T) {
	a := New(0)
	seen := make(map[int]struct{})
	for thread := 1; thread <= 4; thread++ {
		for depth := 0; depth < 64; depth++ {
			id := a.ID(thread, depth, uint64(0x401000+depth*8))
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %d for thread %d depth %d", id, thread, depth)
			seen[id] = struct{}{}
		}
	}
}

func TestIDProbesPastTakenID(t *testing.T) {
	a := New(0)
	want := Hash(1, 0, 0x1000)
	a.byID[want] = key{thread: 99, depth: 99, pc: 99}

	got := a.ID(1, 0, 0x1000)
	expected := want + 1
	if want == math.MaxInt32 {
		expected = 1
	}
	assert.Equal(t, expected, got)
	assert.Equal(t, got, a.ID(1, 0, 0x1000))
}

func TestHashRange(t *testing.T) {
	for pc := uint64(0); pc < 1000; pc++ {
		id := Hash(-1, int(pc), pc*0x9e3779b97f4a7c15)
		assert.GreaterOrEqual(t, id, 1)
		assert.LessOrEqual(t, id, math.MaxInt32)
	}
}

func TestTrimAtCapacity(t *testing.T) {
	a := New(2)
	a.ID(1, 0, 1)
	a.Trim()
	assert.Equal(t, 1, a.Len())

	a.ID(1, 1, 2)
	a.Trim()
	assert.Equal(t, 0, a.Len())
}

func TestIDKeepsAssignmentsPastCapacity(t *testing.T) {
	a := New(2)
	// Two keys whose hashes collide.
	first := a.ID(1, 6144, 0x401000)
	require.Equal(t, Hash(1, 77386, 0x401000), Hash(1, 6144, 0x401000))
	a.ID(2, 0, 0x10)

	second := a.ID(1, 77386, 0x401000)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, first, a.ID(1, 6144, 0x401000))
}

func TestIDNeverResetsOnItsOwn(t *testing.T) {
	a := New(1)
	seen := make(map[int]struct{})
	for depth := 0; depth < 8; depth++ {
		seen[a.ID(1, depth, 0x10)] = struct{}{}
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, 8, a.Len())
}

func TestReset(t *testing.T) {
	a := New(0)
	id := a.ID(1, 0, 0x10)
	a.Reset()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, id, a.ID(1, 0, 0x10))
}
