package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func tag(gen []float32, v float32) {
	for i := range gen {
		gen[i] = v
	}
}

func TestPushRotation(t *testing.T) {
	t.Parallel()

	s, err := New(3, 2, 4)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		tag(s.Push(), float32(i))
	}
	assert.Equal(t, float32(3), s.Generation(0)[0], "newest in generation 0")
	assert.Equal(t, float32(2), s.Generation(1)[0])
	assert.Equal(t, float32(1), s.Generation(2)[0], "oldest in the last generation")

	tag(s.Push(), 4)
	assert.Equal(t, float32(4), s.Generation(0)[0])
	assert.Equal(t, float32(2), s.Generation(2)[0], "the oldest input was evicted")
}

func TestPushReturnsZeroedGeneration(t *testing.T) {
	t.Parallel()

	s, err := New(2, 1, 3)
	require.NoError(t, err)
	tag(s.Push(), 9)
	tag(s.Push(), 8)
	g0 := s.Push()
	assert.Equal(t, []float32{0, 0, 0}, g0)
	assert.Equal(t, []float32{8, 8, 8}, s.Generation(1))
}

func TestLevelIsSubslice(t *testing.T) {
	t.Parallel()

	s, err := New(1, 3, 2)
	require.NoError(t, err)
	s.Level(0, 1)[1] = 5
	assert.Equal(t, float32(5), s.Generation(0)[3])
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	s, err := New(2, 1, 2)
	require.NoError(t, err)
	tag(s.Push(), 1)
	c := s.Clone()
	tag(c.Push(), 2)
	assert.Equal(t, float32(1), s.Generation(0)[0])
	assert.Equal(t, float32(2), c.Generation(0)[0])

	require.NoError(t, s.CopyFrom(c))
	assert.Equal(t, float32(2), s.Generation(0)[0])

	other, err := New(3, 1, 2)
	require.NoError(t, err)
	assert.Error(t, s.CopyFrom(other))
}

func TestNewRejectsEmptyDimensions(t *testing.T) {
	t.Parallel()
	_, err := New(0, 1, 1)
	assert.Error(t, err)
}

// After any number of pushes the generations hold the latest inputs in
// reverse order.
func TestPushKeepsLatestInputs(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		depth := rapid.IntRange(1, 5).Draw(rt, "depth")
		pushes := rapid.IntRange(0, 12).Draw(rt, "pushes")

		s, err := New(depth, 2, 3)
		if err != nil {
			rt.Fatal(err)
		}
		for i := 1; i <= pushes; i++ {
			tag(s.Push(), float32(i))
		}
		for g := 0; g < depth; g++ {
			want := float32(pushes - g)
			if want < 0 {
				want = 0
			}
			if got := s.Generation(g)[0]; got != want {
				rt.Fatalf("generation %d holds %v, want %v", g, got, want)
			}
		}
	})
}
