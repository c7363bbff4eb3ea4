// Package stack holds the time-lagged generations of a decomposed cascade.
//
// Generation 0 is the most recent decomposition. Each generation is one
// contiguous block of Levels×Size values, level by level, so a level is a
// plain sub-slice of its generation.
package stack

import "fmt"

// Stack is a ring of cascade generations.
type Stack struct {
	levels int
	size   int
	gens   [][]float32
}

// New allocates a zero-filled stack.
func New(generations, levels, size int) (*Stack, error) {
	if generations < 1 || levels < 1 || size < 1 {
		return nil, fmt.Errorf("stack dimensions must be positive, got %d generations, %d levels, %d pixels",
			generations, levels, size)
	}
	s := &Stack{levels: levels, size: size, gens: make([][]float32, generations)}
	for g := range s.gens {
		s.gens[g] = make([]float32, levels*size)
	}
	return s, nil
}

// Generations returns the temporal depth.
func (s *Stack) Generations() int { return len(s.gens) }

// Levels returns the number of levels per generation.
func (s *Stack) Levels() int { return s.levels }

// Size returns the number of pixels per level.
func (s *Stack) Size() int { return s.size }

// Generation returns the backing block of generation g.
func (s *Stack) Generation(g int) []float32 { return s.gens[g] }

// Level returns level l of generation g.
func (s *Stack) Level(g, l int) []float32 {
	return s.gens[g][l*s.size : (l+1)*s.size]
}

// Push shifts every generation one step back, evicting the oldest, and
// returns the zeroed generation 0 for the caller to fill.
func (s *Stack) Push() []float32 {
	last := len(s.gens) - 1
	evicted := s.gens[last]
	copy(s.gens[1:], s.gens[:last])
	clear(evicted)
	s.gens[0] = evicted
	return evicted
}

// Clone returns a deep copy.
func (s *Stack) Clone() *Stack {
	c := &Stack{levels: s.levels, size: s.size, gens: make([][]float32, len(s.gens))}
	for g, gen := range s.gens {
		c.gens[g] = append([]float32(nil), gen...)
	}
	return c
}

// CopyFrom overwrites s with the contents of o, which must have the same
// dimensions.
func (s *Stack) CopyFrom(o *Stack) error {
	if o.levels != s.levels || o.size != s.size || len(o.gens) != len(s.gens) {
		return fmt.Errorf("stack dimensions differ: %dx%dx%d vs %dx%dx%d",
			len(s.gens), s.levels, s.size, len(o.gens), o.levels, o.size)
	}
	for g := range s.gens {
		copy(s.gens[g], o.gens[g])
	}
	return nil
}

// Reset zeroes every generation.
func (s *Stack) Reset() {
	for _, gen := range s.gens {
		clear(gen)
	}
}
