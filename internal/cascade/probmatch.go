package cascade

import (
	"slices"

	"github.com/banshee-data/scalesep/internal/cascade/grid"
)

// setReference records the sorted valid rates of raw as the target
// distribution for probability matching.
func (e *Engine) setReference(raw []float32) {
	e.reference = e.reference[:0]
	for _, v := range raw {
		if grid.Valid(v, e.cfg.NoData) {
			e.reference = append(e.reference, v)
		}
	}
	slices.Sort(e.reference)
}

// matchDistribution replaces each valid pixel of fx by the reference value
// of the same rank, so the forecast keeps its pattern but takes on the
// observed rate distribution. Ranks are scaled when the counts differ.
func (e *Engine) matchDistribution(fx []float32) {
	ref := e.reference
	if len(ref) == 0 {
		return
	}
	idx := make([]int, 0, len(fx))
	for i, v := range fx {
		if grid.Valid(v, e.cfg.NoData) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case fx[a] < fx[b]:
			return -1
		case fx[a] > fx[b]:
			return 1
		}
		return 0
	})
	n := len(idx)
	for rank, i := range idx {
		j := len(ref) - 1
		if n > 1 {
			j = rank * (len(ref) - 1) / (n - 1)
		}
		fx[i] = ref[j]
	}
}
