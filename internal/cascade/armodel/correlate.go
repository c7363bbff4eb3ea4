package armodel

import "math"

// Correlate returns the Pearson correlation between adv and cur over the
// pixels where mask is 1 and adv holds data (adv > noData+1). Moments are
// population moments. When fewer than two pixels qualify the result is
// noData; a degenerate denominator yields 0.
func Correlate(adv, cur []float32, mask []uint8, noData float32) float32 {
	var sa, sc, saa, scc, sac float64
	total := 0
	for i, m := range mask {
		if m != 1 || adv[i] <= noData+1 {
			continue
		}
		a, c := float64(adv[i]), float64(cur[i])
		sa += a
		sc += c
		saa += a * a
		scc += c * c
		sac += a * c
		total++
	}
	if total <= 1 {
		return noData
	}
	n := float64(total)
	ma, mc := sa/n, sc/n
	cov := sac/n - ma*mc
	va := saa/n - ma*ma
	vc := scc/n - mc*mc
	denom := va * vc
	if denom <= 0 {
		return 0
	}
	return float32(cov / math.Sqrt(denom))
}
