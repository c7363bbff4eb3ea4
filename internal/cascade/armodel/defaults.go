package armodel

import "math"

// Coefficients of the correlation-time power law used when no lagged
// correlations can be measured.
const (
	DefaultCorrelationA = 0.14
	DefaultCorrelationB = 1.8
	DefaultCorrelationC = 1.7
)

// DefaultCorrelations fills corr with climatological correlations. The
// correlation time of a level grows with its nominal scale as a×scale^b
// minutes, starting from cascadeSize×pixelSize km and shrinking by
// scaleRatio per level. Lag-1 values below 0.5 are pulled towards 0.5 and
// with two lags the lag-2 value is r1^c.
func DefaultCorrelations(corr []float32, levels, lags, cascadeSize int, pixelSize, scaleRatio, timeStep, a, b, c float64) {
	scale := float64(cascadeSize) * pixelSize
	for l := 0; l < levels; l++ {
		corrTime := a * math.Pow(scale, b)
		r1 := math.Exp(-timeStep / corrTime)
		if r1 < lowCorrelation {
			r1 = 0.5 * (r1 + lowCorrelation)
		}
		corr[l] = float32(r1)
		if lags == 2 {
			corr[levels+l] = float32(math.Pow(r1, c))
		}
		scale *= scaleRatio
	}
}
