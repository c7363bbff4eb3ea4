package spectral

import "math"

// Sizing defaults.
const (
	DefaultBaseLevels    = 7
	DefaultMinScaleRatio = 0.42
)

// CascadeLevels chooses the number of levels and the ratio between the
// centre wavelengths of adjacent levels so that the last level is centred on
// two pixels. Levels grow from baseLevels until adjacent levels are at least
// minRatio apart.
func CascadeLevels(cascadeSize, baseLevels int, minRatio float64) (int, float64) {
	levels := max(2, baseLevels)
	ratio := levelRatio(cascadeSize, levels)
	for ratio < minRatio {
		levels++
		ratio = levelRatio(cascadeSize, levels)
	}
	return levels, ratio
}

func levelRatio(cascadeSize, levels int) float64 {
	return math.Pow(2.0/float64(cascadeSize), 1.0/float64(levels-1))
}

// NominalScale returns the centre wavelength in pixels of a level.
func NominalScale(cascadeSize int, scaleRatio float64, level int) float64 {
	return float64(cascadeSize) * math.Pow(scaleRatio, float64(level))
}
