package cascade

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// FieldStatistics summarises the latest map. Rain statistics are over the
// untransformed rates; field statistics over the dBr (or dBZ) values.
type FieldStatistics struct {
	RainMean  float32 `msgpack:"rain_mean"`
	RainStd   float32 `msgpack:"rain_std"`
	RainFrac  float32 `msgpack:"rain_frac"` // raining share of valid pixels
	CondMean  float32 `msgpack:"cond_mean"` // mean rate over raining pixels, 0 when dry
	FieldMean float32 `msgpack:"field_mean"`
	FieldStd  float32 `msgpack:"field_std"`
}

// validValues returns the values of data above noData+1.
func validValues(data []float32, noData float32) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if v > noData+1 {
			out = append(out, float64(v))
		}
	}
	return out
}

// popMeanStd returns the population mean and standard deviation of v, or
// zeros for an empty slice.
func popMeanStd(v []float64) (float32, float32) {
	if len(v) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(v, nil)
	return float32(mean), float32(math.Sqrt(variance))
}

// rainStatistics fills the rain fields of s from raw rates.
func rainStatistics(s *FieldStatistics, raw []float32, noData, rainThreshold, fracThreshold float32) int {
	valid := validValues(raw, noData)
	var raining int
	var condSum float64
	for _, v := range raw {
		if v >= rainThreshold {
			raining++
			condSum += float64(v)
		}
	}
	s.RainMean, s.RainStd = popMeanStd(valid)
	s.RainFrac, s.CondMean = 0, 0
	if len(valid) > 0 {
		s.RainFrac = float32(raining) / float32(len(valid))
	}
	if s.RainFrac >= fracThreshold && raining > 0 {
		s.CondMean = float32(condSum / float64(raining))
	}
	return len(valid)
}
