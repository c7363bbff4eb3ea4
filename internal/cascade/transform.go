package cascade

import "math"

const (
	// minRainRate is the lightest rate a dBr forecast converts back to.
	minRainRate = 0.1

	// minZRRate is the lightest rate a dBZ field converts back to.
	minZRRate = 0.03
)

// MMHToDBR converts rain rates in mm/h to dBr, 10·log10(R+offset), in
// place. Missing pixels keep noData.
func (t Transform) MMHToDBR(data []float32, noData float32) {
	for i, r := range data {
		if r <= noData+1 {
			continue
		}
		if r < 0 {
			r = 0
		}
		data[i] = float32(10 * math.Log10(float64(r)+t.DBROffset))
	}
}

// DBRToMMH inverts MMHToDBR in place. Rates below 0.1 mm/h become 0.
func (t Transform) DBRToMMH(data []float32, noData float32) {
	for i, d := range data {
		if d <= noData+1 {
			continue
		}
		r := math.Pow(10, float64(d)/10) - t.DBROffset
		if r < minRainRate {
			r = 0
		}
		data[i] = float32(r)
	}
}

// MMHToDBZ converts rain rates to reflectivity with Z = A·R^B in place.
// Zero rates and missing pixels are left alone.
func (t Transform) MMHToDBZ(data []float32, noData float32) {
	for i, r := range data {
		if r > 0 {
			data[i] = float32(10 * math.Log10(t.ZRA*math.Pow(float64(r), t.ZRB)))
		}
	}
}

// DBZToMMH inverts MMHToDBZ in place. Negative reflectivities and rates
// below 0.03 mm/h become 0.
func (t Transform) DBZToMMH(data []float32, noData float32) {
	for i, d := range data {
		switch {
		case d <= noData+1:
		case d <= 0:
			data[i] = 0
		default:
			z := math.Pow(10, float64(d)/10)
			r := math.Pow(z/t.ZRA, 1/t.ZRB)
			if r < minZRRate {
				r = 0
			}
			data[i] = float32(r)
		}
	}
}

// DBZToNorm applies the power transform dBZ^alpha to positive values in
// place.
func (t Transform) DBZToNorm(data []float32, noData float32) {
	for i, d := range data {
		if d > 0 {
			data[i] = float32(math.Pow(float64(d), t.NormAlpha))
		}
	}
}

// NormToDBZ inverts DBZToNorm in place. Negative values become 0.
func (t Transform) NormToDBZ(data []float32, noData float32) {
	for i, d := range data {
		switch {
		case d <= noData+1:
		case d <= 0:
			data[i] = 0
		default:
			data[i] = float32(math.Pow(float64(d), 1/t.NormAlpha))
		}
	}
}
