package spectral

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Fallback slopes used when a fit range has too few wavenumbers.
const (
	fallbackBetaOne = 2.3
	fallbackBetaTwo = 2.6
	minFitPoints    = 5
)

// Spectrum is the radially averaged power spectrum of a field together with
// the power-law slopes fitted either side of the scale break.
type Spectrum struct {
	FFTSize   int
	PixelSize float64

	// PowerDB and FreqDB are indexed by wavenumber; entries 1..Nyquist-1 are
	// populated. Wavenumbers with no power are NaN.
	PowerDB []float64
	FreqDB  []float64

	LZero      int
	ScaleBreak int
	BetaTwoEnd int

	BetaOne float64
	BetaTwo float64
}

// PowerExponents accumulates the power of coeff (fftSize rows × stride
// columns) by integer radial wavenumber and fits the log-log slope over
// [LZero, ScaleBreak] and [ScaleBreak, fftSize/3]. The returned slopes are
// positive for a spectrum that decays with frequency.
func PowerExponents(coeff []complex128, fftSize int, pixelSize, scaleBreakKm float64) Spectrum {
	nyq := fftSize / 2
	stride := nyq + 1

	lZero := max(2, fftSize/256)
	breakPx := scaleBreakKm / pixelSize
	scaleBreak := nyq
	if breakPx > 0 {
		scaleBreak = min(nyq, int(float64(fftSize)/breakPx))
	}

	power := make([]float64, nyq+2)
	count := make([]int, nyq+2)
	for r := 0; r <= nyq+1 && r < fftSize; r++ {
		for c := 0; c < stride; c++ {
			wn := int(math.Sqrt(float64(r*r + c*c)))
			if wn > nyq {
				continue
			}
			v := coeff[r*stride+c]
			power[wn] += real(v)*real(v) + imag(v)*imag(v)
			count[wn]++
		}
	}

	s := Spectrum{
		FFTSize:    fftSize,
		PixelSize:  pixelSize,
		PowerDB:    make([]float64, nyq),
		FreqDB:     make([]float64, nyq),
		LZero:      lZero,
		ScaleBreak: scaleBreak,
		BetaTwoEnd: fftSize / 3,
	}
	s.PowerDB[0] = math.NaN()
	s.FreqDB[0] = math.NaN()
	for wn := 1; wn < nyq; wn++ {
		s.FreqDB[wn] = 10 * math.Log10(float64(wn)/float64(fftSize)/pixelSize)
		if count[wn] == 0 || power[wn] <= 0 {
			s.PowerDB[wn] = math.NaN()
			continue
		}
		s.PowerDB[wn] = 10 * math.Log10(power[wn]/float64(count[wn]))
	}

	s.BetaOne = fallbackBetaOne
	if scaleBreak-lZero+1 >= minFitPoints {
		s.BetaOne = -s.slope(lZero, scaleBreak)
	}
	s.BetaTwo = fallbackBetaTwo
	if s.BetaTwoEnd-scaleBreak+1 >= minFitPoints {
		s.BetaTwo = -s.slope(scaleBreak, s.BetaTwoEnd)
	}
	return s
}

// slope returns the least-squares slope of PowerDB against FreqDB over the
// inclusive wavenumber range, or 0 when the fit is degenerate.
func (s Spectrum) slope(from, to int) float64 {
	var x, y []float64
	for wn := max(from, 1); wn <= to && wn < len(s.PowerDB); wn++ {
		if math.IsNaN(s.PowerDB[wn]) {
			continue
		}
		x = append(x, s.FreqDB[wn])
		y = append(y, s.PowerDB[wn])
	}
	if len(x) < 2 {
		return 0
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}
