package spectral

import (
	"fmt"
	"math"
)

// Filter bank defaults.
const (
	DefaultFilterWidth = 2.0
	DefaultFilterFloor = 0.001
)

// FilterBank holds one band-pass mask per cascade level over the half
// spectrum of a 2×cascadeSize FFT. The 1-D profiles sum to one at every
// wavenumber before sparsification, so the levels partition the spectrum.
// The DC coefficient passes through every level.
type FilterBank struct {
	fftSize int
	nyquist int
	stride  int
	levels  int

	profiles [][]float64 // [level][0..nyquist]
	masks    [][]float64 // [level][(nyquist+1)*stride]
}

// NewFilterBank computes the masks for a cascade of the given size. width is
// the exponential taper (2.0) and floor zeroes normalized weights below it
// (0.001).
func NewFilterBank(cascadeSize, levels int, scaleRatio, width, floor float64) (*FilterBank, error) {
	if cascadeSize < 2 {
		return nil, fmt.Errorf("cascade size must be at least 2, got %d", cascadeSize)
	}
	if levels < 1 {
		return nil, fmt.Errorf("levels must be positive, got %d", levels)
	}
	if scaleRatio <= 0 || scaleRatio >= 1 {
		return nil, fmt.Errorf("scale ratio must be in (0, 1), got %f", scaleRatio)
	}

	fftSize := 2 * cascadeSize
	nyq := fftSize / 2
	fb := &FilterBank{
		fftSize:  fftSize,
		nyquist:  nyq,
		stride:   nyq + 1,
		levels:   levels,
		profiles: make([][]float64, levels),
		masks:    make([][]float64, levels),
	}

	sum := make([]float64, nyq+1)
	centreWaveLength := float64(cascadeSize)
	for l := 0; l < levels; l++ {
		prof := make([]float64, nyq+1)
		centreFreq := 1.0 / centreWaveLength
		for wn := 1; wn <= nyq; wn++ {
			freq := float64(wn) / float64(fftSize)
			rel := centreFreq / freq
			if freq > centreFreq {
				rel = freq / centreFreq
			}
			prof[wn] = math.Exp(-width * rel)
			sum[wn] += prof[wn]
		}
		fb.profiles[l] = prof
		centreWaveLength *= scaleRatio
	}

	for l := 0; l < levels; l++ {
		prof := fb.profiles[l]
		for wn := 1; wn <= nyq; wn++ {
			w := prof[wn] / sum[wn]
			if w < floor {
				w = 0
			}
			prof[wn] = w
		}
		fb.masks[l] = fb.radialMask(prof)
	}
	return fb, nil
}

func (fb *FilterBank) radialMask(prof []float64) []float64 {
	mask := make([]float64, (fb.nyquist+1)*fb.stride)
	for r := 0; r <= fb.nyquist; r++ {
		for c := 0; c < fb.stride; c++ {
			wn := math.Sqrt(float64(r*r + c*c))
			if wn > float64(fb.nyquist) {
				continue
			}
			mask[r*fb.stride+c] = prof[int(wn)]
		}
	}
	mask[0] = 1.0
	return mask
}

// Levels returns the number of masks.
func (fb *FilterBank) Levels() int { return fb.levels }

// Nyquist returns the largest wavenumber of the FFT.
func (fb *FilterBank) Nyquist() int { return fb.nyquist }

// Profile returns the 1-D weights of a level indexed by wavenumber
// 0..Nyquist. Index 0 is unused and zero.
func (fb *FilterBank) Profile(level int) []float64 { return fb.profiles[level] }

// Mask returns the 2-D mask of a level, (Nyquist+1) rows by Stride columns.
func (fb *FilterBank) Mask(level int) []float64 { return fb.masks[level] }

// ProfileSum returns the sum over levels of the sparsified weights at wn.
func (fb *FilterBank) ProfileSum(wn int) float64 {
	var s float64
	for _, p := range fb.profiles {
		s += p[wn]
	}
	return s
}

// Apply writes the coefficients of in, weighted by the mask of level, into
// out. Rows above Nyquist mirror onto the mask rows below it.
func (fb *FilterBank) Apply(level int, in, out []complex128) {
	mask := fb.masks[level]
	s := fb.stride
	for r := 0; r < fb.fftSize; r++ {
		mr := r
		if r > fb.nyquist {
			mr = fb.fftSize - r
		}
		m := mask[mr*s : (mr+1)*s]
		row := r * s
		for c := 0; c < s; c++ {
			out[row+c] = complex(m[c], 0) * in[row+c]
		}
	}
}
