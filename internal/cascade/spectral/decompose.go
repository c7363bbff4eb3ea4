package spectral

import (
	"fmt"
	"math"
)

// DecomposerConfig carries the tunables of a Decomposer.
type DecomposerConfig struct {
	CascadeSize int
	Levels      int
	ScaleRatio  float64
	PixelSize   float64 // km

	StdFloor          float64 // levels with a smaller std are zeroed (default: 0.1)
	RainFracThreshold float64 // below this the spectrum is not fitted (default: 0.03)
	ScaleBreakKm      float64 // spatial scale break for the slopes (default: 4)
	DryBetaOne        float64 // slope used for dry fields (default: 2.2)
	DryBetaTwo        float64 // slope used for dry fields (default: 2.5)
}

// Validate checks the configuration.
func (c DecomposerConfig) Validate() error {
	if c.CascadeSize < 2 {
		return fmt.Errorf("cascade size must be at least 2, got %d", c.CascadeSize)
	}
	if c.Levels < 2 {
		return fmt.Errorf("levels must be at least 2, got %d", c.Levels)
	}
	if c.PixelSize <= 0 {
		return fmt.Errorf("pixel size must be positive, got %f", c.PixelSize)
	}
	if c.StdFloor < 0 {
		return fmt.Errorf("std floor must be non-negative, got %f", c.StdFloor)
	}
	return nil
}

// Result is the per-level output of one decomposition.
type Result struct {
	Means    []float32
	Stds     []float32
	BetaOne  float32
	BetaTwo  float32
	Spectrum *Spectrum // nil when the field was too dry to fit
}

// Decomposer splits a cascade-domain field into band-limited levels. The
// field is zero padded into a 2×cascadeSize FFT so that circular wrap-around
// does not leak between opposite edges.
//
// A Decomposer reuses its FFT buffers and is not safe for concurrent use.
type Decomposer struct {
	cfg  DecomposerConfig
	bank *FilterBank
	plan *Plan

	spatial  []float64
	coeff    []complex128
	filtered []complex128
}

// NewDecomposer allocates the FFT plan and scratch buffers.
func NewDecomposer(cfg DecomposerConfig, bank *FilterBank) (*Decomposer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bank == nil || bank.Levels() != cfg.Levels {
		return nil, fmt.Errorf("filter bank does not match %d levels", cfg.Levels)
	}
	plan, err := NewPlan(2 * cfg.CascadeSize)
	if err != nil {
		return nil, err
	}
	return &Decomposer{
		cfg:      cfg,
		bank:     bank,
		plan:     plan,
		spatial:  make([]float64, plan.Size()*plan.Size()),
		coeff:    make([]complex128, plan.ArraySize()),
		filtered: make([]complex128, plan.ArraySize()),
	}, nil
}

// FFTSize returns the edge of the padded FFT square.
func (d *Decomposer) FFTSize() int { return d.plan.Size() }

// Decompose writes Levels normalized levels of field into dst, which holds
// Levels×cascadeSize² values laid out level by level. Levels 0..L-2 are
// band-pass filtered; the last level is the residual so that
//
//	fieldMean + Σ std[l]×dst[l][i] == field[i]
//
// holds at every pixel where mask[i] == 1, up to the masked mean removed
// from the residual level. A level whose std does not exceed StdFloor is
// zeroed and its content drops out of the sum.
func (d *Decomposer) Decompose(field []float32, mask []uint8, fieldMean, noData, rainFrac float32, dst []float32) (Result, error) {
	cas := d.cfg.CascadeSize
	n := cas * cas
	levels := d.cfg.Levels
	if len(field) != n || len(mask) != n {
		return Result{}, fmt.Errorf("field and mask must have %d values, got %d and %d", n, len(field), len(mask))
	}
	if len(dst) != levels*n {
		return Result{}, fmt.Errorf("destination must have %d values, got %d", levels*n, len(dst))
	}

	res := Result{
		Means: make([]float32, levels),
		Stds:  make([]float32, levels),
	}

	nValid := 0
	for _, m := range mask {
		nValid += int(m)
	}

	fft := d.plan.Size()
	clear(d.spatial)
	for r := 0; r < cas; r++ {
		for c := 0; c < cas; c++ {
			i := r*cas + c
			v := float32(mask[i]) * (field[i] - fieldMean)
			if v < noData+1 {
				v = 0
			}
			d.spatial[r*fft+c] = float64(v)
		}
	}
	d.plan.Forward(d.coeff, d.spatial)

	if float64(rainFrac) > d.cfg.RainFracThreshold {
		ps := PowerExponents(d.coeff, fft, d.cfg.PixelSize, d.cfg.ScaleBreakKm)
		res.Spectrum = &ps
		res.BetaOne = float32(ps.BetaOne)
		res.BetaTwo = float32(ps.BetaTwo)
	} else {
		res.BetaOne = float32(d.cfg.DryBetaOne)
		res.BetaTwo = float32(d.cfg.DryBetaTwo)
	}

	if nValid == 0 {
		clear(dst)
		return res, nil
	}

	scale := 1.0 / float64(fft*fft)
	for l := 0; l < levels; l++ {
		lev := dst[l*n : (l+1)*n]
		if l < levels-1 {
			d.bank.Apply(l, d.coeff, d.filtered)
			d.plan.Inverse(d.spatial, d.filtered, cas)
			for r := 0; r < cas; r++ {
				for c := 0; c < cas; c++ {
					lev[r*cas+c] = float32(d.spatial[r*fft+c] * scale)
				}
			}
		} else {
			for i := 0; i < n; i++ {
				if mask[i] != 1 {
					lev[i] = 0
					continue
				}
				sum := float64(fieldMean)
				for k := 0; k < levels-1; k++ {
					sum += float64(res.Stds[k]) * float64(dst[k*n+i])
				}
				lev[i] = float32(float64(field[i]) - sum)
			}
		}

		mean, std := normalizeLevel(lev, mask, nValid, d.cfg.StdFloor)
		res.Means[l] = mean
		res.Stds[l] = std
		tracef("level %d mean=%.4f std=%.4f", l, mean, std)
	}
	return res, nil
}

// normalizeLevel removes the masked mean of lev and divides by the masked
// standard deviation. A level whose std does not exceed floor is zeroed.
func normalizeLevel(lev []float32, mask []uint8, nValid int, floor float64) (float32, float32) {
	var sum float64
	for i, v := range lev {
		if mask[i] == 1 {
			sum += float64(v)
		}
	}
	mean := float32(sum / float64(nValid))

	var ss float64
	for i := range lev {
		lev[i] -= mean
		if mask[i] == 1 {
			ss += float64(lev[i]) * float64(lev[i])
		}
	}
	std := float32(math.Sqrt(ss / float64(nValid)))

	if float64(std) > floor {
		for i := range lev {
			lev[i] /= std
		}
	} else {
		clear(lev)
	}
	return mean, std
}
