package spectral

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cascadeSize int
		wantLevels  int
	}{
		{"64x64 map", 192, 7},
		{"tiny map", 130, 7},
		{"large map", 1152, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, ratio := CascadeLevels(tt.cascadeSize, DefaultBaseLevels, DefaultMinScaleRatio)
			assert.Equal(t, tt.wantLevels, levels)
			assert.GreaterOrEqual(t, ratio, DefaultMinScaleRatio)
			assert.InDelta(t, 2.0, NominalScale(tt.cascadeSize, ratio, levels-1), 1e-9)
		})
	}
}

func TestFilterBankPartitionOfUnity(t *testing.T) {
	t.Parallel()

	levels, ratio := CascadeLevels(192, DefaultBaseLevels, DefaultMinScaleRatio)
	fb, err := NewFilterBank(192, levels, ratio, DefaultFilterWidth, DefaultFilterFloor)
	require.NoError(t, err)

	// Sparsification drops at most floor per level, so the sum may fall
	// short of one by at most levels×floor.
	tol := float64(levels) * DefaultFilterFloor
	for wn := 1; wn <= fb.Nyquist(); wn++ {
		sum := fb.ProfileSum(wn)
		assert.LessOrEqual(t, sum, 1.0+1e-9, "wavenumber %d", wn)
		assert.GreaterOrEqual(t, sum, 1.0-tol, "wavenumber %d", wn)
	}

	for l := 0; l < levels; l++ {
		assert.Equal(t, 1.0, fb.Mask(l)[0], "DC passes level %d", l)
		for _, w := range fb.Profile(l)[1:] {
			assert.True(t, w == 0 || w >= DefaultFilterFloor)
		}
	}
}

func TestFilterBankPeaksFollowCentreWavelength(t *testing.T) {
	t.Parallel()

	levels, ratio := CascadeLevels(192, DefaultBaseLevels, DefaultMinScaleRatio)
	fb, err := NewFilterBank(192, levels, ratio, DefaultFilterWidth, DefaultFilterFloor)
	require.NoError(t, err)

	prev := 0
	for l := 0; l < levels; l++ {
		prof := fb.Profile(l)
		peak := 1
		for wn := 1; wn < len(prof); wn++ {
			if prof[wn] > prof[peak] {
				peak = wn
			}
		}
		assert.GreaterOrEqual(t, peak, prev, "level %d peaks at a finer scale than level %d", l, l-1)
		prev = peak
	}
}

func TestFilterBankRejectsBadInput(t *testing.T) {
	t.Parallel()
	_, err := NewFilterBank(1, 7, 0.5, 2, 0.001)
	assert.Error(t, err)
	_, err = NewFilterBank(64, 0, 0.5, 2, 0.001)
	assert.Error(t, err)
	_, err = NewFilterBank(64, 7, 1.5, 2, 0.001)
	assert.Error(t, err)
}

func TestPlanRoundTrip(t *testing.T) {
	t.Parallel()

	const n = 12
	p, err := NewPlan(n)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	src := make([]float64, n*n)
	for i := range src {
		src[i] = rng.NormFloat64()
	}
	coeff := make([]complex128, p.ArraySize())
	p.Forward(coeff, src)

	assert.InDelta(t, sum(src), real(coeff[0]), 1e-9, "DC equals the field sum")

	out := make([]float64, n*n)
	p.Inverse(out, coeff, n)
	for i := range src {
		assert.InDelta(t, src[i]*n*n, out[i], 1e-8)
	}
}

func TestPlanInversePartialRows(t *testing.T) {
	t.Parallel()

	const n = 8
	p, err := NewPlan(n)
	require.NoError(t, err)
	src := make([]float64, n*n)
	src[9] = 1
	coeff := make([]complex128, p.ArraySize())
	p.Forward(coeff, src)

	out := make([]float64, n*n)
	for i := range out {
		out[i] = -1
	}
	p.Inverse(out, coeff, 2)
	assert.InDelta(t, float64(n*n), out[9], 1e-9)
	assert.Equal(t, -1.0, out[2*n], "rows past the requested count are untouched")
}

func newTestDecomposer(t *testing.T, cas int) *Decomposer {
	t.Helper()
	levels, ratio := CascadeLevels(cas, DefaultBaseLevels, DefaultMinScaleRatio)
	fb, err := NewFilterBank(cas, levels, ratio, DefaultFilterWidth, DefaultFilterFloor)
	require.NoError(t, err)
	d, err := NewDecomposer(DecomposerConfig{
		CascadeSize:       cas,
		Levels:            levels,
		ScaleRatio:        ratio,
		PixelSize:         1,
		StdFloor:          0.1,
		RainFracThreshold: 0.03,
		ScaleBreakKm:      4,
		DryBetaOne:        2.2,
		DryBetaTwo:        2.5,
	}, fb)
	require.NoError(t, err)
	return d
}

// syntheticField fills a centred rows×cols window of a cas×cas field with a
// smooth bump plus noise and marks it in the mask.
func syntheticField(cas, rows, cols int, noData float32) ([]float32, []uint8, float32) {
	field := make([]float32, cas*cas)
	mask := make([]uint8, cas*cas)
	for i := range field {
		field[i] = noData
	}
	rng := rand.New(rand.NewSource(11))
	r0, c0 := (cas-rows)/2, (cas-cols)/2
	var sum float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dr, dc := float64(r-rows/2), float64(c-cols/2)
			v := 20*math.Exp(-(dr*dr+dc*dc)/(2*36)) + 2*rng.NormFloat64()
			i := (r+r0)*cas + c + c0
			field[i] = float32(v)
			mask[i] = 1
			sum += v
		}
	}
	return field, mask, float32(sum / float64(rows*cols))
}

func TestDecomposeExactReconstruction(t *testing.T) {
	t.Parallel()

	const cas = 96
	d := newTestDecomposer(t, cas)
	const noData = -999
	field, mask, mean := syntheticField(cas, 32, 24, noData)

	levels := d.cfg.Levels
	dst := make([]float32, levels*cas*cas)
	res, err := d.Decompose(field, mask, mean, noData, 0.5, dst)
	require.NoError(t, err)
	require.NotNil(t, res.Spectrum)

	n := cas * cas
	last := levels - 1
	offMask := float32(0)
	if float64(res.Stds[last]) > d.cfg.StdFloor {
		offMask = -res.Means[last] / res.Stds[last]
	}
	for i := 0; i < n; i++ {
		if mask[i] != 1 {
			// Only the masked mean is removed off the mask.
			assert.InDelta(t, offMask, dst[last*n+i], 1e-5, "pixel %d", i)
			continue
		}
		rec := float64(mean)
		for l := 0; l < levels; l++ {
			rec += float64(res.Stds[l]) * float64(dst[l*n+i])
		}
		require.InDelta(t, float64(field[i]), rec, 1e-3, "pixel %d", i)
	}

	// Every level is normalized over the mask.
	for l := 0; l < levels; l++ {
		if float64(res.Stds[l]) <= 0.1 {
			continue
		}
		var s, ss float64
		var cnt int
		for i := 0; i < n; i++ {
			if mask[i] == 1 {
				v := float64(dst[l*n+i])
				s += v
				ss += v * v
				cnt++
			}
		}
		assert.InDelta(t, 0, s/float64(cnt), 1e-4, "level %d mean", l)
		assert.InDelta(t, 1, ss/float64(cnt), 1e-3, "level %d variance", l)
	}
}

// A constant field carries all of its energy in the mean; no level may
// count the DC term again even though every mask passes it.
func TestDecomposeConstantFieldHasNoLevelEnergy(t *testing.T) {
	t.Parallel()

	const cas = 64
	d := newTestDecomposer(t, cas)
	field := make([]float32, cas*cas)
	mask := make([]uint8, cas*cas)
	for i := range field {
		field[i] = -999
	}
	for r := 16; r < 48; r++ {
		for c := 16; c < 48; c++ {
			field[r*cas+c] = 7.5
			mask[r*cas+c] = 1
		}
	}
	dst := make([]float32, d.cfg.Levels*cas*cas)
	res, err := d.Decompose(field, mask, 7.5, -999, 0, dst)
	require.NoError(t, err)

	for l := range res.Stds {
		assert.InDelta(t, 0, res.Stds[l], 1e-4, "level %d", l)
	}
	assert.Equal(t, float32(2.2), res.BetaOne)
	assert.Equal(t, float32(2.5), res.BetaTwo)
	assert.Nil(t, res.Spectrum)
}

func TestDecomposeRejectsWrongSizes(t *testing.T) {
	t.Parallel()
	d := newTestDecomposer(t, 64)
	_, err := d.Decompose(make([]float32, 10), make([]uint8, 10), 0, -999, 0, nil)
	assert.Error(t, err)
}

func TestPowerExponentsOfSmoothField(t *testing.T) {
	t.Parallel()

	const cas = 96
	d := newTestDecomposer(t, cas)
	field, mask, mean := syntheticField(cas, 48, 48, -999)
	dst := make([]float32, d.cfg.Levels*cas*cas)
	res, err := d.Decompose(field, mask, mean, -999, 1, dst)
	require.NoError(t, err)
	require.NotNil(t, res.Spectrum)

	s := res.Spectrum
	assert.Equal(t, 2, s.LZero)
	assert.Equal(t, 2*cas/4, s.ScaleBreak)
	assert.Greater(t, res.BetaOne, float32(0), "power falls with frequency")
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
