package armodel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const noData = -999

func TestCorrelate(t *testing.T) {
	t.Parallel()

	cur := []float32{1, 2, 3, 4, 5}
	mask := []uint8{1, 1, 1, 1, 1}

	t.Run("identical", func(t *testing.T) {
		assert.InDelta(t, 1, Correlate(cur, cur, mask, noData), 1e-6)
	})
	t.Run("reversed", func(t *testing.T) {
		adv := []float32{5, 4, 3, 2, 1}
		assert.InDelta(t, -1, Correlate(adv, cur, mask, noData), 1e-6)
	})
	t.Run("masked and missing pixels are skipped", func(t *testing.T) {
		adv := []float32{1, 2, noData, 40, 5}
		m := []uint8{1, 1, 1, 0, 1}
		assert.InDelta(t, 1, Correlate(adv, cur, m, noData), 1e-6)
	})
	t.Run("too few pixels", func(t *testing.T) {
		adv := []float32{1, noData, noData, noData, noData}
		assert.Equal(t, float32(noData), Correlate(adv, cur, mask, noData))
	})
	t.Run("constant level", func(t *testing.T) {
		adv := []float32{2, 2, 2, 2, 2}
		assert.Equal(t, float32(0), Correlate(adv, cur, mask, noData))
	})
}

func TestUpdatePhiLagOne(t *testing.T) {
	t.Parallel()

	corr := []float32{0.9, 0.2}
	phi := make([]float32, 4)
	bad, err := UpdatePhi(corr, phi, 2, 1)
	require.NoError(t, err)
	assert.Empty(t, bad)

	assert.InDelta(t, 0.35, corr[1], 1e-6, "low correlation pulled towards 0.5")
	assert.InDelta(t, 0.9, phi[2], 1e-6)
	assert.InDelta(t, 0.35, phi[3], 1e-6)
	assert.InDelta(t, math.Sqrt(1-0.81), phi[0], 1e-6)
	assert.InDelta(t, math.Sqrt(1-0.35*0.35), phi[1], 1e-6)
}

func TestUpdatePhiLagTwo(t *testing.T) {
	t.Parallel()

	const levels = 1
	corr := []float32{0.8, 0.7}
	phi := make([]float32, 3*levels)
	for i := range phi {
		phi[i] = 42
	}
	bad, err := UpdatePhi(corr, phi, levels, 2)
	require.NoError(t, err)
	assert.Empty(t, bad)

	r1, r2 := 0.8, 0.7
	wantPhi1 := r1 * (1 - r2) / (1 - r1*r1)
	wantPhi2 := (r2 - r1*r1) / (1 - r1*r1)
	assert.InDelta(t, wantPhi1, phi[1], 1e-5)
	assert.InDelta(t, wantPhi2, phi[2], 1e-5)

	t1 := (1 + wantPhi2) / (1 - wantPhi2)
	t2 := (1-wantPhi2)*(1-wantPhi2) - wantPhi1*wantPhi1
	assert.InDelta(t, math.Sqrt(t1*t2), phi[0], 1e-5)
}

func TestUpdatePhiRepairsLagTwo(t *testing.T) {
	t.Parallel()

	corr := []float32{0.3, 0.9}
	phi := make([]float32, 3)
	_, err := UpdatePhi(corr, phi, 1, 2)
	require.NoError(t, err)

	r1 := 0.5 * (0.3 + 0.5)
	assert.InDelta(t, r1, corr[0], 1e-6)
	assert.InDelta(t, math.Pow(r1, 1.7), corr[1], 1e-6, "lag-2 replaced, then floored")

	corr = []float32{0.9, 0.1}
	_, err = UpdatePhi(corr, phi, 1, 2)
	require.NoError(t, err)
	u := 0.81
	floor := (3*u - 2 + 2*math.Pow(1-u, 1.5)) / u
	assert.InDelta(t, floor, corr[1], 1e-6)
}

func TestUpdatePhiSentinelAndPerfectCorrelation(t *testing.T) {
	t.Parallel()

	corr := []float32{noData, 1, noData, 1}
	phi := make([]float32, 6)
	_, err := UpdatePhi(corr, phi, 2, 2)
	require.NoError(t, err)
	for i, v := range phi {
		assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "phi[%d]=%v", i, v)
	}
	assert.InDelta(t, 0.25, corr[0], 1e-6)
}

func TestUpdatePhiRejectsBadShape(t *testing.T) {
	t.Parallel()
	_, err := UpdatePhi(make([]float32, 2), make([]float32, 6), 2, 3)
	assert.Error(t, err)
	_, err = UpdatePhi(make([]float32, 2), make([]float32, 6), 2, 2)
	assert.Error(t, err)
	_, err = UpdatePhi(make([]float32, 4), make([]float32, 3), 2, 2)
	assert.Error(t, err)
}

// Any pair of correlations, once repaired, must give a stationary AR(2)
// model.
func TestRepairedCorrelationsAreStationary(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		r1 := rapid.Float64Range(-0.99, 0.99).Draw(rt, "r1")
		r2 := rapid.Float64Range(-0.99, 0.99).Draw(rt, "r2")

		corr := []float32{float32(r1), float32(r2)}
		phi := make([]float32, 3)
		bad, err := UpdatePhi(corr, phi, 1, 2)
		if err != nil {
			rt.Fatal(err)
		}
		if len(bad) != 0 {
			rt.Fatalf("repaired (%v, %v) left the stationarity region: %v", corr[0], corr[1], bad)
		}
		p1, p2 := phi[1], phi[2]
		if p1+p2 >= 1 || p2-p1 >= 1 || p2 <= -1 || p2 >= 1 {
			rt.Fatalf("phi1=%v phi2=%v", p1, p2)
		}
		if phi[0] <= 0 {
			rt.Fatalf("phi0=%v for a stationary model", phi[0])
		}
	})
}

func TestDefaultCorrelations(t *testing.T) {
	t.Parallel()

	const levels = 7
	corr := make([]float32, 2*levels)
	DefaultCorrelations(corr, levels, 2, 192, 1, 0.467, 5,
		DefaultCorrelationA, DefaultCorrelationB, DefaultCorrelationC)

	for l := 0; l < levels; l++ {
		assert.Greater(t, corr[l], float32(0))
		assert.Less(t, corr[l], float32(1))
		assert.InDelta(t, math.Pow(float64(corr[l]), DefaultCorrelationC), corr[levels+l], 1e-6)
		if l > 0 {
			assert.LessOrEqual(t, corr[l], corr[l-1], "finer scales decorrelate faster")
		}
	}

	want := math.Exp(-5 / (DefaultCorrelationA * math.Pow(192, DefaultCorrelationB)))
	assert.InDelta(t, want, corr[0], 1e-6)
}
