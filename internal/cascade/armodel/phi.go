package armodel

import (
	"fmt"
	"math"
)

const (
	// lowCorrelation is the lag-1 value below which a measured correlation
	// is pulled halfway towards it.
	lowCorrelation = 0.5

	// lagTwoExponent relates a repaired lag-1 correlation to its lag-2
	// companion.
	lagTwoExponent = 1.7

	// maxCorrelation keeps 1-r² away from zero for perfectly persistent
	// levels.
	maxCorrelation = 0.9999
)

// Violation records a level whose AR(2) parameters fall outside the
// stationarity region even after repair.
type Violation struct {
	Level      int
	Phi1, Phi2 float32
}

func (v Violation) String() string {
	return fmt.Sprintf("level %d: phi1=%.4f phi2=%.4f", v.Level, v.Phi1, v.Phi2)
}

// UpdatePhi derives the AR coefficients of every level from corr and writes
// them to phi, which must hold (lags+1)×levels values: phi0 at [level],
// phi1 at [levels+level] and phi2 at [2×levels+level]. corr is laid out as
// [(lag-1)×levels+level] and is repaired in place:
//
//   - a lag-1 correlation below 0.5 becomes 0.5×(r1+0.5), and with two lags
//     its lag-2 partner becomes r1^1.7;
//   - the lag-2 correlation is raised to at least 2×r1²-1 and to at least
//     (3r1²-2+2(1-r1²)^1.5)/r1².
//
// Correlations at or below -1 (the no-data sentinel among them) are treated
// as zero before repair and values are capped at 0.9999. Levels that still
// leave the stationarity region are logged and returned; their coefficients
// are kept.
func UpdatePhi(corr, phi []float32, levels, lags int) ([]Violation, error) {
	if lags != 1 && lags != 2 {
		return nil, fmt.Errorf("lags must be 1 or 2, got %d", lags)
	}
	if len(corr) < lags*levels {
		return nil, fmt.Errorf("correlations must have %d values, got %d", lags*levels, len(corr))
	}
	if len(phi) < (lags+1)*levels {
		return nil, fmt.Errorf("phi must have %d values, got %d", (lags+1)*levels, len(phi))
	}
	clear(phi[:(lags+1)*levels])

	var bad []Violation
	for l := 0; l < levels; l++ {
		r1 := float64(corr[l])
		if r1 <= -1 {
			opsf("level %d has no lag-1 correlation, assuming 0", l)
			r1 = 0
		}
		r1 = math.Min(r1, maxCorrelation)

		if lags == 1 {
			if r1 < lowCorrelation {
				r1 = 0.5 * (r1 + lowCorrelation)
			}
			corr[l] = float32(r1)
			phi[levels+l] = float32(r1)
			phi[l] = float32(math.Sqrt(1 - r1*r1))
			tracef("level %d r1=%.4f phi0=%.4f", l, r1, phi[l])
			continue
		}

		r2 := float64(corr[levels+l])
		if r2 <= -1 {
			r2 = 0
		}
		r1, r2 = repair(r1, math.Min(r2, maxCorrelation))
		corr[l] = float32(r1)
		corr[levels+l] = float32(r2)

		r1sq := r1 * r1
		phi1 := r1 * (1 - r2) / (1 - r1sq)
		phi2 := (r2 - r1sq) / (1 - r1sq)
		if phi2+phi1 >= 1 || phi2-phi1 >= 1 || math.Abs(phi2) >= 1 {
			opsf("level %d AR(2) parameters outside stationarity region: phi1=%.4f phi2=%.4f", l, phi1, phi2)
			bad = append(bad, Violation{Level: l, Phi1: float32(phi1), Phi2: float32(phi2)})
		}

		t1 := (1 + phi2) / (1 - phi2)
		t2 := (1-phi2)*(1-phi2) - phi1*phi1
		phi0 := 0.0
		if t1*t2 > 0 {
			phi0 = math.Sqrt(t1 * t2)
		}
		phi[l] = float32(phi0)
		phi[levels+l] = float32(phi1)
		phi[2*levels+l] = float32(phi2)
		tracef("level %d r1=%.4f r2=%.4f phi0=%.4f phi1=%.4f phi2=%.4f", l, r1, r2, phi0, phi1, phi2)
	}
	return bad, nil
}

// repair applies the low-correlation and lag-2 lower-bound rules.
func repair(r1, r2 float64) (float64, float64) {
	if r1 < lowCorrelation {
		r1 = 0.5 * (r1 + lowCorrelation)
		// A negative base has no real power; such a level is uncorrelated
		// at lag 2.
		r2 = math.Pow(math.Max(r1, 0), lagTwoExponent)
	}
	r1sq := r1 * r1
	if b := 2*r1sq - 1; b > r2 {
		r2 = b
	}
	if r1sq > 0 {
		if b := (3*r1sq - 2 + 2*math.Pow(1-r1sq, 1.5)) / r1sq; b > r2 {
			r2 = b
		}
	}
	return r1, r2
}
