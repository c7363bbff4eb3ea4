package cascade

import (
	"fmt"
	"math"

	"github.com/banshee-data/scalesep/internal/cascade/grid"
	"github.com/banshee-data/scalesep/internal/cascade/stack"
)

// UpdateWeights advances the cascade one time step with the AR model:
// the generations rotate and generation 0 becomes
// phi1×advected(gen1) + phi2×advected(gen2) per level.
func (e *Engine) UpdateWeights() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.arStep(e.stack)
}

// arStep rotates st and synthesises its new generation 0. A pixel is
// noData unless every advected input is valid there.
func (e *Engine) arStep(st *stack.Stack) error {
	noData := e.cfg.NoData
	n := e.geom.CascadeArraySize()
	lag1 := make([]float32, n)
	lag2 := make([]float32, n)

	st.Push()
	for l := 0; l < e.levels; l++ {
		if err := e.advectLag(1, st.Level(1, l), lag1); err != nil {
			return err
		}
		phi1 := e.phi[e.levels+l]
		out := st.Level(0, l)
		if e.lags == 1 {
			for i, a := range lag1 {
				if grid.Valid(a, noData) {
					out[i] = phi1 * a
				} else {
					out[i] = noData
				}
			}
			continue
		}

		if err := e.advectLag(2, st.Level(2, l), lag2); err != nil {
			return err
		}
		phi2 := e.phi[2*e.levels+l]
		for i := range out {
			a1, a2 := lag1[i], lag2[i]
			if grid.Valid(a1, noData) && grid.Valid(a2, noData) {
				out[i] = phi1*a1 + phi2*a2
			} else {
				out[i] = noData
			}
		}
	}
	return nil
}

// SmoothForecastRain rolls the AR model forward n steps on a copy of the
// cascade and returns one map-domain rain-rate field per lead time. The
// engine state is not changed.
func (e *Engine) SmoothForecastRain(n int) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("number of forecasts must be non-negative, got %d", n)
	}
	local := e.stack.Clone()
	field := make([]float32, e.geom.CascadeArraySize())
	out := make([][]float32, 0, n)
	for k := 0; k < n; k++ {
		if err := e.arStep(local); err != nil {
			return nil, fmt.Errorf("forecast %d: %w", k+1, err)
		}
		e.reconstruct(local, field)
		fx := make([]float32, e.geom.MapArraySize())
		e.geom.FromCascade(field, fx)
		bias := e.correctBias(fx)
		e.toRainRate(fx)
		if e.tune.ProbabilityMatch {
			e.matchDistribution(fx)
		}
		e.tracef("forecast %d bias=%.4f", k+1, bias)
		out = append(out, fx)
	}
	return out, nil
}

// reconstruct sums generation 0 of st back into a physical field on the
// cascade domain. A pixel invalid at any level is noData.
func (e *Engine) reconstruct(st *stack.Stack, field []float32) {
	noData := e.cfg.NoData
	grid.Fill(field, e.stats.FieldMean)
	for l := 0; l < e.levels; l++ {
		std := e.stds[l]
		for i, v := range st.Level(0, l) {
			if field[i] == noData {
				continue
			}
			if !grid.Valid(v, noData) {
				field[i] = noData
				continue
			}
			field[i] += std * v
		}
	}
}

// correctBias floors fx, then shifts its valid pixels so that the lost
// mean and part of the lost variance are restored. It returns the bias.
func (e *Engine) correctBias(fx []float32) float32 {
	noData := e.cfg.NoData
	floor := e.tune.ForecastFloorDBR
	for i, v := range fx {
		if grid.Valid(v, noData) && v < floor {
			fx[i] = floor
		}
	}
	mean, std := popMeanStd(validValues(fx, noData))
	fieldVar := e.stats.FieldStd * e.stats.FieldStd
	bias := (e.stats.FieldMean - mean) + e.tune.BiasVarianceWeight*(fieldVar-std*std)
	for i, v := range fx {
		if grid.Valid(v, noData) {
			fx[i] = v + bias
		}
	}
	return bias
}

func (e *Engine) toRainRate(fx []float32) {
	if e.dbzInput {
		e.tune.Transform.DBZToMMH(fx, e.cfg.NoData)
		return
	}
	e.tune.Transform.DBRToMMH(fx, e.cfg.NoData)
}

// AdvectWeights moves every level of generation g steps time steps along
// the current motion, in place. Pixels outside the data mask become noData.
func (e *Engine) AdvectWeights(steps, g int) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if g < 0 || g >= e.stack.Generations() {
		return fmt.Errorf("no generation %d", g)
	}
	noData := e.cfg.NoData
	for l := 0; l < e.levels; l++ {
		lev := e.stack.Level(g, l)
		if err := e.tracker.Advect(steps, noData, lev, lev); err != nil {
			return fmt.Errorf("advect level %d: %w", l, err)
		}
		for i, m := range e.mask {
			if m == 0 {
				lev[i] = noData
			}
		}
	}
	return nil
}

// maxNormDBR is the dBr value of 150 mm/h, the ceiling NormalizeMS clips to.
var maxNormDBR = float32(10 * math.Log10(150))

// NormalizeMS rescales a cascade-domain dBr field in place so that its
// masked pixels have mean reqMean and a standard deviation near reqStd.
// The std ratio is held to [0.75, 1.25]. Pixels outside the mask become
// noData. A field with no valid masked pixels, or no spread, is left
// unchanged.
func (e *Engine) NormalizeMS(field []float32, reqMean, reqStd float32) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if len(field) != len(e.mask) {
		return fmt.Errorf("field must have %d values, got %d", len(e.mask), len(field))
	}
	noData := e.cfg.NoData
	vals := make([]float64, 0, len(field))
	for i, v := range field {
		if e.mask[i] == 1 && grid.Valid(v, noData) {
			vals = append(vals, float64(min(v, maxNormDBR)))
		}
	}
	mean, std := popMeanStd(vals)
	if len(vals) == 0 || std < 1e-6 {
		return nil
	}
	ratio := min(max(reqStd/std, 0.75), 1.25)
	adjStd := ratio * std
	for i, v := range field {
		if e.mask[i] == 1 && grid.Valid(v, noData) {
			z := (min(v, maxNormDBR) - mean) / std
			field[i] = z*adjStd + reqMean
		} else {
			field[i] = noData
		}
	}
	return nil
}
