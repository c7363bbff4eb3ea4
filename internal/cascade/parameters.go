package cascade

import (
	"fmt"

	"github.com/banshee-data/scalesep/internal/cascade/armodel"
)

// UpdateParameters decomposes the latest map into generation 0 and, once
// enough maps have arrived, tracks the motion between the last two maps and
// refits the temporal model. Wet fields get measured correlations; dry
// fields get the climatological defaults.
func (e *Engine) UpdateParameters() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	e.setReference(e.rainMap)

	gen0 := e.stack.Push()
	res, err := e.dec.Decompose(e.maps[0], e.mask, e.stats.FieldMean, e.cfg.NoData, e.stats.RainFrac, gen0)
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}
	copy(e.means, res.Means)
	copy(e.stds, res.Stds)
	e.betaOne, e.betaTwo = res.BetaOne, res.BetaTwo
	if res.Spectrum != nil {
		e.spectrum = res.Spectrum
	}

	if e.imageNumber == 0 {
		return nil
	}
	if err := e.updateTrack(); err != nil {
		return err
	}
	if e.imageNumber < e.stack.Generations()-2 {
		return nil
	}

	if e.stats.RainFrac > e.tune.RainFracThreshold {
		err = e.updateAutocorrelation()
	} else {
		err = e.setDefaultAutocorrelation()
	}
	if err != nil {
		return err
	}
	e.logLevels()
	return nil
}

// updateTrack estimates the motion between the previous and the latest map
// on the map domain and installs it on the cascade tracker. Pixels outside
// the data mask get the mean map-domain velocity.
func (e *Engine) updateTrack() error {
	noData := e.cfg.NoData
	mt, err := e.newTracker(e.geom.Rows, e.geom.Cols)
	if err != nil {
		return fmt.Errorf("map tracker: %w", err)
	}
	delta := float64(e.mapTimes[0]-e.mapTimes[1]) / 60
	if delta <= 0 {
		e.opsf("map times do not advance (%d then %d), assuming one time step", e.mapTimes[1], e.mapTimes[0])
		delta = float64(e.cfg.TimeStepMinutes)
	}
	if err := mt.FindVelocities(e.rainMap1, e.rainMap, noData, delta); err != nil {
		return fmt.Errorf("find velocities: %w", err)
	}
	mapEast, mapSouth := mt.Velocities()
	meanEast, meanSouth := meanOf(mapEast), meanOf(mapSouth)

	n := e.geom.CascadeArraySize()
	east := make([]float32, n)
	south := make([]float32, n)
	e.geom.ToCascade(mapEast, east, nil, noData)
	e.geom.ToCascade(mapSouth, south, nil, noData)
	for i, m := range e.mask {
		if m == 0 {
			east[i] = meanEast
			south[i] = meanSouth
		}
	}
	if err := e.tracker.SetVelocities(east, south); err != nil {
		return fmt.Errorf("set velocities: %w", err)
	}
	e.diagf("mean motion east=%.3f south=%.3f px/step over %.1f min", meanEast, meanSouth, delta)
	return nil
}

func meanOf(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	return float32(sum / float64(len(v)))
}

// updateAutocorrelation correlates every level of generation 0 with the
// older generations advected to the present, then refits phi.
func (e *Engine) updateAutocorrelation() error {
	noData := e.cfg.NoData
	n := e.geom.CascadeArraySize()
	adv := make([]float32, n)
	for lag := 1; lag <= e.lags; lag++ {
		for l := 0; l < e.levels; l++ {
			if err := e.advectLag(lag, e.stack.Level(lag, l), adv); err != nil {
				return err
			}
			e.corr[(lag-1)*e.levels+l] = armodel.Correlate(adv, e.stack.Level(0, l), e.mask, noData)
		}
	}
	return e.updatePhi()
}

// advectLag carries a level lag steps forward, one single step at a time.
func (e *Engine) advectLag(lag int, in, out []float32) error {
	if err := e.tracker.Advect(1, e.cfg.NoData, in, out); err != nil {
		return fmt.Errorf("advect: %w", err)
	}
	for s := 1; s < lag; s++ {
		if err := e.tracker.Advect(1, e.cfg.NoData, out, out); err != nil {
			return fmt.Errorf("advect: %w", err)
		}
	}
	return nil
}

// setDefaultAutocorrelation installs scale-dependent climatological
// correlations and the default spectral slopes.
func (e *Engine) setDefaultAutocorrelation() error {
	armodel.DefaultCorrelations(e.corr, e.levels, e.lags, e.geom.CascadeSize,
		e.cfg.PixelSizeKm, e.scaleRatio, float64(e.cfg.TimeStepMinutes),
		e.tune.CorrelationA, e.tune.CorrelationB, e.tune.CorrelationC)
	e.betaOne = e.tune.DefaultBetaOne
	e.betaTwo = e.tune.DefaultBetaTwo
	e.tracef("dry field, default correlations")
	return e.updatePhi()
}

func (e *Engine) updatePhi() error {
	bad, err := armodel.UpdatePhi(e.corr, e.phi, e.levels, e.lags)
	if err != nil {
		return err
	}
	for _, v := range bad {
		e.opsf("non-stationary AR model at %s", v)
	}
	return nil
}

func (e *Engine) logLevels() {
	for l := 0; l < e.levels; l++ {
		r2 := float32(0)
		if e.lags == 2 {
			r2 = e.corr[e.levels+l]
		}
		e.diagf("level %d scale=%.1fpx mean=%.4f std=%.4f r1=%.4f r2=%.4f",
			l, e.NominalScale(l), e.means[l], e.stds[l], e.corr[l], r2)
	}
	e.diagf("beta one=%.3f two=%.3f", e.betaOne, e.betaTwo)
}
