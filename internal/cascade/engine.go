package cascade

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/scalesep/internal/cascade/flow"
	"github.com/banshee-data/scalesep/internal/cascade/grid"
	"github.com/banshee-data/scalesep/internal/cascade/spectral"
	"github.com/banshee-data/scalesep/internal/cascade/stack"
	"github.com/banshee-data/scalesep/internal/fsutil"
	"github.com/banshee-data/scalesep/internal/monitoring"
	"github.com/banshee-data/scalesep/internal/timeutil"
)

const (
	// numberMaps is the count of transformed maps kept for tracking.
	numberMaps = 2

	// numberTimes is the count of map timestamps in the state file.
	numberTimes = 8

	// maxElements bounds any single buffer, in float32 values.
	maxElements = 1 << 31
)

// TrackerFactory builds an optical-flow tracker for a rows×cols grid.
type TrackerFactory func(rows, cols int) (flow.Tracker, error)

// Option configures an Engine.
type Option func(*options)

type options struct {
	fsys        fsutil.FileSystem
	logger      *zap.SugaredLogger
	clock       timeutil.Clock
	newTracker  TrackerFactory
	tuning      *Tuning
	persistPath *string
}

// WithFileSystem sets the filesystem used for the state file.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(o *options) { o.fsys = fsys }
}

// WithLogger sets the base logger. A Config LogPath takes precedence.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock used to stamp snapshots.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTrackerFactory replaces the block-matching tracker.
func WithTrackerFactory(f TrackerFactory) Option {
	return func(o *options) { o.newTracker = f }
}

// WithTuning sets the tuning of an engine rebuilt from a state file. New
// takes its tuning from Config instead.
func WithTuning(t Tuning) Option {
	return func(o *options) { o.tuning = &t }
}

// WithPersistPath sets where an engine restored from an archive flushes.
func WithPersistPath(path string) Option {
	return func(o *options) { o.persistPath = &path }
}

func buildOptions(opts []Option) options {
	o := options{
		fsys:   fsutil.OSFileSystem{},
		logger: pkgLogger,
		clock:  timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Engine is one radar source's cascade: the decomposed history, the
// tracked motion and the AR(2) model fitted to it.
type Engine struct {
	cfg        Config // effective grid, after any upscaling
	tune       Tuning
	geom       grid.Geometry
	levels     int
	scaleRatio float64
	lags       int

	bank    *spectral.FilterBank
	dec     *spectral.Decomposer
	stack   *stack.Stack
	tracker flow.Tracker

	newTracker TrackerFactory
	fsys       fsutil.FileSystem
	clock      timeutil.Clock
	log        *zap.SugaredLogger
	closeLog   func() error
	closed     bool

	logName  string
	flowName string

	maps     [numberMaps][]float32 // dBr maps on the cascade domain, newest first
	mask     []uint8
	rainMap  []float32 // latest untransformed map
	rainMap1 []float32 // previous untransformed map
	mapTimes [numberTimes]int64

	imageNumber int
	dbzInput    bool // maps arrive in dBZ rather than mm/h
	stats       FieldStatistics
	means       []float32
	stds        []float32
	corr        []float32
	phi         []float32
	betaOne     float32
	betaTwo     float32
	spectrum    *spectral.Spectrum
	reference   []float32 // sorted valid rates of the latest map
}

// New cold-starts an engine. A zero cfg.Tuning means DefaultTuning.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Tuning == (Tuning{}) {
		cfg.Tuning = DefaultTuning()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e, err := construct(cfg.effective(), buildOptions(opts))
	if err != nil {
		return nil, err
	}
	e.diagf("cascade size %d pixels, %d levels, scale ratio %.4f", e.geom.CascadeSize, e.levels, e.scaleRatio)
	return e, nil
}

// construct allocates an engine for an effective configuration and fills
// it with the cold-start values.
func construct(cfg Config, o options) (*Engine, error) {
	tune := cfg.Tuning
	geom, err := grid.NewGeometry(cfg.Rows, cfg.Cols, tune.MapOffset)
	if err != nil {
		return nil, err
	}
	cas := geom.CascadeSize
	levels, ratio := spectral.CascadeLevels(cas, tune.BaseLevels, tune.MinScaleRatio)
	if err := checkAlloc(int64(cas)*int64(cas)*int64(levels), int64(4*cas)*int64(4*cas)); err != nil {
		return nil, err
	}

	bank, err := spectral.NewFilterBank(cas, levels, ratio, tune.FilterWidth, tune.FilterFloor)
	if err != nil {
		return nil, fmt.Errorf("filter bank: %w", err)
	}
	dec, err := spectral.NewDecomposer(spectral.DecomposerConfig{
		CascadeSize:       cas,
		Levels:            levels,
		ScaleRatio:        ratio,
		PixelSize:         cfg.PixelSizeKm,
		StdFloor:          tune.LevelStdFloor,
		RainFracThreshold: float64(tune.RainFracThreshold),
		ScaleBreakKm:      tune.ScaleBreakKm,
		DryBetaOne:        tune.DryBetaOne,
		DryBetaTwo:        tune.DryBetaTwo,
	}, bank)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	st, err := stack.New(cfg.NumberCascades, levels, geom.CascadeArraySize())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		tune:       tune,
		geom:       geom,
		levels:     levels,
		scaleRatio: ratio,
		lags:       tune.Lags,
		bank:       bank,
		dec:        dec,
		stack:      st,
		newTracker: o.newTracker,
		fsys:       o.fsys,
		clock:      o.clock,
		logName:    cfg.LogPath,
		flowName:   flowName(cfg.PersistPath),
		mask:       make([]uint8, geom.CascadeArraySize()),
		rainMap:    make([]float32, geom.MapArraySize()),
		rainMap1:   make([]float32, geom.MapArraySize()),
		means:      make([]float32, levels),
		stds:       make([]float32, levels),
		corr:       make([]float32, tune.Lags*levels),
		phi:        make([]float32, (tune.Lags+1)*levels),
	}
	if e.newTracker == nil {
		e.newTracker = e.blockMatcher
	}
	if err := e.openLog(cfg.LogPath, o.logger); err != nil {
		return nil, err
	}

	e.tracker, err = e.newTracker(cas, cas)
	if err != nil {
		e.closeLog()
		return nil, fmt.Errorf("cascade tracker: %w", err)
	}

	for m := range e.maps {
		e.maps[m] = make([]float32, geom.CascadeArraySize())
		grid.Fill(e.maps[m], cfg.NoData)
	}
	grid.Fill(e.rainMap, cfg.NoData)
	grid.Fill(e.rainMap1, cfg.NoData)
	grid.Fill(e.corr, cfg.NoData)
	e.resetMaskToFootprint()
	return e, nil
}

func checkAlloc(sizes ...int64) error {
	for _, n := range sizes {
		if n <= 0 || n > maxElements {
			return fmt.Errorf("%w: %d values", ErrOutOfMemory, n)
		}
	}
	return nil
}

// flowName is the persist path up to its first '.', the name the tracker
// state goes by.
func flowName(persistPath string) string {
	if i := strings.IndexByte(persistPath, '.'); i >= 0 {
		return persistPath[:i]
	}
	return persistPath
}

func (e *Engine) openLog(path string, base *zap.SugaredLogger) error {
	e.closeLog = func() error { return nil }
	if path == "" {
		if base == nil {
			base = zap.NewNop().Sugar()
		}
		e.log = base.Named("cascade")
		return nil
	}
	l, closeFn, err := monitoring.NewLogger(monitoring.Options{Debug: true, FilePath: path, NoConsole: true})
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	e.log = l.Named("cascade")
	e.closeLog = closeFn
	return nil
}

func (e *Engine) blockMatcher(rows, cols int) (flow.Tracker, error) {
	return flow.NewBlockMatcher(flow.MatcherConfig{
		Rows:         rows,
		Cols:         cols,
		BlockSize:    e.tune.FlowBlockSize,
		SearchRadius: e.tune.FlowSearchRadius,
		StepMinutes:  float64(e.cfg.TimeStepMinutes),
	})
}

// resetMaskToFootprint marks every pixel under the map window.
func (e *Engine) resetMaskToFootprint() {
	clear(e.mask)
	ro, co := e.geom.RowOffset(), e.geom.ColOffset()
	cas := e.geom.CascadeSize
	for r := 0; r < e.geom.Rows; r++ {
		for c := 0; c < e.geom.Cols; c++ {
			e.mask[(r+ro)*cas+c+co] = 1
		}
	}
}

func (e *Engine) checkOpen() error {
	if e.closed {
		return ErrClosed
	}
	return nil
}

// UpdateMaps ingests a rain-rate map in mm/h taken at t. reset restarts the
// image count, which delays tracking and parameter estimation until enough
// maps have arrived again.
func (e *Engine) UpdateMaps(raw []float32, t time.Time, reset bool) error {
	return e.updateMaps(raw, t, reset, true)
}

// UpdateMapsDBZ ingests a map that is already in dBZ; no dBr transform is
// applied and the field statistics are in dBZ.
func (e *Engine) UpdateMapsDBZ(dbz []float32, t time.Time, reset bool) error {
	return e.updateMaps(dbz, t, reset, false)
}

func (e *Engine) updateMaps(raw []float32, t time.Time, reset, toDBR bool) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if len(raw) != e.geom.MapArraySize() {
		return fmt.Errorf("map must have %d values, got %d", e.geom.MapArraySize(), len(raw))
	}
	noData := e.cfg.NoData

	e.dbzInput = !toDBR
	if reset {
		e.imageNumber = 0
	} else {
		e.imageNumber++
	}
	copy(e.rainMap1, e.rainMap)
	copy(e.rainMap, raw)

	nValid := rainStatistics(&e.stats, raw, noData, e.tune.RainThreshold, e.tune.RainFracThreshold)
	if nValid == 0 {
		e.opsf("map at %s has no valid pixels", t.UTC().Format(time.RFC3339))
	}

	field := append([]float32(nil), raw...)
	if toDBR {
		e.tune.Transform.MMHToDBR(field, noData)
	}
	e.stats.FieldMean, e.stats.FieldStd = popMeanStd(validValues(field, noData))

	last := e.maps[numberMaps-1]
	copy(e.maps[1:], e.maps[:numberMaps-1])
	e.maps[0] = last
	e.geom.ToCascade(field, e.maps[0], e.mask, noData)

	copy(e.mapTimes[1:numberMaps], e.mapTimes[:numberMaps-1])
	e.mapTimes[0] = t.Unix()

	e.tracef("image %d: rain mean=%.3f std=%.3f frac=%.3f, field mean=%.3f std=%.3f",
		e.imageNumber, e.stats.RainMean, e.stats.RainStd, e.stats.RainFrac, e.stats.FieldMean, e.stats.FieldStd)
	return nil
}

// Close flushes the state file, if a persist path is set, and releases the
// engine. Later calls return nil.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	err := e.Flush()
	if err != nil {
		e.opsf("flush on close: %v", err)
	}
	e.closed = true
	if cerr := e.closeLog(); err == nil {
		err = cerr
	}
	return err
}

// Stats returns the statistics of the latest map.
func (e *Engine) Stats() FieldStatistics { return e.stats }

// Parameters is a copy of the fitted model.
type Parameters struct {
	Levels       int       `msgpack:"levels"`
	ScaleRatio   float64   `msgpack:"scale_ratio"`
	Means        []float32 `msgpack:"means"`
	Stds         []float32 `msgpack:"stds"`
	Correlations []float32 `msgpack:"correlations"` // [(lag-1)×Levels+level]
	Phi          []float32 `msgpack:"phi"`          // [k×Levels+level], k = 0..Lags
	BetaOne      float32   `msgpack:"beta_one"`
	BetaTwo      float32   `msgpack:"beta_two"`
}

// Parameters returns copies of the per-level model.
func (e *Engine) Parameters() Parameters {
	return Parameters{
		Levels:       e.levels,
		ScaleRatio:   e.scaleRatio,
		Means:        append([]float32(nil), e.means...),
		Stds:         append([]float32(nil), e.stds...),
		Correlations: append([]float32(nil), e.corr...),
		Phi:          append([]float32(nil), e.phi...),
		BetaOne:      e.betaOne,
		BetaTwo:      e.betaTwo,
	}
}

// NominalScale returns the centre wavelength of level l in pixels.
func (e *Engine) NominalScale(l int) float64 {
	return spectral.NominalScale(e.geom.CascadeSize, e.scaleRatio, l)
}

// Geometry returns the map and cascade sizes.
func (e *Engine) Geometry() grid.Geometry { return e.geom }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// ImageNumber returns the count of maps since the last reset.
func (e *Engine) ImageNumber() int { return e.imageNumber }

// HaveParameters reports whether tracking has run at least once.
func (e *Engine) HaveParameters() bool { return e.imageNumber >= 1 }

// MapTimes returns the times of the stored maps, newest first.
func (e *Engine) MapTimes() []time.Time {
	out := make([]time.Time, numberMaps)
	for i := range out {
		out[i] = time.Unix(e.mapTimes[i], 0).UTC()
	}
	return out
}

// Level returns a copy of level l of generation g.
func (e *Engine) Level(g, l int) []float32 {
	return append([]float32(nil), e.stack.Level(g, l)...)
}

// SetLevel overwrites level l of generation g.
func (e *Engine) SetLevel(g, l int, data []float32) error {
	if g < 0 || g >= e.stack.Generations() || l < 0 || l >= e.levels {
		return fmt.Errorf("no level %d in generation %d", l, g)
	}
	if len(data) != e.geom.CascadeArraySize() {
		return fmt.Errorf("level must have %d values, got %d", e.geom.CascadeArraySize(), len(data))
	}
	copy(e.stack.Level(g, l), data)
	return nil
}

// Velocities returns the cascade-domain east and south motion in pixels
// per time step.
func (e *Engine) Velocities() (east, south []float32) { return e.tracker.Velocities() }

// SetVelocities replaces the cascade-domain motion.
func (e *Engine) SetVelocities(east, south []float32) error {
	return e.tracker.SetVelocities(east, south)
}

// RainMap returns a copy of the latest untransformed map.
func (e *Engine) RainMap() []float32 { return append([]float32(nil), e.rainMap...) }

// DataMask returns a copy of the cascade-domain data mask.
func (e *Engine) DataMask() []uint8 { return append([]uint8(nil), e.mask...) }

// SetDataMask replaces the data mask.
func (e *Engine) SetDataMask(mask []uint8) error {
	if len(mask) != len(e.mask) {
		return fmt.Errorf("mask must have %d values, got %d", len(e.mask), len(mask))
	}
	copy(e.mask, mask)
	return nil
}

// Map returns a copy of transformed map m on the cascade domain, newest
// first.
func (e *Engine) Map(m int) []float32 { return append([]float32(nil), e.maps[m]...) }

// Spectrum returns the power spectrum of the latest wet decomposition, or
// nil.
func (e *Engine) Spectrum() *spectral.Spectrum { return e.spectrum }

// ValidFraction is the share of cascade pixels under the data mask.
func (e *Engine) ValidFraction() float64 {
	return float64(grid.CountMask(e.mask)) / float64(len(e.mask))
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
