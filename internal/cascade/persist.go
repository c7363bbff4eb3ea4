package cascade

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/scalesep/internal/cascade/grid"
	"github.com/banshee-data/scalesep/internal/cascade/spectral"
	"github.com/banshee-data/scalesep/internal/fsutil"
)

const (
	nameLen      = 512
	headerInts   = 32
	headerFloats = 32
)

// Slots of the integer header block.
const (
	intCascadeArray = iota
	intCascadeSize
	intFFTArray
	intFFTSize
	intImageNumber
	intMapArray
	intNumberCascades
	intCols
	intLevels
	intNumberMaps
	intRows
	intLags
	intTimeStep
	intInputUnits // 0 mm/h, 1 dBZ
)

// Slots of the float header block.
const (
	floatFieldMean = iota
	floatFieldStd
	floatNoData
	floatPixelSize
	floatRainFrac
	floatCondMean
	floatRainMean
	floatScaleRatio
	floatRainStd
	floatBetaOne
	floatBetaTwo
)

// header is the fixed-size prefix of the state file. The arrays follow in
// the order means, stds, correlations, phi, generations, maps, east, south,
// rain map, all little-endian float32.
type header struct {
	LogName  [nameLen]byte
	FlowName [nameLen]byte
	MapTimes [numberTimes]int64
	Ints     [headerInts]int32
	Floats   [headerFloats]float32
}

func putName(dst *[nameLen]byte, s string) {
	copy(dst[:nameLen-1], s)
}

func getName(b [nameLen]byte) string {
	if i := bytes.IndexByte(b[:], 0); i >= 0 {
		return string(b[:i])
	}
	return string(b[:])
}

func (e *Engine) header() header {
	var h header
	putName(&h.LogName, e.logName)
	putName(&h.FlowName, e.flowName)
	h.MapTimes = e.mapTimes

	fft := e.dec.FFTSize()
	h.Ints[intCascadeArray] = int32(e.geom.CascadeArraySize())
	h.Ints[intCascadeSize] = int32(e.geom.CascadeSize)
	h.Ints[intFFTArray] = int32(fft * (fft/2 + 1))
	h.Ints[intFFTSize] = int32(fft)
	h.Ints[intImageNumber] = int32(e.imageNumber)
	h.Ints[intMapArray] = int32(e.geom.MapArraySize())
	h.Ints[intNumberCascades] = int32(e.stack.Generations())
	h.Ints[intCols] = int32(e.geom.Cols)
	h.Ints[intLevels] = int32(e.levels)
	h.Ints[intNumberMaps] = numberMaps
	h.Ints[intRows] = int32(e.geom.Rows)
	h.Ints[intLags] = int32(e.lags)
	h.Ints[intTimeStep] = int32(e.cfg.TimeStepMinutes)
	if e.dbzInput {
		h.Ints[intInputUnits] = 1
	}

	h.Floats[floatFieldMean] = e.stats.FieldMean
	h.Floats[floatFieldStd] = e.stats.FieldStd
	h.Floats[floatNoData] = e.cfg.NoData
	h.Floats[floatPixelSize] = float32(e.cfg.PixelSizeKm)
	h.Floats[floatRainFrac] = e.stats.RainFrac
	h.Floats[floatCondMean] = e.stats.CondMean
	h.Floats[floatRainMean] = e.stats.RainMean
	h.Floats[floatScaleRatio] = float32(e.scaleRatio)
	h.Floats[floatRainStd] = e.stats.RainStd
	h.Floats[floatBetaOne] = e.betaOne
	h.Floats[floatBetaTwo] = e.betaTwo
	return h
}

// validate checks that the header's sizes agree with each other and
// returns the map offset they imply.
func (h *header) validate() (int, error) {
	in := h.Ints
	cas, rows, cols := int(in[intCascadeSize]), int(in[intRows]), int(in[intCols])
	fft := int(in[intFFTSize])
	switch {
	case rows <= 0 || cols <= 0 || cas < max(rows, cols):
		return 0, fmt.Errorf("%w: %dx%d map in a %d cascade", ErrGeometryMismatch, rows, cols, cas)
	case int(in[intCascadeArray]) != cas*cas:
		return 0, fmt.Errorf("%w: cascade array %d for size %d", ErrGeometryMismatch, in[intCascadeArray], cas)
	case fft != 2*cas:
		return 0, fmt.Errorf("%w: FFT size %d for cascade size %d", ErrGeometryMismatch, fft, cas)
	case int(in[intFFTArray]) != fft*(fft/2+1):
		return 0, fmt.Errorf("%w: FFT array %d for FFT size %d", ErrGeometryMismatch, in[intFFTArray], fft)
	case int(in[intMapArray]) != rows*cols:
		return 0, fmt.Errorf("%w: map array %d for %dx%d", ErrGeometryMismatch, in[intMapArray], rows, cols)
	case in[intNumberMaps] != numberMaps:
		return 0, fmt.Errorf("%w: %d maps", ErrGeometryMismatch, in[intNumberMaps])
	case in[intLags] != 1 && in[intLags] != 2:
		return 0, fmt.Errorf("%w: %d lags", ErrGeometryMismatch, in[intLags])
	case (cas-max(rows, cols))%2 != 0:
		return 0, fmt.Errorf("%w: map %dx%d is not centred in %d", ErrGeometryMismatch, rows, cols, cas)
	}
	return (cas - max(rows, cols)) / 2, nil
}

func shortWrite(err error) error {
	return fmt.Errorf("%w: %v", ErrShortWrite, err)
}

func shortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return err
}

// WriteState writes the engine state to w in the state-file layout.
func (e *Engine) WriteState(w io.Writer) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	bw := bufio.NewWriterSize(w, 1<<16)
	h := e.header()
	east, south := e.tracker.Velocities()

	parts := []any{&h, e.means, e.stds, e.corr, e.phi}
	for g := 0; g < e.stack.Generations(); g++ {
		parts = append(parts, e.stack.Generation(g))
	}
	for _, m := range e.maps {
		parts = append(parts, m)
	}
	parts = append(parts, east, south, e.rainMap)

	for _, p := range parts {
		if err := binary.Write(bw, binary.LittleEndian, p); err != nil {
			return shortWrite(err)
		}
	}
	if err := bw.Flush(); err != nil {
		return shortWrite(err)
	}
	return nil
}

// Flush writes the state file to the configured persist path, replacing
// any previous file atomically. It does nothing without a persist path.
func (e *Engine) Flush() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	path := e.cfg.PersistPath
	if path == "" {
		return nil
	}
	if err := fsutil.WriteAtomic(e.fsys, path, e.WriteState); err != nil {
		e.opsf("write state %s: %v", path, err)
		return err
	}
	e.diagf("state written to %s at image %d", path, e.imageNumber)
	return nil
}

// Open hot-starts an engine from the state file at path. The engine
// flushes back to the same path.
func Open(path string, opts ...Option) (*Engine, error) {
	o := buildOptions(opts)
	f, err := o.fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", path, err)
	}
	defer f.Close()
	if o.persistPath == nil {
		o.persistPath = &path
	}
	e, err := readState(bufio.NewReaderSize(f, 1<<16), o)
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}
	return e, nil
}

// ReadState builds an engine from state-file bytes read from r. Use
// WithPersistPath to give it somewhere to flush.
func ReadState(r io.Reader, opts ...Option) (*Engine, error) {
	return readState(r, buildOptions(opts))
}

func readState(r io.Reader, o options) (*Engine, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, shortRead(err)
	}
	mapOffset, err := h.validate()
	if err != nil {
		return nil, err
	}

	tune := DefaultTuning()
	if o.tuning != nil {
		tune = *o.tuning
	}
	tune.MapOffset = mapOffset
	tune.Lags = int(h.Ints[intLags])
	cfg := Config{
		Rows:            int(h.Ints[intRows]),
		Cols:            int(h.Ints[intCols]),
		NumberCascades:  int(h.Ints[intNumberCascades]),
		TimeStepMinutes: int(h.Ints[intTimeStep]),
		PixelSizeKm:     float64(h.Floats[floatPixelSize]),
		NoData:          h.Floats[floatNoData],
		LogPath:         getName(h.LogName),
		Tuning:          tune,
	}
	if o.persistPath != nil {
		cfg.PersistPath = *o.persistPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeometryMismatch, err)
	}
	cas := int(h.Ints[intCascadeSize])
	levels, ratio := spectral.CascadeLevels(cas, tune.BaseLevels, tune.MinScaleRatio)
	if levels != int(h.Ints[intLevels]) || math.Abs(ratio-float64(h.Floats[floatScaleRatio])) > 1e-4 {
		return nil, fmt.Errorf("%w: %d levels at ratio %.4f, expected %d at %.4f", ErrGeometryMismatch,
			h.Ints[intLevels], h.Floats[floatScaleRatio], levels, ratio)
	}

	e, err := construct(cfg, o)
	if err != nil {
		return nil, err
	}
	if err := e.readArrays(r); err != nil {
		e.closeLog()
		return nil, err
	}

	e.flowName = getName(h.FlowName)
	e.mapTimes = h.MapTimes
	e.imageNumber = int(h.Ints[intImageNumber])
	e.dbzInput = h.Ints[intInputUnits] == 1
	e.stats = FieldStatistics{
		RainMean:  h.Floats[floatRainMean],
		RainStd:   h.Floats[floatRainStd],
		RainFrac:  h.Floats[floatRainFrac],
		CondMean:  h.Floats[floatCondMean],
		FieldMean: h.Floats[floatFieldMean],
		FieldStd:  h.Floats[floatFieldStd],
	}
	e.betaOne = h.Floats[floatBetaOne]
	e.betaTwo = h.Floats[floatBetaTwo]
	e.rebuildMask()
	e.diagf("state restored at image %d, %d levels", e.imageNumber, e.levels)
	return e, nil
}

func (e *Engine) readArrays(r io.Reader) error {
	n := e.geom.CascadeArraySize()
	east := make([]float32, n)
	south := make([]float32, n)

	parts := []any{e.means, e.stds, e.corr, e.phi}
	for g := 0; g < e.stack.Generations(); g++ {
		parts = append(parts, e.stack.Generation(g))
	}
	for _, m := range e.maps {
		parts = append(parts, m)
	}
	parts = append(parts, east, south, e.rainMap)

	for _, p := range parts {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return shortRead(err)
		}
	}
	return e.tracker.SetVelocities(east, south)
}

// rebuildMask derives the data mask from the valid pixels of the latest
// map, falling back to the map footprint when it has none.
func (e *Engine) rebuildMask() {
	noData := e.cfg.NoData
	clear(e.mask)
	found := false
	for i, v := range e.maps[0] {
		if grid.Valid(v, noData) {
			e.mask[i] = 1
			found = true
		}
	}
	if !found {
		e.resetMaskToFootprint()
	}
}
