package cascade

import (
	"fmt"

	"github.com/banshee-data/scalesep/internal/cascade/armodel"
	"github.com/banshee-data/scalesep/internal/cascade/grid"
	"github.com/banshee-data/scalesep/internal/cascade/spectral"
)

// Config carries the constructor parameters of a cold-started Engine.
type Config struct {
	Rows            int
	Cols            int
	NumberCascades  int     // generations kept in the stack, at least Lags+1
	TimeStepMinutes int     // time between radar maps
	PixelSizeKm     float64 // edge of one map pixel
	NoData          float32 // missing-data sentinel

	LogPath     string // optional rotating log file for this engine
	PersistPath string // state file written by Flush and Close

	// Upscale halves Rows and Cols and doubles PixelSizeKm, for cascades
	// run on a coarser grid than the radar product. Callers then feed
	// maps reduced with grid.Upscale.
	Upscale bool

	Tuning Tuning
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("map must have positive dimensions, got %dx%d", c.Rows, c.Cols)
	}
	if c.Upscale && (c.Rows < 2 || c.Cols < 2) {
		return fmt.Errorf("upscaled map must be at least 2x2, got %dx%d", c.Rows, c.Cols)
	}
	if c.TimeStepMinutes <= 0 {
		return fmt.Errorf("time step must be positive, got %d", c.TimeStepMinutes)
	}
	if c.PixelSizeKm <= 0 {
		return fmt.Errorf("pixel size must be positive, got %f", c.PixelSizeKm)
	}
	if err := c.Tuning.Validate(); err != nil {
		return err
	}
	if c.NumberCascades < c.Tuning.Lags+1 {
		return fmt.Errorf("number of cascades must be at least %d, got %d", c.Tuning.Lags+1, c.NumberCascades)
	}
	return nil
}

// effective returns the grid the engine actually runs on.
func (c Config) effective() Config {
	if c.Upscale {
		c.Rows /= 2
		c.Cols /= 2
		c.PixelSizeKm *= 2
		c.Upscale = false
	}
	return c
}

// Transform holds the coefficients of the rain-rate transforms.
type Transform struct {
	DBROffset float64 // added to mm/h before taking dB (default: 0.03)
	ZRA       float64 // Z = A·R^B (default: 200)
	ZRB       float64 // (default: 1.6)
	NormAlpha float64 // dBZ power transform exponent (default: 0.95)
}

// DefaultTransform returns the standard Marshall-Palmer style transform.
func DefaultTransform() Transform {
	return Transform{DBROffset: 0.03, ZRA: 200, ZRB: 1.6, NormAlpha: 0.95}
}

// Tuning holds the algorithm constants of the engine. The zero value is
// not usable; start from DefaultTuning.
type Tuning struct {
	MapOffset     int
	BaseLevels    int
	MinScaleRatio float64
	FilterWidth   float64
	FilterFloor   float64

	RainThreshold     float32 // mm/h counted as raining
	RainFracThreshold float32 // below this the field is treated as dry
	LevelStdFloor     float64
	ScaleBreakKm      float64
	DryBetaOne        float64 // slopes used by a dry decomposition
	DryBetaTwo        float64
	DefaultBetaOne    float32 // slopes used with default correlations
	DefaultBetaTwo    float32

	CorrelationA float64
	CorrelationB float64
	CorrelationC float64
	Lags         int // 1 or 2

	BiasVarianceWeight float32
	ForecastFloorDBR   float32
	ProbabilityMatch   bool

	FlowBlockSize    int
	FlowSearchRadius int

	Transform Transform
}

// DefaultTuning returns the operational constants.
func DefaultTuning() Tuning {
	return Tuning{
		MapOffset:          grid.DefaultMapOffset,
		BaseLevels:         spectral.DefaultBaseLevels,
		MinScaleRatio:      spectral.DefaultMinScaleRatio,
		FilterWidth:        spectral.DefaultFilterWidth,
		FilterFloor:        spectral.DefaultFilterFloor,
		RainThreshold:      0.1,
		RainFracThreshold:  0.03,
		LevelStdFloor:      0.1,
		ScaleBreakKm:       4,
		DryBetaOne:         2.2,
		DryBetaTwo:         2.5,
		DefaultBetaOne:     2.2,
		DefaultBetaTwo:     2.7,
		CorrelationA:       armodel.DefaultCorrelationA,
		CorrelationB:       armodel.DefaultCorrelationB,
		CorrelationC:       armodel.DefaultCorrelationC,
		Lags:               2,
		BiasVarianceWeight: 0.05,
		ForecastFloorDBR:   -10,
		FlowBlockSize:      8,
		FlowSearchRadius:   4,
		Transform:          DefaultTransform(),
	}
}

// Validate checks the tuning constants.
func (t Tuning) Validate() error {
	if t.MapOffset < 0 {
		return fmt.Errorf("map offset must be non-negative, got %d", t.MapOffset)
	}
	if t.BaseLevels < 2 {
		return fmt.Errorf("base levels must be at least 2, got %d", t.BaseLevels)
	}
	if t.MinScaleRatio <= 0 || t.MinScaleRatio >= 1 {
		return fmt.Errorf("min scale ratio must be in (0, 1), got %f", t.MinScaleRatio)
	}
	if t.FilterWidth <= 0 {
		return fmt.Errorf("filter width must be positive, got %f", t.FilterWidth)
	}
	if t.FilterFloor < 0 || t.FilterFloor >= 1 {
		return fmt.Errorf("filter floor must be in [0, 1), got %f", t.FilterFloor)
	}
	if t.Lags != 1 && t.Lags != 2 {
		return fmt.Errorf("lags must be 1 or 2, got %d", t.Lags)
	}
	if t.CorrelationA <= 0 {
		return fmt.Errorf("correlation coefficient a must be positive, got %f", t.CorrelationA)
	}
	if t.FlowBlockSize < 1 {
		return fmt.Errorf("flow block size must be positive, got %d", t.FlowBlockSize)
	}
	if t.FlowSearchRadius < 0 {
		return fmt.Errorf("flow search radius must be non-negative, got %d", t.FlowSearchRadius)
	}
	if t.Transform.DBROffset <= 0 {
		return fmt.Errorf("dBr offset must be positive, got %f", t.Transform.DBROffset)
	}
	if t.Transform.ZRA <= 0 || t.Transform.ZRB <= 0 {
		return fmt.Errorf("Z-R coefficients must be positive, got %f and %f", t.Transform.ZRA, t.Transform.ZRB)
	}
	if t.Transform.NormAlpha <= 0 {
		return fmt.Errorf("norm alpha must be positive, got %f", t.Transform.NormAlpha)
	}
	return nil
}
