package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/scalesep/internal/cascade"
)

// DefaultConfigPath is the path to the canonical cascade defaults file.
const DefaultConfigPath = "config/cascade.defaults.json"

// CascadeConfig is the on-disk configuration of one radar source's
// cascade. Every field is optional; the Get* methods and Apply fall back
// to the engine defaults for fields the file leaves out.
type CascadeConfig struct {
	// Source and files
	Source      *string `json:"source,omitempty" yaml:"source,omitempty"`
	PersistPath *string `json:"persist_path,omitempty" yaml:"persist_path,omitempty"`
	LogPath     *string `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	ArchivePath *string `json:"archive_path,omitempty" yaml:"archive_path,omitempty"`

	// Grid
	Rows            *int     `json:"rows,omitempty" yaml:"rows,omitempty"`
	Cols            *int     `json:"cols,omitempty" yaml:"cols,omitempty"`
	NumberCascades  *int     `json:"number_cascades,omitempty" yaml:"number_cascades,omitempty"`
	TimeStepMinutes *int     `json:"time_step_minutes,omitempty" yaml:"time_step_minutes,omitempty"`
	PixelSizeKm     *float64 `json:"pixel_size_km,omitempty" yaml:"pixel_size_km,omitempty"`
	NoData          *float32 `json:"no_data,omitempty" yaml:"no_data,omitempty"`
	Upscale         *bool    `json:"upscale,omitempty" yaml:"upscale,omitempty"`

	// Decomposition
	MapOffset     *int     `json:"map_offset,omitempty" yaml:"map_offset,omitempty"`
	BaseLevels    *int     `json:"base_levels,omitempty" yaml:"base_levels,omitempty"`
	MinScaleRatio *float64 `json:"min_scale_ratio,omitempty" yaml:"min_scale_ratio,omitempty"`
	FilterWidth   *float64 `json:"filter_width,omitempty" yaml:"filter_width,omitempty"`
	LevelStdFloor *float64 `json:"level_std_floor,omitempty" yaml:"level_std_floor,omitempty"`
	ScaleBreakKm  *float64 `json:"scale_break_km,omitempty" yaml:"scale_break_km,omitempty"`

	// Rain statistics
	RainThreshold     *float32 `json:"rain_threshold,omitempty" yaml:"rain_threshold,omitempty"`
	RainFracThreshold *float32 `json:"rain_frac_threshold,omitempty" yaml:"rain_frac_threshold,omitempty"`

	// Temporal model
	Lags         *int     `json:"lags,omitempty" yaml:"lags,omitempty"`
	CorrelationA *float64 `json:"correlation_a,omitempty" yaml:"correlation_a,omitempty"`
	CorrelationB *float64 `json:"correlation_b,omitempty" yaml:"correlation_b,omitempty"`
	CorrelationC *float64 `json:"correlation_c,omitempty" yaml:"correlation_c,omitempty"`

	// Forecast
	BiasVarianceWeight *float32 `json:"bias_variance_weight,omitempty" yaml:"bias_variance_weight,omitempty"`
	ForecastFloorDBR   *float32 `json:"forecast_floor_dbr,omitempty" yaml:"forecast_floor_dbr,omitempty"`
	ProbabilityMatch   *bool    `json:"probability_match,omitempty" yaml:"probability_match,omitempty"`

	// Tracking
	FlowBlockSize    *int `json:"flow_block_size,omitempty" yaml:"flow_block_size,omitempty"`
	FlowSearchRadius *int `json:"flow_search_radius,omitempty" yaml:"flow_search_radius,omitempty"`

	// Z-R relation
	ZRA *float64 `json:"zr_a,omitempty" yaml:"zr_a,omitempty"`
	ZRB *float64 `json:"zr_b,omitempty" yaml:"zr_b,omitempty"`
}

// EmptyCascadeConfig returns a CascadeConfig with all fields set to nil.
func EmptyCascadeConfig() *CascadeConfig {
	return &CascadeConfig{}
}

// LoadCascadeConfig loads a CascadeConfig from a .json, .yaml or .yml
// file of at most 1MB. Fields omitted from the file keep their defaults,
// so partial configs are safe.
func LoadCascadeConfig(path string) (*CascadeConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCascadeConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. It panics if the file
// cannot be loaded and is intended for test setup.
func MustLoadDefaultConfig() *CascadeConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/cascade/report/
	}
	for _, path := range candidates {
		if cfg, err := LoadCascadeConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Cross-field checks happen when
// the engine validates the assembled cascade.Config.
func (c *CascadeConfig) Validate() error {
	if c.Rows != nil && *c.Rows <= 0 {
		return fmt.Errorf("rows must be positive, got %d", *c.Rows)
	}
	if c.Cols != nil && *c.Cols <= 0 {
		return fmt.Errorf("cols must be positive, got %d", *c.Cols)
	}
	if c.TimeStepMinutes != nil && *c.TimeStepMinutes <= 0 {
		return fmt.Errorf("time_step_minutes must be positive, got %d", *c.TimeStepMinutes)
	}
	if c.PixelSizeKm != nil && *c.PixelSizeKm <= 0 {
		return fmt.Errorf("pixel_size_km must be positive, got %f", *c.PixelSizeKm)
	}
	if c.Lags != nil && *c.Lags != 1 && *c.Lags != 2 {
		return fmt.Errorf("lags must be 1 or 2, got %d", *c.Lags)
	}
	if c.RainFracThreshold != nil && (*c.RainFracThreshold < 0 || *c.RainFracThreshold > 1) {
		return fmt.Errorf("rain_frac_threshold must be between 0 and 1, got %f", *c.RainFracThreshold)
	}
	if c.MinScaleRatio != nil && (*c.MinScaleRatio <= 0 || *c.MinScaleRatio >= 1) {
		return fmt.Errorf("min_scale_ratio must be between 0 and 1, got %f", *c.MinScaleRatio)
	}
	return nil
}

// GetSource returns the source name or "default".
func (c *CascadeConfig) GetSource() string {
	if c.Source == nil || *c.Source == "" {
		return "default"
	}
	return *c.Source
}

// GetArchivePath returns the archive database path, empty when archiving
// is off.
func (c *CascadeConfig) GetArchivePath() string {
	if c.ArchivePath == nil {
		return ""
	}
	return *c.ArchivePath
}

// GetNumberCascades returns the number of generations kept.
func (c *CascadeConfig) GetNumberCascades() int {
	if c.NumberCascades == nil {
		return 3
	}
	return *c.NumberCascades
}

// GetTimeStepMinutes returns the time between maps.
func (c *CascadeConfig) GetTimeStepMinutes() int {
	if c.TimeStepMinutes == nil {
		return 5
	}
	return *c.TimeStepMinutes
}

// GetPixelSizeKm returns the map pixel size.
func (c *CascadeConfig) GetPixelSizeKm() float64 {
	if c.PixelSizeKm == nil {
		return 1
	}
	return *c.PixelSizeKm
}

// GetNoData returns the missing-data sentinel.
func (c *CascadeConfig) GetNoData() float32 {
	if c.NoData == nil {
		return -999
	}
	return *c.NoData
}

// Apply overwrites the fields of t that the config sets.
func (c *CascadeConfig) Apply(t *cascade.Tuning) {
	setIf(&t.MapOffset, c.MapOffset)
	setIf(&t.BaseLevels, c.BaseLevels)
	setIf(&t.MinScaleRatio, c.MinScaleRatio)
	setIf(&t.FilterWidth, c.FilterWidth)
	setIf(&t.LevelStdFloor, c.LevelStdFloor)
	setIf(&t.ScaleBreakKm, c.ScaleBreakKm)
	setIf(&t.RainThreshold, c.RainThreshold)
	setIf(&t.RainFracThreshold, c.RainFracThreshold)
	setIf(&t.Lags, c.Lags)
	setIf(&t.CorrelationA, c.CorrelationA)
	setIf(&t.CorrelationB, c.CorrelationB)
	setIf(&t.CorrelationC, c.CorrelationC)
	setIf(&t.BiasVarianceWeight, c.BiasVarianceWeight)
	setIf(&t.ForecastFloorDBR, c.ForecastFloorDBR)
	setIf(&t.ProbabilityMatch, c.ProbabilityMatch)
	setIf(&t.FlowBlockSize, c.FlowBlockSize)
	setIf(&t.FlowSearchRadius, c.FlowSearchRadius)
	setIf(&t.Transform.ZRA, c.ZRA)
	setIf(&t.Transform.ZRB, c.ZRB)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Tuning returns the engine defaults with the config applied.
func (c *CascadeConfig) Tuning() cascade.Tuning {
	t := cascade.DefaultTuning()
	c.Apply(&t)
	return t
}

// EngineConfig assembles a cold-start engine configuration. Rows and cols
// are required.
func (c *CascadeConfig) EngineConfig() (cascade.Config, error) {
	if c.Rows == nil || c.Cols == nil {
		return cascade.Config{}, fmt.Errorf("rows and cols must be set")
	}
	cfg := cascade.Config{
		Rows:            *c.Rows,
		Cols:            *c.Cols,
		NumberCascades:  c.GetNumberCascades(),
		TimeStepMinutes: c.GetTimeStepMinutes(),
		PixelSizeKm:     c.GetPixelSizeKm(),
		NoData:          c.GetNoData(),
		Tuning:          c.Tuning(),
	}
	setIf(&cfg.Upscale, c.Upscale)
	setIf(&cfg.LogPath, c.LogPath)
	setIf(&cfg.PersistPath, c.PersistPath)
	if err := cfg.Validate(); err != nil {
		return cascade.Config{}, err
	}
	return cfg, nil
}
