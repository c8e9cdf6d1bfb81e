package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/heartbeat/internal/ecg"
	"github.com/banshee-data/heartbeat/internal/ecg/filter"
	"github.com/banshee-data/heartbeat/internal/ecg/qrs"
)

// DefaultConfigPath is the path to the canonical detection defaults file.
const DefaultConfigPath = "config/detection.defaults.json"

// DetectionConfig is the on-disk form of the detection settings. Every
// field is optional; the Get* methods supply defaults for omitted ones.
type DetectionConfig struct {
	// QRS detector
	Threshold *string  `json:"threshold,omitempty"` // "auto" or a fraction in (0, 1]
	Levels    *float64 `json:"levels,omitempty"`
	NThresh   *int     `json:"n_thresh,omitempty"`
	TStart    *float64 `json:"tstart,omitempty"`
	Parallel  *bool    `json:"parallel,omitempty"`

	// Band-pass filter
	LFreq        *float64 `json:"l_freq,omitempty"`
	HFreq        *float64 `json:"h_freq,omitempty"`
	FilterLength *string  `json:"filter_length,omitempty"` // "10s", "500ms" or a tap count

	// Events
	EventID            *int    `json:"event_id,omitempty"`
	RejectByAnnotation *bool   `json:"reject_by_annotation,omitempty"`
	ChannelName        *string `json:"ch_name,omitempty"`

	// Epochs
	EpochTMin  *float64 `json:"epoch_tmin,omitempty"`
	EpochTMax  *float64 `json:"epoch_tmax,omitempty"`
	EpochLFreq *float64 `json:"epoch_l_freq,omitempty"`
	EpochHFreq *float64 `json:"epoch_h_freq,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyDetectionConfig returns a DetectionConfig with all fields nil.
func EmptyDetectionConfig() *DetectionConfig {
	return &DetectionConfig{}
}

// LoadDetectionConfig loads a DetectionConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadDetectionConfig(path string) (*DetectionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
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

	cfg := EmptyDetectionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *DetectionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/ecg/qrs/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadDetectionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *DetectionConfig) Validate() error {
	if c.Threshold != nil {
		if _, err := qrs.ParseThreshold(*c.Threshold); err != nil {
			return err
		}
	}
	if c.Levels != nil && *c.Levels < 0 {
		return fmt.Errorf("levels must be non-negative, got %f", *c.Levels)
	}
	if c.NThresh != nil && *c.NThresh < 1 {
		return fmt.Errorf("n_thresh must be at least 1, got %d", *c.NThresh)
	}
	if c.TStart != nil && *c.TStart < 0 {
		return fmt.Errorf("tstart must be non-negative, got %f", *c.TStart)
	}
	if c.FilterLength != nil && *c.FilterLength != "" {
		// Any positive rate will do to check the syntax.
		if _, err := filter.Taps(*c.FilterLength, 1000); err != nil {
			return fmt.Errorf("invalid filter_length '%s': %w", *c.FilterLength, err)
		}
	}
	lf, hf := c.GetLFreq(), c.GetHFreq()
	if lf > 0 && hf > 0 && lf >= hf {
		return fmt.Errorf("l_freq (%g) must be less than h_freq (%g)", lf, hf)
	}
	if c.GetEpochTMin() > c.GetEpochTMax() {
		return fmt.Errorf("epoch_tmin (%g) must not exceed epoch_tmax (%g)", c.GetEpochTMin(), c.GetEpochTMax())
	}
	return nil
}

// GetThreshold returns the parsed threshold, or the automatic sweep.
func (c *DetectionConfig) GetThreshold() qrs.Threshold {
	if c.Threshold == nil {
		return qrs.Auto()
	}
	t, err := qrs.ParseThreshold(*c.Threshold)
	if err != nil {
		return qrs.Auto() // default on parse error
	}
	return t
}

// GetLevels returns the levels value or the default.
func (c *DetectionConfig) GetLevels() float64 {
	if c.Levels == nil {
		return qrs.DefaultLevels
	}
	return *c.Levels
}

// GetNThresh returns the n_thresh value or the default.
func (c *DetectionConfig) GetNThresh() int {
	if c.NThresh == nil {
		return qrs.DefaultNThresh
	}
	return *c.NThresh
}

// GetTStart returns the tstart value or the default.
func (c *DetectionConfig) GetTStart() float64 {
	if c.TStart == nil {
		return 0
	}
	return *c.TStart
}

// GetParallel returns the parallel value or the default.
func (c *DetectionConfig) GetParallel() bool {
	if c.Parallel == nil {
		return false
	}
	return *c.Parallel
}

// GetLFreq returns the l_freq value or the default.
func (c *DetectionConfig) GetLFreq() float64 {
	if c.LFreq == nil {
		return 5
	}
	return *c.LFreq
}

// GetHFreq returns the h_freq value or the default.
func (c *DetectionConfig) GetHFreq() float64 {
	if c.HFreq == nil {
		return 35
	}
	return *c.HFreq
}

// GetFilterLength returns the filter_length value or the default.
func (c *DetectionConfig) GetFilterLength() string {
	if c.FilterLength == nil || *c.FilterLength == "" {
		return filter.DefaultLength
	}
	return *c.FilterLength
}

// GetEventID returns the event_id value or the default.
func (c *DetectionConfig) GetEventID() int {
	if c.EventID == nil {
		return 999
	}
	return *c.EventID
}

// GetRejectByAnnotation returns the reject_by_annotation value or the default.
func (c *DetectionConfig) GetRejectByAnnotation() bool {
	if c.RejectByAnnotation == nil {
		return true
	}
	return *c.RejectByAnnotation
}

// GetChannelName returns the ch_name value, empty for automatic selection.
func (c *DetectionConfig) GetChannelName() string {
	if c.ChannelName == nil {
		return ""
	}
	return *c.ChannelName
}

// GetEpochTMin returns the epoch_tmin value or the default.
func (c *DetectionConfig) GetEpochTMin() float64 {
	if c.EpochTMin == nil {
		return -0.5
	}
	return *c.EpochTMin
}

// GetEpochTMax returns the epoch_tmax value or the default.
func (c *DetectionConfig) GetEpochTMax() float64 {
	if c.EpochTMax == nil {
		return 0.5
	}
	return *c.EpochTMax
}

// GetEpochLFreq returns the epoch_l_freq value or the default.
func (c *DetectionConfig) GetEpochLFreq() float64 {
	if c.EpochLFreq == nil {
		return 8
	}
	return *c.EpochLFreq
}

// GetEpochHFreq returns the epoch_h_freq value or the default.
func (c *DetectionConfig) GetEpochHFreq() float64 {
	if c.EpochHFreq == nil {
		return 16
	}
	return *c.EpochHFreq
}

// ToOptions converts the config to detection options.
func (c *DetectionConfig) ToOptions() ecg.Options {
	o := ecg.DefaultOptions()
	o.ChannelName = c.GetChannelName()
	o.EventID = c.GetEventID()
	o.Threshold = c.GetThreshold()
	o.Levels = c.GetLevels()
	o.NThresh = c.GetNThresh()
	o.LFreq = c.GetLFreq()
	o.HFreq = c.GetHFreq()
	o.TStart = c.GetTStart()
	o.FilterLength = c.GetFilterLength()
	o.RejectByAnnotation = c.GetRejectByAnnotation()
	o.Parallel = c.GetParallel()
	return o
}

// ToEpochOptions converts the config to epoch options. The epoch band
// replaces the detection band.
func (c *DetectionConfig) ToEpochOptions() ecg.EpochOptions {
	o := ecg.EpochOptions{Options: c.ToOptions(), TMin: c.GetEpochTMin(), TMax: c.GetEpochTMax()}
	o.LFreq = c.GetEpochLFreq()
	o.HFreq = c.GetEpochHFreq()
	return o
}
