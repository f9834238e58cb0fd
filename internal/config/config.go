package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// QAConfig represents the tunable parameters for the alignment QA
// pipeline. All fields are pointers so a partial JSON config only
// overrides the values it names; the Get* accessors supply defaults
// for everything else.
type QAConfig struct {
	// Source detection params
	MaxSources    *int     `json:"max_sources,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`     // detection threshold in sky-sigma units
	ConvWidth     *float64 `json:"conv_width,omitempty"`    // smoothing kernel FWHM in pixels
	ComputeSigma  *bool    `json:"compute_sigma,omitempty"` // derive sky sigma from the image
	SkySigma      *float64 `json:"sky_sigma,omitempty"`     // used when compute_sigma is false
	PeakMin       *float64 `json:"peak_min,omitempty"`
	PeakMax       *float64 `json:"peak_max,omitempty"`

	// Matching params
	SearchRad  *float64 `json:"search_rad,omitempty"` // bulk offset search radius (pixels)
	Separation *float64 `json:"separation,omitempty"` // close-pair suppression distance (pixels)
	Tolerance  *float64 `json:"tolerance,omitempty"`  // match acceptance radius (pixels)
	Use2DHist  *bool    `json:"use_2dhist,omitempty"`

	// Fit params
	SigmaClip     *float64 `json:"sigma_clip,omitempty"`
	ClipIters     *int     `json:"clip_iters,omitempty"`
	MinFitMatches *int     `json:"min_fit_matches,omitempty"`
}

// EmptyQAConfig returns a QAConfig with all fields set to nil.
func EmptyQAConfig() *QAConfig {
	return &QAConfig{}
}

// LoadQAConfig loads a QAConfig from a JSON file. The file is
// validated to have a .json extension and to be under the max file
// size. Fields omitted from the JSON retain their defaults, so
// partial configs are safe.
func LoadQAConfig(path string) (*QAConfig, error) {
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

	cfg := EmptyQAConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *QAConfig) Validate() error {
	if c.MaxSources != nil && *c.MaxSources < 1 {
		return fmt.Errorf("max_sources must be positive, got %d", *c.MaxSources)
	}
	if c.Threshold != nil && *c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %f", *c.Threshold)
	}
	if c.SearchRad != nil && *c.SearchRad <= 0 {
		return fmt.Errorf("search_rad must be positive, got %f", *c.SearchRad)
	}
	if c.Separation != nil && *c.Separation < 0 {
		return fmt.Errorf("separation must be non-negative, got %f", *c.Separation)
	}
	if c.Tolerance != nil && *c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %f", *c.Tolerance)
	}
	if c.SigmaClip != nil && *c.SigmaClip <= 0 {
		return fmt.Errorf("sigma_clip must be positive, got %f", *c.SigmaClip)
	}
	if c.ClipIters != nil && *c.ClipIters < 0 {
		return fmt.Errorf("clip_iters must be non-negative, got %d", *c.ClipIters)
	}
	if c.MinFitMatches != nil && *c.MinFitMatches < 2 {
		return fmt.Errorf("min_fit_matches must be at least 2, got %d", *c.MinFitMatches)
	}
	return nil
}

// GetMaxSources returns the max_sources value or the default.
func (c *QAConfig) GetMaxSources() int {
	if c.MaxSources == nil {
		return 2000
	}
	return *c.MaxSources
}

// GetThreshold returns the threshold value or the default.
func (c *QAConfig) GetThreshold() float64 {
	if c.Threshold == nil {
		return 4.0
	}
	return *c.Threshold
}

// GetConvWidth returns the conv_width value or the default.
func (c *QAConfig) GetConvWidth() float64 {
	if c.ConvWidth == nil {
		return 3.5
	}
	return *c.ConvWidth
}

// GetComputeSigma returns the compute_sigma value or the default.
func (c *QAConfig) GetComputeSigma() bool {
	if c.ComputeSigma == nil {
		return true
	}
	return *c.ComputeSigma
}

// GetSkySigma returns the sky_sigma value or the default.
func (c *QAConfig) GetSkySigma() float64 {
	if c.SkySigma == nil {
		return 0
	}
	return *c.SkySigma
}

// GetPeakMin returns the peak_min value, or 0 when unset (no lower cut).
func (c *QAConfig) GetPeakMin() float64 {
	if c.PeakMin == nil {
		return 0
	}
	return *c.PeakMin
}

// GetPeakMax returns the peak_max value, or 0 when unset (no upper cut).
func (c *QAConfig) GetPeakMax() float64 {
	if c.PeakMax == nil {
		return 0
	}
	return *c.PeakMax
}

// GetSearchRad returns the search_rad value or the default.
func (c *QAConfig) GetSearchRad() float64 {
	if c.SearchRad == nil {
		return 5.0
	}
	return *c.SearchRad
}

// GetSeparation returns the separation value or the default.
func (c *QAConfig) GetSeparation() float64 {
	if c.Separation == nil {
		return 4.0
	}
	return *c.Separation
}

// GetTolerance returns the tolerance value or the default.
func (c *QAConfig) GetTolerance() float64 {
	if c.Tolerance == nil {
		return 1.0
	}
	return *c.Tolerance
}

// GetUse2DHist returns the use_2dhist value or the default.
func (c *QAConfig) GetUse2DHist() bool {
	if c.Use2DHist == nil {
		return true
	}
	return *c.Use2DHist
}

// GetSigmaClip returns the sigma_clip value or the default.
func (c *QAConfig) GetSigmaClip() float64 {
	if c.SigmaClip == nil {
		return 3.0
	}
	return *c.SigmaClip
}

// GetClipIters returns the clip_iters value or the default.
func (c *QAConfig) GetClipIters() int {
	if c.ClipIters == nil {
		return 5
	}
	return *c.ClipIters
}

// GetMinFitMatches returns the min_fit_matches value or the default.
func (c *QAConfig) GetMinFitMatches() int {
	if c.MinFitMatches == nil {
		return 4
	}
	return *c.MinFitMatches
}
