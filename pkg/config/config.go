// Package config provides configuration loading and management for the
// segmentation tool. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"astroseg/pkg/label"
	"astroseg/pkg/segment"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Segmentation parameters
	Segment struct {
		// Connectivity is 4 or 8
		Connectivity int `yaml:"connectivity"`

		// FindMinima grows clumps from minima, for inverted images
		FindMinima bool `yaml:"findMinima"`

		MinArea int `yaml:"minArea"`

		// SNQuantile of the sky clump S/N distribution used as threshold
		SNQuantile float64 `yaml:"snQuantile"`

		// SNThreshold skips the sky measurement when positive
		SNThreshold float64 `yaml:"snThreshold"`

		MinSkyFrac       float64 `yaml:"minSkyFrac"`
		MinNumSky        int     `yaml:"minNumSky"`
		GThresh          float64 `yaml:"gthresh"`
		MinRiverLength   int     `yaml:"minRiverLength"`
		ObjBorderSN      float64 `yaml:"objBorderSN"`
		KeepMaxNearRiver bool    `yaml:"keepMaxNearRiver"`

		SigmaClip struct {
			Multiple  float64 `yaml:"multiple"`
			Tolerance float64 `yaml:"tolerance"`
		} `yaml:"sigmaClip"`

		// CPSCorrection of 0 is chosen from the noise
		CPSCorrection float64 `yaml:"cpsCorrection"`
	} `yaml:"segment"`

	// Tessellation used for the sky measurement and noise estimation
	Tile struct {
		TileWidth  int `yaml:"tileWidth"`
		TileHeight int `yaml:"tileHeight"`
		ChannelsX  int `yaml:"channelsX"`
		ChannelsY  int `yaml:"channelsY"`
	} `yaml:"tile"`

	// Convolution kernel for the watershed signal
	Kernel struct {
		Enabled    bool    `yaml:"enabled"`
		FWHM       float64 `yaml:"fwhm"`
		Truncation float64 `yaml:"truncation"`
	} `yaml:"kernel"`

	// Noise model
	Noise struct {
		// Std is a constant noise level; 0 estimates it per tile
		Std float64 `yaml:"std"`

		// IsVariance means Std holds a variance
		IsVariance bool `yaml:"isVariance"`
	} `yaml:"noise"`

	// Processing parameters
	Processing struct {
		// NumThreads specifies how many workers segment detections in parallel
		NumThreads int `yaml:"numThreads"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// CheckDir receives stage snapshots when not empty
		CheckDir string `yaml:"checkDir"`

		// CheckScale is the upscaling factor of check images
		CheckScale int `yaml:"checkScale"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	p := segment.DefaultParams()

	cfg.Segment.Connectivity = 8
	cfg.Segment.MinArea = p.MinArea
	cfg.Segment.SNQuantile = p.SNQuantile
	cfg.Segment.MinSkyFrac = p.MinSkyFrac
	cfg.Segment.MinNumSky = p.MinNumSky
	cfg.Segment.GThresh = p.GThresh
	cfg.Segment.MinRiverLength = p.MinRiverLength
	cfg.Segment.ObjBorderSN = p.ObjBorderSN
	cfg.Segment.SigmaClip.Multiple = p.ClipMultiple
	cfg.Segment.SigmaClip.Tolerance = p.ClipTolerance

	cfg.Tile.TileWidth = 30
	cfg.Tile.TileHeight = 30
	cfg.Tile.ChannelsX = 1
	cfg.Tile.ChannelsY = 1

	cfg.Kernel.Enabled = true
	cfg.Kernel.FWHM = 2
	cfg.Kernel.Truncation = 5

	cfg.Processing.NumThreads = runtime.NumCPU() // Use all available cores by default

	cfg.Output.CheckScale = 4

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// SegmentParams converts the configuration to engine parameters.
func (c *Config) SegmentParams() segment.Params {
	s := c.Segment
	conn := label.Eight
	if s.Connectivity == 4 {
		conn = label.Four
	}
	return segment.Params{
		Connectivity:     conn,
		FindMinima:       s.FindMinima,
		MinArea:          s.MinArea,
		SNQuantile:       s.SNQuantile,
		SNThreshold:      s.SNThreshold,
		MinSkyFrac:       s.MinSkyFrac,
		MinNumSky:        s.MinNumSky,
		GThresh:          s.GThresh,
		MinRiverLength:   s.MinRiverLength,
		ObjBorderSN:      s.ObjBorderSN,
		KeepMaxNearRiver: s.KeepMaxNearRiver,
		ClipMultiple:     s.SigmaClip.Multiple,
		ClipTolerance:    s.SigmaClip.Tolerance,
		CPSCorrection:    s.CPSCorrection,
		NumThreads:       c.Processing.NumThreads,
		Snapshots:        c.Output.CheckDir != "",
	}
}

// TileGeometry returns the tile size and channel grid for tile.Build.
func (c *Config) TileGeometry() (size, channels image.Point) {
	return image.Pt(c.Tile.TileWidth, c.Tile.TileHeight), image.Pt(c.Tile.ChannelsX, c.Tile.ChannelsY)
}

// Validate checks the configuration. Errors wrap segment.ErrInput.
func (c *Config) Validate() error {
	switch {
	case c.Segment.Connectivity != 4 && c.Segment.Connectivity != 8:
		return fmt.Errorf("%w: connectivity must be 4 or 8, got %d", segment.ErrInput, c.Segment.Connectivity)
	case c.Tile.TileWidth < 1 || c.Tile.TileHeight < 1:
		return fmt.Errorf("%w: tile size must be positive, got %dx%d", segment.ErrInput, c.Tile.TileWidth, c.Tile.TileHeight)
	case c.Tile.ChannelsX < 1 || c.Tile.ChannelsY < 1:
		return fmt.Errorf("%w: channel grid must be positive, got %dx%d", segment.ErrInput, c.Tile.ChannelsX, c.Tile.ChannelsY)
	case c.Kernel.Enabled && (c.Kernel.FWHM <= 0 || c.Kernel.Truncation <= 0):
		return fmt.Errorf("%w: kernel fwhm and truncation must be positive", segment.ErrInput)
	case c.Noise.Std < 0:
		return fmt.Errorf("%w: noise std cannot be negative, got %g", segment.ErrInput, c.Noise.Std)
	}
	return c.SegmentParams().Validate()
}
