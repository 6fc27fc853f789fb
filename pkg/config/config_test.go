package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"astroseg/pkg/label"
	"astroseg/pkg/segment"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration is invalid: %v", err)
	}

	p := cfg.SegmentParams()
	d := segment.DefaultParams()
	if p.Connectivity != label.Eight || p.MinArea != d.MinArea || p.SNQuantile != d.SNQuantile {
		t.Errorf("unexpected conversion %+v", p)
	}
	if p.Snapshots {
		t.Error("snapshots should be off without a check directory")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Segment.MinNumSky != DefaultConfig().Segment.MinNumSky {
		t.Error("a missing file should give the defaults")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Segment.Connectivity = 4
	cfg.Segment.ObjBorderSN = 2.5
	cfg.Tile.ChannelsX = 2
	cfg.Output.CheckDir = "check"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.Segment.Connectivity != 4 || got.Segment.ObjBorderSN != 2.5 || got.Tile.ChannelsX != 2 {
		t.Errorf("values lost in the round trip: %+v", got)
	}

	p := got.SegmentParams()
	if p.Connectivity != label.Four || !p.Snapshots {
		t.Errorf("unexpected conversion %+v", p)
	}
	size, channels := got.TileGeometry()
	if size.X != 30 || channels.X != 2 || channels.Y != 1 {
		t.Errorf("unexpected tile geometry %v %v", size, channels)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "segment:\n  snThreshold: 4.5\nkernel:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Segment.SNThreshold != 4.5 || cfg.Kernel.Enabled {
		t.Errorf("file values not applied: %+v", cfg.Segment)
	}
	if cfg.Segment.MinArea != DefaultConfig().Segment.MinArea {
		t.Error("values absent from the file should keep their defaults")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("segment: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"connectivity", func(c *Config) { c.Segment.Connectivity = 6 }},
		{"tile size", func(c *Config) { c.Tile.TileWidth = 0 }},
		{"channels", func(c *Config) { c.Tile.ChannelsY = 0 }},
		{"kernel", func(c *Config) { c.Kernel.FWHM = 0 }},
		{"noise", func(c *Config) { c.Noise.Std = -1 }},
		{"quantile", func(c *Config) { c.Segment.SNQuantile = 1.5 }},
		{"threads", func(c *Config) { c.Processing.NumThreads = -2 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, segment.ErrInput) {
				t.Errorf("expected ErrInput, got %v", err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Kernel.Enabled = false
	cfg.Kernel.FWHM = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("a disabled kernel needs no size, got %v", err)
	}
}
