package camera

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Width != 640 || cfg.Height != 320 {
		t.Errorf("resolution = %dx%d, want 640x320", cfg.Width, cfg.Height)
	}
	if cfg.Device != 0 {
		t.Errorf("Device = %d, want 0", cfg.Device)
	}
	if cfg.Quality != 85 {
		t.Errorf("Quality = %d, want 85", cfg.Quality)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config should validate, got: %v", errs)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "negative device",
			mutate:  func(c *Config) { c.Device = -1 },
			wantErr: "device",
		},
		{
			name:    "width too small",
			mutate:  func(c *Config) { c.Width = 80 },
			wantErr: "width",
		},
		{
			name:    "height too large",
			mutate:  func(c *Config) { c.Height = 4000 },
			wantErr: "height",
		},
		{
			name:    "quality zero",
			mutate:  func(c *Config) { c.Quality = 0 },
			wantErr: "quality",
		},
		{
			name:    "zero read failures",
			mutate:  func(c *Config) { c.MaxReadFailures = 0 },
			wantErr: "max_read_failures",
		},
		{
			name:    "negative reconnect delay",
			mutate:  func(c *Config) { c.ReconnectDelay = -time.Second },
			wantErr: "reconnect_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			if !strings.Contains(strings.Join(errs, "; "), tt.wantErr) {
				t.Errorf("errors %v should mention %q", errs, tt.wantErr)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			preset := GetPreset(name)
			if preset == nil {
				t.Fatalf("GetPreset(%q) returned nil", name)
			}
			if errs := preset.Validate(); len(errs) > 0 {
				t.Errorf("preset %q should validate, got: %v", name, errs)
			}
		})
	}

	if GetPreset("8k") != nil {
		t.Error("unknown preset should return nil")
	}

	p := GetPreset(Preset720p)
	if p.Width != 1280 || p.Height != 720 {
		t.Errorf("720p preset = %dx%d, want 1280x720", p.Width, p.Height)
	}
}

func TestNewManagerInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quality = 200

	if _, err := NewManager(cfg); err == nil {
		t.Error("NewManager should reject invalid config")
	}
}

func TestManagerSetConfig(t *testing.T) {
	m, err := NewManager(DefaultConfig())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	if err := m.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig error: %v", err)
	}

	got := m.GetConfig()
	if got.Width != 1280 || got.Height != 720 {
		t.Errorf("config = %dx%d, want 1280x720", got.Width, got.Height)
	}

	bad := DefaultConfig()
	bad.Height = 0
	if err := m.SetConfig(bad); err == nil {
		t.Error("SetConfig should reject invalid config")
	}
}

func TestManagerApplyPreset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = 2
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	if err := m.ApplyPreset(Preset480p); err != nil {
		t.Fatalf("ApplyPreset error: %v", err)
	}

	got := m.GetConfig()
	if got.Width != 640 || got.Height != 480 {
		t.Errorf("config = %dx%d, want 640x480", got.Width, got.Height)
	}
	if got.Device != 2 {
		t.Errorf("Device = %d, preset should not change the device index", got.Device)
	}

	if err := m.ApplyPreset("vga"); err == nil {
		t.Error("ApplyPreset should reject unknown preset names")
	}
}

func TestManagerFrameIDStartsAtZero(t *testing.T) {
	m, err := NewManager(DefaultConfig())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	if id := m.FrameID(); id != 0 {
		t.Errorf("FrameID = %d, want 0 before any read", id)
	}
}
