package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Source.Mode != SourceCamera {
		t.Errorf("Expected default source mode %q, got %q", SourceCamera, cfg.Source.Mode)
	}
	if cfg.Source.Width != 640 || cfg.Source.Height != 320 {
		t.Errorf("Expected default 640x320 capture, got %dx%d", cfg.Source.Width, cfg.Source.Height)
	}
	if cfg.Detector.ModelPath != "models/yolov8n.onnx" {
		t.Errorf("Expected default model path, got %q", cfg.Detector.ModelPath)
	}
	if cfg.Analysis.Interval != time.Second {
		t.Errorf("Expected 1s analysis interval, got %v", cfg.Analysis.Interval)
	}
	if cfg.Speech.Provider != "platform" {
		t.Errorf("Expected platform speech provider, got %q", cfg.Speech.Provider)
	}
	if !cfg.Web.Enabled || cfg.Web.Port != "8090" {
		t.Errorf("Expected dashboard enabled on 8090, got enabled=%v port=%q", cfg.Web.Enabled, cfg.Web.Port)
	}
	if cfg.Journal.Path != "./data/glide.db" {
		t.Errorf("Expected default journal path, got %q", cfg.Journal.Path)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/glide/sa.json")

	cfg := DefaultConfig()
	cfg.LoadEnv()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestLoadReader(t *testing.T) {
	yml := `
debug: true
source:
  mode: remote
  unit_host: 192.168.1.50
analysis:
  interval: 500ms
  near_distance: 1.5
speech:
  provider: elevenlabs
  voice: rachel
web:
  port: "9000"
`
	cfg := DefaultConfig()
	if err := cfg.LoadReader(strings.NewReader(yml)); err != nil {
		t.Fatalf("LoadReader failed: %v", err)
	}

	if !cfg.Debug {
		t.Error("Expected debug=true from file")
	}
	if cfg.Source.Mode != SourceRemote || cfg.Source.UnitHost != "192.168.1.50" {
		t.Errorf("Expected remote source with unit host, got mode=%q host=%q", cfg.Source.Mode, cfg.Source.UnitHost)
	}
	if cfg.Analysis.Interval != 500*time.Millisecond {
		t.Errorf("Expected 500ms interval, got %v", cfg.Analysis.Interval)
	}
	if cfg.Analysis.NearDistance != 1.5 {
		t.Errorf("Expected near_distance=1.5, got %v", cfg.Analysis.NearDistance)
	}
	if cfg.Speech.Provider != "elevenlabs" || cfg.Speech.Voice != "rachel" {
		t.Errorf("Expected elevenlabs/rachel, got %q/%q", cfg.Speech.Provider, cfg.Speech.Voice)
	}
	if cfg.Web.Port != "9000" {
		t.Errorf("Expected web port 9000, got %q", cfg.Web.Port)
	}

	// Fields the file omits keep their defaults.
	if cfg.Detector.ModelPath != "models/yolov8n.onnx" {
		t.Errorf("Expected untouched model path, got %q", cfg.Detector.ModelPath)
	}
}

func TestLoadReaderRejectsUnknownFields(t *testing.T) {
	yml := `
source:
  mode: camera
  resolution: 720p
`
	cfg := DefaultConfig()
	err := cfg.LoadReader(strings.NewReader(yml))
	if err == nil {
		t.Fatal("Expected error for unknown yaml field")
	}
	if !strings.Contains(err.Error(), "resolution") {
		t.Errorf("Expected error to name the unknown field, got %v", err)
	}
}

func TestLoadReaderRejectsKeysInFile(t *testing.T) {
	yml := `
openaikey: sk-should-not-be-here
`
	cfg := DefaultConfig()
	if err := cfg.LoadReader(strings.NewReader(yml)); err == nil {
		t.Error("Expected error when api key appears in config file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("GLIDE_SOURCE", "uplink")
	t.Setenv("GLIDE_WEB_PORT", "9999")
	t.Setenv("GLIDE_ANALYSIS_INTERVAL", "250ms")
	t.Setenv("GLIDE_MIN_CONFIDENCE", "0.7")
	t.Setenv("GLIDE_DEBUG", "true")

	yml := `
source:
  mode: camera
web:
  port: "9000"
`
	cfg := DefaultConfig()
	if err := cfg.LoadReader(strings.NewReader(yml)); err != nil {
		t.Fatalf("LoadReader failed: %v", err)
	}
	cfg.LoadEnv()

	if cfg.Source.Mode != SourceUplink {
		t.Errorf("Expected env to override file source mode, got %q", cfg.Source.Mode)
	}
	if cfg.Web.Port != "9999" {
		t.Errorf("Expected env to override file web port, got %q", cfg.Web.Port)
	}
	if cfg.Analysis.Interval != 250*time.Millisecond {
		t.Errorf("Expected 250ms interval from env, got %v", cfg.Analysis.Interval)
	}
	if cfg.Detector.MinConfidence != 0.7 {
		t.Errorf("Expected min_confidence=0.7 from env, got %v", cfg.Detector.MinConfidence)
	}
	if !cfg.Debug {
		t.Error("Expected debug=true from env")
	}
}

func TestEnvAPIKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/sa.json")
	t.Setenv("ELEVENLABS_VOICE_ID", "voice-123")

	cfg := DefaultConfig()
	cfg.LoadEnv()

	if cfg.OpenAIKey != "sk-test" {
		t.Errorf("Expected OpenAI key from env, got %q", cfg.OpenAIKey)
	}
	if cfg.ElevenLabsKey != "el-test" {
		t.Errorf("Expected ElevenLabs key from env, got %q", cfg.ElevenLabsKey)
	}
	if cfg.Listen.CredentialsFile != "/tmp/sa.json" {
		t.Errorf("Expected credentials file from env, got %q", cfg.Listen.CredentialsFile)
	}
	if cfg.Speech.Voice != "voice-123" {
		t.Errorf("Expected voice id fallback from env, got %q", cfg.Speech.Voice)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		cfg.Listen.CredentialsFile = "/etc/glide/sa.json"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "unknown source mode",
			mutate:  func(c *Config) { c.Source.Mode = "telepathy" },
			wantErr: "unknown source mode",
		},
		{
			name:    "remote without unit host",
			mutate:  func(c *Config) { c.Source.Mode = SourceRemote },
			wantErr: "unit_host is required",
		},
		{
			name: "remote with unit host",
			mutate: func(c *Config) {
				c.Source.Mode = SourceRemote
				c.Source.UnitHost = "10.0.0.5"
			},
			wantErr: "",
		},
		{
			name:    "uplink source without listener",
			mutate:  func(c *Config) { c.Source.Mode = SourceUplink },
			wantErr: "uplink listener",
		},
		{
			name: "uplink source with listener",
			mutate: func(c *Config) {
				c.Source.Mode = SourceUplink
				c.Uplink.Enabled = true
			},
			wantErr: "",
		},
		{
			name:    "missing model path",
			mutate:  func(c *Config) { c.Detector.ModelPath = "" },
			wantErr: "model path",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.Detector.MinConfidence = 1.5 },
			wantErr: "min_confidence",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Analysis.Interval = 0 },
			wantErr: "interval must be positive",
		},
		{
			name:    "elevenlabs without key",
			mutate:  func(c *Config) { c.Speech.Provider = "elevenlabs" },
			wantErr: "ELEVENLABS_API_KEY",
		},
		{
			name: "elevenlabs with key",
			mutate: func(c *Config) {
				c.Speech.Provider = "elevenlabs"
				c.ElevenLabsKey = "el-test"
			},
			wantErr: "",
		},
		{
			name:    "google recognizer without credentials",
			mutate:  func(c *Config) { c.Listen.CredentialsFile = "" },
			wantErr: "credentials_file",
		},
		{
			name:    "whisper without model",
			mutate:  func(c *Config) { c.Listen.Recognizer = "whisper" },
			wantErr: "whisper_model",
		},
		{
			name:    "unknown recognizer",
			mutate:  func(c *Config) { c.Listen.Recognizer = "psychic" },
			wantErr: "unknown recognizer",
		},
		{
			name:    "guidance without openai key",
			mutate:  func(c *Config) { c.Guidance.Enabled = true },
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "unknown speech provider",
			mutate:  func(c *Config) { c.Speech.Provider = "megaphone" },
			wantErr: "unknown speech provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected *ConfigError, got %T", err)
			} else if cfgErr.Field == "" {
				t.Error("Expected ConfigError to name a field")
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile("/nonexistent/glide.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}
