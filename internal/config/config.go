// Package config holds the glide application configuration. Values are
// layered: defaults, then an optional YAML file, then environment
// variables. Command flags are applied last by the caller.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Source modes.
const (
	SourceCamera = "camera" // local capture device
	SourceRemote = "remote" // companion unit over WebRTC
	SourceUplink = "uplink" // companion unit over websocket uplink
)

// Config holds all configuration for the glide application.
// Flag parsing is done in cmd/glide/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug"`

	Source   SourceConfig   `yaml:"source"`
	Detector DetectorConfig `yaml:"detector"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Speech   SpeechConfig   `yaml:"speech"`
	Listen   ListenConfig   `yaml:"listen"`
	Guidance GuidanceConfig `yaml:"guidance"`
	Web      WebConfig      `yaml:"web"`
	Uplink   UplinkConfig   `yaml:"uplink"`
	Journal  JournalConfig  `yaml:"journal"`

	// API keys come from the environment only, never from config files.
	OpenAIKey     string `yaml:"-"`
	ElevenLabsKey string `yaml:"-"`
}

// SourceConfig selects where frames and microphone audio come from.
type SourceConfig struct {
	Mode   string `yaml:"mode"`
	Device int    `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	// UnitHost is the companion unit address for remote mode.
	UnitHost string `yaml:"unit_host"`
}

// DetectorConfig configures the YOLO obstacle detector.
type DetectorConfig struct {
	ModelPath     string  `yaml:"model_path"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// AnalysisConfig tunes the decision loop.
type AnalysisConfig struct {
	Interval     time.Duration `yaml:"interval"`
	NearDistance float64       `yaml:"near_distance"`
	Cooldown     time.Duration `yaml:"cooldown"`
}

// SpeechConfig selects the synthesizer chain.
type SpeechConfig struct {
	// Provider is "elevenlabs", "elevenlabs-streaming", "openai", or
	// "platform" for the OS voice.
	Provider string `yaml:"provider"`
	Voice    string `yaml:"voice"`
}

// ListenConfig configures the voice trigger.
type ListenConfig struct {
	// Recognizer is "google", "openai", or "whisper".
	Recognizer   string   `yaml:"recognizer"`
	StartPhrases []string `yaml:"start_phrases"`
	StopPhrases  []string `yaml:"stop_phrases"`

	// CredentialsFile is the Google service-account key for the "google"
	// recognizer. Defaults to $GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsFile string `yaml:"credentials_file"`

	// WhisperModel is the ggml model path for the "whisper" recognizer.
	WhisperModel string `yaml:"whisper_model"`
}

// GuidanceConfig configures the optional LLM advisor.
type GuidanceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// UplinkConfig configures the companion-unit websocket listener.
type UplinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// JournalConfig configures alert persistence.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns sensible defaults for the glide application.
func DefaultConfig() Config {
	return Config{
		Source: SourceConfig{
			Mode:   SourceCamera,
			Device: 0,
			Width:  640,
			Height: 320,
		},
		Detector: DetectorConfig{
			ModelPath:     "models/yolov8n.onnx",
			MinConfidence: 0.5,
		},
		Analysis: AnalysisConfig{
			Interval:     time.Second,
			NearDistance: 1.0,
			Cooldown:     time.Second,
		},
		Speech: SpeechConfig{
			Provider: "platform",
		},
		Listen: ListenConfig{
			Recognizer: "google",
		},
		Guidance: GuidanceConfig{
			Enabled: false,
			Model:   "gpt-3.5-turbo",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    "8090",
		},
		Uplink: UplinkConfig{
			Enabled: false,
			Port:    "8091",
		},
		Journal: JournalConfig{
			Path: "./data/glide.db",
		},
	}
}

// Load reads defaults, overlays the YAML file at path if non-empty,
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.LoadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays values from a YAML file. Unknown fields are an
// error so typos surface at startup.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	if err := c.LoadReader(f); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

// LoadReader overlays YAML from r onto the config.
func (c *Config) LoadReader(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// LoadEnv applies environment overrides. Environment wins over file
// values so deployments can override a shared config.
func (c *Config) LoadEnv() {
	c.Debug = getEnvBool("GLIDE_DEBUG", c.Debug)

	c.Source.Mode = getEnvString("GLIDE_SOURCE", c.Source.Mode)
	c.Source.Device = getEnvInt("GLIDE_CAMERA_DEVICE", c.Source.Device)
	c.Source.UnitHost = getEnvString("GLIDE_UNIT_HOST", c.Source.UnitHost)

	c.Detector.ModelPath = getEnvString("GLIDE_MODEL_PATH", c.Detector.ModelPath)
	c.Detector.MinConfidence = getEnvFloat("GLIDE_MIN_CONFIDENCE", c.Detector.MinConfidence)

	c.Analysis.Interval = getEnvDuration("GLIDE_ANALYSIS_INTERVAL", c.Analysis.Interval)
	c.Analysis.NearDistance = getEnvFloat("GLIDE_NEAR_DISTANCE", c.Analysis.NearDistance)
	c.Analysis.Cooldown = getEnvDuration("GLIDE_COOLDOWN", c.Analysis.Cooldown)

	c.Speech.Provider = getEnvString("GLIDE_SPEECH_PROVIDER", c.Speech.Provider)
	c.Speech.Voice = getEnvString("GLIDE_VOICE", c.Speech.Voice)
	if c.Speech.Voice == "" {
		c.Speech.Voice = os.Getenv("ELEVENLABS_VOICE_ID")
	}

	c.Listen.Recognizer = getEnvString("GLIDE_RECOGNIZER", c.Listen.Recognizer)
	c.Listen.CredentialsFile = getEnvString("GOOGLE_APPLICATION_CREDENTIALS", c.Listen.CredentialsFile)
	c.Listen.WhisperModel = getEnvString("GLIDE_WHISPER_MODEL", c.Listen.WhisperModel)

	c.Guidance.Enabled = getEnvBool("GLIDE_GUIDANCE", c.Guidance.Enabled)
	c.Guidance.Model = getEnvString("GLIDE_GUIDANCE_MODEL", c.Guidance.Model)

	c.Web.Port = getEnvString("GLIDE_WEB_PORT", c.Web.Port)
	c.Uplink.Enabled = getEnvBool("GLIDE_UPLINK", c.Uplink.Enabled)
	c.Uplink.Port = getEnvString("GLIDE_UPLINK_PORT", c.Uplink.Port)

	c.Journal.Path = getEnvString("GLIDE_JOURNAL_PATH", c.Journal.Path)

	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.ElevenLabsKey = os.Getenv("ELEVENLABS_API_KEY")
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.Source.Mode {
	case SourceCamera:
	case SourceUplink:
		if !c.Uplink.Enabled {
			return &ConfigError{Field: "Uplink.Enabled", Message: "uplink source mode requires the uplink listener (uplink.enabled)"}
		}
	case SourceRemote:
		if c.Source.UnitHost == "" {
			return &ConfigError{Field: "Source.UnitHost", Message: "unit_host is required for remote source mode"}
		}
	default:
		return &ConfigError{Field: "Source.Mode", Message: fmt.Sprintf("unknown source mode %q (camera, remote, uplink)", c.Source.Mode)}
	}

	if c.Detector.ModelPath == "" {
		return &ConfigError{Field: "Detector.ModelPath", Message: "detector model path is required"}
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return &ConfigError{Field: "Detector.MinConfidence", Message: "min_confidence must be between 0 and 1"}
	}

	if c.Analysis.Interval <= 0 {
		return &ConfigError{Field: "Analysis.Interval", Message: "analysis interval must be positive"}
	}
	if c.Analysis.NearDistance <= 0 {
		return &ConfigError{Field: "Analysis.NearDistance", Message: "near_distance must be positive"}
	}

	switch c.Speech.Provider {
	case "platform":
	case "openai":
		if c.OpenAIKey == "" {
			return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for OpenAI speech"}
		}
	case "elevenlabs", "elevenlabs-streaming":
		if c.ElevenLabsKey == "" {
			return &ConfigError{Field: "ElevenLabsKey", Message: "ELEVENLABS_API_KEY environment variable is required for ElevenLabs speech"}
		}
	default:
		return &ConfigError{Field: "Speech.Provider", Message: fmt.Sprintf("unknown speech provider %q", c.Speech.Provider)}
	}

	switch c.Listen.Recognizer {
	case "google":
		if c.Listen.CredentialsFile == "" {
			return &ConfigError{Field: "Listen.CredentialsFile", Message: "a service-account credentials_file (or GOOGLE_APPLICATION_CREDENTIALS) is required for the Google recognizer"}
		}
	case "openai":
		if c.OpenAIKey == "" {
			return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for the OpenAI recognizer"}
		}
	case "whisper":
		if c.Listen.WhisperModel == "" {
			return &ConfigError{Field: "Listen.WhisperModel", Message: "whisper_model path is required for the whisper recognizer"}
		}
	default:
		return &ConfigError{Field: "Listen.Recognizer", Message: fmt.Sprintf("unknown recognizer %q", c.Listen.Recognizer)}
	}

	if c.Guidance.Enabled && c.OpenAIKey == "" {
		return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for guidance"}
	}

	if c.Web.Enabled && c.Web.Port == "" {
		return &ConfigError{Field: "Web.Port", Message: "web port is required when the dashboard is enabled"}
	}
	if c.Uplink.Enabled && c.Uplink.Port == "" {
		return &ConfigError{Field: "Uplink.Port", Message: "uplink port is required when the uplink is enabled"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
