package listen

import (
	"fmt"
	"log/slog"
	"time"
)

// Default activation phrases. Start phrases mirror what a rider naturally
// says to begin a run; stop phrases are short enough to land within one
// recognition window.
var (
	DefaultStartPhrases = []string{"go", "let's go", "i'm here"}
	DefaultStopPhrases  = []string{"stop", "wait"}
)

// Config holds listener settings.
type Config struct {
	// StartPhrases activate feedback when heard. Matched case-insensitively
	// as substrings, with a phonetic fallback for single words.
	StartPhrases []string

	// StopPhrases deactivate feedback when heard.
	StopPhrases []string

	// SampleRate of the incoming PCM stream in Hz.
	SampleRate int

	// Window is how much audio is buffered per recognition pass.
	Window time.Duration

	// RecognizeTimeout bounds one recognizer call. A timeout skips the
	// window.
	RecognizeTimeout time.Duration

	// MinConfidence discards recognizer results below this confidence.
	// Zero accepts everything.
	MinConfidence float64

	// Cooldown suppresses further triggers after one fires, so a single
	// utterance spanning two windows cannot flip the gate twice.
	Cooldown time.Duration

	// Logger receives listener diagnostics.
	Logger *slog.Logger
}

// DefaultConfig returns the listener defaults: 16 kHz mono capture in 2 s
// windows, 5 s recognition timeout, 2 s trigger cooldown.
func DefaultConfig() Config {
	return Config{
		StartPhrases:     DefaultStartPhrases,
		StopPhrases:      DefaultStopPhrases,
		SampleRate:       16000,
		Window:           2 * time.Second,
		RecognizeTimeout: 5 * time.Second,
		Cooldown:         2 * time.Second,
		Logger:           slog.Default(),
	}
}

// Option customizes listener configuration.
type Option func(*Config)

// WithStartPhrases replaces the activation phrase list.
func WithStartPhrases(phrases ...string) Option {
	return func(c *Config) {
		c.StartPhrases = phrases
	}
}

// WithStopPhrases replaces the deactivation phrase list.
func WithStopPhrases(phrases ...string) Option {
	return func(c *Config) {
		c.StopPhrases = phrases
	}
}

// WithSampleRate sets the incoming PCM sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithWindow sets the audio duration per recognition pass.
func WithWindow(d time.Duration) Option {
	return func(c *Config) {
		c.Window = d
	}
}

// WithRecognizeTimeout bounds each recognizer call.
func WithRecognizeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RecognizeTimeout = d
	}
}

// WithMinConfidence discards low-confidence transcripts.
func WithMinConfidence(min float64) Option {
	return func(c *Config) {
		c.MinConfidence = min
	}
}

// WithCooldown sets the post-trigger suppression interval.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		c.Cooldown = d
	}
}

// WithLogger sets the listener logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if len(c.StartPhrases) == 0 {
		return ErrNoPhrases
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("listen: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Window <= 0 {
		return fmt.Errorf("listen: window must be positive, got %v", c.Window)
	}
	return nil
}
