package guidance

import (
	"fmt"
	"log/slog"
	"time"
)

// Config holds advisor configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key (optional for local backends)

	// Model
	Model       string
	MaxTokens   int
	Temperature float64

	// NearDistance is the unsafe band in meters: any detection closer
	// than this forces an unsafe verdict regardless of the advice text.
	NearDistance float64

	// Timeouts and retries
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the advisor.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens caps the advice length. Guidance is spoken, so the
// default is deliberately short.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithNearDistance sets the unsafe distance band in meters.
func WithNearDistance(m float64) Option {
	return func(c *Config) { c.NearDistance = m }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-3.5-turbo",
		MaxTokens:    150,
		Temperature:  0.7,
		NearDistance: 1.0,
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryDelay:   100 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("guidance: base URL required")
	}
	if c.Model == "" {
		return fmt.Errorf("guidance: model required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("guidance: max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.NearDistance <= 0 {
		return fmt.Errorf("guidance: near distance must be positive, got %v", c.NearDistance)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("guidance: timeout must be positive, got %v", c.Timeout)
	}
	return nil
}
