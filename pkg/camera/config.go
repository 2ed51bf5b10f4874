// Package camera manages the local capture device. It produces JPEG
// frames for the detector and the dashboard and reopens the device
// after repeated read failures.
package camera

import "time"

// Config holds capture settings. These can be changed at runtime via
// SetConfig, which reapplies them to an open device.
type Config struct {
	// Device is the capture device index (0 is the built-in webcam).
	Device int `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS, 0 leaves the driver default
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// === Recovery ===
	// MaxReadFailures is the number of consecutive failed reads before
	// the device is closed and reopened.
	MaxReadFailures int `json:"max_read_failures"`

	// ReconnectDelay is the wait before a reopen attempt.
	ReconnectDelay time.Duration `json:"reconnect_delay"`
}

// DefaultConfig returns the navigation capture configuration. The low
// 640x320 resolution keeps per-frame detection cheap on chair hardware.
func DefaultConfig() Config {
	return Config{
		Device:          0,
		Width:           640,
		Height:          320,
		Framerate:       15,
		Quality:         85,
		MaxReadFailures: 5,
		ReconnectDelay:  2 * time.Second,
	}
}

// Validate checks config values and returns a list of problems, or nil
// if the config is usable.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be >= 0")
	}
	if c.Width < 160 || c.Width > 3840 {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > 2160 {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 0 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.MaxReadFailures < 1 {
		errors = append(errors, "max_read_failures must be >= 1")
	}
	if c.ReconnectDelay < 0 {
		errors = append(errors, "reconnect_delay must be >= 0")
	}

	return errors
}
