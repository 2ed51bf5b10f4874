//go:build linux

package audioio

import (
	"log/slog"
	"os/exec"
	"strconv"
)

// newALSASource captures through arecord over a pipe. arecord ships
// with alsa-utils on the chair's Pi image; the device name follows
// ALSA conventions ("default", "hw:1,0", "plughw:1,0").
func newALSASource(cfg Config, logger *slog.Logger) (Source, error) {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	newCmd := func() *exec.Cmd {
		return exec.Command("arecord",
			"-q",
			"-D", device,
			"-f", "S16_LE",
			"-r", strconv.Itoa(cfg.SampleRate),
			"-c", strconv.Itoa(cfg.Channels),
			"-t", "raw",
			"-",
		)
	}
	return newPipeSource(cfg, "alsa", newCmd, logger), nil
}

// newALSASink plays through aplay with the same device naming.
func newALSASink(cfg Config, logger *slog.Logger) (Sink, error) {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	newCmd := func() *exec.Cmd {
		return exec.Command("aplay",
			"-q",
			"-D", device,
			"-f", "S16_LE",
			"-r", strconv.Itoa(cfg.SampleRate),
			"-c", strconv.Itoa(cfg.Channels),
			"-t", "raw",
			"-",
		)
	}
	return newPipeSink(cfg, "alsa", newCmd, logger), nil
}
