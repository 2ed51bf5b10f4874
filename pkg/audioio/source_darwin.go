//go:build darwin

package audioio

import (
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// CoreAudio capture and playback for development Macs go through sox
// (brew install sox). A non-empty Device is passed via AUDIODEV, which
// the coreaudio driver reads for device selection.

func newDarwinSource(cfg Config, logger *slog.Logger) (Source, error) {
	newCmd := func() *exec.Cmd {
		cmd := exec.Command("sox",
			"-q",
			"-d",
			"-t", "raw",
			"-b", "16",
			"-e", "signed-integer",
			"-r", strconv.Itoa(cfg.SampleRate),
			"-c", strconv.Itoa(cfg.Channels),
			"-",
		)
		if cfg.Device != "" {
			cmd.Env = append(os.Environ(), "AUDIODEV="+cfg.Device)
		}
		return cmd
	}
	return newPipeSource(cfg, "coreaudio", newCmd, logger), nil
}

func newDarwinSink(cfg Config, logger *slog.Logger) (Sink, error) {
	newCmd := func() *exec.Cmd {
		cmd := exec.Command("sox",
			"-q",
			"-t", "raw",
			"-b", "16",
			"-e", "signed-integer",
			"-r", strconv.Itoa(cfg.SampleRate),
			"-c", strconv.Itoa(cfg.Channels),
			"-",
			"-d",
		)
		if cfg.Device != "" {
			cmd.Env = append(os.Environ(), "AUDIODEV="+cfg.Device)
		}
		return cmd
	}
	return newPipeSink(cfg, "coreaudio", newCmd, logger), nil
}
