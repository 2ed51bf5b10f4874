package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

const backendPlatform = "platform"

// platformRate is the speaking rate in words per minute, matching the
// original aid's engine setting.
const platformRate = 150

// Platform implements Synthesizer using the operating system voice:
// espeak-ng (or espeak) on Linux, say on macOS. It needs no API key or
// network, so it is the default engine and the last link in a fallback
// chain.
type Platform struct {
	logger *slog.Logger

	mu     sync.Mutex
	binary string
}

// NewPlatform creates a platform-voice synthesizer. It fails when no
// speech binary is installed.
func NewPlatform(opts ...Option) (*Platform, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	p := &Platform{
		logger: cfg.Logger.With("component", "speech.platform"),
	}
	if err := p.findBinary(); err != nil {
		return nil, err
	}
	return p, nil
}

// findBinary locates the platform speech command.
func (p *Platform) findBinary() error {
	var candidates []string
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	} else {
		candidates = []string{"espeak-ng", "espeak"}
	}

	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			p.mu.Lock()
			p.binary = path
			p.mu.Unlock()
			return nil
		}
	}
	return WrapError(backendPlatform, fmt.Errorf("no speech binary found (tried %v)", candidates))
}

// Synthesize runs the platform voice and returns its WAV output as PCM.
func (p *Platform) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(backendPlatform, ErrNoText)
	}

	start := time.Now()

	wav, err := p.run(ctx, text)
	if err != nil {
		// One re-detect retry: the original engine re-initialized itself
		// after a failure and spoke the message again.
		p.logger.Warn("platform voice failed, re-detecting engine", "error", err)
		if derr := p.findBinary(); derr != nil {
			return nil, derr
		}
		wav, err = p.run(ctx, text)
		if err != nil {
			return nil, WrapError(backendPlatform, err)
		}
	}

	pcm, format, err := parseWAV(wav)
	if err != nil {
		return nil, WrapError(backendPlatform, err)
	}

	samples := len(pcm) / 2 / format.Channels
	return &AudioResult{
		Audio:     pcm,
		Format:    format,
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
		Duration:  time.Duration(float64(samples) / float64(format.SampleRate) * float64(time.Second)),
	}, nil
}

// run invokes the speech binary and returns WAV bytes.
func (p *Platform) run(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	binary := p.binary
	p.mu.Unlock()

	if runtime.GOOS == "darwin" {
		return p.runSay(ctx, binary, text)
	}

	// espeak writes a WAV stream to stdout.
	cmd := exec.CommandContext(ctx, binary, "--stdout", "-s", fmt.Sprint(platformRate), text)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w", binary, err)
	}
	return out.Bytes(), nil
}

// runSay drives macOS say through a temp file; it cannot write WAV to a
// pipe.
func (p *Platform) runSay(ctx context.Context, binary, text string) ([]byte, error) {
	f, err := os.CreateTemp("", "glide-say-*.wav")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	rate := fmt.Sprintf("-r%d", platformRate)
	cmd := exec.CommandContext(ctx, binary, rate, "-o", path,
		"--file-format=WAVE", "--data-format=LEI16@22050", text)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("say: %w", err)
	}
	return os.ReadFile(path)
}

// Stream synthesizes the whole clip and serves it as a single-buffer
// stream. Platform voices have no streaming mode.
func (p *Platform) Stream(ctx context.Context, text string) (AudioStream, error) {
	result, err := p.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: result.Audio, format: result.Format}, nil
}

// Health verifies the speech binary still resolves.
func (p *Platform) Health(ctx context.Context) error {
	return p.findBinary()
}

// Close releases resources. The platform voice holds none.
func (p *Platform) Close() error {
	return nil
}

// parseWAV extracts PCM16 data and format from a RIFF/WAVE buffer.
func parseWAV(data []byte) ([]byte, AudioFormat, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, AudioFormat{}, fmt.Errorf("not a WAV stream (%d bytes)", len(data))
	}

	var format AudioFormat
	var pcm []byte

	// Walk the chunk list; espeak also emits LIST chunks before data.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return nil, AudioFormat{}, fmt.Errorf("truncated fmt chunk")
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			end := body + size
			// espeak streams to a pipe and leaves the size field zero;
			// take everything after the header.
			if size == 0 || end > len(data) {
				end = len(data)
			}
			pcm = data[body:end]
		}

		if size == 0 {
			break
		}
		pos = body + size
		if size%2 == 1 {
			pos++ // chunk bodies are word-aligned
		}
	}

	if format.SampleRate == 0 || pcm == nil {
		return nil, AudioFormat{}, fmt.Errorf("missing fmt or data chunk")
	}
	if format.BitDepth != 16 {
		return nil, AudioFormat{}, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}
	if format.Channels == 0 {
		format.Channels = 1
	}

	switch format.SampleRate {
	case 16000:
		format.Encoding = EncodingPCM16
	case 24000:
		format.Encoding = EncodingPCM24
	case 44100:
		format.Encoding = EncodingPCM44
	default:
		format.Encoding = EncodingPCM22
	}
	return pcm, format, nil
}

// Verify Platform implements Synthesizer at compile time.
var _ Synthesizer = (*Platform)(nil)
