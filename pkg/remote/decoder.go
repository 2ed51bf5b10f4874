package remote

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Decoder turns an H264 NAL stream into JPEG frames. Decoding shells
// out to ffmpeg over pipes, one shot per frame, rate-limited so the
// subprocess cost stays bounded regardless of the packet rate.
type Decoder struct {
	mu          sync.Mutex
	nalBuf      bytes.Buffer
	lastDecode  time.Time
	minInterval time.Duration

	frameMu     sync.RWMutex
	latestFrame []byte
	frames      atomic.Int64
}

// NewDecoder creates a decoder that produces at most one frame per
// interval.
func NewDecoder(interval time.Duration) *Decoder {
	return &Decoder{
		minInterval: interval,
		lastDecode:  time.Now(),
	}
}

// Write appends an RTP payload to the NAL buffer. When the decode
// interval has elapsed it decodes the buffered units and returns the
// new frame, otherwise nil.
func (d *Decoder) Write(payload []byte) ([]byte, error) {
	d.mu.Lock()
	d.nalBuf.Write(payload)
	if time.Since(d.lastDecode) < d.minInterval {
		d.mu.Unlock()
		return nil, nil
	}

	data := make([]byte, d.nalBuf.Len())
	copy(data, d.nalBuf.Bytes())
	d.nalBuf.Reset()
	d.lastDecode = time.Now()
	d.mu.Unlock()

	return d.decode(data)
}

func (d *Decoder) decode(nalData []byte) ([]byte, error) {
	if len(nalData) < 100 {
		return nil, nil
	}

	cmd := exec.Command("ffmpeg",
		"-f", "h264",
		"-i", "pipe:0",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("remote: stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("remote: start ffmpeg: %w", err)
	}

	go func() {
		stdin.Write(nalData)
		stdin.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			// ffmpeg exits nonzero when the buffer holds no complete frame
			return nil, nil
		}
	case <-time.After(200 * time.Millisecond):
		cmd.Process.Kill()
		<-done
		return nil, nil
	}

	frame := stdout.Bytes()
	if !validJPEG(frame) {
		return nil, nil
	}

	d.frameMu.Lock()
	d.latestFrame = frame
	d.frameMu.Unlock()
	d.frames.Add(1)
	return frame, nil
}

// validJPEG rejects outputs too small or malformed to be a real frame.
func validJPEG(data []byte) bool {
	if len(data) < 1000 {
		return false
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return cfg.Width >= 100 && cfg.Height >= 100
}

// Latest returns a copy of the most recent frame, or nil.
func (d *Decoder) Latest() []byte {
	d.frameMu.RLock()
	defer d.frameMu.RUnlock()

	if d.latestFrame == nil {
		return nil
	}
	frame := make([]byte, len(d.latestFrame))
	copy(frame, d.latestFrame)
	return frame
}

// Frames returns the number of frames decoded.
func (d *Decoder) Frames() int64 {
	return d.frames.Load()
}

// Close drops buffered data and the cached frame.
func (d *Decoder) Close() {
	d.mu.Lock()
	d.nalBuf.Reset()
	d.mu.Unlock()

	d.frameMu.Lock()
	d.latestFrame = nil
	d.frameMu.Unlock()
}
