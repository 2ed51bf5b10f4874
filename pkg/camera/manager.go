package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-glide/internal/log"
)

// ErrNoFrame is returned when a read produced no usable frame. Callers
// should skip the tick and try again.
var ErrNoFrame = errors.New("camera: no frame available")

// Manager owns the local capture device.
type Manager struct {
	mu       sync.Mutex
	config   Config
	vc       *gocv.VideoCapture
	img      gocv.Mat
	matReady bool
	failures int
	frameID  uint64

	logger *slog.Logger
}

// NewManager creates a manager for the given config. The device is not
// opened until Open or the first Read.
func NewManager(cfg Config) (*Manager, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}

	return &Manager{
		config: cfg,
		logger: log.With("component", "camera"),
	}, nil
}

// Open opens the capture device and applies the configured resolution.
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open()
}

// open assumes m.mu is held.
func (m *Manager) open() error {
	if m.vc != nil {
		m.vc.Close()
		m.vc = nil
	}
	if !m.matReady {
		m.img = gocv.NewMat()
		m.matReady = true
	}

	vc, err := gocv.OpenVideoCapture(m.config.Device)
	if err != nil {
		return fmt.Errorf("camera: open device %d: %w", m.config.Device, err)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(m.config.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(m.config.Height))
	if m.config.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(m.config.Framerate))
	}

	m.vc = vc
	m.failures = 0
	m.logger.Info("camera open",
		"device", m.config.Device,
		"width", m.config.Width,
		"height", m.config.Height,
		"fps", m.config.Framerate)
	return nil
}

// Read grabs one frame and returns it JPEG-encoded. It opens the
// device on first use. After MaxReadFailures consecutive failed reads
// the device is closed and reopened, waiting ReconnectDelay first.
func (m *Manager) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.vc == nil {
		if err := m.open(); err != nil {
			return nil, err
		}
	}

	if !m.vc.Read(&m.img) || m.img.Empty() {
		m.failures++
		if m.failures >= m.config.MaxReadFailures {
			m.logger.Warn("camera read failing, reopening", "failures", m.failures)
			if err := m.reopen(ctx); err != nil {
				return nil, err
			}
		}
		return nil, ErrNoFrame
	}
	m.failures = 0
	m.frameID++

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m.img,
		[]int{gocv.IMWriteJpegQuality, m.config.Quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// reopen assumes m.mu is held.
func (m *Manager) reopen(ctx context.Context) error {
	if m.vc != nil {
		m.vc.Close()
		m.vc = nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.config.ReconnectDelay):
	}

	return m.open()
}

// FrameID returns the id of the most recent frame.
func (m *Manager) FrameID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameID
}

// GetConfig returns the current capture configuration.
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// SetConfig validates and stores cfg. An open device is reopened so the
// new resolution takes effect.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: invalid config: %v", errs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = cfg
	if m.vc == nil {
		return nil
	}
	return m.open()
}

// ApplyPreset switches resolution settings to the named preset,
// keeping the device index and recovery tuning.
func (m *Manager) ApplyPreset(name string) error {
	preset := GetPreset(name)
	if preset == nil {
		return fmt.Errorf("camera: unknown preset: %s", name)
	}

	cfg := m.GetConfig()
	cfg.Width = preset.Width
	cfg.Height = preset.Height
	cfg.Framerate = preset.Framerate
	cfg.Quality = preset.Quality
	return m.SetConfig(cfg)
}

// Close releases the capture device.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.vc != nil {
		err = m.vc.Close()
		m.vc = nil
	}
	if m.matReady {
		m.img.Close()
		m.matReady = false
	}
	return err
}
