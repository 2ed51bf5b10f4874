package guidance

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-glide/pkg/detect"
)

// Mock implements Advisor for testing.
type Mock struct {
	// AdviseFunc is called when Advise is invoked.
	AdviseFunc func(ctx context.Context, dets []detect.Detection) (*Guidance, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records an Advise invocation.
type MockCall struct {
	Detections []detect.Detection
	Time       time.Time
}

// NewMock creates a mock advisor that assesses scenes by distance alone.
func NewMock() *Mock {
	return &Mock{
		AdviseFunc: func(ctx context.Context, dets []detect.Detection) (*Guidance, error) {
			safe, priority := assess(dets, "", DefaultConfig().NearDistance)
			text := ClearPathMessage
			if !safe {
				text = "Caution. Obstacle ahead."
			}
			return &Guidance{
				SafeToProceed: safe,
				Text:          text,
				Priority:      priority,
				Source:        SourceHeuristic,
			}, nil
		},
	}
}

// WithAdvice returns a mock that always returns the given verdict.
func WithAdvice(g *Guidance) *Mock {
	return &Mock{
		AdviseFunc: func(ctx context.Context, dets []detect.Detection) (*Guidance, error) {
			return g, nil
		},
	}
}

// WithError returns a mock whose calls all fail with err.
func WithError(err error) *Mock {
	return &Mock{
		AdviseFunc: func(ctx context.Context, dets []detect.Detection) (*Guidance, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// Advise calls AdviseFunc and records the call.
func (m *Mock) Advise(ctx context.Context, dets []detect.Detection) (*Guidance, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Detections: dets, Time: time.Now()})
	m.mu.Unlock()

	if m.AdviseFunc != nil {
		return m.AdviseFunc(ctx, dets)
	}
	return nil, ErrEmptyResponse
}

// Health calls HealthFunc if set.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc if set.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns a copy of recorded Advise calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Advise calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Advisor at compile time.
var _ Advisor = (*Mock)(nil)
