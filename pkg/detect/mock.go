package detect

import (
	"context"
	"sync"
)

// Mock implements Detector for testing.
// Behavior can be customized via function fields.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, returns no detections.
	DetectFunc func(ctx context.Context, jpeg []byte) ([]Detection, error)

	// CloseFunc is called when Close is invoked.
	// If nil, returns nil.
	CloseFunc func() error

	mu          sync.Mutex
	detectCalls int
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	m.mu.Lock()
	m.detectCalls++
	m.mu.Unlock()

	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, jpeg)
	}
	return nil, nil
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// DetectCalls returns how many times Detect was invoked.
func (m *Mock) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}

// Verify Mock implements Detector at compile time.
var _ Detector = (*Mock)(nil)
