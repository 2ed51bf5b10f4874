package listen

import (
	"context"
	"sync"
	"time"
)

// Mock is a test recognizer with customizable behavior.
type Mock struct {
	// RecognizeFunc overrides Recognize. Defaults to silence.
	RecognizeFunc func(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error)

	// CloseFunc overrides Close.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Recognize invocation.
type MockCall struct {
	Samples    int
	SampleRate int
	Time       time.Time
}

// NewMock creates a mock recognizer that hears nothing.
func NewMock() *Mock {
	return &Mock{}
}

// WithTranscripts returns each text once, in order, then silence. The mock
// stands in for a rider saying a scripted sequence of things.
func WithTranscripts(texts ...string) *Mock {
	m := NewMock()
	var mu sync.Mutex
	i := 0
	m.RecognizeFunc = func(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(texts) {
			return Transcript{}, nil
		}
		t := texts[i]
		i++
		if t == "" {
			return Transcript{}, nil
		}
		return Transcript{Text: t, Confidence: 1.0}, nil
	}
	return m
}

// Recognize records the call and runs RecognizeFunc.
func (m *Mock) Recognize(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Samples: len(pcm), SampleRate: sampleRate, Time: time.Now()})
	m.mu.Unlock()

	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, pcm, sampleRate)
	}
	return Transcript{}, nil
}

// Close runs CloseFunc if set.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns a copy of recorded invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Recognize calls.
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

var _ Recognizer = (*Mock)(nil)
