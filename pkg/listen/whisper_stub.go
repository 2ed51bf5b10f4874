//go:build !whisper

package listen

import (
	"context"
	"fmt"
)

// WhisperRecognizer stub for builds without whisper.cpp.
type WhisperRecognizer struct {
	modelPath string
}

// NewWhisperRecognizer returns a stub that fails on first use.
func NewWhisperRecognizer(modelPath string) (*WhisperRecognizer, error) {
	return &WhisperRecognizer{modelPath: modelPath}, nil
}

// Recognize always fails; rebuild with -tags whisper to enable.
func (w *WhisperRecognizer) Recognize(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error) {
	return Transcript{}, fmt.Errorf("listen: whisper disabled (build with -tags whisper to enable)")
}

// Close is a no-op in the stub.
func (w *WhisperRecognizer) Close() error {
	return nil
}

var _ Recognizer = (*WhisperRecognizer)(nil)
