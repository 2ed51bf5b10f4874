//go:build whisper

package listen

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/audioio"
)

// WhisperRecognizer transcribes audio windows with a local whisper.cpp
// model. Build with -tags whisper and the whisper.cpp libraries installed.
type WhisperRecognizer struct {
	model     whisper.Model
	modelPath string
}

// NewWhisperRecognizer loads a ggml model from disk.
func NewWhisperRecognizer(modelPath string) (*WhisperRecognizer, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("listen: whisper model not found at %s: %w", modelPath, err)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("listen: load whisper model: %w", err)
	}

	log.With("component", "listen.whisper").Info("model loaded", "path", modelPath)
	return &WhisperRecognizer{model: model, modelPath: modelPath}, nil
}

// Recognize runs one window through the model. Input is resampled to the
// model's fixed 16 kHz rate when needed.
func (w *WhisperRecognizer) Recognize(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error) {
	if len(pcm) == 0 {
		return Transcript{}, ErrNoAudio
	}
	if sampleRate != whisper.SampleRate {
		pcm = audioio.Resample(pcm, sampleRate, whisper.SampleRate)
	}

	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return Transcript{}, fmt.Errorf("listen: whisper context: %w", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return Transcript{}, fmt.Errorf("listen: whisper process: %w", err)
	}

	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		text.WriteString(segment.Text)
	}

	result := strings.TrimSpace(text.String())
	if result == "" {
		return Transcript{}, nil
	}
	return Transcript{Text: result, Confidence: 1.0}, nil
}

// Close releases the model.
func (w *WhisperRecognizer) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}

var _ Recognizer = (*WhisperRecognizer)(nil)
