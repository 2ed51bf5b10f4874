// Package listen turns microphone audio into activation trigger events.
//
// A Listener consumes PCM16 capture windows, runs them through a Recognizer
// (Google Cloud Speech, OpenAI Whisper, or a local whisper.cpp model), and
// matches the transcript against configured start/stop phrases. Matches are
// published as TriggerEvents; the activation gate consumes them. Recognition
// failures skip the window and never change activation state.
package listen

import (
	"context"
	"errors"
	"time"
)

// TriggerType says which way a trigger event flips the activation gate.
type TriggerType string

const (
	TriggerStart TriggerType = "start"
	TriggerStop  TriggerType = "stop"
)

// TriggerEvent is one recognized activation phrase.
type TriggerEvent struct {
	Type       TriggerType `json:"type"`
	Phrase     string      `json:"phrase"`     // Configured phrase that matched
	Heard      string      `json:"heard"`      // Transcript the phrase was found in
	Confidence float64     `json:"confidence"` // Match confidence, 1.0 for exact
	Timestamp  time.Time   `json:"timestamp"`
}

// Transcript is one recognizer result. An empty Text means the window held
// no recognizable speech; that is not an error.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer converts one window of PCM16 audio into text.
//
// Implementations must be safe for sequential reuse; the Listener calls
// Recognize once per window from a single goroutine.
type Recognizer interface {
	// Recognize transcribes mono PCM16 samples at the given rate.
	Recognize(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error)

	// Close releases recognizer resources.
	Close() error
}

// Common errors returned by recognizers and the listener.
var (
	ErrNoAPIKey      = errors.New("listen: API key not set")
	ErrNoCredentials = errors.New("listen: credentials file not set")
	ErrNoAudio       = errors.New("listen: empty audio window")
	ErrNoPhrases     = errors.New("listen: no start phrases configured")
)
