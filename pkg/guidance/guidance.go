// Package guidance turns detection summaries into spoken navigation
// advice using an OpenAI-compatible chat model.
//
// The advisor is supplementary: the reflexive alert path in pkg/situation
// never waits on it. Advise describes the scene to the model, then runs a
// safety assessment over both the detections and the returned text, so a
// model that rambles past a close obstacle still comes back flagged unsafe.
// An empty scene short-circuits to a clear-path verdict without a request.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-glide/pkg/detect"
	"github.com/teslashibe/go-glide/pkg/situation"
)

// ErrEmptyResponse is returned when the model produces no choices.
var ErrEmptyResponse = errors.New("guidance: model returned no choices")

// ClearPathMessage is the advice given when nothing is detected.
const ClearPathMessage = "Path is clear and safe."

// Guidance sources, recorded alongside each verdict.
const (
	// SourceModel marks advice produced by the chat model.
	SourceModel = "model"

	// SourceHeuristic marks advice produced without a model call.
	SourceHeuristic = "heuristic"
)

// Guidance is a navigation verdict for the current scene.
type Guidance struct {
	// SafeToProceed is false when an obstacle is inside the near band
	// or the advice itself warns the rider.
	SafeToProceed bool `json:"safe_to_proceed"`

	// Text is the spoken advice.
	Text string `json:"guidance"`

	// Priority mirrors the alert urgency tiers: high verdicts may
	// pre-empt whatever is currently being spoken.
	Priority situation.Urgency `json:"priority"`

	// Source records whether a model produced the text.
	Source string `json:"source"`
}

// Advisor produces navigation guidance from detections.
type Advisor interface {
	// Advise analyzes the detections and returns a verdict. A nil or
	// empty slice yields a clear-path verdict without a model call.
	Advise(ctx context.Context, dets []detect.Detection) (*Guidance, error)

	// Health checks backend connectivity.
	Health(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Describe renders detections as the natural-language scene summary fed
// to the model, one sentence per detection.
func Describe(dets []detect.Detection) string {
	parts := make([]string, 0, len(dets))
	for _, d := range dets {
		parts = append(parts, fmt.Sprintf(
			"A %s is %s away in the %s position with %.0f%% confidence",
			d.Label, detect.Bucket(d.Distance), d.Position, d.Confidence*100,
		))
	}
	return strings.Join(parts, " ")
}

// warningWords flag advice that tells the rider to slow or stop. Their
// presence forces an unsafe verdict even if no detection is near.
var warningWords = []string{"stop", "danger", "warning", "caution", "halt"}

func hasWarning(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range warningWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// assess decides the safety verdict for a scene and its advice text.
// Unsafe when any detection is closer than near, or the text carries a
// warning word. Priority is high exactly when unsafe.
func assess(dets []detect.Detection, text string, near float64) (bool, situation.Urgency) {
	obstructed := false
	for _, d := range dets {
		if d.Distance > 0 && d.Distance < near {
			obstructed = true
			break
		}
	}

	safe := !obstructed && !hasWarning(text)

	priority := situation.UrgencyLow
	if !safe {
		priority = situation.UrgencyHigh
	}
	return safe, priority
}
