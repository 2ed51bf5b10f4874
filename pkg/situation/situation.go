// Package situation decides what, if anything, to say about a frame's
// detections. The analyzer is a pure function of (detections, spoken state,
// config): it picks the nearest obstacle, grades urgency, composes the
// spoken message, and suppresses repeats inside the cooldown window. It
// never touches hardware, the clock, or the speech path.
package situation

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-glide/pkg/detect"
)

// Urgency is the priority tier of a candidate message. High-urgency
// decisions pre-empt in-flight low-urgency speech.
type Urgency string

const (
	UrgencyLow  Urgency = "low"
	UrgencyHigh Urgency = "high"
)

// Decision is one candidate spoken message. A nil Decision means
// "say nothing this cycle".
type Decision struct {
	Message string           `json:"message"`
	Urgency Urgency          `json:"urgency"`
	Subject detect.Detection `json:"subject"` // Primary detection backing the message
}

// SpokenSnapshot is a read-only view of the feedback state the analyzer
// needs for de-duplication.
type SpokenSnapshot struct {
	LastMessage     string
	LastMessageTime time.Time
}

// Config holds the analyzer thresholds. All values are externally supplied;
// the analyzer just reads them.
type Config struct {
	// MinConfidence filters noise detections. Conservative default to
	// avoid chatter.
	MinConfidence float64

	// NearDistance is the high-urgency band: a center obstacle closer
	// than this is urgent.
	NearDistance float64

	// Cooldown suppresses an identical message repeated within this
	// window.
	Cooldown time.Duration

	// TieEpsilon is the distance tolerance for "equally near" obstacles.
	TieEpsilon float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
		NearDistance:  1.0,
		Cooldown:      time.Second,
		TieEpsilon:    1e-6,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("situation: min confidence must be 0-1, got %v", c.MinConfidence)
	}
	if c.NearDistance <= 0 {
		return fmt.Errorf("situation: near distance must be positive, got %v", c.NearDistance)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("situation: cooldown must not be negative, got %v", c.Cooldown)
	}
	return nil
}

// Stats counts analyzer activity across frames.
type Stats struct {
	FramesAnalyzed int `json:"frames_analyzed"`
	Malformed      int `json:"malformed"`       // Dropped: failed validation
	LowConfidence  int `json:"low_confidence"`  // Dropped: below threshold
	Decisions      int `json:"decisions"`       // Messages emitted
	Suppressed     int `json:"suppressed"`      // Duplicates inside cooldown
}

// Analyzer maps per-frame detections to at most one candidate message.
type Analyzer struct {
	config Config

	mu    sync.Mutex
	stats Stats
}

// New creates an analyzer with the given config.
func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{config: cfg}, nil
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.config
}

// Decide selects the next spoken message for one frame's detections, or nil
// when nothing should be said. The caller supplies the current time so the
// decision stays a pure function of its inputs.
func (a *Analyzer) Decide(dets []detect.Detection, spoken SpokenSnapshot, now time.Time) *Decision {
	var malformed, lowConfidence int
	filtered := make([]detect.Detection, 0, len(dets))

	for _, d := range dets {
		if err := d.Validate(); err != nil {
			malformed++
			continue
		}
		if d.Confidence < a.config.MinConfidence {
			lowConfidence++
			continue
		}
		filtered = append(filtered, d)
	}

	decision := a.decide(filtered, spoken, now)

	a.mu.Lock()
	a.stats.FramesAnalyzed++
	a.stats.Malformed += malformed
	a.stats.LowConfidence += lowConfidence
	if decision != nil {
		a.stats.Decisions++
	} else if len(filtered) > 0 {
		a.stats.Suppressed++
	}
	a.mu.Unlock()

	return decision
}

// decide applies the selection policy to already-filtered detections.
func (a *Analyzer) decide(dets []detect.Detection, spoken SpokenSnapshot, now time.Time) *Decision {
	primary := detect.Nearest(dets, a.config.TieEpsilon)
	if primary == nil {
		return nil
	}

	urgency := UrgencyLow
	if primary.Distance < a.config.NearDistance && primary.Position == detect.PositionCenter {
		urgency = UrgencyHigh
	}

	message := Compose(*primary)

	// Identical sentence inside the cooldown window: stay quiet.
	if message == spoken.LastMessage && now.Sub(spoken.LastMessageTime) < a.config.Cooldown {
		return nil
	}

	return &Decision{
		Message: message,
		Urgency: urgency,
		Subject: *primary,
	}
}

// Stats returns a copy of the accumulated counters.
func (a *Analyzer) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Compose builds the spoken sentence for a detection:
// label, distance bucket, then position. "chair very close ahead".
func Compose(d detect.Detection) string {
	return d.Label + " " + bucketPhrase(detect.Bucket(d.Distance)) + " " + positionPhrase(d.Position)
}

// bucketPhrase maps a distance bucket to its spoken form.
func bucketPhrase(bucket string) string {
	switch bucket {
	case "moderate":
		return "at a moderate distance"
	case "far":
		return "far away"
	default:
		// "very close", "close", "nearby" read naturally as-is.
		return bucket
	}
}

// positionPhrase maps a screen position to its spoken form.
func positionPhrase(p detect.Position) string {
	switch p {
	case detect.PositionLeft:
		return "on your left"
	case detect.PositionRight:
		return "on your right"
	default:
		return "ahead"
	}
}
