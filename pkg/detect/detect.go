// Package detect provides obstacle detection for the navigation aid.
// A Detection is one recognized object in a video frame: what it is, roughly
// how far away it is, and whether it sits left, center, or right of the path.
package detect

import (
	"context"
	"errors"
	"math"
)

// Validation errors for malformed detections.
var (
	ErrEmptyLabel    = errors.New("detect: empty label")
	ErrBadDistance   = errors.New("detect: distance out of range")
	ErrBadConfidence = errors.New("detect: confidence out of range")
	ErrBadPosition   = errors.New("detect: unknown position")
)

// Position is the screen-relative location of a detection.
type Position string

// Screen positions, derived from the box center against frame thirds.
const (
	PositionLeft   Position = "left"
	PositionCenter Position = "center"
	PositionRight  Position = "right"
)

// Detection represents one detected obstacle in a frame.
type Detection struct {
	Label      string   `json:"label"`      // COCO class name
	Confidence float64  `json:"confidence"` // 0-1
	Distance   float64  `json:"distance"`   // Meters, estimated
	Position   Position `json:"position"`   // left, center, right
	Box        Box      `json:"box"`        // Normalized bounding box
}

// Box is a normalized bounding box (top-left origin, 0-1 coordinates).
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 {
	return b.X + b.W/2
}

// Area returns the normalized area of the box.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Validate reports whether the detection is well-formed.
// Malformed detections are dropped and counted by the analyzer,
// never propagated as faults.
func (d Detection) Validate() error {
	if d.Label == "" {
		return ErrEmptyLabel
	}
	if math.IsNaN(d.Distance) || math.IsInf(d.Distance, 0) || d.Distance <= 0 {
		return ErrBadDistance
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return ErrBadConfidence
	}
	switch d.Position {
	case PositionLeft, PositionCenter, PositionRight:
		return nil
	default:
		return ErrBadPosition
	}
}

// PositionFor maps a normalized horizontal center to a screen position.
// The frame is split into thirds: left, center, right.
func PositionFor(centerX float64) Position {
	switch {
	case centerX < 1.0/3.0:
		return PositionLeft
	case centerX > 2.0/3.0:
		return PositionRight
	default:
		return PositionCenter
	}
}

// Detector is the interface for obstacle detection backends.
type Detector interface {
	// Detect finds obstacles in a JPEG frame.
	Detect(ctx context.Context, jpeg []byte) ([]Detection, error)

	// Close releases resources.
	Close() error
}

// FromBox builds a Detection from a labeled, normalized bounding box,
// deriving position and estimated distance.
func FromBox(label string, confidence float64, box Box) Detection {
	return Detection{
		Label:      label,
		Confidence: confidence,
		Distance:   EstimateDistance(label, box.H),
		Position:   PositionFor(box.CenterX()),
		Box:        box,
	}
}

// Nearest returns the detection with the smallest distance, or nil for an
// empty slice. Ties within epsilon prefer center over left/right.
func Nearest(dets []Detection, epsilon float64) *Detection {
	if len(dets) == 0 {
		return nil
	}
	best := &dets[0]
	for i := 1; i < len(dets); i++ {
		d := &dets[i]
		switch {
		case d.Distance < best.Distance-epsilon:
			best = d
		case math.Abs(d.Distance-best.Distance) <= epsilon:
			if d.Position == PositionCenter && best.Position != PositionCenter {
				best = d
			}
		}
	}
	return best
}
