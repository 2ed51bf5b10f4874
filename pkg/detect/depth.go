package detect

// Depth estimation constants.
// Monocular distance from box size: a 1m-tall object filling ~35% of the
// frame height sits roughly 1m from the camera, scaling inversely with
// apparent size and linearly with the object's real-world height.
const (
	// depthCalibration is the frame-height fraction a 1m-tall object
	// occupies at 1m. Calibrated for a chest-mounted wide-angle camera.
	depthCalibration = 0.35

	// Clamp range for estimates. Below 0.3m the box usually overflows the
	// frame; beyond 5m the size signal is too coarse to trust.
	minDistance = 0.3
	maxDistance = 5.0
)

// referenceHeights maps labels to typical real-world heights in meters.
// Labels not listed fall back to 1.0m.
var referenceHeights = map[string]float64{
	"person":        1.70,
	"bicycle":       1.10,
	"motorcycle":    1.10,
	"car":           1.50,
	"bus":           3.00,
	"truck":         3.00,
	"chair":         0.90,
	"couch":         0.80,
	"bench":         0.85,
	"dining table":  0.75,
	"bed":           0.60,
	"potted plant":  0.50,
	"dog":           0.60,
	"cat":           0.30,
	"backpack":      0.50,
	"suitcase":      0.60,
	"refrigerator":  1.70,
	"tv":            0.60,
	"traffic light": 1.00,
	"stop sign":     0.75,
	"fire hydrant":  0.75,
}

// EstimateDistance calculates approximate distance in meters from the
// normalized bounding-box height of a labeled object.
//
// This uses a simple inverse relationship: distance ≈ refHeight * k / boxHeight.
// Accuracy is approximately ±30% at distances under 3 meters, which is enough
// to drive the spoken distance buckets.
func EstimateDistance(label string, boxHeight float64) float64 {
	if boxHeight <= 0 || boxHeight > 1 {
		return 0 // Invalid or unknown
	}

	ref, ok := referenceHeights[label]
	if !ok {
		ref = 1.0
	}

	distance := ref * depthCalibration / boxHeight

	if distance < minDistance {
		distance = minDistance
	}
	if distance > maxDistance {
		distance = maxDistance
	}

	return distance
}

// Bucket returns a human-readable distance category for spoken messages.
func Bucket(distance float64) string {
	if distance <= 0 {
		return "unknown"
	}
	if distance < 0.5 {
		return "very close"
	}
	if distance < 1.0 {
		return "close"
	}
	if distance < 2.0 {
		return "nearby"
	}
	if distance < 3.0 {
		return "moderate"
	}
	return "far"
}
