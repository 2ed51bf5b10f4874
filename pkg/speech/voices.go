// Package speech voice presets for ElevenLabs.
package speech

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
// Use ResolveElevenLabsVoice to look up a voice by name or pass through raw IDs.
var ElevenLabsVoices = map[string]string{
	"rachel":    "21m00Tcm4TlvDq8ikWAM", // American female, calm
	"charlotte": "XB0fDUnXU5powFXDhCwa", // British female, warm
	"sarah":     "EXAVITQu4vr4xnSDxMaL", // American female, soft
	"lily":      "pFZP5JQG7iQjIQuC4Bku", // British female, warm
	"aria":      "9BWtsMINqrJLrRacOk9x", // American female, expressive
	"domi":      "AZnzlk1XvdvUeBnXmlld", // American female, strong
	"josh":      "TxGEqnHWrfWFTfGW9XjX", // American male, deep
	"adam":      "pNInz6obpgDQGcFmaJgB", // American male, deep
	"sam":       "yoZ06aMxZJJ28mfd3POQ", // American male, raspy
}

// DefaultElevenLabsVoice is the default voice preset. Calm delivery reads
// clearly over chair motor noise.
const DefaultElevenLabsVoice = "rachel"

// ResolveElevenLabsVoice returns the voice ID for a preset name,
// or the input unchanged if it's already a voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name // Assume it's already a voice ID
}

// IsElevenLabsPreset returns true if the name is a known preset.
func IsElevenLabsPreset(name string) bool {
	_, ok := ElevenLabsVoices[name]
	return ok
}
