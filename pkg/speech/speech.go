// Package speech synthesizes and plays the spoken alerts of the navigation
// aid.
//
// Synthesis backends (ElevenLabs HTTP and websocket, OpenAI) implement the
// Synthesizer interface, so the rest of the system never cares which engine
// produced the audio. Chain wraps several synthesizers with fallback for
// field reliability. Output turns synthesized audio into a cancellable
// Utterance playing through an audioio.Sink; cancellation stops the speaker
// mid-word, which is what the feedback arbiter relies on for pre-emption.
//
// Example usage:
//
//	synth, _ := speech.NewElevenLabs(
//	    speech.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    speech.WithVoice(speech.ResolveElevenLabsVoice("rachel")),
//	)
//	defer synth.Close()
//
//	out := speech.NewOutput(synth, sink)
//	u, _ := out.Speak(ctx, "chair close ahead")
//	<-u.Done()
package speech

import (
	"context"
	"time"
)

// Synthesizer converts text into audio. All backends must satisfy this
// interface so the output layer can switch engines without code changes.
type Synthesizer interface {
	// Synthesize converts text to audio, returning the complete buffer.
	// Alert messages are short, so buffering the whole clip keeps the
	// playback path simple.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio with streaming output for lowest
	// latency to first sample.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks backend connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// AudioStream represents a streaming audio response.
// Callers should read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk.
	// Returns nil when the stream is complete (not an error).
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult represents a complete synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio codec (e.g., pcm_22050, mp3_44100_128).
	Encoding Encoding

	// SampleRate in Hz (e.g., 22050, 24000, 44100).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats (e.g., 16 for PCM16).
	BitDepth int
}

// Encoding represents audio encoding types.
// These match ElevenLabs output format options.
type Encoding string

const (
	// PCM formats (raw audio, lowest latency)
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050" // 22.05kHz mono PCM16 (matches the aid's speaker path)
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingPCM44 Encoding = "pcm_44100" // 44.1kHz mono PCM16

	// Compressed formats
	EncodingMP3  Encoding = "mp3_44100_128" // MP3 128kbps
	EncodingOpus Encoding = "opus"          // Opus codec
	EncodingULaw Encoding = "ulaw_8000"     // μ-law 8kHz (telephony)
)

// VoiceSettings controls voice characteristics for backends that support it.
// Alerts need to be understood on the first pass, so the defaults favor a
// steady, clear delivery over expressiveness.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	// Only supported by ElevenLabs v2 models.
	Style float64

	// SpeakerBoost enhances speaker clarity.
	// Recommended outdoors and in traffic noise.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns the voice defaults for spoken alerts.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.7,
		SimilarityBoost: 0.75,
		Style:           0.0,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	case EncodingULaw:
		return 8000
	default:
		return 22050
	}
}
