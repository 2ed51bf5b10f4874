// Package protocol defines the WebSocket message types for chair-companion
// communication. This package is shared between the glide host and the
// glide-relay server, and also carries dashboard broadcasts.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-glide/pkg/detect"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Companion → Host messages
	TypeFrame MessageType = "frame" // Video frame
	TypeMic   MessageType = "mic"   // Microphone audio
	TypeState MessageType = "state" // Companion unit state

	// Host → Companion messages
	TypeSpeak  MessageType = "speak"  // Synthesized alert audio
	TypeConfig MessageType = "config" // Configuration update

	// Host → Dashboard broadcasts
	TypeAlert      MessageType = "alert"      // Spoken alert
	TypeActivation MessageType = "activation" // Gate transition
	TypeDetections MessageType = "detections" // Current scene

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Companion → Host Message Types
// =============================================================================

// FrameData contains a video frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg", "h264"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// MicData contains microphone audio
type MicData struct {
	Format     string `json:"format"`      // "pcm16", "opus"
	SampleRate int    `json:"sample_rate"` // e.g., 16000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
}

// StateData reports companion-unit status
type StateData struct {
	Connected bool    `json:"connected"`
	Camera    bool    `json:"camera"`            // camera available
	Mic       bool    `json:"mic"`               // microphone available
	Battery   float64 `json:"battery,omitempty"` // 0-1, if known
}

// =============================================================================
// Host → Companion Message Types
// =============================================================================

// SpeakData contains synthesized audio to play
type SpeakData struct {
	Format     string `json:"format"`      // "pcm16", "mp3"
	SampleRate int    `json:"sample_rate"` // e.g., 22050
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
	Urgency    string `json:"urgency,omitempty"`
}

// ConfigUpdate contains configuration changes
type ConfigUpdate struct {
	Camera *CameraConfig `json:"camera,omitempty"`
	Audio  *AudioConfig  `json:"audio,omitempty"`
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Framerate int    `json:"framerate,omitempty"`
	Quality   int    `json:"quality,omitempty"`
	Preset    string `json:"preset,omitempty"` // "480p", "720p", "1080p"
}

// AudioConfig contains audio settings
type AudioConfig struct {
	MicEnabled     bool `json:"mic_enabled,omitempty"`
	SpeakerEnabled bool `json:"speaker_enabled,omitempty"`
	Volume         int  `json:"volume,omitempty"` // 0-100
}

// =============================================================================
// Host → Dashboard Message Types
// =============================================================================

// AlertData describes a spoken alert
type AlertData struct {
	Message  string  `json:"message"`
	Urgency  string  `json:"urgency"` // "low", "high"
	Label    string  `json:"label,omitempty"`
	Distance float64 `json:"distance,omitempty"` // Meters
	Position string  `json:"position,omitempty"` // "left", "center", "right"
}

// ActivationData describes a gate transition
type ActivationData struct {
	Active bool   `json:"active"`
	Phrase string `json:"phrase,omitempty"` // Trigger phrase, if voice
	Source string `json:"source"`           // "voice", "api"
}

// DetectionsData carries the current scene for dashboard overlays
type DetectionsData struct {
	Detections []detect.Detection `json:"detections"`
	FrameID    uint64             `json:"frame_id,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
