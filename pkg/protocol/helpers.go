package protocol

import (
	"encoding/base64"

	"github.com/teslashibe/go-glide/pkg/detect"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewMicMessage creates a microphone audio message
func NewMicMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeMic, MicData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewStateMessage creates a companion state message
func NewStateMessage(connected, camera, mic bool, battery float64) (*Message, error) {
	return NewMessage(TypeState, StateData{
		Connected: connected,
		Camera:    camera,
		Mic:       mic,
		Battery:   battery,
	})
}

// NewSpeakMessage creates a speak message with audio data
func NewSpeakMessage(audioData []byte, format string, sampleRate int, urgency string) (*Message, error) {
	return NewMessage(TypeSpeak, SpeakData{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(audioData),
		Urgency:    urgency,
	})
}

// NewConfigMessage creates a configuration update message
func NewConfigMessage(camera *CameraConfig, audio *AudioConfig) (*Message, error) {
	return NewMessage(TypeConfig, ConfigUpdate{
		Camera: camera,
		Audio:  audio,
	})
}

// NewAlertMessage creates an alert broadcast message
func NewAlertMessage(message, urgency, label string, distance float64, position string) (*Message, error) {
	return NewMessage(TypeAlert, AlertData{
		Message:  message,
		Urgency:  urgency,
		Label:    label,
		Distance: distance,
		Position: position,
	})
}

// NewActivationMessage creates a gate transition broadcast message
func NewActivationMessage(active bool, phrase, source string) (*Message, error) {
	return NewMessage(TypeActivation, ActivationData{
		Active: active,
		Phrase: phrase,
		Source: source,
	})
}

// NewDetectionsMessage creates a scene broadcast message
func NewDetectionsMessage(dets []detect.Detection, frameID uint64) (*Message, error) {
	return NewMessage(TypeDetections, DetectionsData{
		Detections: dets,
		FrameID:    frameID,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetMicData extracts mic data from a message
func (m *Message) GetMicData() (*MicData, error) {
	var data MicData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeMicData decodes the base64 audio data
func (mic *MicData) DecodeMicData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(mic.Data)
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeakData extracts speak data from a message
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeSpeakData decodes the base64 audio data
func (s *SpeakData) DecodeSpeakData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.Data)
}

// GetConfigUpdate extracts config update from a message
func (m *Message) GetConfigUpdate() (*ConfigUpdate, error) {
	var data ConfigUpdate
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAlertData extracts alert data from a message
func (m *Message) GetAlertData() (*AlertData, error) {
	var data AlertData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetActivationData extracts activation data from a message
func (m *Message) GetActivationData() (*ActivationData, error) {
	var data ActivationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetDetectionsData extracts detections data from a message
func (m *Message) GetDetectionsData() (*DetectionsData, error) {
	var data DetectionsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
