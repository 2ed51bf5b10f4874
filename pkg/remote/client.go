// Package remote receives camera and microphone streams from a
// companion unit over WebRTC. The unit publishes H264 video and opus
// audio through a GStreamer-style signalling server; this client
// negotiates a receive-only peer connection, decodes video to JPEG
// frames for the detector and audio to PCM16 for the trigger listener.
package remote

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-glide/internal/log"
)

// Config holds the companion stream settings.
type Config struct {
	// SignallingURL is the unit's signalling server, e.g. ws://host:8443.
	SignallingURL string

	// ProducerName identifies the unit's stream in the producer list.
	ProducerName string

	// ConnectTimeout bounds the wait for the first video frame.
	ConnectTimeout time.Duration

	// DecodeInterval rate-limits H264 decoding. 100ms keeps the frame
	// cache fresh enough for the 1Hz analysis tick without burning CPU.
	DecodeInterval time.Duration

	// Opus decode output format.
	SampleRate int
	Channels   int
}

// DefaultConfig returns settings for a unit on the local network.
func DefaultConfig(host string) Config {
	return Config{
		SignallingURL:  fmt.Sprintf("ws://%s:8443", host),
		ProducerName:   "glide-unit",
		ConnectTimeout: 15 * time.Second,
		DecodeInterval: 100 * time.Millisecond,
		SampleRate:     48000,
		Channels:       1,
	}
}

// Stats counts stream activity since Connect.
type Stats struct {
	VideoPackets   int64 `json:"video_packets"`
	AudioPackets   int64 `json:"audio_packets"`
	BytesReceived  int64 `json:"bytes_received"`
	FramesDecoded  int64 `json:"frames_decoded"`
	SamplesDecoded int64 `json:"samples_decoded"`
	DecodeErrors   int64 `json:"decode_errors"`
	AudioDropped   int64 `json:"audio_dropped"`
}

// Client is a receive-only WebRTC peer for one companion unit.
type Client struct {
	config Config
	logger *slog.Logger

	ws      *websocket.Conn
	wsMu    sync.Mutex
	pc      *webrtc.PeerConnection
	decoder *Decoder

	myPeerID   string
	producerID string
	sessionID  string
	sessionMu  sync.Mutex

	frameReady chan struct{}
	audioCh    chan []byte

	connected atomic.Bool
	closed    atomic.Bool

	videoPackets   atomic.Int64
	audioPackets   atomic.Int64
	bytesReceived  atomic.Int64
	samplesDecoded atomic.Int64
	decodeErrors   atomic.Int64
	audioDropped   atomic.Int64
}

// NewClient creates a client for the given config.
func NewClient(cfg Config) *Client {
	return &Client{
		config:     cfg,
		logger:     log.With("component", "remote"),
		decoder:    NewDecoder(cfg.DecodeInterval),
		frameReady: make(chan struct{}, 1),
		audioCh:    make(chan []byte, 64),
	}
}

// Connect dials the signalling server, negotiates the peer connection,
// and blocks until the unit's video track starts or ctx is done. Use
// WaitForFrame to wait for the first decoded frame.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.DialContext(ctx, c.config.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("remote: signalling connect: %w", err)
	}
	c.ws = ws

	if err := c.waitForWelcome(); err != nil {
		return fmt.Errorf("remote: welcome: %w", err)
	}
	c.logger.Debug("registered with signalling server", "peer_id", c.myPeerID)

	if err := c.findProducer(); err != nil {
		return fmt.Errorf("remote: find producer: %w", err)
	}
	c.logger.Debug("found producer", "producer_id", c.producerID)

	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("remote: peer connection: %w", err)
	}

	if err := c.startSession(); err != nil {
		return fmt.Errorf("remote: start session: %w", err)
	}

	go c.handleSignalling()

	select {
	case <-c.frameReady:
	case <-time.After(c.config.ConnectTimeout):
		return fmt.Errorf("remote: timeout waiting for video")
	case <-ctx.Done():
		return ctx.Err()
	}

	c.connected.Store(true)
	c.logger.Info("companion stream connected", "url", c.config.SignallingURL)
	return nil
}

// Connected reports whether the stream negotiation completed.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) waitForWelcome() error {
	c.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := c.ws.ReadMessage()
	c.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	c.myPeerID = welcome.PeerID
	return nil
}

func (c *Client) findProducer() error {
	if err := c.writeJSON(map[string]string{"type": "list"}); err != nil {
		return err
	}

	c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.ws.ReadMessage()
	c.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	id, err := matchProducer(msg, c.config.ProducerName)
	if err != nil {
		return err
	}
	c.producerID = id
	return nil
}

// matchProducer picks the producer whose meta name matches.
func matchProducer(listMsg []byte, name string) (string, error) {
	var listResp struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(listMsg, &listResp); err != nil {
		return "", err
	}

	for _, p := range listResp.Producers {
		if n, ok := p.Meta["name"]; ok && n == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found among %d producers", name, len(listResp.Producers))
}

func (c *Client) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	c.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info("track started",
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType)

		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			go c.handleVideoTrack(track)
		case webrtc.RTPCodecTypeAudio:
			go c.handleAudioTrack(track)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICECandidate(candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("connection state", "state", state.String())
	})

	return nil
}

func (c *Client) startSession() error {
	return c.writeJSON(map[string]string{
		"type":   "startSession",
		"peerId": c.producerID,
	})
}

func (c *Client) handleSignalling() {
	for !c.closed.Load() {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling read", "error", err)
			}
			return
		}

		var baseMsg struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg, &baseMsg); err != nil {
			continue
		}

		switch baseMsg.Type {
		case "sessionStarted":
			c.sessionMu.Lock()
			c.sessionID = baseMsg.SessionID
			c.sessionMu.Unlock()

		case "peer":
			c.handlePeerMessage(msg)

		case "endSession":
			c.logger.Info("session ended by peer")
			return
		}
	}
}

type peerMessage struct {
	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp"`
	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice"`
}

func (c *Client) handlePeerMessage(msg []byte) {
	var peer peerMessage
	if err := json.Unmarshal(msg, &peer); err != nil {
		return
	}

	if peer.SDP != nil && peer.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  peer.SDP.SDP,
		}
		if err := c.pc.SetRemoteDescription(offer); err != nil {
			c.logger.Warn("set remote description", "error", err)
			return
		}

		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			c.logger.Warn("create answer", "error", err)
			return
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			c.logger.Warn("set local description", "error", err)
			return
		}

		c.sendSDP(answer)
	}

	if peer.ICE != nil {
		var sdpMid string
		if peer.ICE.SDPMid != nil {
			sdpMid = *peer.ICE.SDPMid
		}
		var sdpMLineIndex uint16
		if peer.ICE.SDPMLineIndex != nil {
			sdpMLineIndex = *peer.ICE.SDPMLineIndex
		}

		if err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     peer.ICE.Candidate,
			SDPMid:        &sdpMid,
			SDPMLineIndex: &sdpMLineIndex,
		}); err != nil {
			c.logger.Warn("add ice candidate", "error", err)
		}
	}
}

func (c *Client) sendSDP(sdp webrtc.SessionDescription) {
	c.sessionMu.Lock()
	sessionID := c.sessionID
	c.sessionMu.Unlock()

	c.writeJSON(map[string]interface{}{
		"type":      "peer",
		"sessionId": sessionID,
		"sdp": map[string]string{
			"type": sdp.Type.String(),
			"sdp":  sdp.SDP,
		},
	})
}

func (c *Client) sendICECandidate(candidate *webrtc.ICECandidate) {
	c.sessionMu.Lock()
	sessionID := c.sessionID
	c.sessionMu.Unlock()
	if sessionID == "" {
		return
	}

	init := candidate.ToJSON()
	c.writeJSON(map[string]interface{}{
		"type":      "peer",
		"sessionId": sessionID,
		"ice": map[string]interface{}{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
}

func (c *Client) writeJSON(v interface{}) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(v)
}

// handleVideoTrack collects H264 NAL units and decodes them to JPEG at
// the configured interval.
func (c *Client) handleVideoTrack(track *webrtc.TrackRemote) {
	select {
	case c.frameReady <- struct{}{}:
	default:
	}

	for !c.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		c.consumeVideo(pkt)
	}
}

func (c *Client) consumeVideo(pkt *rtp.Packet) {
	c.videoPackets.Add(1)
	c.bytesReceived.Add(int64(len(pkt.Payload)))

	if frame, err := c.decoder.Write(pkt.Payload); err == nil && frame != nil {
		select {
		case c.frameReady <- struct{}{}:
		default:
		}
	}
}

// handleAudioTrack decodes opus packets and pushes PCM16 chunks to the
// audio channel. Chunks are dropped when the consumer falls behind.
func (c *Client) handleAudioTrack(track *webrtc.TrackRemote) {
	decoder, err := opus.NewDecoder(c.config.SampleRate, c.config.Channels)
	if err != nil {
		c.logger.Error("opus decoder", "error", err)
		return
	}

	// 120ms at 48kHz is the largest opus frame
	frameBuf := make([]int16, 5760*c.config.Channels)

	for !c.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		c.audioPackets.Add(1)
		c.bytesReceived.Add(int64(len(pkt.Payload)))

		n, err := decoder.Decode(pkt.Payload, frameBuf)
		if err != nil {
			c.decodeErrors.Add(1)
			continue
		}
		c.samplesDecoded.Add(int64(n))

		select {
		case c.audioCh <- pcm16Bytes(frameBuf[:n*c.config.Channels]):
		default:
			c.audioDropped.Add(1)
		}
	}
}

// pcm16Bytes converts samples to little-endian PCM16.
func pcm16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// GetFrame returns the latest decoded JPEG frame.
func (c *Client) GetFrame() ([]byte, error) {
	frame := c.decoder.Latest()
	if frame == nil {
		return nil, fmt.Errorf("remote: no frame available")
	}
	return frame, nil
}

// WaitForFrame polls until a frame is available or the timeout expires.
func (c *Client) WaitForFrame(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if frame, err := c.GetFrame(); err == nil {
			return frame, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return nil, fmt.Errorf("remote: timeout waiting for frame")
}

// AudioPCM returns the decoded microphone stream. Each chunk is one
// opus frame as little-endian PCM16 at the configured sample rate.
func (c *Client) AudioPCM() <-chan []byte {
	return c.audioCh
}

// SampleRate returns the PCM sample rate of AudioPCM chunks.
func (c *Client) SampleRate() int {
	return c.config.SampleRate
}

// GetStats returns stream counters.
func (c *Client) GetStats() Stats {
	return Stats{
		VideoPackets:   c.videoPackets.Load(),
		AudioPackets:   c.audioPackets.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		FramesDecoded:  c.decoder.Frames(),
		SamplesDecoded: c.samplesDecoded.Load(),
		DecodeErrors:   c.decodeErrors.Load(),
		AudioDropped:   c.audioDropped.Load(),
	}
}

// Close tears down the peer connection and signalling socket.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.connected.Store(false)

	if c.pc != nil {
		c.pc.Close()
	}
	if c.ws != nil {
		c.ws.Close()
	}
	c.decoder.Close()
	return nil
}
