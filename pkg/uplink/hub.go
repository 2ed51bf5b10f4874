// Package uplink accepts WebSocket connections from companion units: a
// phone or sensor pod mounted on the chair that streams camera frames and
// microphone audio to the host and plays synthesized alerts back. The hub
// dispatches incoming payloads to application callbacks and pushes speak
// and config messages down.
package uplink

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/protocol"
)

// UnitConnection represents a connected companion unit
type UnitConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the unit
func (u *UnitConnection) Send(msg *protocol.Message) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return u.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from companion units
type Hub struct {
	mu     sync.RWMutex
	units  map[string]*UnitConnection
	logger *slog.Logger

	// Callbacks
	onFrame func(unitID string, frame *protocol.FrameData)
	onMic   func(unitID string, mic *protocol.MicData)
	onState func(unitID string, state *protocol.StateData)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	micChunks        atomic.Uint64
}

// NewHub creates a new companion-unit hub
func NewHub() *Hub {
	return &Hub{
		units:  make(map[string]*UnitConnection),
		logger: log.With("component", "uplink"),
	}
}

// OnFrame sets the callback for incoming video frames
func (h *Hub) OnFrame(callback func(unitID string, frame *protocol.FrameData)) {
	h.mu.Lock()
	h.onFrame = callback
	h.mu.Unlock()
}

// OnMic sets the callback for incoming microphone audio
func (h *Hub) OnMic(callback func(unitID string, mic *protocol.MicData)) {
	h.mu.Lock()
	h.onMic = callback
	h.mu.Unlock()
}

// OnState sets the callback for incoming unit state
func (h *Hub) OnState(callback func(unitID string, state *protocol.StateData)) {
	h.mu.Lock()
	h.onState = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Companion unit connection endpoint
	app.Get("/ws/unit", websocket.New(h.handleUnit))
	app.Get("/ws/unit/:id", websocket.New(h.handleUnit))
}

// handleUnit handles a companion unit WebSocket connection
func (h *Hub) handleUnit(c *websocket.Conn) {
	// Get unit ID from path or generate one
	unitID := c.Params("id")
	if unitID == "" {
		unitID = uuid.NewString()
	}

	unit := &UnitConnection{
		ID:        unitID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.units[unitID] = unit
	count := len(h.units)
	h.mu.Unlock()

	h.logger.Info("unit connected", "unit", unitID, "units", count)

	defer func() {
		h.mu.Lock()
		delete(h.units, unitID)
		count := len(h.units)
		h.mu.Unlock()

		h.logger.Info("unit disconnected", "unit", unitID, "units", count)
	}()

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("unit read error", "unit", unitID, "error", err)
			return
		}

		unit.mu.Lock()
		unit.LastSeen = time.Now()
		unit.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(unitID, data)
	}
}

// handleMessage processes an incoming message from a unit
func (h *Hub) handleMessage(unitID string, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("unparseable message", "unit", unitID, "error", err)
		return
	}

	h.mu.RLock()
	frameCb := h.onFrame
	micCb := h.onMic
	stateCb := h.onState
	h.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		if frameCb != nil {
			frame, err := msg.GetFrameData()
			if err == nil {
				frameCb(unitID, frame)
			}
		}

	case protocol.TypeMic:
		h.micChunks.Add(1)
		if micCb != nil {
			mic, err := msg.GetMicData()
			if err == nil {
				micCb(unitID, mic)
			}
		}

	case protocol.TypeState:
		if stateCb != nil {
			state, err := msg.GetStateData()
			if err == nil {
				stateCb(unitID, state)
			}
		}

	case protocol.TypePing:
		// Respond with pong
		h.SendPong(unitID, msg.Timestamp)
	}
}

// SendSpeak sends synthesized alert audio to a unit
func (h *Hub) SendSpeak(unitID string, audioData []byte, format string, sampleRate int, urgency string) error {
	msg, err := protocol.NewSpeakMessage(audioData, format, sampleRate, urgency)
	if err != nil {
		return err
	}
	return h.sendToUnit(unitID, msg)
}

// SendConfig sends a configuration update to a unit
func (h *Hub) SendConfig(unitID string, camera *protocol.CameraConfig, audio *protocol.AudioConfig) error {
	msg, err := protocol.NewConfigMessage(camera, audio)
	if err != nil {
		return err
	}
	return h.sendToUnit(unitID, msg)
}

// SendPong sends a pong response to a unit
func (h *Hub) SendPong(unitID string, pingTS int64) error {
	msg, err := protocol.NewPongMessage("", pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return h.sendToUnit(unitID, msg)
}

// sendToUnit sends a message to a specific unit
func (h *Hub) sendToUnit(unitID string, msg *protocol.Message) error {
	h.mu.RLock()
	unit, ok := h.units[unitID]
	h.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unit not connected")
	}

	h.messagesSent.Add(1)
	return unit.Send(msg)
}

// Broadcast sends a message to all connected units
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	units := make([]*UnitConnection, 0, len(h.units))
	for _, u := range h.units {
		units = append(units, u)
	}
	h.mu.RUnlock()

	for _, unit := range units {
		h.messagesSent.Add(1)
		if err := unit.Send(msg); err != nil {
			h.logger.Warn("broadcast failed", "unit", unit.ID, "error", err)
		}
	}
}

// BroadcastSpeak sends alert audio to every connected unit. A chair
// normally has one companion, so this is the common alert path.
func (h *Hub) BroadcastSpeak(audioData []byte, format string, sampleRate int, urgency string) error {
	msg, err := protocol.NewSpeakMessage(audioData, format, sampleRate, urgency)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// GetUnit returns a unit connection by ID
func (h *Hub) GetUnit(unitID string) *UnitConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.units[unitID]
}

// GetUnits returns all connected units
func (h *Hub) GetUnits() []*UnitConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	units := make([]*UnitConnection, 0, len(h.units))
	for _, u := range h.units {
		units = append(units, u)
	}
	return units
}

// UnitCount returns the number of connected units
func (h *Hub) UnitCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.units)
}

// Stats contains hub statistics
type Stats struct {
	UnitCount        int    `json:"unit_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	MicChunks        uint64 `json:"mic_chunks"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		UnitCount:        h.UnitCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		MicChunks:        h.micChunks.Load(),
	}
}

// UnitInfo contains info about a connected unit
type UnitInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetUnitInfos returns info about all connected units
func (h *Hub) GetUnitInfos() []UnitInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]UnitInfo, 0, len(h.units))
	for _, u := range h.units {
		u.mu.Lock()
		infos = append(infos, UnitInfo{
			ID:        u.ID,
			Connected: u.Connected,
			LastSeen:  u.LastSeen,
		})
		u.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for unit management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	units := api.Group("/units")

	// List connected units
	units.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"units": h.GetUnitInfos(),
			"count": h.UnitCount(),
		})
	})

	// Get hub stats
	units.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	// Push a configuration update to a unit
	units.Post("/:id/config", func(c *fiber.Ctx) error {
		unitID := c.Params("id")

		var cfg struct {
			Camera *protocol.CameraConfig `json:"camera"`
			Audio  *protocol.AudioConfig  `json:"audio"`
		}
		if err := c.BodyParser(&cfg); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}

		if err := h.SendConfig(unitID, cfg.Camera, cfg.Audio); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		return c.JSON(fiber.Map{"status": "sent"})
	})
}
