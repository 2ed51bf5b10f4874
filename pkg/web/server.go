// Package web serves the glide dashboard: a small fiber app exposing
// chair state over REST plus live event and camera streams over
// websockets. The dashboard is also the manual fallback for activation
// when voice control is unavailable.
package web

import (
	"context"
	_ "embed"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/guidance"
	"github.com/teslashibe/go-glide/pkg/hub"
	"github.com/teslashibe/go-glide/pkg/journal"
	"github.com/teslashibe/go-glide/pkg/protocol"
)

//go:embed dashboard.html
var dashboardHTML string

// State is the chair snapshot shown on the dashboard.
type State struct {
	Active        bool   `json:"active"`
	ActivatedBy   string `json:"activated_by,omitempty"`
	Speaking      bool   `json:"speaking"`
	ArbiterState  string `json:"arbiter_state"`
	LastAlert     string `json:"last_alert,omitempty"`
	Source        string `json:"source"`
	UnitConnected bool   `json:"unit_connected"`
	GuidanceOn    bool   `json:"guidance_on"`
	SpokenCount   int64  `json:"spoken_count"`
	DroppedCount  int64  `json:"dropped_count"`
}

// statusUpdate wraps a state snapshot for the event stream so clients
// can distinguish it from protocol envelopes by the type field.
type statusUpdate struct {
	Type string `json:"type"`
	Data State  `json:"data"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	state   State
	stateMu sync.RWMutex

	// Hubs for websocket broadcast
	eventsHub *hub.Hub
	cameraHub *hub.Hub

	// Callbacks into the application. Handlers return 503 when the
	// corresponding callback is unset.
	OnActivate       func(source string) bool
	OnDeactivate     func(source string) bool
	OnGuidance       func(ctx context.Context) (*guidance.Guidance, error)
	OnGuidanceToggle func(enabled bool)
	OnFrame          func() ([]byte, error)
	History          func(ctx context.Context, q journal.AlertQuery) ([]journal.Alert, error)
}

// NewServer creates a dashboard server listening on the given port.
func NewServer(port string) *Server {
	s := &Server{
		port:      port,
		logger:    log.With("component", "web"),
		eventsHub: hub.New("events"),
		cameraHub: hub.New("camera"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Glide Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/activate", s.handleActivate)
	api.Post("/deactivate", s.handleDeactivate)
	api.Get("/history", s.handleHistory)
	api.Get("/frame", s.handleFrame)
	api.Post("/guidance", s.handleGuidance)
	api.Post("/guidance/toggle", s.handleGuidanceToggle)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws", websocket.New(s.handleEventsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Run starts the hubs and the HTTP listener and blocks until the
// context is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	go s.eventsHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(":" + s.port)
	}()

	select {
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// UpdateState applies update to the chair snapshot and broadcasts the
// result to event stream clients.
func (s *Server) UpdateState(update func(*State)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state // Copy for broadcast
	s.stateMu.Unlock()

	s.eventsHub.BroadcastJSON(statusUpdate{Type: "status", Data: state})
}

// Broadcast sends a protocol message to all event stream clients.
func (s *Server) Broadcast(msg *protocol.Message) error {
	return s.eventsHub.BroadcastProtocol(msg)
}

// SendFrame sends an annotated JPEG frame to all camera stream clients.
func (s *Server) SendFrame(jpegData []byte) {
	s.cameraHub.BroadcastBinary(jpegData)
}

// EventsHub returns the event stream hub for external use.
func (s *Server) EventsHub() *hub.Hub {
	return s.eventsHub
}

// CameraHub returns the camera stream hub for external use.
func (s *Server) CameraHub() *hub.Hub {
	return s.cameraHub
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
