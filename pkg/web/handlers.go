package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-glide/pkg/hub"
	"github.com/teslashibe/go-glide/pkg/journal"
)

// handleIndex serves the embedded dashboard page.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(dashboardHTML)
}

// handleStatus returns the chair snapshot plus hub statistics.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()

	return c.JSON(fiber.Map{
		"state":  state,
		"events": s.eventsHub.Stats(),
		"camera": s.cameraHub.Stats(),
	})
}

// ActivateRequest is the request body for manual gate control.
type ActivateRequest struct {
	Source string `json:"source"`
}

// handleActivate opens the activation gate manually. This is the
// fallback for riders who cannot use the voice trigger.
func (s *Server) handleActivate(c *fiber.Ctx) error {
	var req ActivateRequest
	if err := c.BodyParser(&req); err != nil || req.Source == "" {
		req.Source = "dashboard"
	}

	if s.OnActivate == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "activation not configured",
		})
	}

	changed := s.OnActivate(req.Source)

	return c.JSON(fiber.Map{
		"active":  true,
		"changed": changed,
		"source":  req.Source,
	})
}

// handleDeactivate closes the activation gate manually.
func (s *Server) handleDeactivate(c *fiber.Ctx) error {
	var req ActivateRequest
	if err := c.BodyParser(&req); err != nil || req.Source == "" {
		req.Source = "dashboard"
	}

	if s.OnDeactivate == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "activation not configured",
		})
	}

	changed := s.OnDeactivate(req.Source)

	return c.JSON(fiber.Map{
		"active":  false,
		"changed": changed,
		"source":  req.Source,
	})
}

// handleHistory returns journaled alerts, newest first. Supports
// limit, urgency, label, and since (RFC3339) query parameters.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.History == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "journal not configured",
		})
	}

	q := journal.AlertQuery{
		Urgency: c.Query("urgency"),
		Label:   c.Query("label"),
		Limit:   c.QueryInt("limit", 50),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{
				"error": "since must be RFC3339",
			})
		}
		q.Since = t
	}

	alerts, err := s.History(c.Context(), q)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleFrame returns the most recent annotated JPEG frame.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	if s.OnFrame == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "frame capture not configured",
		})
	}

	frame, err := s.OnFrame()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if len(frame) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "no frame available"})
	}

	c.Set("Content-Type", "image/jpeg")
	return c.Send(frame)
}

// handleGuidance requests model guidance for the current scene.
func (s *Server) handleGuidance(c *fiber.Ctx) error {
	if s.OnGuidance == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "guidance not configured",
		})
	}

	g, err := s.OnGuidance(c.Context())
	if err != nil {
		return c.Status(502).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(g)
}

// GuidanceToggleRequest is the request body for the runtime guidance switch.
type GuidanceToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// handleGuidanceToggle enables or disables automatic guidance.
func (s *Server) handleGuidanceToggle(c *fiber.Ctx) error {
	var req GuidanceToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	if s.OnGuidanceToggle == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "guidance not configured",
		})
	}

	s.OnGuidanceToggle(req.Enabled)
	s.UpdateState(func(st *State) { st.GuidanceOn = req.Enabled })

	return c.JSON(fiber.Map{"enabled": req.Enabled})
}

// handleEventsWS attaches a dashboard client to the event stream.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.eventsHub, c).Run()
}

// handleCameraWS attaches a dashboard client to the camera stream.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
