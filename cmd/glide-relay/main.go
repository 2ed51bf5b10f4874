// glide-relay: Standalone uplink server for remote companion units
// Accepts WebSocket connections from units away from the aid itself,
// so a chair-mounted unit and an operator dashboard can meet at a
// public address.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-glide/pkg/protocol"
	"github.com/teslashibe/go-glide/pkg/uplink"
)

var (
	version = "1.0.0"
	port    = flag.Int("port", 8091, "HTTP server port")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	// Override from environment
	if envPort := os.Getenv("PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}

	fmt.Println()
	fmt.Println("📡 Glide Relay v" + version)
	fmt.Println("   Companion unit uplink service")
	fmt.Println()

	app := fiber.New(fiber.Config{
		AppName:               "glide-relay",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(logger.New())
	}

	hub := uplink.NewHub()
	hub.RegisterRoutes(app)

	api := app.Group("/api")
	hub.RegisterAPIRoutes(api)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version,
			"units":   hub.UnitCount(),
		})
	})

	if *debug {
		hub.OnFrame(func(unitID string, frame *protocol.FrameData) {
			log.Printf("📹 Frame from %s: %dx%d", unitID, frame.Width, frame.Height)
		})
		hub.OnMic(func(unitID string, mic *protocol.MicData) {
			log.Printf("🎤 Mic chunk from %s: %d Hz", unitID, mic.SampleRate)
		})
		hub.OnState(func(unitID string, state *protocol.StateData) {
			log.Printf("🔋 State from %s: camera=%v battery=%.0f%%", unitID, state.Camera, state.Battery*100)
		})
	}

	go func() {
		addr := fmt.Sprintf(":%d", *port)
		log.Printf("🚀 Starting relay on %s", addr)
		log.Printf("   WebSocket: ws://localhost:%d/ws/unit", *port)
		log.Printf("   Health:    http://localhost:%d/health", *port)
		log.Printf("   Units:     http://localhost:%d/api/units", *port)
		log.Println()

		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n👋 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
