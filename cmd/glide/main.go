// Glide - Voice-activated navigation aid for power wheelchair users
// Watches the path ahead and speaks short obstacle alerts on request.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-glide/internal/config"
	applog "github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/glide"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	applog.Init(level)

	app, err := glide.New(cfg)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags layers configuration: defaults, YAML file, environment,
// then command flags. Validation happens in glide.New.
func parseFlags() (*config.Config, error) {
	configPath := flag.String("config", "", "Path to a YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	source := flag.String("source", "", "Frame source: camera, remote, uplink")
	device := flag.Int("device", -1, "Camera device index")
	unitHost := flag.String("unit-host", "", "Companion unit address (implies -source remote)")
	speech := flag.String("speech", "", "Speech provider: platform, openai, elevenlabs, elevenlabs-streaming")
	voice := flag.String("voice", "", "Voice ID for the cloud speech provider")
	recognizer := flag.String("recognizer", "", "Trigger recognizer: google, openai, whisper")
	guidance := flag.Bool("guidance", false, "Enable the LLM guidance advisor")
	webPort := flag.String("web-port", "", "Dashboard port")
	uplink := flag.Bool("uplink", false, "Accept companion-unit uplink connections")

	flag.Parse()

	// Boolean flags only override the file and environment layers when
	// they were set on the command line.
	var debugSet, guidanceSet, uplinkSet bool
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			debugSet = true
		case "guidance":
			guidanceSet = true
		case "uplink":
			uplinkSet = true
		}
	})

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	cfg.LoadEnv()

	if debugSet {
		cfg.Debug = *debug
	}
	if *unitHost != "" {
		cfg.Source.UnitHost = *unitHost
		if *source == "" {
			cfg.Source.Mode = config.SourceRemote
		}
	}
	if *source != "" {
		cfg.Source.Mode = *source
	}
	if *device >= 0 {
		cfg.Source.Device = *device
	}
	if *speech != "" {
		cfg.Speech.Provider = *speech
	}
	if *voice != "" {
		cfg.Speech.Voice = *voice
	}
	if *recognizer != "" {
		cfg.Listen.Recognizer = *recognizer
	}
	if guidanceSet {
		cfg.Guidance.Enabled = *guidance
	}
	if *webPort != "" {
		cfg.Web.Port = *webPort
	}
	if uplinkSet {
		cfg.Uplink.Enabled = *uplink
	}

	return &cfg, nil
}
