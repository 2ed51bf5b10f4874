// Package glide wires the navigation aid together: frames in, detections
// through the analyzer, decisions out as arbitrated speech, all gated by
// the voice trigger. The App owns every component's lifecycle.
package glide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-glide/internal/config"
	"github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/audioio"
	"github.com/teslashibe/go-glide/pkg/camera"
	"github.com/teslashibe/go-glide/pkg/detect"
	"github.com/teslashibe/go-glide/pkg/feedback"
	"github.com/teslashibe/go-glide/pkg/guidance"
	"github.com/teslashibe/go-glide/pkg/journal"
	"github.com/teslashibe/go-glide/pkg/listen"
	"github.com/teslashibe/go-glide/pkg/protocol"
	"github.com/teslashibe/go-glide/pkg/remote"
	"github.com/teslashibe/go-glide/pkg/situation"
	"github.com/teslashibe/go-glide/pkg/speech"
	"github.com/teslashibe/go-glide/pkg/uplink"
	"github.com/teslashibe/go-glide/pkg/web"
)

const (
	// micBuffer is the capture channel depth. Pumps drop chunks rather
	// than block the capture path when the listener falls behind.
	micBuffer = 32

	// listenRate is the mono PCM rate the recognizers expect. Capture
	// sources at other rates are resampled on the way in.
	listenRate = 16000

	// guidanceTimeout bounds one advisor call.
	guidanceTimeout = 15 * time.Second
)

// errNoFrame is returned before the first frame of a session arrives.
var errNoFrame = errors.New("glide: no frame captured yet")

// App is the navigation aid orchestrator. It manages all components and
// their lifecycle.
type App struct {
	config *config.Config
	logger *slog.Logger

	// Decision pipeline
	detector detect.Detector
	analyzer *situation.Analyzer
	arbiter  *feedback.Arbiter
	gate     *feedback.Gate

	// Speech output
	synth  speech.Synthesizer
	sink   audioio.Sink
	output *speech.Output

	// Voice trigger
	recognizer listen.Recognizer
	listener   *listen.Listener
	micSource  audioio.Source
	micCh      chan []int16
	micDrops   atomic.Int64

	// Frame input
	camera *camera.Manager
	remote *remote.Client
	frames frameSource

	// Connectivity
	webServer *web.Server
	hub       *uplink.Hub
	uplinkApp *fiber.App
	journal   *journal.Journal
	advisor   guidance.Advisor

	guidanceOn atomic.Bool

	// Scene state shared between the loop and the dashboard handlers.
	sceneMu   sync.Mutex
	lastScene []detect.Detection
	lastFrame []byte
	frameSeq  atomic.Uint64

	// pending maps a submitted message to its primary detection so the
	// journal entry for the spoken alert keeps the subject fields.
	pendingMu sync.Mutex
	pending   map[string]detect.Detection
}

// New creates the application for the given configuration.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &App{
		config:  cfg,
		logger:  log.With("component", "app"),
		micCh:   make(chan []int16, micBuffer),
		pending: make(map[string]detect.Detection),
	}, nil
}

// Init builds and wires every component.
// Call this after New() and before Run().
func (a *App) Init() error {
	fmt.Println("🦽 Glide - Wheelchair Navigation Aid")
	fmt.Println("====================================")
	if a.config.Debug {
		fmt.Println("🐛 Debug mode enabled")
	}

	fmt.Print("🔧 Initializing... ")
	if err := a.initCore(); err != nil {
		return fmt.Errorf("core init: %w", err)
	}
	fmt.Println("✅")

	if err := a.initUplink(); err != nil {
		return fmt.Errorf("uplink init: %w", err)
	}

	if err := a.initSpeech(); err != nil {
		return fmt.Errorf("speech init: %w", err)
	}

	fmt.Print("🔍 Loading obstacle detector... ")
	if err := a.initDetector(); err != nil {
		return fmt.Errorf("detector init: %w", err)
	}
	fmt.Println("✅")

	if err := a.initFrames(); err != nil {
		return fmt.Errorf("frame source init: %w", err)
	}

	fmt.Printf("🎤 Voice trigger (%s)... ", a.config.Listen.Recognizer)
	if err := a.initListen(); err != nil {
		return fmt.Errorf("listener init: %w", err)
	}
	fmt.Println("✅")

	a.initGuidance()
	a.initWeb()

	return nil
}

// initCore opens the journal and builds the decision core.
func (a *App) initCore() error {
	j, err := journal.Open(journal.Config{Path: a.config.Journal.Path})
	if err != nil {
		return err
	}
	a.journal = j

	scfg := situation.DefaultConfig()
	scfg.MinConfidence = a.config.Detector.MinConfidence
	scfg.NearDistance = a.config.Analysis.NearDistance
	scfg.Cooldown = a.config.Analysis.Cooldown

	analyzer, err := situation.New(scfg)
	if err != nil {
		return err
	}
	a.analyzer = analyzer

	a.gate = feedback.NewGate()
	return nil
}

// initUplink starts the companion-unit hub. Units push frames, mic audio,
// and state; alerts and synthesized speech go back down.
func (a *App) initUplink() error {
	if !a.config.Uplink.Enabled {
		return nil
	}

	a.hub = uplink.NewHub()
	a.hub.OnState(func(unitID string, st *protocol.StateData) {
		a.logger.Info("unit state", "unit", unitID, "connected", st.Connected, "battery", st.Battery)
		if a.webServer != nil {
			a.webServer.UpdateState(func(s *web.State) { s.UnitConnected = st.Connected })
		}
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	a.hub.RegisterRoutes(app)
	a.hub.RegisterAPIRoutes(app.Group("/api"))
	a.uplinkApp = app

	fmt.Printf("🔗 Uplink hub on :%s\n", a.config.Uplink.Port)
	return nil
}

// initSpeech builds the synthesizer chain, the playback sink, and the
// arbiter that owns them.
func (a *App) initSpeech() error {
	primary, err := a.buildSynthesizer(a.config.Speech.Provider)
	if err != nil {
		return err
	}

	synths := []speech.Synthesizer{primary}
	if a.config.Speech.Provider != "platform" {
		// The OS voice needs no key and no network, so it backs every
		// cloud provider.
		if fallback, ferr := speech.NewPlatform(); ferr == nil {
			synths = append(synths, fallback)
		} else {
			a.logger.Debug("platform voice unavailable", "error", ferr)
		}
	}

	a.synth = synths[0]
	if len(synths) > 1 {
		chain, cerr := speech.NewChain(synths...)
		if cerr != nil {
			return cerr
		}
		a.synth = chain
	}

	if a.config.Source.Mode == config.SourceUplink {
		// The companion unit on the chair carries the speaker.
		a.sink = newUplinkSink(a.hub, audioio.PlaybackConfig())
	} else {
		sink, serr := audioio.NewSink(audioio.PlaybackConfig(), log.With("component", "audioio"))
		if serr != nil {
			return serr
		}
		a.sink = sink
	}

	a.output = speech.NewOutput(a.synth, a.sink)
	a.arbiter = feedback.NewArbiter(a.output)
	a.arbiter.OnEvent = a.handleFeedbackEvent

	fmt.Printf("🗣️  Speech: %s (playback: %s)\n", a.config.Speech.Provider, a.sink.Name())
	return nil
}

// buildSynthesizer creates the configured primary provider.
func (a *App) buildSynthesizer(provider string) (speech.Synthesizer, error) {
	switch provider {
	case "platform":
		return speech.NewPlatform()
	case "openai":
		opts := []speech.Option{speech.WithAPIKey(a.config.OpenAIKey)}
		if a.config.Speech.Voice != "" {
			opts = append(opts, speech.WithVoice(a.config.Speech.Voice))
		}
		return speech.NewOpenAI(opts...)
	case "elevenlabs", "elevenlabs-streaming":
		opts := []speech.Option{speech.WithAPIKey(a.config.ElevenLabsKey)}
		if a.config.Speech.Voice != "" {
			opts = append(opts, speech.WithVoice(speech.ResolveElevenLabsVoice(a.config.Speech.Voice)))
		}
		if provider == "elevenlabs-streaming" {
			return speech.NewElevenLabsWS(opts...)
		}
		return speech.NewElevenLabs(opts...)
	default:
		return nil, fmt.Errorf("glide: unknown speech provider %q", provider)
	}
}

func (a *App) initDetector() error {
	cfg := detect.DefaultYOLOConfig()
	cfg.ModelPath = a.config.Detector.ModelPath
	cfg.ConfidenceThresh = float32(a.config.Detector.MinConfidence)

	det, err := detect.NewYOLO(cfg)
	if err != nil {
		return err
	}
	a.detector = det
	return nil
}

// initFrames selects where frames come from: the local camera, the WebRTC
// companion unit, or frames pushed over the uplink.
func (a *App) initFrames() error {
	switch a.config.Source.Mode {
	case config.SourceCamera:
		fmt.Print("📹 Opening camera... ")
		cfg := camera.DefaultConfig()
		cfg.Device = a.config.Source.Device
		cfg.Width = a.config.Source.Width
		cfg.Height = a.config.Source.Height

		mgr, err := camera.NewManager(cfg)
		if err != nil {
			return err
		}
		if err := mgr.Open(); err != nil {
			return err
		}
		a.camera = mgr
		a.frames = &cameraFrames{mgr: mgr}
		fmt.Println("✅")

	case config.SourceRemote:
		fmt.Print("📡 Connecting to companion unit... ")
		client := remote.NewClient(remote.DefaultConfig(a.config.Source.UnitHost))
		if err := client.Connect(context.Background()); err != nil {
			return err
		}
		if _, err := client.WaitForFrame(10 * time.Second); err != nil {
			fmt.Printf("⚠️  %v\n", err)
		} else {
			fmt.Println("✅")
		}
		a.remote = client
		a.frames = &remoteFrames{client: client}

	case config.SourceUplink:
		store := &unitFrames{}
		a.hub.OnFrame(func(unitID string, f *protocol.FrameData) {
			jpeg, err := f.DecodeFrameData()
			if err != nil {
				a.logger.Warn("bad uplink frame", "unit", unitID, "error", err)
				return
			}
			store.Store(jpeg)
		})
		a.hub.OnMic(func(unitID string, m *protocol.MicData) {
			pcm, err := m.DecodeMicData()
			if err != nil {
				a.logger.Warn("bad uplink mic chunk", "unit", unitID, "error", err)
				return
			}
			a.feedMic(audioio.BytesToSamples(pcm), m.SampleRate)
		})
		a.frames = store
		fmt.Println("🔗 Waiting for a companion unit to stream frames")
	}

	return nil
}

func (a *App) initListen() error {
	rec, err := a.buildRecognizer()
	if err != nil {
		return err
	}
	a.recognizer = rec

	starts := a.config.Listen.StartPhrases
	if len(starts) == 0 {
		starts = listen.DefaultStartPhrases
	}
	stops := a.config.Listen.StopPhrases
	if len(stops) == 0 {
		stops = listen.DefaultStopPhrases
	}

	l, err := listen.NewListener(rec, a.micCh,
		listen.WithStartPhrases(starts...),
		listen.WithStopPhrases(stops...),
		listen.WithLogger(log.With("component", "listen")),
	)
	if err != nil {
		return err
	}
	a.listener = l

	if a.config.Source.Mode == config.SourceCamera {
		src, serr := audioio.NewSource(audioio.DefaultConfig(), log.With("component", "audioio"))
		if serr != nil {
			return serr
		}
		a.micSource = src
	}
	return nil
}

func (a *App) buildRecognizer() (listen.Recognizer, error) {
	switch a.config.Listen.Recognizer {
	case "google":
		hints := append([]string{}, a.config.Listen.StartPhrases...)
		hints = append(hints, a.config.Listen.StopPhrases...)
		if len(hints) == 0 {
			hints = append(append([]string{}, listen.DefaultStartPhrases...), listen.DefaultStopPhrases...)
		}
		return listen.NewGoogleRecognizer(context.Background(), listen.GoogleConfig{
			CredentialsFile: a.config.Listen.CredentialsFile,
			Hints:           hints,
		})
	case "openai":
		return listen.NewOpenAIRecognizer(listen.OpenAIConfig{APIKey: a.config.OpenAIKey})
	case "whisper":
		return listen.NewWhisperRecognizer(a.config.Listen.WhisperModel)
	default:
		return nil, fmt.Errorf("glide: unknown recognizer %q", a.config.Listen.Recognizer)
	}
}

// initGuidance builds the advisor when enabled. A failure here only
// disables guidance; the aid runs without it.
func (a *App) initGuidance() {
	if !a.config.Guidance.Enabled {
		return
	}

	client, err := guidance.NewClient(
		guidance.WithAPIKey(a.config.OpenAIKey),
		guidance.WithModel(a.config.Guidance.Model),
		guidance.WithNearDistance(a.config.Analysis.NearDistance),
	)
	if err != nil {
		fmt.Printf("⚠️  Guidance disabled: %v\n", err)
		return
	}
	a.advisor = client
	a.guidanceOn.Store(true)
	fmt.Printf("🧭 Guidance enabled (model: %s)\n", a.config.Guidance.Model)
}

// initWeb wires the dashboard callbacks. The server itself starts in Run.
func (a *App) initWeb() {
	if !a.config.Web.Enabled {
		return
	}

	srv := web.NewServer(a.config.Web.Port)
	srv.OnActivate = func(source string) bool {
		ok := a.activate("manual", source)
		if ok {
			a.recordTrigger(listen.TriggerEvent{
				Type:       listen.TriggerStart,
				Phrase:     "manual",
				Heard:      source,
				Confidence: 1,
				Timestamp:  time.Now(),
			})
		}
		return ok
	}
	srv.OnDeactivate = func(source string) bool {
		ok := a.deactivate("manual", source)
		if ok {
			a.recordTrigger(listen.TriggerEvent{
				Type:       listen.TriggerStop,
				Phrase:     "manual",
				Heard:      source,
				Confidence: 1,
				Timestamp:  time.Now(),
			})
		}
		return ok
	}
	srv.OnFrame = a.latestFrame
	srv.History = func(ctx context.Context, q journal.AlertQuery) ([]journal.Alert, error) {
		return a.journal.Alerts(ctx, q)
	}
	if a.advisor != nil {
		srv.OnGuidance = a.adviseNow
		srv.OnGuidanceToggle = func(enabled bool) {
			a.guidanceOn.Store(enabled)
			a.logger.Info("guidance toggled", "enabled", enabled)
		}
	}
	a.webServer = srv

	fmt.Printf("🌐 Dashboard: http://localhost:%s\n", a.config.Web.Port)
}

// Run starts every worker and blocks until the context is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	fmt.Println("\n🎧 Waiting for an activation phrase...")
	fmt.Println("   (Ctrl+C to exit)")

	if err := a.sink.Start(ctx); err != nil {
		return fmt.Errorf("glide: start playback: %w", err)
	}
	if a.micSource != nil {
		if err := a.micSource.Start(ctx); err != nil {
			return fmt.Errorf("glide: start capture: %w", err)
		}
	}

	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.State) {
			s.Source = a.config.Source.Mode
			s.ArbiterState = string(feedback.StateIdle)
			s.GuidanceOn = a.guidanceOn.Load()
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.controlLoop(ctx) })
	g.Go(func() error { return a.statsLoop(ctx) })
	g.Go(func() error { return a.listener.Run(ctx) })
	g.Go(func() error { return a.consumeTriggers(ctx) })
	if a.micSource != nil {
		g.Go(func() error { return a.pumpLocalMic(ctx) })
	}
	if a.remote != nil {
		g.Go(func() error { return a.pumpRemoteMic(ctx) })
	}
	if a.webServer != nil {
		g.Go(func() error { return a.webServer.Run(ctx) })
	}
	if a.uplinkApp != nil {
		g.Go(func() error { return a.serveUplink(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown releases every component. Safe to call after Run returns.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Glide stopped")

	if a.arbiter != nil {
		a.arbiter.Deactivate()
	}
	if a.listener != nil {
		a.listener.Close()
	}
	if a.micSource != nil {
		a.micSource.Stop()
		a.micSource.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.synth != nil {
		a.synth.Close()
	}
	if a.camera != nil {
		a.camera.Close()
	}
	if a.remote != nil {
		a.remote.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.advisor != nil {
		a.advisor.Close()
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	if a.uplinkApp != nil {
		a.uplinkApp.Shutdown()
	}
	if a.journal != nil {
		a.journal.Close()
	}
}

// frameSource supplies the most recent JPEG frame for one analysis cycle.
type frameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// cameraFrames reads from the local capture device.
type cameraFrames struct {
	mgr *camera.Manager
}

func (c *cameraFrames) Frame(ctx context.Context) ([]byte, error) {
	return c.mgr.Read(ctx)
}

// remoteFrames serves the latest decoded frame from the WebRTC unit.
type remoteFrames struct {
	client *remote.Client
}

func (r *remoteFrames) Frame(ctx context.Context) ([]byte, error) {
	return r.client.GetFrame()
}

// unitFrames holds the newest frame pushed over the uplink.
type unitFrames struct {
	mu     sync.Mutex
	latest []byte
}

func (u *unitFrames) Store(jpeg []byte) {
	u.mu.Lock()
	u.latest = jpeg
	u.mu.Unlock()
}

func (u *unitFrames) Frame(ctx context.Context) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.latest == nil {
		return nil, errNoFrame
	}
	return u.latest, nil
}

// uplinkSink plays synthesized speech through the companion unit's
// speaker: written chunks accumulate until Flush ships them down as one
// speak message.
type uplinkSink struct {
	hub *uplink.Hub
	cfg audioio.Config

	mu  sync.Mutex
	buf []int16
}

func newUplinkSink(hub *uplink.Hub, cfg audioio.Config) *uplinkSink {
	return &uplinkSink{hub: hub, cfg: cfg}
}

func (u *uplinkSink) Start(ctx context.Context) error { return nil }

func (u *uplinkSink) Stop() error { return nil }

func (u *uplinkSink) Write(ctx context.Context, chunk audioio.AudioChunk) error {
	u.mu.Lock()
	u.buf = append(u.buf, chunk.Samples...)
	u.mu.Unlock()
	return nil
}

func (u *uplinkSink) Flush(ctx context.Context) error {
	u.mu.Lock()
	data := audioio.SamplesToBytes(u.buf)
	u.buf = u.buf[:0]
	u.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	return u.hub.BroadcastSpeak(data, "pcm16", u.cfg.SampleRate, "")
}

func (u *uplinkSink) Clear() error {
	u.mu.Lock()
	u.buf = u.buf[:0]
	u.mu.Unlock()
	return nil
}

func (u *uplinkSink) Config() audioio.Config { return u.cfg }

func (u *uplinkSink) Name() string { return "uplink" }

func (u *uplinkSink) Close() error { return nil }

var _ audioio.Sink = (*uplinkSink)(nil)
