package glide

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-glide/pkg/audioio"
	"github.com/teslashibe/go-glide/pkg/detect"
	"github.com/teslashibe/go-glide/pkg/feedback"
	"github.com/teslashibe/go-glide/pkg/guidance"
	"github.com/teslashibe/go-glide/pkg/journal"
	"github.com/teslashibe/go-glide/pkg/listen"
	"github.com/teslashibe/go-glide/pkg/protocol"
	"github.com/teslashibe/go-glide/pkg/situation"
	"github.com/teslashibe/go-glide/pkg/web"
)

const (
	// statsInterval paces dashboard state refreshes.
	statsInterval = 2 * time.Second

	// journalKeep is how much history the hourly prune pass retains.
	journalKeep = 7 * 24 * time.Hour
)

// errGuidanceOff is returned for on-demand guidance when no advisor is
// configured.
var errGuidanceOff = errors.New("glide: guidance is not enabled")

// controlLoop drives one capture-detect-decide cycle per analysis
// interval.
func (a *App) controlLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.config.Analysis.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.step(ctx)
		}
	}
}

// step runs one cycle. Every failure inside it degrades to skipping the
// cycle; the loop itself never stops.
func (a *App) step(ctx context.Context) {
	frame, err := a.frames.Frame(ctx)
	if err != nil {
		a.logger.Debug("no frame this cycle", "error", err)
		return
	}

	if !a.gate.Active() {
		a.publishFrame(frame, nil)
		return
	}

	dets, err := a.detector.Detect(ctx, frame)
	if err != nil {
		a.logger.Warn("detection failed", "error", err)
		a.publishFrame(frame, nil)
		return
	}
	if dets == nil {
		dets = []detect.Detection{}
	}

	a.publishFrame(frame, dets)

	if !a.sceneChanged(dets) {
		return
	}

	if a.advisor != nil && a.guidanceOn.Load() {
		go a.advise(ctx, dets)
	}

	decision := a.analyzer.Decide(dets, a.arbiter.Spoken().Snapshot(), time.Now())
	if decision == nil {
		return
	}

	a.notePending(decision)
	if err := a.arbiter.Submit(ctx, decision); err != nil {
		a.logger.Warn("feedback submit failed", "error", err)
	}
}

// publishFrame pushes the frame, annotated when detections exist, to
// dashboard clients and remembers it for /api/frame. A nil detection
// slice means the gate was closed and no boxes are drawn.
func (a *App) publishFrame(frame []byte, dets []detect.Detection) {
	out := frame
	if len(dets) > 0 {
		if annotated, err := detect.AnnotateJPEG(frame, dets); err == nil {
			out = annotated
		}
	}

	a.sceneMu.Lock()
	a.lastFrame = out
	a.sceneMu.Unlock()

	if a.webServer == nil {
		return
	}
	a.webServer.SendFrame(out)

	if dets == nil {
		return
	}
	if msg, err := protocol.NewDetectionsMessage(dets, a.frameSeq.Add(1)); err == nil {
		a.webServer.Broadcast(msg)
	}
}

// sceneChanged reports whether the scene differs from the last analyzed
// one, and records it as the new baseline when it does.
func (a *App) sceneChanged(dets []detect.Detection) bool {
	a.sceneMu.Lock()
	defer a.sceneMu.Unlock()
	if !detect.Changed(a.lastScene, dets) {
		return false
	}
	a.lastScene = dets
	return true
}

// advise runs one advisor call off the loop goroutine and feeds the
// verdict back through the arbiter at the advisor's priority: low
// verdicts wait their turn, unsafe ones may pre-empt.
func (a *App) advise(ctx context.Context, dets []detect.Detection) {
	tctx, cancel := context.WithTimeout(ctx, guidanceTimeout)
	defer cancel()

	g, err := a.advisor.Advise(tctx, dets)
	if err != nil {
		a.logger.Warn("guidance failed", "error", err)
		return
	}
	a.recordGuidance(g)

	if g.Text == "" {
		return
	}
	d := &situation.Decision{Message: g.Text, Urgency: g.Priority}
	if err := a.arbiter.Submit(ctx, d); err != nil {
		a.logger.Warn("guidance submit failed", "error", err)
	}
}

// adviseNow serves the dashboard's on-demand guidance request using the
// most recent analyzed scene.
func (a *App) adviseNow(ctx context.Context) (*guidance.Guidance, error) {
	if a.advisor == nil {
		return nil, errGuidanceOff
	}

	g, err := a.advisor.Advise(ctx, a.scene())
	if err != nil {
		return nil, err
	}
	a.recordGuidance(g)
	return g, nil
}

// consumeTriggers applies listener events to the gate.
func (a *App) consumeTriggers(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.listener.Events():
			if !ok {
				return nil
			}
			a.handleTrigger(ev)
		}
	}
}

func (a *App) handleTrigger(ev listen.TriggerEvent) {
	a.logger.Info("trigger",
		"type", string(ev.Type),
		"phrase", ev.Phrase,
		"heard", ev.Heard,
		"confidence", ev.Confidence,
	)

	switch ev.Type {
	case listen.TriggerStart:
		a.activate(ev.Phrase, "voice")
	case listen.TriggerStop:
		a.deactivate(ev.Phrase, "voice")
	}
	a.recordTrigger(ev)
}

// activate opens the gate. Returns true when the state actually changed.
func (a *App) activate(phrase, source string) bool {
	if !a.gate.Activate(phrase) {
		return false
	}
	fmt.Printf("🟢 Navigation feedback ON (%s)\n", source)
	a.announceActivation(true, phrase, source)
	return true
}

// deactivate closes the gate and silences any in-flight utterance.
func (a *App) deactivate(phrase, source string) bool {
	if !a.gate.Deactivate(phrase) {
		return false
	}
	a.arbiter.Deactivate()
	fmt.Printf("🔴 Navigation feedback OFF (%s)\n", source)
	a.announceActivation(false, phrase, source)
	return true
}

func (a *App) announceActivation(active bool, phrase, source string) {
	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.State) {
			s.Active = active
			s.ActivatedBy = phrase
		})
	}

	msg, err := protocol.NewActivationMessage(active, phrase, source)
	if err != nil {
		return
	}
	if a.webServer != nil {
		a.webServer.Broadcast(msg)
	}
	if a.hub != nil {
		a.hub.Broadcast(msg)
	}
}

// handleFeedbackEvent journals and broadcasts arbiter outcomes. It runs
// on the arbiter's watcher goroutine and must not block the speech path.
func (a *App) handleFeedbackEvent(ev feedback.Event) {
	switch ev.Type {
	case feedback.EventSpoken:
		subject := a.takePending(ev.Message)
		a.recordAlert(ev, subject)
		a.broadcastAlert(ev, subject)
		if a.webServer != nil {
			a.webServer.UpdateState(func(s *web.State) {
				s.LastAlert = ev.Message
				s.Speaking = false
				s.ArbiterState = string(feedback.StateIdle)
			})
		}
	case feedback.EventPreempted, feedback.EventCancelled, feedback.EventDropped, feedback.EventFailed:
		a.takePending(ev.Message)
		a.logger.Debug("feedback event", "type", string(ev.Type), "message", ev.Message)
	}
}

func (a *App) recordAlert(ev feedback.Event, subject detect.Detection) {
	if a.journal == nil {
		return
	}
	err := a.journal.RecordAlert(context.Background(), journal.Alert{
		Timestamp: ev.At,
		Message:   ev.Message,
		Urgency:   string(ev.Urgency),
		Label:     subject.Label,
		Distance:  subject.Distance,
		Position:  string(subject.Position),
	})
	if err != nil {
		a.logger.Warn("journal alert failed", "error", err)
	}
}

func (a *App) broadcastAlert(ev feedback.Event, subject detect.Detection) {
	msg, err := protocol.NewAlertMessage(ev.Message, string(ev.Urgency), subject.Label, subject.Distance, string(subject.Position))
	if err != nil {
		return
	}
	if a.webServer != nil {
		a.webServer.Broadcast(msg)
	}
	if a.hub != nil {
		a.hub.Broadcast(msg)
	}
}

func (a *App) recordTrigger(ev listen.TriggerEvent) {
	if a.journal == nil {
		return
	}
	err := a.journal.RecordTrigger(context.Background(), journal.Trigger{
		Timestamp:  ev.Timestamp,
		Type:       string(ev.Type),
		Phrase:     ev.Phrase,
		Heard:      ev.Heard,
		Confidence: ev.Confidence,
	})
	if err != nil {
		a.logger.Warn("journal trigger failed", "error", err)
	}
}

func (a *App) recordGuidance(g *guidance.Guidance) {
	if a.journal == nil || g == nil {
		return
	}
	err := a.journal.RecordGuidance(context.Background(), journal.Guidance{
		Text:          g.Text,
		SafeToProceed: g.SafeToProceed,
		Priority:      string(g.Priority),
		Source:        g.Source,
	})
	if err != nil {
		a.logger.Warn("journal guidance failed", "error", err)
	}
}

// notePending remembers the decision subject until its utterance settles.
func (a *App) notePending(d *situation.Decision) {
	a.pendingMu.Lock()
	a.pending[d.Message] = d.Subject
	a.pendingMu.Unlock()
}

func (a *App) takePending(message string) detect.Detection {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	subject := a.pending[message]
	delete(a.pending, message)
	return subject
}

// scene returns a copy of the last analyzed scene.
func (a *App) scene() []detect.Detection {
	a.sceneMu.Lock()
	defer a.sceneMu.Unlock()
	return append([]detect.Detection(nil), a.lastScene...)
}

// latestFrame serves the most recent dashboard frame.
func (a *App) latestFrame() ([]byte, error) {
	a.sceneMu.Lock()
	defer a.sceneMu.Unlock()
	if a.lastFrame == nil {
		return nil, errNoFrame
	}
	return a.lastFrame, nil
}

// feedMic pushes capture samples toward the listener, resampling to the
// recognition rate. Drops chunks instead of blocking the capture path.
func (a *App) feedMic(samples []int16, sampleRate int) {
	if len(samples) == 0 {
		return
	}
	if sampleRate > 0 && sampleRate != listenRate {
		samples = audioio.Resample(samples, sampleRate, listenRate)
	}

	select {
	case a.micCh <- samples:
	default:
		if n := a.micDrops.Add(1); n%100 == 1 {
			a.logger.Debug("mic backlog, dropping audio", "dropped", n)
		}
	}
}

// pumpLocalMic moves capture chunks into the listener channel.
func (a *App) pumpLocalMic(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-a.micSource.Stream():
			if !ok {
				return nil
			}
			a.feedMic(chunk.Samples, chunk.SampleRate)
		}
	}
}

// pumpRemoteMic converts the companion unit's opus-decoded stream for
// the listener.
func (a *App) pumpRemoteMic(ctx context.Context) error {
	rate := a.remote.SampleRate()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pcm, ok := <-a.remote.AudioPCM():
			if !ok {
				return nil
			}
			a.feedMic(audioio.BytesToSamples(pcm), rate)
		}
	}
}

// statsLoop refreshes the dashboard state snapshot and prunes old
// journal rows.
func (a *App) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.pushStats()
		case <-prune.C:
			if a.journal == nil {
				continue
			}
			if n, err := a.journal.Prune(ctx, journalKeep); err != nil {
				a.logger.Warn("journal prune failed", "error", err)
			} else if n > 0 {
				a.logger.Info("journal pruned", "rows", n)
			}
		}
	}
}

// pushStats publishes arbiter and gate state to dashboard clients.
func (a *App) pushStats() {
	if a.webServer == nil {
		return
	}

	st := a.arbiter.State()
	fs := a.arbiter.Stats()
	a.webServer.UpdateState(func(s *web.State) {
		s.Active = a.gate.Active()
		s.Speaking = st == feedback.StateSpeaking
		s.ArbiterState = string(st)
		s.SpokenCount = int64(fs.Spoken)
		s.DroppedCount = int64(fs.Dropped)
		s.GuidanceOn = a.guidanceOn.Load()
		if a.hub != nil {
			s.UnitConnected = a.hub.UnitCount() > 0
		}
	})
}

// serveUplink runs the companion-unit listener until cancelled.
func (a *App) serveUplink(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.uplinkApp.Listen(":" + a.config.Uplink.Port)
	}()

	a.logger.Info("uplink listening", "port", a.config.Uplink.Port)

	select {
	case <-ctx.Done():
		if err := a.uplinkApp.Shutdown(); err != nil {
			a.logger.Warn("uplink shutdown", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
