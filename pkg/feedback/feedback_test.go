package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-glide/pkg/situation"
)

// scriptedUtterance is an in-flight utterance the test finishes by hand,
// so completion, cancellation, and failure transitions are deterministic.
type scriptedUtterance struct {
	text string
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	err       error
	cancelled bool
}

func newScriptedUtterance(text string) *scriptedUtterance {
	return &scriptedUtterance{text: text, done: make(chan struct{})}
}

func (u *scriptedUtterance) ID() string            { return u.text }
func (u *scriptedUtterance) Done() <-chan struct{} { return u.done }

func (u *scriptedUtterance) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *scriptedUtterance) Cancel() {
	u.mu.Lock()
	u.cancelled = true
	u.mu.Unlock()
	u.finish(context.Canceled)
}

func (u *scriptedUtterance) Cancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancelled
}

func (u *scriptedUtterance) finish(err error) {
	u.once.Do(func() {
		u.mu.Lock()
		u.err = err
		u.mu.Unlock()
		close(u.done)
	})
}

// scriptedSpeaker records every Speak call and hands out scripted
// utterances unless SpeakFunc overrides it.
type scriptedSpeaker struct {
	SpeakFunc func(ctx context.Context, text string) (Utterance, error)

	mu    sync.Mutex
	calls []string
	utts  []*scriptedUtterance
}

func (s *scriptedSpeaker) Speak(ctx context.Context, text string) (Utterance, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()

	if s.SpeakFunc != nil {
		return s.SpeakFunc(ctx, text)
	}

	u := newScriptedUtterance(text)
	s.mu.Lock()
	s.utts = append(s.utts, u)
	s.mu.Unlock()
	return u, nil
}

func (s *scriptedSpeaker) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedSpeaker) Call(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func (s *scriptedSpeaker) Utterance(i int) *scriptedUtterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utts[i]
}

func decision(msg string, urgency situation.Urgency) *situation.Decision {
	return &situation.Decision{Message: msg, Urgency: urgency}
}

func collectEvents(arb *Arbiter) <-chan Event {
	ch := make(chan Event, 16)
	arb.OnEvent = func(ev Event) { ch <- ev }
	return ch
}

func waitEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Type != want {
			t.Fatalf("event = %q, want %q", ev.Type, want)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no %q event within 2s", want)
	}
	return Event{}
}

func TestArbiterSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("nil decision is a no-op", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)

		if err := arb.Submit(ctx, nil); err != nil {
			t.Fatalf("Submit(nil) error: %v", err)
		}
		if speaker.CallCount() != 0 {
			t.Errorf("speaker called %d times, want 0", speaker.CallCount())
		}
		if arb.State() != StateIdle {
			t.Errorf("state = %q, want idle", arb.State())
		}
	})

	t.Run("idle low starts speaking without prefix", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)

		if err := arb.Submit(ctx, decision("person ahead", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if got := speaker.Call(0); got != "person ahead" {
			t.Errorf("spoken text = %q, want %q", got, "person ahead")
		}
		if arb.State() != StateSpeaking {
			t.Errorf("state = %q, want speaking", arb.State())
		}
		if !arb.Spoken().IsSpeaking {
			t.Error("IsSpeaking = false while utterance in flight")
		}
	})

	t.Run("high urgency gets attention prefix", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)

		if err := arb.Submit(ctx, decision("obstacle very close", situation.UrgencyHigh)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		want := AttentionPrefix + "obstacle very close"
		if got := speaker.Call(0); got != want {
			t.Errorf("spoken text = %q, want %q", got, want)
		}
	})

	t.Run("completion returns to idle and records last message", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("chair on your left", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		speaker.Utterance(0).finish(nil)

		ev := waitEvent(t, events, EventSpoken)
		if ev.Message != "chair on your left" {
			t.Errorf("event message = %q", ev.Message)
		}
		if arb.State() != StateIdle {
			t.Errorf("state = %q, want idle", arb.State())
		}

		spoken := arb.Spoken()
		if spoken.LastMessage != "chair on your left" {
			t.Errorf("LastMessage = %q", spoken.LastMessage)
		}
		if spoken.LastMessageTime.IsZero() {
			t.Error("LastMessageTime not set")
		}
		if spoken.IsSpeaking {
			t.Error("IsSpeaking = true after completion")
		}
		if got := arb.Stats().Spoken; got != 1 {
			t.Errorf("Stats.Spoken = %d, want 1", got)
		}
	})

	t.Run("equal urgency while speaking is dropped", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("first", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if err := arb.Submit(ctx, decision("second", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}

		ev := waitEvent(t, events, EventDropped)
		if ev.Message != "second" {
			t.Errorf("dropped message = %q, want %q", ev.Message, "second")
		}
		if speaker.CallCount() != 1 {
			t.Errorf("speaker called %d times, want 1", speaker.CallCount())
		}
		if speaker.Utterance(0).Cancelled() {
			t.Error("in-flight utterance cancelled by an equal-urgency decision")
		}
		if got := arb.Stats().Dropped; got != 1 {
			t.Errorf("Stats.Dropped = %d, want 1", got)
		}
	})

	t.Run("low urgency never interrupts high", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("stop now", situation.UrgencyHigh)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if err := arb.Submit(ctx, decision("door on the right", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}

		waitEvent(t, events, EventDropped)
		if speaker.CallCount() != 1 {
			t.Errorf("speaker called %d times, want 1", speaker.CallCount())
		}
		if speaker.Utterance(0).Cancelled() {
			t.Error("high-urgency utterance cancelled by a low-urgency decision")
		}
	})
}

func TestArbiterPreemption(t *testing.T) {
	ctx := context.Background()

	t.Run("high cancels in-flight low mid-utterance", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("table ahead", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if err := arb.Submit(ctx, decision("person very close", situation.UrgencyHigh)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}

		ev := waitEvent(t, events, EventPreempted)
		if ev.Message != "table ahead" {
			t.Errorf("preempted message = %q, want %q", ev.Message, "table ahead")
		}
		if !speaker.Utterance(0).Cancelled() {
			t.Error("low-urgency utterance not cancelled")
		}
		if speaker.CallCount() != 2 {
			t.Fatalf("speaker called %d times, want 2", speaker.CallCount())
		}
		if got, want := speaker.Call(1), AttentionPrefix+"person very close"; got != want {
			t.Errorf("second utterance = %q, want %q", got, want)
		}
		if arb.State() != StateSpeaking {
			t.Errorf("state = %q, want speaking", arb.State())
		}
		if got := arb.Stats().Preemptions; got != 1 {
			t.Errorf("Stats.Preemptions = %d, want 1", got)
		}
	})

	t.Run("cancelled utterance never updates last message", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("table ahead", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if err := arb.Submit(ctx, decision("person very close", situation.UrgencyHigh)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		waitEvent(t, events, EventPreempted)

		// Finish the replacement; the cancelled one already fired Done.
		speaker.Utterance(1).finish(nil)
		waitEvent(t, events, EventSpoken)

		spoken := arb.Spoken()
		if spoken.LastMessage != "person very close" {
			t.Errorf("LastMessage = %q, want %q", spoken.LastMessage, "person very close")
		}
		if got := arb.Stats().Spoken; got != 1 {
			t.Errorf("Stats.Spoken = %d, want 1", got)
		}
		if arb.State() != StateIdle {
			t.Errorf("state = %q, want idle", arb.State())
		}
	})
}

func TestArbiterFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("speak error is non-fatal and returns to idle", func(t *testing.T) {
		speaker := &scriptedSpeaker{
			SpeakFunc: func(ctx context.Context, text string) (Utterance, error) {
				return nil, errors.New("device unavailable")
			},
		}
		arb := NewArbiter(speaker)

		err := arb.Submit(ctx, decision("doorway ahead", situation.UrgencyLow))
		if err == nil {
			t.Fatal("expected error from Submit")
		}
		if arb.State() != StateIdle {
			t.Errorf("state = %q, want idle", arb.State())
		}
		if got := arb.Stats().Failures; got != 1 {
			t.Errorf("Stats.Failures = %d, want 1", got)
		}

		// The arbiter must accept the next decision normally.
		speaker.SpeakFunc = nil
		if err := arb.Submit(ctx, decision("doorway ahead", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit after failure: %v", err)
		}
	})

	t.Run("utterance failure emits failed event", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("bench on the right", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		speaker.Utterance(0).finish(errors.New("stream reset"))

		ev := waitEvent(t, events, EventFailed)
		if ev.Err == nil {
			t.Error("failed event carries no error")
		}
		if arb.State() != StateIdle {
			t.Errorf("state = %q, want idle", arb.State())
		}
		if arb.Spoken().LastMessage != "" {
			t.Errorf("LastMessage = %q after failure, want empty", arb.Spoken().LastMessage)
		}
		if got := arb.Stats().Failures; got != 1 {
			t.Errorf("Stats.Failures = %d, want 1", got)
		}
	})
}

func TestArbiterDeactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels in-flight utterance", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("shelf ahead", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		arb.Deactivate()

		ev := waitEvent(t, events, EventCancelled)
		if ev.Message != "shelf ahead" {
			t.Errorf("cancelled message = %q", ev.Message)
		}
		if !speaker.Utterance(0).Cancelled() {
			t.Error("utterance not cancelled")
		}
		if arb.State() != StateIdle {
			t.Errorf("state = %q, want idle", arb.State())
		}
		if arb.Spoken().LastMessage != "" {
			t.Errorf("LastMessage = %q after cancellation, want empty", arb.Spoken().LastMessage)
		}
	})

	t.Run("idle deactivate is a no-op", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)

		var fired bool
		arb.OnEvent = func(Event) { fired = true }
		arb.Deactivate()

		if fired {
			t.Error("event emitted by idle deactivate")
		}
		if arb.State() != StateIdle {
			t.Errorf("state = %q, want idle", arb.State())
		}
	})

	t.Run("orphaned watcher leaves state alone", func(t *testing.T) {
		speaker := &scriptedSpeaker{}
		arb := NewArbiter(speaker)
		events := collectEvents(arb)

		if err := arb.Submit(ctx, decision("cart ahead", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		arb.Deactivate()
		waitEvent(t, events, EventCancelled)

		// Start a new utterance; the first watcher must not touch it.
		if err := arb.Submit(ctx, decision("cart moved", situation.UrgencyLow)); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if arb.State() != StateSpeaking {
			t.Errorf("state = %q, want speaking", arb.State())
		}

		speaker.Utterance(1).finish(nil)
		waitEvent(t, events, EventSpoken)
		if got := arb.Spoken().LastMessage; got != "cart moved" {
			t.Errorf("LastMessage = %q, want %q", got, "cart moved")
		}
	})
}

func TestSpokenSnapshot(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := SpokenState{
		LastMessage:     "person ahead",
		LastMessageTime: at,
		IsSpeaking:      true,
	}

	snap := state.Snapshot()
	if snap.LastMessage != "person ahead" {
		t.Errorf("LastMessage = %q", snap.LastMessage)
	}
	if !snap.LastMessageTime.Equal(at) {
		t.Errorf("LastMessageTime = %v, want %v", snap.LastMessageTime, at)
	}
}
