// Package feedback turns analyzer decisions into speech with a pre-emption
// policy: one utterance in flight at a time, a high-urgency message cancels
// an in-flight low-urgency one mid-utterance, and everything else waits or
// is dropped. The arbiter owns the spoken-state record the analyzer reads
// for de-duplication.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/situation"
)

// AttentionPrefix is prepended to high-urgency messages before synthesis.
const AttentionPrefix = "Attention! "

// State is the arbiter's speaking state.
type State string

const (
	StateIdle     State = "idle"
	StateSpeaking State = "speaking"
)

// Utterance is one in-flight spoken message, cancellable mid-playback.
type Utterance interface {
	// ID identifies the utterance.
	ID() string

	// Cancel stops playback immediately. Safe to call more than once.
	Cancel()

	// Done is closed when playback finishes, fails, or is cancelled.
	Done() <-chan struct{}

	// Err reports how the utterance ended: nil for completed,
	// context.Canceled for cancelled, anything else for failure.
	Err() error
}

// Speaker starts utterances. Implemented by the speech output layer.
type Speaker interface {
	Speak(ctx context.Context, text string) (Utterance, error)
}

// SpokenState records what was last said. Owned by the arbiter; the
// analyzer reads a snapshot of it for de-duplication.
type SpokenState struct {
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	IsSpeaking      bool      `json:"is_speaking"`
}

// Snapshot converts the state to the analyzer's read-only view.
func (s SpokenState) Snapshot() situation.SpokenSnapshot {
	return situation.SpokenSnapshot{
		LastMessage:     s.LastMessage,
		LastMessageTime: s.LastMessageTime,
	}
}

// EventType classifies arbiter notifications.
type EventType string

const (
	EventSpoken    EventType = "spoken"    // Utterance completed
	EventPreempted EventType = "preempted" // Low-urgency utterance cancelled for a high one
	EventDropped   EventType = "dropped"   // Decision discarded while speaking
	EventFailed    EventType = "failed"    // Speech output failed (non-fatal)
	EventCancelled EventType = "cancelled" // Utterance cancelled by deactivation
)

// Event is an arbiter notification for journaling and the dashboard.
type Event struct {
	Type    EventType         `json:"type"`
	Message string            `json:"message"`
	Urgency situation.Urgency `json:"urgency"`
	Err     error             `json:"-"`
	At      time.Time         `json:"at"`
}

// Stats counts arbiter activity.
type Stats struct {
	Spoken      int `json:"spoken"`
	Preemptions int `json:"preemptions"`
	Dropped     int `json:"dropped"`
	Failures    int `json:"failures"`
}

// Arbiter is the speech-output state machine.
type Arbiter struct {
	speaker Speaker
	logger  *slog.Logger
	now     func() time.Time

	// OnEvent, when set, receives arbiter notifications. Set before first
	// Submit; called without internal locks held.
	OnEvent func(Event)

	mu             sync.Mutex
	state          State
	current        Utterance
	currentMsg     string
	currentUrgency situation.Urgency
	gen            uint64
	spoken         SpokenState
	stats          Stats
}

// NewArbiter creates an arbiter in the Idle state.
func NewArbiter(speaker Speaker) *Arbiter {
	return &Arbiter{
		speaker: speaker,
		logger:  log.With("component", "feedback"),
		now:     time.Now,
	}
}

// Submit feeds one decision into the state machine. A nil decision never
// causes a transition. Returns a non-fatal error when speech output could
// not start; the arbiter is back in Idle and the loop should continue.
func (a *Arbiter) Submit(ctx context.Context, d *situation.Decision) error {
	if d == nil {
		return nil
	}

	a.mu.Lock()

	switch a.state {
	case StateSpeaking:
		// Only high pre-empts low. Everything else is dropped: no queue,
		// no interrupting an equal-or-higher utterance.
		if d.Urgency != situation.UrgencyHigh || a.currentUrgency != situation.UrgencyLow {
			a.stats.Dropped++
			ev := Event{Type: EventDropped, Message: d.Message, Urgency: d.Urgency, At: a.now()}
			a.mu.Unlock()
			a.notify(ev)
			return nil
		}

		// Cancel the in-flight utterance before starting the urgent one.
		preempted := a.currentMsg
		a.current.Cancel()
		a.stats.Preemptions++
		err := a.speakLocked(ctx, d)
		ev := Event{Type: EventPreempted, Message: preempted, Urgency: situation.UrgencyLow, At: a.now()}
		a.mu.Unlock()
		a.notify(ev)
		return err

	default: // StateIdle
		err := a.speakLocked(ctx, d)
		a.mu.Unlock()
		return err
	}
}

// speakLocked starts an utterance for the decision. Caller holds a.mu.
func (a *Arbiter) speakLocked(ctx context.Context, d *situation.Decision) error {
	text := d.Message
	if d.Urgency == situation.UrgencyHigh {
		text = AttentionPrefix + text
	}

	u, err := a.speaker.Speak(ctx, text)
	if err != nil {
		a.toIdleLocked()
		a.stats.Failures++
		a.logger.Warn("speech output failed", "error", err)
		return fmt.Errorf("feedback: speak: %w", err)
	}

	a.gen++
	a.state = StateSpeaking
	a.current = u
	a.currentMsg = d.Message
	a.currentUrgency = d.Urgency
	a.spoken.IsSpeaking = true

	go a.watch(u, a.gen, d.Message, d.Urgency)
	return nil
}

// watch waits for the utterance to end and applies the completion
// transition, unless a pre-emption or deactivation superseded it.
func (a *Arbiter) watch(u Utterance, gen uint64, message string, urgency situation.Urgency) {
	<-u.Done()

	a.mu.Lock()
	if gen != a.gen {
		// Superseded: the cancel path already owns the state.
		a.mu.Unlock()
		return
	}

	a.toIdleLocked()

	var ev Event
	switch err := u.Err(); {
	case err == nil:
		a.spoken.LastMessage = message
		a.spoken.LastMessageTime = a.now()
		a.stats.Spoken++
		ev = Event{Type: EventSpoken, Message: message, Urgency: urgency, At: a.spoken.LastMessageTime}
	case errors.Is(err, context.Canceled):
		ev = Event{Type: EventCancelled, Message: message, Urgency: urgency, At: a.now()}
	default:
		a.stats.Failures++
		ev = Event{Type: EventFailed, Message: message, Urgency: urgency, Err: err, At: a.now()}
		a.logger.Warn("utterance failed", "message", message, "error", err)
	}
	a.mu.Unlock()

	a.notify(ev)
}

// Deactivate cancels any in-flight utterance and returns to Idle.
// Used when the activation gate switches off.
func (a *Arbiter) Deactivate() {
	a.mu.Lock()
	if a.state != StateSpeaking {
		a.mu.Unlock()
		return
	}

	msg, urg := a.currentMsg, a.currentUrgency
	a.current.Cancel()
	a.gen++ // orphan the watcher
	a.toIdleLocked()
	ev := Event{Type: EventCancelled, Message: msg, Urgency: urg, At: a.now()}
	a.mu.Unlock()

	a.notify(ev)
}

// toIdleLocked resets the speaking fields. Caller holds a.mu.
func (a *Arbiter) toIdleLocked() {
	a.state = StateIdle
	a.current = nil
	a.currentMsg = ""
	a.currentUrgency = ""
	a.spoken.IsSpeaking = false
}

// State returns the current machine state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == "" {
		return StateIdle
	}
	return a.state
}

// Spoken returns a copy of the spoken-state record.
func (a *Arbiter) Spoken() SpokenState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spoken
}

// Stats returns a copy of the accumulated counters.
func (a *Arbiter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// notify forwards an event to the OnEvent callback, if set.
func (a *Arbiter) notify(ev Event) {
	if a.OnEvent != nil {
		a.OnEvent(ev)
	}
}
