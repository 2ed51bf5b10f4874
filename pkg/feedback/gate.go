package feedback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-glide/internal/log"
)

// ActivationState records whether the aid is giving feedback and what
// flipped it last.
type ActivationState struct {
	Active bool      `json:"active"`
	Since  time.Time `json:"since"`
	Phrase string    `json:"phrase,omitempty"`
}

// Gate holds the activation state. Trigger events and the dashboard both
// toggle it; everything in the control loop only reads it. While the gate
// is off the loop does no analysis and no speech.
type Gate struct {
	logger *slog.Logger
	now    func() time.Time

	// OnChange, when set, is called after each actual transition with the
	// new state. Set before first use; called without the lock held.
	OnChange func(ActivationState)

	mu    sync.Mutex
	state ActivationState
}

// NewGate creates a gate in the inactive state.
func NewGate() *Gate {
	return &Gate{
		logger: log.With("component", "gate"),
		now:    time.Now,
	}
}

// Activate switches the gate on. Returns true if the state changed.
// phrase records what triggered it ("voice:go", "api", ...).
func (g *Gate) Activate(phrase string) bool {
	return g.set(true, phrase)
}

// Deactivate switches the gate off. Returns true if the state changed.
// The caller cancels in-flight speech via the arbiter after a transition.
func (g *Gate) Deactivate(phrase string) bool {
	return g.set(false, phrase)
}

func (g *Gate) set(active bool, phrase string) bool {
	g.mu.Lock()
	if g.state.Active == active {
		g.mu.Unlock()
		return false
	}
	g.state = ActivationState{
		Active: active,
		Since:  g.now(),
		Phrase: phrase,
	}
	st := g.state
	g.mu.Unlock()

	g.logger.Info("activation changed", "active", active, "phrase", phrase)
	if g.OnChange != nil {
		g.OnChange(st)
	}
	return true
}

// Active reports whether the gate is on.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Active
}

// State returns a copy of the activation state.
func (g *Gate) State() ActivationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
