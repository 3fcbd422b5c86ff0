// Package timer measures how long the current reference image has been
// studied. The Engine is a pure state machine: it performs no I/O and is
// driven by user commands and by foreground-process readings supplied from
// outside.
package timer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the run state of the engine
type State int

const (
	// Idle means no image is shown or the timer has not been started
	Idle State = iota
	// Running accumulates elapsed time
	Running
	// PausedByUser is an explicit pause. Focus readings never resume it.
	PausedByUser
	// PausedByFocus is an automatic pause while the tracked process is not
	// in the foreground. A matching reading resumes it.
	PausedByFocus
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case PausedByUser:
		return "paused"
	case PausedByFocus:
		return "paused_by_focus"
	default:
		return "unknown"
	}
}

// Paused reports whether s is one of the paused states
func (s State) Paused() bool {
	return s == PausedByUser || s == PausedByFocus
}

// Transition describes the effect of one engine call
type Transition struct {
	From State
	To   State
}

// Changed reports whether the state moved
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Snapshot is a point-in-time copy of the engine
type Snapshot struct {
	State   State
	Elapsed time.Duration
	Tracked string
}

// Engine tracks elapsed time and run state. Elapsed time is always derived
// from clock instants (stored + now - resumedAt), never accumulated per poll.
// It is not safe for concurrent use.
type Engine struct {
	clock     clockwork.Clock
	state     State
	stored    time.Duration
	resumedAt time.Time
	matcher   *Matcher
}

// NewEngine creates an idle engine. A nil clock uses the real clock.
func NewEngine(clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock, state: Idle}
}

// State returns the current run state
func (e *Engine) State() State {
	return e.state
}

// Elapsed returns the measured time for the current image
func (e *Engine) Elapsed() time.Duration {
	if e.state == Running {
		return e.stored + e.clock.Since(e.resumedAt)
	}
	return e.stored
}

// Tracked returns the tracked process pattern, or "" when tracking is off
func (e *Engine) Tracked() string {
	if e.matcher == nil {
		return ""
	}
	return e.matcher.Pattern()
}

// Snapshot captures state, elapsed time and tracking in one read
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{State: e.state, Elapsed: e.Elapsed(), Tracked: e.Tracked()}
}

// Start runs the timer from Idle or PausedByUser. foreground is the latest
// probe reading ("" when unknown). When tracking is on and foreground does
// not match, the engine goes straight to PausedByFocus.
func (e *Engine) Start(foreground string) Transition {
	switch e.state {
	case Idle, PausedByUser:
		if e.focusAllows(foreground) {
			return e.enter(Running)
		}
		return e.enter(PausedByFocus)
	default:
		return e.stay()
	}
}

// Pause is the user pause. It applies from Running and from PausedByFocus,
// so a focus-paused timer stops waiting for the tracked process.
func (e *Engine) Pause() Transition {
	switch e.state {
	case Running, PausedByFocus:
		return e.enter(PausedByUser)
	default:
		return e.stay()
	}
}

// Toggle pauses a running (or focus-paused) timer and starts any other one
func (e *Engine) Toggle(foreground string) Transition {
	switch e.state {
	case Running, PausedByFocus:
		return e.Pause()
	default:
		return e.Start(foreground)
	}
}

// Stop returns to Idle and discards elapsed time
func (e *Engine) Stop() Transition {
	t := e.enter(Idle)
	e.stored = 0
	return t
}

// Reset zeroes elapsed time without changing the run state
func (e *Engine) Reset() {
	e.stored = 0
	if e.state == Running {
		e.resumedAt = e.clock.Now()
	}
}

// Observe applies a foreground-process reading. It is idempotent: repeating
// the same reading never causes a second transition. PausedByUser and Idle
// ignore readings.
func (e *Engine) Observe(foreground string) Transition {
	if e.matcher == nil {
		return e.stay()
	}

	matched := e.matcher.Match(foreground)
	switch {
	case e.state == Running && !matched:
		return e.enter(PausedByFocus)
	case e.state == PausedByFocus && matched:
		return e.enter(Running)
	default:
		return e.stay()
	}
}

// SetTracked enables focus tracking for pattern. An empty pattern disables
// tracking, same as ClearTracked. The new pattern takes effect on the next
// Observe.
func (e *Engine) SetTracked(pattern string) (Transition, error) {
	if pattern == "" {
		return e.ClearTracked(), nil
	}

	m, err := NewMatcher(pattern)
	if err != nil {
		return e.stay(), err
	}
	e.matcher = m
	return e.stay(), nil
}

// ClearTracked disables focus tracking. A focus-paused timer resumes at once.
func (e *Engine) ClearTracked() Transition {
	e.matcher = nil
	if e.state == PausedByFocus {
		return e.enter(Running)
	}
	return e.stay()
}

func (e *Engine) focusAllows(foreground string) bool {
	return e.matcher == nil || e.matcher.Match(foreground)
}

func (e *Engine) stay() Transition {
	return Transition{From: e.state, To: e.state}
}

func (e *Engine) enter(to State) Transition {
	from := e.state
	if from == to {
		return e.stay()
	}

	now := e.clock.Now()
	if from == Running {
		e.stored += now.Sub(e.resumedAt)
		e.resumedAt = time.Time{}
	}
	if to == Running {
		e.resumedAt = now
	}

	e.state = to
	return Transition{From: from, To: to}
}
