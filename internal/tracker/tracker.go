// Package tracker maintains the lifecycle state of action invocations
// observed over a streamed conversation turn. State evolves only through
// Reduce, which maps a prior state and one event onto the next state, so
// every transition is reproducible from the event sequence alone.
package tracker

import (
	"sync"
	"time"

	"github.com/mossline/storepilot/internal/action"
)

// Status is the lifecycle phase of one invocation.
type Status string

const (
	StatusRunning Status = "running"
	// StatusCompleted means the invocation resolved, whether or not its
	// outcome reports success. Unsuccessful outcomes live in Outcome.
	StatusCompleted Status = "completed"
	// StatusFailed is reserved for transport-level failure: the stream
	// died before the invocation could resolve.
	StatusFailed Status = "failed"
)

// Invocation is one tracked action call.
type Invocation struct {
	ID        string
	Action    string
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   *action.Outcome
}

// State is an immutable snapshot of the tracker. Invocations preserves
// arrival order of the start events.
type State struct {
	Invocations []Invocation

	// SingleActive collapses the previous running invocation to
	// completed whenever a new one starts, so at most one invocation
	// displays as in flight at a time.
	SingleActive bool
}

// Event is anything Reduce can fold into the state.
type Event interface{ trackerEvent() }

// TextDelta reports streamed assistant text. It never changes invocation
// state; it exists so a full turn can be replayed through one reducer.
type TextDelta struct{ Text string }

// InvocationStarted reports that the model requested an action call.
type InvocationStarted struct {
	ID     string
	Action string
	At     time.Time
}

// InvocationEnded reports the outcome of a previously started call.
type InvocationEnded struct {
	ID      string
	Outcome action.Outcome
	At      time.Time
}

// TurnFinished reports that the provider closed the turn.
type TurnFinished struct{ Reason string }

// TransportFailed reports that the stream itself broke.
type TransportFailed struct {
	Err error
	At  time.Time
}

func (TextDelta) trackerEvent()         {}
func (InvocationStarted) trackerEvent() {}
func (InvocationEnded) trackerEvent()   {}
func (TurnFinished) trackerEvent()      {}
func (TransportFailed) trackerEvent()   {}

func (s State) find(id string) int {
	for i := range s.Invocations {
		if s.Invocations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	next := State{SingleActive: s.SingleActive}
	if len(s.Invocations) > 0 {
		next.Invocations = make([]Invocation, len(s.Invocations))
		copy(next.Invocations, s.Invocations)
	}
	return next
}

// Reduce folds one event into the state and returns the next state. The
// input state is never mutated. Transitions are forward-only: a finished
// invocation never returns to running, and events referencing unknown
// ids are dropped.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case InvocationStarted:
		next := s.clone()
		if i := next.find(e.ID); i >= 0 {
			// Duplicate start for a known id keeps the original record.
			return next
		}
		if next.SingleActive {
			for i := range next.Invocations {
				if next.Invocations[i].Status == StatusRunning {
					next.Invocations[i].Status = StatusCompleted
					next.Invocations[i].EndedAt = e.At
				}
			}
		}
		next.Invocations = append(next.Invocations, Invocation{
			ID:        e.ID,
			Action:    e.Action,
			Status:    StatusRunning,
			StartedAt: e.At,
		})
		return next

	case InvocationEnded:
		i := s.find(e.ID)
		if i < 0 {
			return s
		}
		next := s.clone()
		inv := &next.Invocations[i]
		switch inv.Status {
		case StatusRunning:
			// A resolved invocation is completed even when its outcome
			// reports failure; StatusFailed is transport-only.
			inv.Status = StatusCompleted
			inv.EndedAt = e.At
			out := e.Outcome
			inv.Outcome = &out
		default:
			// Already settled. Attach the outcome if the settling event
			// carried none, but never rewind the status.
			if inv.Outcome == nil {
				out := e.Outcome
				inv.Outcome = &out
			}
		}
		return next

	case TransportFailed:
		next := s.clone()
		for i := range next.Invocations {
			if next.Invocations[i].Status == StatusRunning {
				next.Invocations[i].Status = StatusFailed
				next.Invocations[i].EndedAt = e.At
				out := action.Fail(action.KindTransport, "stream interrupted before the action resolved")
				next.Invocations[i].Outcome = &out
			}
		}
		return next

	case TextDelta, TurnFinished:
		return s
	}
	return s
}

// Running reports whether any invocation is still in flight.
func (s State) Running() bool {
	for i := range s.Invocations {
		if s.Invocations[i].Status == StatusRunning {
			return true
		}
	}
	return false
}

// Tracker is a concurrency-safe holder for the reduced state.
type Tracker struct {
	mu    sync.Mutex
	state State
}

// New returns an empty tracker. singleActive enables the one-visible-
// invocation display policy.
func New(singleActive bool) *Tracker {
	return &Tracker{state: State{SingleActive: singleActive}}
}

// Apply folds one event into the tracked state and returns the new
// snapshot.
func (t *Tracker) Apply(ev Event) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Reduce(t.state, ev)
	return t.state
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset drops all tracked invocations, keeping the display policy. Used
// when the conversation it mirrors is cleared.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = State{SingleActive: t.state.SingleActive}
}
