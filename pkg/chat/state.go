package chat

import (
	"sync"
	"time"
)

// State is a conversation loop state.
type State int

const (
	StateAwaitingUserInput State = iota
	StateAwaitingModelResponse
	StateDispatchingTools
	StatePresentingReply
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateAwaitingModelResponse:
		return "awaiting_model_response"
	case StateDispatchingTools:
		return "dispatching_tools"
	case StatePresentingReply:
		return "presenting_reply"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes session state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

// Failed turns go straight back to AwaitingUserInput; any state may
// terminate.
var validTransitions = map[State][]State{
	StateAwaitingUserInput:     {StateAwaitingModelResponse, StateTerminated},
	StateAwaitingModelResponse: {StateDispatchingTools, StatePresentingReply, StateAwaitingUserInput, StateTerminated},
	StateDispatchingTools:      {StateAwaitingModelResponse, StateAwaitingUserInput, StateTerminated},
	StatePresentingReply:       {StateAwaitingUserInput, StateTerminated},
}

type stateMachine struct {
	mu        sync.RWMutex
	current   State
	listeners []StateListener
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateAwaitingUserInput}
}

func (sm *stateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation. Listeners run after the
// lock is released.
func (sm *stateMachine) Transition(to State, reason string) error {
	sm.mu.Lock()
	from := sm.current
	if !transitionValid(from, to) {
		sm.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	sm.current = to
	listeners := make([]StateListener, len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	event := StateChange{
		FromState: from,
		ToState:   to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	for _, l := range listeners {
		l.OnStateChange(event)
	}
	return nil
}

func (sm *stateMachine) AddListener(l StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, l)
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
