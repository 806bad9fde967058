package uiprotect

import (
	"fmt"
	"sync"
)

// SessionState is the client connection lifecycle.
type SessionState string

const (
	StateIdle           SessionState = "idle"
	StateAuthenticating SessionState = "authenticating"
	StateBootstrapping  SessionState = "bootstrapping"
	StateConnecting     SessionState = "connecting"
	StateConnected      SessionState = "connected"
	StateReconnecting   SessionState = "reconnecting"
	StateClosing        SessionState = "closing"
	StateClosed         SessionState = "closed"
	StateFailed         SessionState = "failed"
)

// stateTransitions is the permitted-transition table. Anything not
// listed is a programming error, reported but not fatal.
var stateTransitions = map[SessionState][]SessionState{
	StateIdle:           {StateAuthenticating},
	StateAuthenticating: {StateBootstrapping, StateFailed, StateClosing},
	StateBootstrapping:  {StateConnecting, StateFailed, StateClosing},
	StateConnecting:     {StateConnected, StateReconnecting, StateClosing},
	StateConnected:      {StateReconnecting, StateClosing},
	StateReconnecting:   {StateConnecting, StateAuthenticating, StateFailed, StateClosing},
	StateClosing:        {StateClosed},
	StateFailed:         {StateAuthenticating},
}

// stateMachine tracks the session state and publishes every transition.
type stateMachine struct {
	mu      sync.Mutex
	current SessionState
	publish func(SessionState)
}

func newStateMachine(publish func(SessionState)) *stateMachine {
	return &stateMachine{current: StateIdle, publish: publish}
}

func (m *stateMachine) get() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// to moves to the next state if the transition is permitted.
func (m *stateMachine) to(next SessionState) error {
	m.mu.Lock()
	if m.current == next {
		m.mu.Unlock()
		return nil
	}
	allowed := false
	for _, s := range stateTransitions[m.current] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		cur := m.current
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot move %s -> %s", ErrState, cur, next)
	}
	m.current = next
	publish := m.publish
	m.mu.Unlock()

	if publish != nil {
		publish(next)
	}
	return nil
}
