package uiprotect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	var seen []SessionState
	m := newStateMachine(func(s SessionState) { seen = append(seen, s) })

	for _, next := range []SessionState{
		StateAuthenticating, StateBootstrapping, StateConnecting,
		StateConnected, StateReconnecting, StateConnecting, StateConnected,
		StateClosing, StateClosed,
	} {
		require.NoError(t, m.to(next), string(next))
	}
	assert.Equal(t, StateClosed, m.get())
	assert.Len(t, seen, 9)
}

func TestStateMachineRejectsInvalid(t *testing.T) {
	m := newStateMachine(nil)

	err := m.to(StateConnected)
	assert.ErrorIs(t, err, ErrState)
	assert.Equal(t, StateIdle, m.get())
}

func TestStateMachineSelfTransitionIsNoop(t *testing.T) {
	var fired int
	m := newStateMachine(func(SessionState) { fired++ })

	require.NoError(t, m.to(StateAuthenticating))
	require.NoError(t, m.to(StateAuthenticating))
	assert.Equal(t, 1, fired)
}

func TestStateMachineFailedCanRetry(t *testing.T) {
	m := newStateMachine(nil)
	require.NoError(t, m.to(StateAuthenticating))
	require.NoError(t, m.to(StateFailed))
	require.NoError(t, m.to(StateAuthenticating))
}

func TestStateMachineClosedIsTerminal(t *testing.T) {
	m := newStateMachine(nil)
	require.NoError(t, m.to(StateAuthenticating))
	require.NoError(t, m.to(StateClosing))
	require.NoError(t, m.to(StateClosed))
	assert.ErrorIs(t, m.to(StateAuthenticating), ErrState)
}
