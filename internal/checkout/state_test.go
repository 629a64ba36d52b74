package checkout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CanTransition(t *testing.T) {
	happyPath := []State{
		StateReceived, StateValidated, StatePriced, StateCreditChecked,
		StateStockReserved, StateCommitted, StateCancelled,
	}
	for i := 0; i < len(happyPath)-1; i++ {
		assert.True(t, happyPath[i].CanTransition(happyPath[i+1]), "%s -> %s", happyPath[i], happyPath[i+1])
	}

	assert.False(t, StateReceived.CanTransition(StatePriced))
	assert.False(t, StateValidated.CanTransition(StateCommitted))
	assert.False(t, StateCancelled.CanTransition(StateCommitted))

	for _, s := range []State{StateReceived, StateValidated, StatePriced, StateCreditChecked, StateStockReserved} {
		assert.True(t, s.CanTransition(StateRejected), "%s -> rejected", s)
	}
	assert.False(t, StateCommitted.CanTransition(StateRejected))
	assert.False(t, StateRejected.CanTransition(StateRejected))
}

func TestAttempt(t *testing.T) {
	t.Run("records the trail", func(t *testing.T) {
		a := newAttempt()
		require.NoError(t, a.advance(StateValidated))
		require.NoError(t, a.advance(StatePriced))

		assert.Equal(t, StatePriced, a.state)
		assert.Equal(t, []State{StateReceived, StateValidated, StatePriced}, a.trail)
	})

	t.Run("refuses to skip states", func(t *testing.T) {
		a := newAttempt()
		assert.Error(t, a.advance(StateCommitted))
		assert.Equal(t, StateReceived, a.state)
	})

	t.Run("reject passes the error through", func(t *testing.T) {
		a := newAttempt()
		cause := errors.New("boom")

		assert.Same(t, cause, a.reject(cause))
		assert.Equal(t, StateRejected, a.state)
		assert.True(t, a.state.Terminal())
	})
}
