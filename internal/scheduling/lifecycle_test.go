package scheduling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelStatus(t *testing.T) {
	got, err := CancelStatus(ActorPatient)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByPatient, got)

	got, err = CancelStatus(ActorProfessional)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByProfessional, got)

	_, err = CancelStatus(Actor("admin"))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "actor", ve.Field)
}

func TestTransitionFromScheduled(t *testing.T) {
	for _, next := range []Status{StatusCancelledByPatient, StatusCancelledByProfessional, StatusCompleted} {
		got, err := Transition(StatusScheduled, next)
		require.NoError(t, err)
		assert.Equal(t, next, got)
		assert.True(t, got.Terminal())
	}
}

func TestTransitionOutOfTerminalStateFails(t *testing.T) {
	for _, current := range []Status{StatusCancelledByPatient, StatusCancelledByProfessional, StatusCompleted} {
		for _, next := range []Status{StatusCancelledByPatient, StatusCompleted, StatusScheduled} {
			_, err := Transition(current, next)
			ce, ok := AsConflict(err)
			require.True(t, ok, "expected conflict for %s -> %s", current, next)
			assert.Equal(t, ReasonInvalidTransition, ce.Reason)
		}
	}
}

func TestTransitionRejectsNonTerminalTarget(t *testing.T) {
	_, err := Transition(StatusScheduled, StatusScheduled)
	ce, ok := AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, ReasonInvalidTransition, ce.Reason)
}

func TestCanReschedule(t *testing.T) {
	assert.True(t, CanReschedule(StatusScheduled))
	assert.False(t, CanReschedule(StatusCompleted))
	assert.False(t, CanReschedule(StatusCancelledByPatient))
}

func TestStatusPredicates(t *testing.T) {
	assert.False(t, StatusScheduled.Terminal())
	assert.False(t, StatusScheduled.Cancelled())
	assert.True(t, StatusCancelledByProfessional.Cancelled())
	assert.False(t, StatusCompleted.Cancelled())
	assert.True(t, StatusCompleted.Terminal())
}
