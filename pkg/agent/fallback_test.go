package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/models"
)

func TestFallbackUnknownActionOffersHints(t *testing.T) {
	a := &Agent{}
	state := &models.FlowState{
		Intent: models.Intent{Action: "unknown"},
		Error:  &models.AgentError{Kind: models.ErrUnknownAction, Message: "I did not recognize that command"},
	}

	require.NoError(t, a.fallbackNode(context.Background(), state))

	assert.NotEmpty(t, state.Suggestions)
	assert.Contains(t, state.Message, "did not recognize")
	// The error is never cleared; the formatter still reports status=error.
	assert.NotNil(t, state.Error)
}

func TestFallbackNearMissSuggestsCorrection(t *testing.T) {
	a := &Agent{}
	state := &models.FlowState{
		Intent: models.Intent{Action: "cancel_trips"},
		Error:  &models.AgentError{Kind: models.ErrUnknownAction, Message: "I did not recognize that command"},
	}

	require.NoError(t, a.fallbackNode(context.Background(), state))

	require.Len(t, state.Suggestions, 1)
	assert.Contains(t, state.Suggestions[0], "cancel trip")
}

func TestFallbackNotFoundSuggestsRephrase(t *testing.T) {
	a := &Agent{}
	state := &models.FlowState{
		Intent: models.Intent{Action: "cancel_trip"},
		Error:  &models.AgentError{Kind: models.ErrTripNotFound, Message: "no trip matches \"Airprot\""},
	}

	require.NoError(t, a.fallbackNode(context.Background(), state))

	assert.NotEmpty(t, state.Suggestions)
	assert.Equal(t, "no trip matches \"Airprot\"", state.Message)
}

func TestFallbackPassesThroughOtherErrors(t *testing.T) {
	a := &Agent{}
	state := &models.FlowState{
		Intent: models.Intent{Action: "assign_vehicle"},
		Error:  &models.AgentError{Kind: models.ErrVehicleConflict, Message: "vehicle already deployed (trips [8])"},
	}

	require.NoError(t, a.fallbackNode(context.Background(), state))

	assert.Equal(t, "vehicle already deployed (trips [8])", state.Message)
	assert.Empty(t, state.Suggestions)
}

func TestFallbackWithoutErrorRecordsOne(t *testing.T) {
	a := &Agent{}
	state := &models.FlowState{Intent: models.Intent{Action: "cancel_trip"}}

	require.NoError(t, a.fallbackNode(context.Background(), state))

	require.NotNil(t, state.Error)
}
