package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/models"
)

func runReport(t *testing.T, state *models.FlowState) *models.FinalOutput {
	t.Helper()
	a := &Agent{}
	require.NoError(t, a.reportResult(context.Background(), state))
	require.NotNil(t, state.FinalOutput)
	return state.FinalOutput
}

func TestReportExecuted(t *testing.T) {
	state := &models.FlowState{
		Intent:          models.Intent{Action: "list_all_vehicles"},
		ExecutionResult: &models.Payload{Type: "table", Data: []string{"a", "b"}},
		Message:         "2 vehicle(s)",
	}
	out := runReport(t, state)

	assert.Equal(t, models.StatusExecuted, out.Status)
	assert.True(t, out.Success)
	assert.Equal(t, "2 vehicle(s)", out.Message)
	require.NotNil(t, out.Data)
	assert.Equal(t, "table", out.Data.Type)
	assert.Empty(t, out.SessionID)
}

func TestReportError(t *testing.T) {
	state := &models.FlowState{
		Intent:      models.Intent{Action: "cancel_trip"},
		Error:       &models.AgentError{Kind: models.ErrTripNotFound, Message: "no such trip"},
		Suggestions: []string{"try the exact name"},
	}
	out := runReport(t, state)

	assert.Equal(t, models.StatusError, out.Status)
	assert.False(t, out.Success)
	assert.Equal(t, "no such trip", out.Message)
	require.NotNil(t, out.Error)
	assert.Equal(t, models.ErrTripNotFound, out.Error.Kind)
	assert.Equal(t, []string{"try the exact name"}, out.Suggestions)
}

func TestReportAwaitingConfirmation(t *testing.T) {
	state := &models.FlowState{
		Intent:            models.Intent{Action: "cancel_trip"},
		NeedsConfirmation: true,
		PendingSessionID:  "sess-1",
		Consequences:      &models.Consequences{BookingCount: 4},
		Message:           "this trip has 4 bookings, confirm?",
	}
	out := runReport(t, state)

	assert.Equal(t, models.StatusAwaitingConfirmation, out.Status)
	assert.True(t, out.Success)
	assert.Equal(t, "sess-1", out.SessionID)
	require.NotNil(t, out.Consequences)
	assert.Equal(t, 4, out.Consequences.BookingCount)
}

func TestReportAwaitingClarification(t *testing.T) {
	state := &models.FlowState{
		Intent:             models.Intent{Action: "cancel_trip"},
		NeedsClarification: true,
		ClarificationOptions: []models.Option{
			{ID: 1, Label: "Airport 08:00"},
			{ID: 2, Label: "Airport 18:00"},
		},
		Message: "which one?",
	}
	out := runReport(t, state)

	assert.Equal(t, models.StatusAwaitingClarification, out.Status)
	assert.Len(t, out.Options, 2)
	assert.Empty(t, out.SessionID, "clarification without a durable session carries no handle")
}

func TestReportSelectionCarriesType(t *testing.T) {
	state := &models.FlowState{
		Intent:            models.Intent{Action: "assign_vehicle"},
		AwaitingSelection: true,
		SelectionType:     models.SelectionVehicle,
		ClarificationOptions: []models.Option{
			{ID: 7, Label: "KA-01-1234"},
		},
	}
	out := runReport(t, state)

	assert.Equal(t, models.StatusAwaitingClarification, out.Status)
	assert.Equal(t, models.SelectionVehicle, out.SelectionType)
}

func TestReportActiveWizardCarriesSession(t *testing.T) {
	state := &models.FlowState{
		Intent:           models.Intent{Action: "create_stop"},
		Wizard:           &models.WizardState{Flow: models.WizardStopCreation},
		PendingSessionID: "sess-w",
		Message:          "What should the stop be called?",
	}
	out := runReport(t, state)

	assert.Equal(t, models.StatusAwaitingClarification, out.Status)
	assert.Equal(t, "sess-w", out.SessionID)
}

func TestReportCancelledWizardBeatsError(t *testing.T) {
	state := &models.FlowState{
		Intent:  models.Intent{Action: "create_stop"},
		Wizard:  &models.WizardState{Flow: models.WizardStopCreation, Cancelled: true},
		Error:   &models.AgentError{Kind: models.ErrInvalidParameters, Message: "whatever"},
		Message: "okay, nothing was created",
	}
	out := runReport(t, state)

	assert.Equal(t, models.StatusOutputCancelled, out.Status)
	assert.False(t, out.Success)
	assert.Equal(t, "okay, nothing was created", out.Message)
}

func TestReportPayloadPassthrough(t *testing.T) {
	// Tool results already shaped as {type, data} must not be double-wrapped.
	state := &models.FlowState{
		Intent: models.Intent{Action: "get_today_summary"},
		ExecutionResult: &models.Payload{
			Type: "object",
			Data: map[string]any{"type": "summary", "data": map[string]any{"trips": 12}},
		},
	}
	out := runReport(t, state)

	require.NotNil(t, out.Data)
	assert.Equal(t, "summary", out.Data.Type)
	assert.Equal(t, map[string]any{"trips": 12}, out.Data.Data)
}
