package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/config"
	"github.com/fleetops/movi/pkg/llm"
	"github.com/fleetops/movi/pkg/models"
)

type stubLLM struct {
	response string
	err      error
	calls    int
}

func (s *stubLLM) Complete(_ context.Context, _ llm.Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newParserAgent(stub *stubLLM) *Agent {
	return &Agent{
		cfg: config.AgentConfig{HistoryLimit: 20},
		llm: stub,
	}
}

func TestParseIntentStructuredBypassesLLM(t *testing.T) {
	stub := &stubLLM{}
	a := newParserAgent(stub)
	state := &models.FlowState{
		UserID:    1,
		InputText: `STRUCTURED_CMD:assign_vehicle|trip_id:42|vehicle_id:7`,
		Page:      models.PageDashboard,
	}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.Zero(t, stub.calls, "structured commands must not hit the LLM")
	assert.Equal(t, "assign_vehicle", state.Intent.Action)
	assert.Equal(t, 1.0, state.Intent.Confidence)
	assert.Nil(t, state.Error)
}

func TestParseIntentLLMSynonymNormalized(t *testing.T) {
	stub := &stubLLM{response: `{"action":"delete_trip","confidence":0.92,"target_trip_id":5}`}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "get rid of trip 5", Page: models.PageDashboard}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "cancel_trip", state.Intent.Action)
	require.NotNil(t, state.Intent.TargetTripID)
	assert.Equal(t, 5, *state.Intent.TargetTripID)
	assert.Nil(t, state.Error)
}

func TestParseIntentLLMJSONEmbeddedInProse(t *testing.T) {
	stub := &stubLLM{response: "Sure, here you go:\n```json\n{\"action\":\"list_all_vehicles\",\"confidence\":0.9}\n```"}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "show the fleet"}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.Equal(t, "list_all_vehicles", state.Intent.Action)
	assert.Nil(t, state.Error)
}

func TestParseIntentFallsBackToRegexWhenLLMUnavailable(t *testing.T) {
	stub := &stubLLM{err: llm.ErrUnavailable}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "cancel trip 42", Page: models.PageDashboard}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.Equal(t, "cancel_trip", state.Intent.Action)
	assert.Equal(t, regexConfidence, state.Intent.Confidence)
	require.NotNil(t, state.Intent.TargetTripID)
	assert.Equal(t, 42, *state.Intent.TargetTripID)
}

func TestParseIntentMalformedCompletionFallsBackToRegex(t *testing.T) {
	stub := &stubLLM{response: "I think you want to cancel something?"}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "list all drivers"}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.Equal(t, "list_all_drivers", state.Intent.Action)
	assert.Equal(t, regexConfidence, state.Intent.Confidence)
}

func TestParseIntentPageGating(t *testing.T) {
	stub := &stubLLM{}
	a := newParserAgent(stub)
	state := &models.FlowState{
		UserID:    1,
		InputText: `STRUCTURED_CMD:cancel_trip|trip_id:9`,
		Page:      models.PageManageRoute,
	}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.Equal(t, catalog.ActionContextMismatch, state.Intent.Action)
	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrContextMismatch, state.Error.Kind)
}

func TestParseIntentMissingRequiredParameters(t *testing.T) {
	stub := &stubLLM{response: `{"action":"add_vehicle","confidence":0.9}`}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "add a vehicle", Page: models.PageDashboard}

	require.NoError(t, a.parseIntent(context.Background(), state))

	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrMissingParameters, state.Error.Kind)
	assert.Contains(t, state.Error.Message, "registration_number")
}

func TestParseIntentSelectionActionsExemptFromParamCheck(t *testing.T) {
	// assign_vehicle without a vehicle_id routes to the selection provider
	// instead of demanding the parameter up front.
	stub := &stubLLM{response: `{"action":"assign_vehicle","confidence":0.9,"target_trip_id":3}`}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "assign a vehicle to trip 3", Page: models.PageDashboard}

	require.NoError(t, a.parseIntent(context.Background(), state))
	assert.Nil(t, state.Error)
}

func TestParseIntentWizardActionsCollectParamsLater(t *testing.T) {
	stub := &stubLLM{response: `{"action":"create_stop","confidence":0.9}`}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "create a new stop", Page: models.PageManageRoute}

	require.NoError(t, a.parseIntent(context.Background(), state))
	assert.Nil(t, state.Error, "wizard-backed actions gather inputs step by step")
}

func TestParseIntentEmptyInput(t *testing.T) {
	a := newParserAgent(&stubLLM{})
	state := &models.FlowState{UserID: 1, InputText: "   "}

	require.NoError(t, a.parseIntent(context.Background(), state))

	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrInvalidParameters, state.Error.Kind)
}

func TestParseIntentUndefinedSelection(t *testing.T) {
	a := newParserAgent(&stubLLM{})
	state := &models.FlowState{UserID: 1, InputText: "assign vehicle undefined to trip undefined"}

	require.NoError(t, a.parseIntent(context.Background(), state))

	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrInvalidSelection, state.Error.Kind)
}

func TestParseIntentActiveWizardSkipsParsing(t *testing.T) {
	stub := &stubLLM{}
	a := newParserAgent(stub)
	state := &models.FlowState{
		UserID:    1,
		InputText: "North Gate",
		Wizard:    &models.WizardState{Flow: models.WizardStopCreation},
	}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.Zero(t, stub.calls)
	assert.Empty(t, state.Intent.Action)
}

func TestParseIntentLowConfidenceAsksClarification(t *testing.T) {
	// A shaky parse of a risky action must not flow on to resolution.
	stub := &stubLLM{response: `{"action":"cancel_trip","confidence":0.10,"target_label":"the usual one"}`}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "do the usual", Page: models.PageDashboard}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.True(t, state.NeedsClarification)
	assert.Nil(t, state.Error)
	assert.NotEmpty(t, state.Message)
}

func TestParseIntentConfidentParseProceeds(t *testing.T) {
	stub := &stubLLM{response: `{"action":"cancel_trip","confidence":0.35,"target_trip_id":5}`}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "cancel trip 5", Page: models.PageDashboard}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.False(t, state.NeedsClarification)
	assert.Nil(t, state.Error)
}

func TestParseIntentClarificationRequest(t *testing.T) {
	stub := &stubLLM{response: `{"action":"cancel_trip","confidence":0.4,"needs_clarification":true,"clarification_question":"Which trip do you mean?"}`}
	a := newParserAgent(stub)
	state := &models.FlowState{UserID: 1, InputText: "cancel it", Page: models.PageDashboard}

	require.NoError(t, a.parseIntent(context.Background(), state))

	assert.True(t, state.NeedsClarification)
	assert.Equal(t, "Which trip do you mean?", state.Message)
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, "cancel_trip", normalizeAction("Cancel Trip"))
	assert.Equal(t, "cancel_trip", normalizeAction("delete_trip"))
	assert.Equal(t, "cancel_trip", normalizeAction("cancel_trips"))
	assert.Equal(t, catalog.ActionUnknown, normalizeAction("dance"))
	assert.Equal(t, catalog.ActionUnknown, normalizeAction(""))
}
