package agent

import (
	"context"
	"log/slog"

	"github.com/fleetops/movi/pkg/models"
)

// reportResult is the terminal node: the only place a FinalOutput is built.
// Status precedence: a cancelled wizard beats its own error, any other error
// wins, then the two awaiting states, then executed. SessionID is surfaced
// exactly when the turn is awaiting user input tied to a durable session.
func (a *Agent) reportResult(_ context.Context, state *models.FlowState) error {
	out := &models.FinalOutput{
		Action:  state.Intent.Action,
		Message: state.Message,
	}

	switch {
	case state.Wizard != nil && state.Wizard.Cancelled:
		out.Status = models.StatusOutputCancelled
		out.Success = false
		if out.Message == "" {
			out.Message = "okay, nothing was created"
		}

	case state.Error != nil:
		out.Status = models.StatusError
		out.Success = false
		out.Error = state.Error
		out.Suggestions = state.Suggestions
		if out.Message == "" {
			out.Message = state.Error.Message
		}

	case state.NeedsConfirmation:
		out.Status = models.StatusAwaitingConfirmation
		out.Success = true
		out.SessionID = state.PendingSessionID
		out.Consequences = state.Consequences

	case state.NeedsClarification, state.AwaitingSelection, activeWizard(state):
		out.Status = models.StatusAwaitingClarification
		out.Success = true
		out.Options = state.ClarificationOptions
		out.SelectionType = state.SelectionType
		if activeWizard(state) {
			out.SessionID = state.PendingSessionID
		}

	default:
		out.Status = models.StatusExecuted
		out.Success = true
		out.Data = normalizePayload(state.ExecutionResult)
	}

	state.FinalOutput = out
	slog.Info("Request completed",
		"user_id", state.UserID,
		"action", out.Action,
		"status", out.Status)
	return nil
}

func activeWizard(state *models.FlowState) bool {
	return state.Wizard != nil && !state.Wizard.Cancelled
}

// normalizePayload unwraps tool results already shaped as {type, data} so
// the envelope never double-wraps them.
func normalizePayload(p *models.Payload) *models.Payload {
	if p == nil {
		return nil
	}
	if m, ok := p.Data.(map[string]any); ok {
		if t, hasType := m["type"].(string); hasType {
			if d, hasData := m["data"]; hasData && len(m) == 2 {
				return &models.Payload{Type: t, Data: d}
			}
		}
	}
	return p
}
