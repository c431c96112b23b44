package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/movi/pkg/models"
	"github.com/fleetops/movi/pkg/services"
)

// HandleMessage handles POST /api/v1/agent/message: one conversational turn.
// An active wizard session for the user is restored onto the flow state
// before the graph runs, so mid-wizard answers continue the flow even after
// a process restart.
func (s *Server) HandleMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == 0 {
		req.UserID = 1
	}

	state := &models.FlowState{
		UserID:          req.UserID,
		InputText:       req.Text,
		Page:            models.Page(req.CurrentPage),
		SelectedTripID:  req.SelectedTripID,
		SelectedRouteID: req.SelectedRouteID,
		FromImage:       req.FromImage,
		History:         req.ConversationHistory,
	}

	ctx := c.Request.Context()

	sess, err := s.sessions.FindActiveWizard(ctx, req.UserID)
	switch {
	case err == nil:
		state.Wizard = sess.WizardState
		state.PendingSessionID = sess.ID
		// The durable transcript wins over whatever the client resent.
		if len(sess.History) > 0 {
			state.History = sess.History
		}
	case errors.Is(err, services.ErrNotFound):
		// No wizard in flight. An open confirmation still lends its
		// transcript, so prose follow-ups keep their context.
		conf, cerr := s.sessions.FindActiveConfirmation(ctx, req.UserID)
		switch {
		case cerr == nil:
			if len(conf.History) > 0 {
				state.History = conf.History
			}
		case errors.Is(cerr, services.ErrNotFound):
			// A fresh turn.
		default:
			mapServiceError(c, cerr)
			return
		}
	default:
		mapServiceError(c, err)
		return
	}

	state = s.agent.Run(ctx, state)
	out := state.FinalOutput
	if out == nil {
		// The terminal node always builds an output; reaching here means the
		// graph was miswired.
		slog.Error("Agent run produced no output", "user_id", req.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "agent produced no output"})
		return
	}

	s.persistTranscript(c, state, req.Text, out)

	c.JSON(http.StatusOK, MessageResponse{AgentOutput: out, SessionID: out.SessionID})
}

// persistTranscript appends this turn to the session history while a wizard
// or confirmation is still in flight. Failures are logged, not surfaced:
// losing a transcript line must not fail the turn.
func (s *Server) persistTranscript(c *gin.Context, state *models.FlowState, input string, out *models.FinalOutput) {
	if out.SessionID == "" {
		return
	}
	history := append(state.History,
		models.Message{Role: "user", Content: input},
		models.Message{Role: "assistant", Content: out.Message},
	)
	if err := s.sessions.SaveHistory(c.Request.Context(), out.SessionID, history); err != nil {
		slog.Warn("Failed to persist session history",
			"session_id", out.SessionID, "error", err)
	}
}
