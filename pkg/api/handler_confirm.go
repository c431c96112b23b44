package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/movi/pkg/models"
	"github.com/fleetops/movi/pkg/services"
)

// HandleConfirm handles POST /api/v1/agent/confirm: the yes/no verdict on a
// pending risky action. The PENDING -> CONFIRMED transition is a conditional
// update at the store, so two racing confirms cannot both execute.
func (s *Server) HandleConfirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == 0 {
		req.UserID = 1
	}

	ctx := c.Request.Context()

	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if session.Kind != models.KindPendingConfirmation {
		c.JSON(http.StatusConflict, gin.H{"error": "session is not a confirmation session"})
		return
	}
	if session.UserID != req.UserID {
		mapServiceError(c, services.ErrUserMismatch)
		return
	}
	if session.Expired(time.Now()) {
		mapServiceError(c, services.ErrSessionExpired)
		return
	}

	action := ""
	if session.PendingAction != nil {
		action = session.PendingAction.Action
	}

	if !*req.Confirmed {
		if err := s.sessions.Cancel(ctx, req.SessionID); err != nil {
			mapServiceError(c, err)
			return
		}
		out := &models.FinalOutput{
			Action:  action,
			Status:  models.StatusOutputCancelled,
			Success: false,
			Message: "okay, no changes were made",
		}
		c.JSON(http.StatusOK, MessageResponse{AgentOutput: out})
		return
	}

	if err := s.sessions.Confirm(ctx, req.SessionID); err != nil {
		mapServiceError(c, err)
		return
	}

	out, err := s.agent.ExecutePending(ctx, session)
	if err != nil {
		slog.Error("Confirmed action failed to execute",
			"session_id", req.SessionID, "action", action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.sessions.MarkDone(ctx, req.SessionID); err != nil {
		// The action already ran; a close failure is an operational wart,
		// not a reason to fail the request.
		slog.Warn("Failed to close confirmed session",
			"session_id", req.SessionID, "error", err)
	}

	c.JSON(http.StatusOK, MessageResponse{AgentOutput: out})
}

// GetSession handles GET /api/v1/agent/sessions/:id. Read-only status view.
func (s *Server) GetSession(c *gin.Context) {
	session, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{
		SessionID: session.ID,
		Kind:      session.Kind,
		Status:    session.Status,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}
