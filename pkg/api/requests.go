package api

import "github.com/fleetops/movi/pkg/models"

// MessageRequest is the body of POST /api/v1/agent/message. Field names
// follow the UI's existing payload, so currentPage and selectedTripId keep
// their camelCase spelling.
type MessageRequest struct {
	Text string `json:"text" binding:"required"`
	// UserID defaults to 1 when omitted.
	UserID              int              `json:"user_id"`
	CurrentPage         string           `json:"currentPage"`
	SelectedTripID      *int             `json:"selectedTripId"`
	SelectedRouteID     *int             `json:"selectedRouteId"`
	FromImage           bool             `json:"from_image"`
	ConversationHistory []models.Message `json:"conversation_history"`
}

// ConfirmRequest is the body of POST /api/v1/agent/confirm.
type ConfirmRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	UserID    int    `json:"user_id"`
	Confirmed *bool  `json:"confirmed" binding:"required"`
}
