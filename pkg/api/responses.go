package api

import "github.com/fleetops/movi/pkg/models"

// MessageResponse wraps the agent's normalized output. SessionID is
// duplicated at the top level for clients that only track the handle.
type MessageResponse struct {
	AgentOutput *models.FinalOutput `json:"agent_output"`
	SessionID   string              `json:"session_id,omitempty"`
}

// SessionResponse is the read-only session view returned by GET.
type SessionResponse struct {
	SessionID string               `json:"session_id"`
	Kind      models.SessionKind   `json:"kind"`
	Status    models.SessionStatus `json:"status"`
	ExpiresAt string               `json:"expires_at"`
}
