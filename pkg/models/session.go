package models

import "time"

// SessionKind distinguishes the two durable interaction types.
type SessionKind string

const (
	KindPendingConfirmation SessionKind = "pending_confirmation"
	KindWizard              SessionKind = "wizard"
)

// SessionStatus is the lifecycle state of a durable session.
// Legal transitions (enforced compare-and-set at the store):
// PENDING -> CONFIRMED | CANCELLED | EXPIRED, and CONFIRMED -> DONE.
type SessionStatus string

const (
	StatusPending   SessionStatus = "PENDING"
	StatusConfirmed SessionStatus = "CONFIRMED"
	StatusCancelled SessionStatus = "CANCELLED"
	StatusDone      SessionStatus = "DONE"
	StatusExpired   SessionStatus = "EXPIRED"
)

// PendingAction snapshots a blocked risky action so the confirm entry can
// dispatch it without re-running the graph stages already completed.
type PendingAction struct {
	Action       string         `json:"action"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	EntityType   EntityType     `json:"entity_type"`
	EntityID     *int           `json:"entity_id,omitempty"`
	EntityLabel  string         `json:"entity_label,omitempty"`
	Consequences *Consequences  `json:"consequences,omitempty"`
}

// Session is the persisted record enabling multi-turn interactions.
type Session struct {
	ID            string         `json:"session_id" db:"session_id"`
	UserID        int            `json:"user_id" db:"user_id"`
	Kind          SessionKind    `json:"kind" db:"kind"`
	Status        SessionStatus  `json:"status" db:"status"`
	PendingAction *PendingAction `json:"pending_action,omitempty"`
	WizardState   *WizardState   `json:"wizard_state,omitempty"`
	History       []Message      `json:"conversation_history,omitempty"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
	ExpiresAt     time.Time      `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
