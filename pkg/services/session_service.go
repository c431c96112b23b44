// Package services holds the durable-session layer between the agent graph
// and the database: session lifecycle with compare-and-set status
// transitions, and the sentinel errors the API maps to HTTP statuses.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/movi/pkg/database"
	"github.com/fleetops/movi/pkg/models"
)

// writeTimeout bounds critical session writes independently of the caller's
// context so a client disconnect cannot leave a transition half-applied.
const writeTimeout = 10 * time.Second

// SessionService manages agent session lifecycle
type SessionService struct {
	db  *database.Client
	ttl time.Duration
}

// NewSessionService creates a new SessionService
func NewSessionService(db *database.Client, ttl time.Duration) *SessionService {
	return &SessionService{db: db, ttl: ttl}
}

// sessionRow is the raw table shape; JSONB columns land as bytes.
type sessionRow struct {
	SessionID     string    `db:"session_id"`
	UserID        int       `db:"user_id"`
	Kind          string    `db:"kind"`
	Status        string    `db:"status"`
	PendingAction []byte    `db:"pending_action"`
	WizardState   []byte    `db:"wizard_state"`
	History       []byte    `db:"conversation_history"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	ExpiresAt     time.Time `db:"expires_at"`
}

func (r *sessionRow) toModel() (*models.Session, error) {
	s := &models.Session{
		ID:        r.SessionID,
		UserID:    r.UserID,
		Kind:      models.SessionKind(r.Kind),
		Status:    models.SessionStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExpiresAt: r.ExpiresAt,
	}
	if len(r.PendingAction) > 0 {
		if err := json.Unmarshal(r.PendingAction, &s.PendingAction); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending_action: %w", err)
		}
	}
	if len(r.WizardState) > 0 {
		if err := json.Unmarshal(r.WizardState, &s.WizardState); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wizard_state: %w", err)
		}
	}
	if len(r.History) > 0 {
		if err := json.Unmarshal(r.History, &s.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation_history: %w", err)
		}
	}
	return s, nil
}

const sessionColumns = `session_id, user_id, kind, status,
	pending_action, wizard_state, conversation_history,
	created_at, updated_at, expires_at`

// CreatePendingConfirmation persists a blocked risky action and returns the
// session the client must confirm against.
func (s *SessionService) CreatePendingConfirmation(httpCtx context.Context, userID int, pa *models.PendingAction) (*models.Session, error) {
	if pa == nil {
		return nil, NewValidationError("pending_action", "required")
	}
	if pa.Action == "" {
		return nil, NewValidationError("action", "required")
	}
	return s.create(httpCtx, userID, models.KindPendingConfirmation, pa, nil)
}

// CreateWizard persists a freshly started wizard.
func (s *SessionService) CreateWizard(httpCtx context.Context, userID int, ws *models.WizardState) (*models.Session, error) {
	if ws == nil {
		return nil, NewValidationError("wizard_state", "required")
	}
	if ws.Flow == "" {
		return nil, NewValidationError("flow", "required")
	}
	return s.create(httpCtx, userID, models.KindWizard, nil, ws)
}

func (s *SessionService) create(httpCtx context.Context, userID int, kind models.SessionKind, pa *models.PendingAction, ws *models.WizardState) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	paJSON, err := marshalNullable(pa)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pending_action: %w", err)
	}
	wsJSON, err := marshalNullable(ws)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wizard_state: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		ID:            uuid.New().String(),
		UserID:        userID,
		Kind:          kind,
		Status:        models.StatusPending,
		PendingAction: pa,
		WizardState:   ws,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_sessions
		   (session_id, user_id, kind, status, pending_action, wizard_state,
		    created_at, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)`,
		session.ID, userID, string(kind), string(models.StatusPending),
		paJSON, wsJSON, now, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Get loads a session by id.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM agent_sessions WHERE session_id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return row.toModel()
}

// FindActiveWizard returns the user's PENDING, unexpired wizard session, or
// ErrNotFound when none exists. Newest wins if several are somehow live.
func (s *SessionService) FindActiveWizard(ctx context.Context, userID int) (*models.Session, error) {
	return s.findActive(ctx, userID, models.KindWizard)
}

// FindActiveConfirmation returns the user's PENDING, unexpired confirmation
// session, or ErrNotFound when none exists.
func (s *SessionService) FindActiveConfirmation(ctx context.Context, userID int) (*models.Session, error) {
	return s.findActive(ctx, userID, models.KindPendingConfirmation)
}

func (s *SessionService) findActive(ctx context.Context, userID int, kind models.SessionKind) (*models.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM agent_sessions
		  WHERE user_id = $1 AND kind = $2 AND status = $3 AND expires_at > now()
		  ORDER BY created_at DESC
		  LIMIT 1`,
		userID, string(kind), string(models.StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s session: %w", kind, err)
	}
	return row.toModel()
}

// Confirm transitions PENDING -> CONFIRMED. Compare-and-set: losing the race
// (or confirming a non-pending session) returns ErrSessionNotPending.
func (s *SessionService) Confirm(httpCtx context.Context, sessionID string) error {
	return s.casTransition(sessionID, models.StatusPending, models.StatusConfirmed)
}

// Cancel transitions PENDING -> CANCELLED.
func (s *SessionService) Cancel(httpCtx context.Context, sessionID string) error {
	return s.casTransition(sessionID, models.StatusPending, models.StatusCancelled)
}

// MarkDone transitions CONFIRMED -> DONE after the pending action executed.
func (s *SessionService) MarkDone(httpCtx context.Context, sessionID string) error {
	return s.casTransition(sessionID, models.StatusConfirmed, models.StatusDone)
}

// MarkWizardDone closes a completed wizard: PENDING -> DONE directly, since
// wizards finish on their confirm step without a separate confirm call.
func (s *SessionService) MarkWizardDone(httpCtx context.Context, sessionID string) error {
	return s.casTransition(sessionID, models.StatusPending, models.StatusDone)
}

func (s *SessionService) casTransition(sessionID string, from, to models.SessionStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET status = $1, updated_at = now()
		  WHERE session_id = $2 AND status = $3`,
		string(to), sessionID, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition session %s: %w", sessionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Either the session is gone or another writer moved it first.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM agent_sessions WHERE session_id = $1)`,
			sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrSessionNotPending
	}
	return nil
}

// UpdateWizardState rewrites a PENDING wizard's collected state between
// turns. The status guard keeps a cancelled or expired wizard frozen.
func (s *SessionService) UpdateWizardState(httpCtx context.Context, sessionID string, ws *models.WizardState) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	wsJSON, err := marshalNullable(ws)
	if err != nil {
		return fmt.Errorf("failed to marshal wizard_state: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET wizard_state = $1, updated_at = now()
		  WHERE session_id = $2 AND status = $3`,
		wsJSON, sessionID, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to update wizard state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotPending
	}
	return nil
}

// SaveHistory persists the trailing conversation window on a session.
func (s *SessionService) SaveHistory(httpCtx context.Context, sessionID string, history []models.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	hJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation_history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET conversation_history = $1, updated_at = now()
		  WHERE session_id = $2`, hJSON, sessionID)
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// ExpireOverdue marks every overdue PENDING session EXPIRED and returns how
// many were swept. Run periodically by the cleanup service.
func (s *SessionService) ExpireOverdue(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET status = $1, updated_at = now()
		  WHERE status = $2 AND expires_at <= now()`,
		string(models.StatusExpired), string(models.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	return res.RowsAffected()
}

// PurgeOlderThan deletes terminal sessions whose last update is older than
// the retention window.
func (s *SessionService) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_sessions
		  WHERE status IN ($1, $2, $3, $4)
		    AND updated_at < now() - $5::interval`,
		string(models.StatusDone), string(models.StatusCancelled),
		string(models.StatusExpired), string(models.StatusConfirmed),
		fmt.Sprintf("%d seconds", int(retention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *models.PendingAction:
		if val == nil {
			return nil, nil
		}
	case *models.WizardState:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
