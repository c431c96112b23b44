package tools

import (
	"context"
	"encoding/json"
	"log/slog"
)

// recordAudit writes one audit_log row for a successful mutation. Audit
// failures are logged and swallowed: the mutation already committed and the
// user-facing result must not flip to an error because bookkeeping lagged.
func (s *Store) recordAudit(ctx context.Context, action, entityType string, entityID, userID int, before, after any) {
	beforeJSON := marshalSnapshot(before)
	afterJSON := marshalSnapshot(after)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (action, entity_type, entity_id, user_id, before, after)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		action, entityType, entityID, userID, beforeJSON, afterJSON)
	if err != nil {
		slog.Error("Failed to write audit entry",
			"action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

func marshalSnapshot(v any) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal audit snapshot", "error", err)
		return []byte("null")
	}
	return b
}

// AuditEntry is an audit_log row projected for the recent-changes report.
type AuditEntry struct {
	AuditID    int    `db:"audit_id" json:"audit_id"`
	Action     string `db:"action" json:"action"`
	EntityType string `db:"entity_type" json:"entity_type"`
	EntityID   int    `db:"entity_id" json:"entity_id"`
	UserID     int    `db:"user_id" json:"user_id"`
	CreatedAt  string `db:"created_at" json:"created_at"`
}

// RecentChanges returns the latest audit entries, newest first.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []AuditEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT audit_id, action, entity_type, entity_id, user_id,
		        to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS') AS created_at
		   FROM audit_log
		  ORDER BY audit_id DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}
