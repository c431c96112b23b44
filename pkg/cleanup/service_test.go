package cleanup

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/config"
	"github.com/fleetops/movi/pkg/database"
	"github.com/fleetops/movi/pkg/services"
)

func newTestService(t *testing.T, cfg config.SessionConfig) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sessions := services.NewSessionService(database.NewClientFromDB(db), cfg.TTL)
	return NewService(cfg, sessions), mock
}

func TestServiceSweepsOnStart(t *testing.T) {
	cfg := config.SessionConfig{
		TTL:          time.Hour,
		ReapInterval: time.Hour, // only the startup sweep fires during the test
		PurgeAfter:   24 * time.Hour,
	}
	svc, mock := newTestService(t, cfg)

	mock.ExpectExec(`UPDATE agent_sessions SET status`).
		WithArgs("EXPIRED", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM agent_sessions`).
		WithArgs("DONE", "CANCELLED", "EXPIRED", "CONFIRMED", "86400 seconds").
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc.Start(context.Background())
	svc.Stop()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartIsIdempotent(t *testing.T) {
	cfg := config.SessionConfig{TTL: time.Hour, ReapInterval: time.Hour, PurgeAfter: time.Hour}
	svc, mock := newTestService(t, cfg)

	mock.ExpectExec(`UPDATE agent_sessions SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM agent_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc.Start(context.Background())
	svc.Start(context.Background()) // no second loop
	svc.Stop()
	svc.Stop() // no panic on double stop
}
