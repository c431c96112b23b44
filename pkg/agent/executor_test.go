package agent

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/models"
)

func intPtr(n int) *int { return &n }

func pendingSessionRows(id string, userID int, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"session_id", "user_id", "kind", "status",
		"pending_action", "wizard_state", "conversation_history",
		"created_at", "updated_at", "expires_at",
	}).AddRow(id, userID, "pending_confirmation", status,
		[]byte(`{"action":"cancel_trip","entity_type":"trip","entity_id":42}`), nil, nil,
		now, now, now.Add(time.Hour))
}

func TestExecuteListVehicles(t *testing.T) {
	a, mock := newWizardAgent(t)

	mock.ExpectQuery(`SELECT (.+) FROM vehicles ORDER BY vehicle_id`).
		WillReturnRows(sqlmock.NewRows([]string{
			"vehicle_id", "registration_number", "capacity", "status",
		}).AddRow(7, "KA-01-1234", 40, "active").AddRow(8, "KA-01-5678", 28, "active"))

	state := &models.FlowState{
		UserID: 9,
		Intent: models.Intent{Action: "list_all_vehicles", Confidence: 1},
	}
	require.NoError(t, a.executeAction(context.Background(), state))

	require.Nil(t, state.Error)
	require.NotNil(t, state.ExecutionResult)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRefusesWhileClarificationPending(t *testing.T) {
	a, mock := newWizardAgent(t)

	state := &models.FlowState{
		UserID:             9,
		NeedsClarification: true,
		Intent:             models.Intent{Action: "cancel_trip"},
	}
	require.NoError(t, a.executeAction(context.Background(), state))

	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrInvalidParameters, state.Error.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRiskyDemandsConfirmedSession(t *testing.T) {
	a, mock := newWizardAgent(t)

	// The session is still PENDING, so the risky action must not run.
	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions WHERE session_id`).
		WithArgs("sess-1").
		WillReturnRows(pendingSessionRows("sess-1", 9, "PENDING"))

	state := &models.FlowState{
		UserID:           9,
		PendingSessionID: "sess-1",
		Intent:           models.Intent{Action: "cancel_trip", Confidence: 1},
		Resolved:         models.Resolved{EntityType: models.EntityTrip, EntityID: intPtr(42)},
	}
	require.NoError(t, a.executeAction(context.Background(), state))

	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrSessionNotPending, state.Error.Kind)
	assert.Nil(t, state.ExecutionResult)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCancelTripTargetGone(t *testing.T) {
	a, mock := newWizardAgent(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	state := &models.FlowState{
		UserID:   9,
		Intent:   models.Intent{Action: "cancel_trip", Confidence: 1},
		Resolved: models.Resolved{EntityType: models.EntityTrip, EntityID: intPtr(42)},
	}
	require.NoError(t, a.executeAction(context.Background(), state))

	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrTripNotFound, state.Error.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutePendingDispatchesSnapshot(t *testing.T) {
	a, mock := newWizardAgent(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{
			"trip_id", "display_name", "route_id", "trip_date", "scheduled_time", "live_status", "route_name",
		}).AddRow(42, "Airport 08:00", 1, "2026-08-26", "08:00", "SCHEDULED", "Airport Express"))
	mock.ExpectExec(`UPDATE trips SET live_status`).
		WithArgs("CANCELLED", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("cancel_trip", "trip", 42, 9, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{
		ID:     "sess-1",
		UserID: 9,
		Kind:   models.KindPendingConfirmation,
		Status: models.StatusConfirmed,
		PendingAction: &models.PendingAction{
			Action:     "cancel_trip",
			EntityType: models.EntityTrip,
			EntityID:   intPtr(42),
		},
	}
	out, err := a.ExecutePending(context.Background(), session)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, models.StatusExecuted, out.Status)
	assert.True(t, out.Success)
	assert.Contains(t, out.Message, "cancelled")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutePendingWithoutSnapshotFails(t *testing.T) {
	a, _ := newWizardAgent(t)

	_, err := a.ExecutePending(context.Background(), &models.Session{ID: "sess-1"})
	assert.Error(t, err)
}

func TestExecuteMissingTripParameter(t *testing.T) {
	a, mock := newWizardAgent(t)

	state := &models.FlowState{
		UserID: 9,
		Intent: models.Intent{Action: "assign_vehicle", Parameters: map[string]any{"vehicle_id": 7}},
	}
	require.NoError(t, a.executeAction(context.Background(), state))

	require.NotNil(t, state.Error)
	assert.Equal(t, models.ErrTripNotFound, state.Error.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
