package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/agent"
	"github.com/fleetops/movi/pkg/config"
	"github.com/fleetops/movi/pkg/database"
	"github.com/fleetops/movi/pkg/llm"
	"github.com/fleetops/movi/pkg/models"
	"github.com/fleetops/movi/pkg/services"
	"github.com/fleetops/movi/pkg/tools"
)

type stubLLM struct {
	response string
	lastReq  *llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.lastReq = &req
	return s.response, nil
}

func newTestServer(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	return newTestServerWithLLM(t, &stubLLM{})
}

func newTestServerWithLLM(t *testing.T, stub *stubLLM) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := database.NewClientFromDB(db)
	store := tools.NewStore(client)
	sessions := services.NewSessionService(client, time.Hour)
	ag, err := agent.New(config.AgentConfig{HistoryLimit: 20}, stub, store, sessions)
	require.NoError(t, err)

	return NewServer(ag, sessions, client).Handler(), mock
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sessionRow(id string, userID int, kind, status string, expiresAt time.Time, pendingJSON string) *sqlmock.Rows {
	now := time.Now()
	var pa any
	if pendingJSON != "" {
		pa = []byte(pendingJSON)
	}
	return sqlmock.NewRows([]string{
		"session_id", "user_id", "kind", "status",
		"pending_action", "wizard_state", "conversation_history",
		"created_at", "updated_at", "expires_at",
	}).AddRow(id, userID, kind, status, pa, nil, nil, now, now, expiresAt)
}

func sessionRowWithHistory(id string, userID int, kind string, historyJSON string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"session_id", "user_id", "kind", "status",
		"pending_action", "wizard_state", "conversation_history",
		"created_at", "updated_at", "expires_at",
	}).AddRow(id, userID, kind, "PENDING", nil, nil, []byte(historyJSON), now, now, now.Add(time.Hour))
}

func TestHealthCheckReportsPool(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	db, ok := body["database"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "healthy", db["status"])
}

func TestHandleMessageRejectsMissingFields(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/message",
		map[string]any{"user_id": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageStructuredQuery(t *testing.T) {
	handler, mock := newTestServer(t)

	// No wizard or open confirmation for this user.
	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions`).
		WithArgs(9, "wizard", "PENDING").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions`).
		WithArgs(9, "pending_confirmation", "PENDING").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM vehicles ORDER BY vehicle_id`).
		WillReturnRows(sqlmock.NewRows([]string{
			"vehicle_id", "registration_number", "capacity", "status",
		}).AddRow(7, "KA-01-1234", 40, "active"))

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/message", map[string]any{
		"text":    "STRUCTURED_CMD:list_all_vehicles",
		"user_id": 9,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.AgentOutput)
	assert.Equal(t, models.StatusExecuted, resp.AgentOutput.Status)
	assert.True(t, resp.AgentOutput.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessageDefaultsUserID(t *testing.T) {
	handler, mock := newTestServer(t)

	// Omitting user_id falls back to user 1.
	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions`).
		WithArgs(1, "wizard", "PENDING").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions`).
		WithArgs(1, "pending_confirmation", "PENDING").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM vehicles ORDER BY vehicle_id`).
		WillReturnRows(sqlmock.NewRows([]string{
			"vehicle_id", "registration_number", "capacity", "status",
		}).AddRow(7, "KA-01-1234", 40, "active"))

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/message", map[string]any{
		"text": "STRUCTURED_CMD:list_all_vehicles",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessageRestoresConfirmationTranscript(t *testing.T) {
	stub := &stubLLM{response: `{"action":"list_all_vehicles","confidence":0.9}`}
	handler, mock := newTestServerWithLLM(t, stub)

	history := `[{"role":"user","content":"cancel trip 42"},` +
		`{"role":"assistant","content":"that trip has 12 bookings, proceed?"}]`
	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions`).
		WithArgs(9, "wizard", "PENDING").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions`).
		WithArgs(9, "pending_confirmation", "PENDING").
		WillReturnRows(sessionRowWithHistory("sess-1", 9, "pending_confirmation", history))
	mock.ExpectQuery(`SELECT (.+) FROM vehicles ORDER BY vehicle_id`).
		WillReturnRows(sqlmock.NewRows([]string{
			"vehicle_id", "registration_number", "capacity", "status",
		}).AddRow(7, "KA-01-1234", 40, "active"))

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/message", map[string]any{
		"text":    "actually, what vehicles do we have?",
		"user_id": 9,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The durable transcript reached the parser as prior chat turns.
	require.NotNil(t, stub.lastReq)
	var found bool
	for _, m := range stub.lastReq.Messages {
		if strings.Contains(m.Content, "cancel trip 42") {
			found = true
		}
	}
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleConfirmRejectsWrongUser(t *testing.T) {
	handler, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions WHERE session_id`).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", 9, "pending_confirmation", "PENDING",
			time.Now().Add(time.Hour), `{"action":"cancel_trip","entity_type":"trip"}`))

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/confirm", map[string]any{
		"session_id": "sess-1",
		"user_id":    8,
		"confirmed":  true,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleConfirmExpiredSession(t *testing.T) {
	handler, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions WHERE session_id`).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", 9, "pending_confirmation", "PENDING",
			time.Now().Add(-time.Minute), `{"action":"cancel_trip","entity_type":"trip"}`))

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/confirm", map[string]any{
		"session_id": "sess-1",
		"user_id":    9,
		"confirmed":  true,
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleConfirmNoCancels(t *testing.T) {
	handler, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions WHERE session_id`).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", 9, "pending_confirmation", "PENDING",
			time.Now().Add(time.Hour), `{"action":"cancel_trip","entity_type":"trip"}`))
	mock.ExpectExec(`UPDATE agent_sessions SET status`).
		WithArgs("CANCELLED", "sess-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/confirm", map[string]any{
		"session_id": "sess-1",
		"user_id":    9,
		"confirmed":  false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.AgentOutput)
	assert.Equal(t, models.StatusOutputCancelled, resp.AgentOutput.Status)
	assert.False(t, resp.AgentOutput.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleConfirmYesExecutesAndCloses(t *testing.T) {
	handler, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions WHERE session_id`).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", 9, "pending_confirmation", "PENDING",
			time.Now().Add(time.Hour),
			`{"action":"cancel_trip","entity_type":"trip","entity_id":42}`))
	mock.ExpectExec(`UPDATE agent_sessions SET status`).
		WithArgs("CONFIRMED", "sess-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
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
	mock.ExpectExec(`UPDATE agent_sessions SET status`).
		WithArgs("DONE", "sess-1", "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/agent/confirm", map[string]any{
		"session_id": "sess-1",
		"user_id":    9,
		"confirmed":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.AgentOutput)
	assert.Equal(t, models.StatusExecuted, resp.AgentOutput.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSession(t *testing.T) {
	handler, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions WHERE session_id`).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", 9, "wizard", "PENDING",
			time.Now().Add(time.Hour), ""))

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/agent/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, models.KindWizard, resp.Kind)
	assert.Equal(t, models.StatusPending, resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionNotFound(t *testing.T) {
	handler, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT (.+) FROM agent_sessions WHERE session_id`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/agent/sessions/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
