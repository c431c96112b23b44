package tools

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidHHMM(t *testing.T) {
	valid := []string{"00:00", "8:30", "08:30", "23:59", "19:05"}
	for _, s := range valid {
		assert.True(t, ValidHHMM(s), s)
	}
	invalid := []string{"24:00", "8:5", "830", "08:60", "morning", "", "8:30pm"}
	for _, s := range invalid {
		assert.False(t, ValidHHMM(s), s)
	}
}

func TestUpdateTripTimeRewritesDisplayName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnRows(tripRow(42, "Airport 08:00", "2026-08-26", "08:00", "SCHEDULED"))
	mock.ExpectExec(`UPDATE trips SET scheduled_time`).
		WithArgs("09:15", "Airport 09:15", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("update_trip_time", "trip", 42, 9, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	after, err := store.UpdateTripTime(context.Background(), 42, "09:15", 9)
	require.NoError(t, err)
	assert.Equal(t, "09:15", after.ScheduledTime)
	assert.Equal(t, "Airport 09:15", after.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTripTimeRejectsMalformedTime(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.UpdateTripTime(context.Background(), 42, "25:99", 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelayTripShiftsTimeAndName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnRows(tripRow(42, "Airport 08:00", "2026-08-26", "08:00", "SCHEDULED"))
	mock.ExpectQuery(`UPDATE trips`).WithArgs(30, 42).
		WillReturnRows(sqlmock.NewRows([]string{"to_char"}).AddRow("08:30"))
	mock.ExpectExec(`UPDATE trips SET display_name`).
		WithArgs("Airport 08:30", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("delay_trip", "trip", 42, 9, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	after, err := store.DelayTrip(context.Background(), 42, 30, 9)
	require.NoError(t, err)
	assert.Equal(t, "08:30", after.ScheduledTime)
	assert.Equal(t, "Airport 08:30", after.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelayTripRejectsNonPositiveMinutes(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.DelayTrip(context.Background(), 42, 0, 9)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleTripKeepsTimeWhenOmitted(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnRows(tripRow(42, "Airport 08:00", "2026-08-26", "08:00", "SCHEDULED"))
	mock.ExpectExec(`UPDATE trips SET trip_date`).
		WithArgs("2026-09-01", "08:00", "Airport 08:00", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("reschedule_trip", "trip", 42, 9, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	after, err := store.RescheduleTrip(context.Background(), 42, "2026-09-01", "", 9)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01", after.TripDate)
	assert.Equal(t, "08:00", after.ScheduledTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func consequencesRow(status string, depID, vehicleID, capacity any, bookings int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"live_status", "deployment_id", "vehicle_id", "capacity", "booking_count",
	}).AddRow(status, depID, vehicleID, capacity, bookings)
}

func TestTripConsequencesOrphanDeploymentStillCounts(t *testing.T) {
	store, mock := newMockStore(t)

	// Deployment row exists but its vehicle slot is empty. It still blocks a
	// fresh INSERT, so HasDeployment must be true.
	mock.ExpectQuery(`SELECT t.live_status`).WithArgs(42).
		WillReturnRows(consequencesRow("SCHEDULED", 55, nil, nil, 0))

	c, err := store.TripConsequences(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, c.HasDeployment)
	assert.Zero(t, c.BookingCount)
	assert.Empty(t, c.Warnings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripConsequencesWarnings(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT t.live_status`).WithArgs(42).
		WillReturnRows(consequencesRow("IN_PROGRESS", 55, 7, 40, 12))

	c, err := store.TripConsequences(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, c.HasDeployment)
	assert.Equal(t, 12, c.BookingCount)
	assert.InDelta(t, 30.0, c.BookingPercentage, 0.001)
	require.Len(t, c.Warnings, 2)
	assert.Contains(t, c.Warnings[0], "12 active booking(s)")
	assert.Contains(t, c.Warnings[1], "in progress")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripConsequencesNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT t.live_status`).WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := store.TripConsequences(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTripAppendsTimeToName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM routes WHERE route_id`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"route_id", "route_name", "path_id", "shift_time", "direction",
		}).AddRow(1, "Airport Express", 3, "08:00", "UP"))
	mock.ExpectQuery(`INSERT INTO trips`).
		WithArgs("Evening Run 18:45", 1, "2026-08-27", "18:45").
		WillReturnRows(sqlmock.NewRows([]string{"trip_id"}).AddRow(101))
	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(101).
		WillReturnRows(tripRow(101, "Evening Run 18:45", "2026-08-27", "18:45", "SCHEDULED"))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("create_trip", "trip", 101, 9, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	trip, err := store.CreateTrip(context.Background(), "Evening Run", 1, "2026-08-27", "18:45", 9)
	require.NoError(t, err)
	assert.Equal(t, "Evening Run 18:45", trip.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelTripNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := store.CancelTrip(context.Background(), 99, 9)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
