package tools

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/database"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(database.NewClientFromDB(db)), mock
}

func tripRow(id int, name, date, timeOfDay, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"trip_id", "display_name", "route_id", "trip_date", "scheduled_time", "live_status", "route_name",
	}).AddRow(id, name, 1, date, timeOfDay, status, "Airport Express")
}

func vehicleRow(id int, reg string, capacity int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"vehicle_id", "registration_number", "capacity", "status"}).
		AddRow(id, reg, capacity, "active")
}

func deploymentRow(depID, tripID int, vehicleID, driverID any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"deployment_id", "trip_id", "vehicle_id", "driver_id", "deployment_date",
	}).AddRow(depID, tripID, vehicleID, driverID, "2026-08-26")
}

func TestAssignVehicleReusesOrphanDeployment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnRows(tripRow(42, "Airport 08:00", "2026-08-26", "08:00", "SCHEDULED"))
	mock.ExpectQuery(`SELECT (.+) FROM vehicles WHERE vehicle_id`).WithArgs(7).
		WillReturnRows(vehicleRow(7, "KA-01-1234", 40))
	mock.ExpectQuery(`SELECT d.trip_id\s+FROM deployments d`).
		WithArgs(7, "2026-08-26", 42).
		WillReturnRows(sqlmock.NewRows([]string{"trip_id"}))
	// The orphan: a deployment row whose vehicle was removed earlier.
	mock.ExpectQuery(`FROM deployments WHERE trip_id`).WithArgs(42).
		WillReturnRows(deploymentRow(55, 42, nil, 9))
	// Orphan rows are updated in place; an INSERT would violate the
	// per-trip unique constraint.
	mock.ExpectExec(`UPDATE deployments SET vehicle_id`).
		WithArgs(7, "2026-08-26", 55).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM deployments WHERE trip_id`).WithArgs(42).
		WillReturnRows(deploymentRow(55, 42, 7, 9))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	dep, err := store.AssignVehicle(context.Background(), 42, 7, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(7), dep.VehicleID.Int64)
	assert.Equal(t, int64(9), dep.DriverID.Int64, "driver assignment must survive")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignVehicleInsertsWhenNoDeployment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnRows(tripRow(42, "Airport 08:00", "2026-08-26", "08:00", "SCHEDULED"))
	mock.ExpectQuery(`SELECT (.+) FROM vehicles WHERE vehicle_id`).WithArgs(7).
		WillReturnRows(vehicleRow(7, "KA-01-1234", 40))
	mock.ExpectQuery(`SELECT d.trip_id\s+FROM deployments d`).
		WithArgs(7, "2026-08-26", 42).
		WillReturnRows(sqlmock.NewRows([]string{"trip_id"}))
	mock.ExpectQuery(`FROM deployments WHERE trip_id`).WithArgs(42).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO deployments`).
		WithArgs(42, 7, "2026-08-26").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`FROM deployments WHERE trip_id`).WithArgs(42).
		WillReturnRows(deploymentRow(56, 42, 7, nil))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	dep, err := store.AssignVehicle(context.Background(), 42, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), dep.VehicleID.Int64)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignVehicleConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM trips t`).WithArgs(42).
		WillReturnRows(tripRow(42, "Airport 08:00", "2026-08-26", "08:00", "SCHEDULED"))
	mock.ExpectQuery(`SELECT (.+) FROM vehicles WHERE vehicle_id`).WithArgs(7).
		WillReturnRows(vehicleRow(7, "KA-01-1234", 40))
	mock.ExpectQuery(`SELECT d.trip_id\s+FROM deployments d`).
		WithArgs(7, "2026-08-26", 42).
		WillReturnRows(sqlmock.NewRows([]string{"trip_id"}).AddRow(8))

	_, err := store.AssignVehicle(context.Background(), 42, 7, 1)

	var conflict *ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{8}, conflict.TripIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveVehicleKeepsDriver(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM deployments WHERE trip_id`).WithArgs(42).
		WillReturnRows(deploymentRow(55, 42, 7, 9))
	mock.ExpectExec(`UPDATE deployments SET vehicle_id = NULL`).WithArgs(55).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM deployments WHERE trip_id`).WithArgs(42).
		WillReturnRows(deploymentRow(55, 42, nil, 9))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	dep, err := store.RemoveVehicle(context.Background(), 42, 1)
	require.NoError(t, err)

	assert.False(t, dep.VehicleID.Valid)
	assert.True(t, dep.DriverID.Valid, "the deployment row survives a vehicle removal")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveVehicleWithoutDeployment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM deployments WHERE trip_id`).WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	_, err := store.RemoveVehicle(context.Background(), 42, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}
