// Package tools implements the typed database operations behind the action
// catalog: trip, vehicle, driver, booking, and network-configuration tools,
// plus the audit trail every mutation writes. All SQL names physical columns
// explicitly; the database package validates those names at boot.
package tools

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/fleetops/movi/pkg/database"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an availability or uniqueness constraint
// blocks a mutation. The message carries the conflicting ids.
type ErrConflict struct {
	Reason  string
	TripIDs []int
}

func (e *ErrConflict) Error() string { return e.Reason }

// Store exposes the tool catalog over a single database client.
type Store struct {
	db *database.Client

	// drivers.status is optional in the physical schema; the first driver
	// query probes for it and the result is cached for the Store's lifetime.
	statusOnce      sync.Once
	driverHasStatus bool
	statusErr       error
}

// NewStore creates a Store.
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// DB returns the underlying client, used by the session service and tests.
func (s *Store) DB() *database.Client { return s.db }

// Trip is a trips row with date and time projected as ISO-8601 strings.
type Trip struct {
	TripID        int            `db:"trip_id" json:"trip_id"`
	DisplayName   string         `db:"display_name" json:"display_name"`
	RouteID       sql.NullInt64  `db:"route_id" json:"route_id,omitempty"`
	TripDate      string         `db:"trip_date" json:"trip_date"`
	ScheduledTime string         `db:"scheduled_time" json:"scheduled_time"`
	LiveStatus    string         `db:"live_status" json:"live_status"`
	RouteName     sql.NullString `db:"route_name" json:"route_name,omitempty"`
}

// Deployment is a deployments row. VehicleID and DriverID are nullable: a
// row can exist with both cleared (an orphan) after removals.
type Deployment struct {
	DeploymentID   int           `db:"deployment_id" json:"deployment_id"`
	TripID         int           `db:"trip_id" json:"trip_id"`
	VehicleID      sql.NullInt64 `db:"vehicle_id" json:"vehicle_id,omitempty"`
	DriverID       sql.NullInt64 `db:"driver_id" json:"driver_id,omitempty"`
	DeploymentDate string        `db:"deployment_date" json:"deployment_date"`
}

// Vehicle is a vehicles row.
type Vehicle struct {
	VehicleID          int    `db:"vehicle_id" json:"vehicle_id"`
	RegistrationNumber string `db:"registration_number" json:"registration_number"`
	Capacity           int    `db:"capacity" json:"capacity"`
	Status             string `db:"status" json:"status"`
}

// Driver is a drivers row. Status is projected as 'active' when the
// deployment's schema has no status column.
type Driver struct {
	DriverID   int            `db:"driver_id" json:"driver_id"`
	Name       string         `db:"name" json:"name"`
	Status     string         `db:"status" json:"status"`
	ShiftStart sql.NullString `db:"shift_start" json:"shift_start,omitempty"`
	ShiftEnd   sql.NullString `db:"shift_end" json:"shift_end,omitempty"`
}

// Stop is a stops row.
type Stop struct {
	StopID    int             `db:"stop_id" json:"stop_id"`
	Name      string          `db:"name" json:"name"`
	Latitude  sql.NullFloat64 `db:"latitude" json:"latitude,omitempty"`
	Longitude sql.NullFloat64 `db:"longitude" json:"longitude,omitempty"`
}

// Path is a paths row.
type Path struct {
	PathID   int    `db:"path_id" json:"path_id"`
	PathName string `db:"path_name" json:"path_name"`
}

// Route is a routes row.
type Route struct {
	RouteID   int            `db:"route_id" json:"route_id"`
	RouteName string         `db:"route_name" json:"route_name"`
	PathID    sql.NullInt64  `db:"path_id" json:"path_id,omitempty"`
	ShiftTime sql.NullString `db:"shift_time" json:"shift_time,omitempty"`
	Direction sql.NullString `db:"direction" json:"direction,omitempty"`
}

// Booking is a bookings row.
type Booking struct {
	BookingID    int            `db:"booking_id" json:"booking_id"`
	TripID       int            `db:"trip_id" json:"trip_id"`
	EmployeeName string         `db:"employee_name" json:"employee_name"`
	Office       sql.NullString `db:"office" json:"office,omitempty"`
	Status       string         `db:"status" json:"status"`
}

// tripColumns is the shared projection for trips queries. Date and time are
// rendered server-side so Go never has to guess at driver time mappings.
const tripColumns = `t.trip_id, t.display_name, t.route_id,
	to_char(t.trip_date, 'YYYY-MM-DD') AS trip_date,
	to_char(t.scheduled_time, 'HH24:MI') AS scheduled_time,
	t.live_status`
