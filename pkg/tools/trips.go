package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/fleetops/movi/pkg/models"
)

// timeToken matches an embedded HH:MM inside a trip display name, e.g.
// "Morning Shuttle 08:30". Rewritten when the scheduled time changes.
var timeToken = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)

// hhmm validates user-supplied times.
var hhmm = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// ValidHHMM reports whether s is a well-formed 24h HH:MM time.
func ValidHHMM(s string) bool { return hhmm.MatchString(s) }

// GetTrip loads one trip by id, with its route name when the trip has one.
func (s *Store) GetTrip(ctx context.Context, tripID int) (*Trip, error) {
	var t Trip
	err := s.db.GetContext(ctx, &t,
		`SELECT `+tripColumns+`, r.route_name
		   FROM trips t
		   LEFT JOIN routes r ON r.route_id = t.route_id
		  WHERE t.trip_id = $1`, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTripsByLabel matches trips by display name, exact first and
// case-insensitive second. All matches at the winning tier are returned so
// the resolver can detect ambiguity.
func (s *Store) FindTripsByLabel(ctx context.Context, label string) ([]Trip, error) {
	var trips []Trip
	err := s.db.SelectContext(ctx, &trips,
		`SELECT `+tripColumns+` FROM trips t WHERE t.display_name = $1 ORDER BY t.trip_id`, label)
	if err != nil {
		return nil, err
	}
	if len(trips) > 0 {
		return trips, nil
	}
	err = s.db.SelectContext(ctx, &trips,
		`SELECT `+tripColumns+` FROM trips t WHERE lower(t.display_name) = lower($1) ORDER BY t.trip_id`, label)
	if err != nil {
		return nil, err
	}
	return trips, nil
}

// SearchTrips matches trips whose display name contains the fragment.
func (s *Store) SearchTrips(ctx context.Context, fragment string) ([]Trip, error) {
	var trips []Trip
	err := s.db.SelectContext(ctx, &trips,
		`SELECT `+tripColumns+` FROM trips t
		  WHERE t.display_name ILIKE '%' || $1 || '%'
		  ORDER BY t.trip_id`, fragment)
	if err != nil {
		return nil, err
	}
	return trips, nil
}

// TripConsequences computes the impact record for a risky trip mutation:
// active bookings, their share of the deployed vehicle's capacity, whether a
// deployment exists, and the trip's live status. Read-only.
func (s *Store) TripConsequences(ctx context.Context, tripID int) (*models.Consequences, error) {
	var row struct {
		BookingCount int           `db:"booking_count"`
		LiveStatus   string        `db:"live_status"`
		DeploymentID sql.NullInt64 `db:"deployment_id"`
		VehicleID    sql.NullInt64 `db:"vehicle_id"`
		Capacity     sql.NullInt64 `db:"capacity"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT t.live_status, d.deployment_id, d.vehicle_id, v.capacity,
		        (SELECT count(*) FROM bookings b
		          WHERE b.trip_id = t.trip_id AND b.status = 'ACTIVE') AS booking_count
		   FROM trips t
		   LEFT JOIN deployments d ON d.trip_id = t.trip_id
		   LEFT JOIN vehicles v ON v.vehicle_id = d.vehicle_id
		  WHERE t.trip_id = $1`, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c := &models.Consequences{
		BookingCount: row.BookingCount,
		LiveStatus:   row.LiveStatus,
		// Both checks matter: an orphan deployment row has a null
		// vehicle_id but still blocks a fresh INSERT.
		HasDeployment: row.DeploymentID.Valid || row.VehicleID.Valid,
	}
	if row.Capacity.Valid && row.Capacity.Int64 > 0 {
		c.BookingPercentage = float64(row.BookingCount) / float64(row.Capacity.Int64) * 100
	}
	if c.BookingCount > 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%d active booking(s) will be affected", c.BookingCount))
	}
	if c.LiveStatus == "IN_PROGRESS" {
		c.Warnings = append(c.Warnings, "trip is currently in progress")
	}
	return c, nil
}

// CancelTrip marks a trip CANCELLED.
func (s *Store) CancelTrip(ctx context.Context, tripID, userID int) (*Trip, error) {
	return s.setTripStatus(ctx, "cancel_trip", tripID, "CANCELLED", userID)
}

// UpdateTripStatus sets the trip's live status.
func (s *Store) UpdateTripStatus(ctx context.Context, tripID int, status string, userID int) (*Trip, error) {
	return s.setTripStatus(ctx, "update_trip_status", tripID, status, userID)
}

func (s *Store) setTripStatus(ctx context.Context, action string, tripID int, status string, userID int) (*Trip, error) {
	before, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE trips SET live_status = $1 WHERE trip_id = $2`, status, tripID)
	if err != nil {
		return nil, err
	}
	after := *before
	after.LiveStatus = status
	s.recordAudit(ctx, action, "trip", tripID, userID, before, &after)
	return &after, nil
}

// UpdateTripTime sets a new scheduled time and rewrites the HH:MM token in
// the display name so the two never drift apart.
func (s *Store) UpdateTripTime(ctx context.Context, tripID int, newTime string, userID int) (*Trip, error) {
	if !ValidHHMM(newTime) {
		return nil, fmt.Errorf("invalid time %q, expected HH:MM", newTime)
	}
	before, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	newName := timeToken.ReplaceAllString(before.DisplayName, newTime)
	_, err = s.db.ExecContext(ctx,
		`UPDATE trips SET scheduled_time = $1::time, display_name = $2 WHERE trip_id = $3`,
		newTime, newName, tripID)
	if err != nil {
		return nil, err
	}

	after := *before
	after.ScheduledTime = newTime
	after.DisplayName = newName
	s.recordAudit(ctx, "update_trip_time", "trip", tripID, userID, before, &after)
	return &after, nil
}

// DelayTrip shifts the scheduled time forward by the given number of minutes
// and rewrites the display name to match.
func (s *Store) DelayTrip(ctx context.Context, tripID, minutes, userID int) (*Trip, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("delay must be a positive number of minutes")
	}
	before, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	var newTime string
	err = s.db.QueryRowContext(ctx,
		`UPDATE trips
		    SET scheduled_time = scheduled_time + make_interval(mins => $1)
		  WHERE trip_id = $2
		  RETURNING to_char(scheduled_time, 'HH24:MI')`, minutes, tripID).Scan(&newTime)
	if err != nil {
		return nil, err
	}

	newName := timeToken.ReplaceAllString(before.DisplayName, newTime)
	_, err = s.db.ExecContext(ctx,
		`UPDATE trips SET display_name = $1 WHERE trip_id = $2`, newName, tripID)
	if err != nil {
		return nil, err
	}

	after := *before
	after.ScheduledTime = newTime
	after.DisplayName = newName
	s.recordAudit(ctx, "delay_trip", "trip", tripID, userID, before, &after)
	return &after, nil
}

// RescheduleTrip moves a trip to a new date and, optionally, a new time.
func (s *Store) RescheduleTrip(ctx context.Context, tripID int, newDate, newTime string, userID int) (*Trip, error) {
	before, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if newTime == "" {
		newTime = before.ScheduledTime
	}
	if !ValidHHMM(newTime) {
		return nil, fmt.Errorf("invalid time %q, expected HH:MM", newTime)
	}

	newName := timeToken.ReplaceAllString(before.DisplayName, newTime)
	_, err = s.db.ExecContext(ctx,
		`UPDATE trips SET trip_date = $1::date, scheduled_time = $2::time, display_name = $3
		  WHERE trip_id = $4`, newDate, newTime, newName, tripID)
	if err != nil {
		return nil, err
	}

	after := *before
	after.TripDate = newDate
	after.ScheduledTime = newTime
	after.DisplayName = newName
	s.recordAudit(ctx, "reschedule_trip", "trip", tripID, userID, before, &after)
	return &after, nil
}

// DuplicateTrip inserts a copy of the trip with the same route, date, and
// time. The copy starts SCHEDULED with no deployment and no bookings.
func (s *Store) DuplicateTrip(ctx context.Context, tripID, userID int) (*Trip, error) {
	var newID int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO trips (display_name, route_id, trip_date, scheduled_time, live_status)
		 SELECT display_name || ' (copy)', route_id, trip_date, scheduled_time, 'SCHEDULED'
		   FROM trips WHERE trip_id = $1
		 RETURNING trip_id`, tripID).Scan(&newID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	after, err := s.GetTrip(ctx, newID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "duplicate_trip", "trip", newID, userID, nil, after)
	return after, nil
}

// CreateTrip inserts a new trip on a route. The display name gets the
// scheduled time appended when it does not already embed one, keeping the
// name rewritable by later time changes.
func (s *Store) CreateTrip(ctx context.Context, name string, routeID int, date, timeOfDay string, userID int) (*Trip, error) {
	if name == "" {
		return nil, fmt.Errorf("trip name is required")
	}
	if !ValidHHMM(timeOfDay) {
		return nil, fmt.Errorf("invalid time %q, expected HH:MM", timeOfDay)
	}
	if _, err := s.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	if !timeToken.MatchString(name) {
		name = name + " " + timeOfDay
	}

	var id int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO trips (display_name, route_id, trip_date, scheduled_time, live_status)
		 VALUES ($1, $2, $3::date, $4::time, 'SCHEDULED')
		 RETURNING trip_id`, name, routeID, date, timeOfDay).Scan(&id)
	if err != nil {
		return nil, err
	}

	trip, err := s.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "create_trip", "trip", id, userID, nil, trip)
	return trip, nil
}

// TripDetails is the full per-trip view: the trip row plus its deployment,
// vehicle, driver, and active booking count.
type TripDetails struct {
	Trip         Trip     `json:"trip"`
	Vehicle      *Vehicle `json:"vehicle,omitempty"`
	Driver       *Driver  `json:"driver,omitempty"`
	BookingCount int      `json:"booking_count"`
}

// GetTripDetails assembles the detail view for one trip.
func (s *Store) GetTripDetails(ctx context.Context, tripID int) (*TripDetails, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	details := &TripDetails{Trip: *trip}

	dep, err := s.GetDeployment(ctx, tripID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if dep != nil {
		if dep.VehicleID.Valid {
			v, err := s.GetVehicle(ctx, int(dep.VehicleID.Int64))
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			details.Vehicle = v
		}
		if dep.DriverID.Valid {
			d, err := s.GetDriver(ctx, int(dep.DriverID.Int64))
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			details.Driver = d
		}
	}

	err = s.db.GetContext(ctx, &details.BookingCount,
		`SELECT count(*) FROM bookings WHERE trip_id = $1 AND status = 'ACTIVE'`, tripID)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// Readiness summarises whether a trip can depart.
type Readiness struct {
	TripID       int      `json:"trip_id"`
	Ready        bool     `json:"ready"`
	HasVehicle   bool     `json:"has_vehicle"`
	HasDriver    bool     `json:"has_driver"`
	BookingCount int      `json:"booking_count"`
	Missing      []string `json:"missing,omitempty"`
}

// CheckTripReadiness reports what a trip still needs before departure.
func (s *Store) CheckTripReadiness(ctx context.Context, tripID int) (*Readiness, error) {
	details, err := s.GetTripDetails(ctx, tripID)
	if err != nil {
		return nil, err
	}
	r := &Readiness{
		TripID:       tripID,
		HasVehicle:   details.Vehicle != nil,
		HasDriver:    details.Driver != nil,
		BookingCount: details.BookingCount,
	}
	if !r.HasVehicle {
		r.Missing = append(r.Missing, "vehicle")
	}
	if !r.HasDriver {
		r.Missing = append(r.Missing, "driver")
	}
	r.Ready = len(r.Missing) == 0
	return r, nil
}
