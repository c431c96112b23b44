package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// driverColumns builds the driver projection. Older deployments predate the
// drivers.status column; the projection degrades to a constant 'active' when
// it is absent.
func (s *Store) driverColumns(ctx context.Context) (string, error) {
	s.statusOnce.Do(func() {
		s.driverHasStatus, s.statusErr = s.db.HasColumn(ctx, "drivers", "status")
	})
	if s.statusErr != nil {
		return "", s.statusErr
	}
	statusCol := "'active' AS status"
	if s.driverHasStatus {
		statusCol = "d.status"
	}
	return fmt.Sprintf(`d.driver_id, d.name, %s,
		to_char(d.shift_start, 'HH24:MI') AS shift_start,
		to_char(d.shift_end, 'HH24:MI') AS shift_end`, statusCol), nil
}

// GetDriver loads one driver by id.
func (s *Store) GetDriver(ctx context.Context, driverID int) (*Driver, error) {
	cols, err := s.driverColumns(ctx)
	if err != nil {
		return nil, err
	}
	var d Driver
	err = s.db.GetContext(ctx, &d,
		`SELECT `+cols+` FROM drivers d WHERE d.driver_id = $1`, driverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDrivers returns every driver.
func (s *Store) ListDrivers(ctx context.Context) ([]Driver, error) {
	cols, err := s.driverColumns(ctx)
	if err != nil {
		return nil, err
	}
	var drivers []Driver
	err = s.db.SelectContext(ctx, &drivers,
		`SELECT `+cols+` FROM drivers d ORDER BY d.driver_id`)
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// FindDriversByName matches drivers by name: exact case-insensitive first,
// then first-token ("Sarah" matches "Sarah Johnson"). All matches at the
// winning tier are returned so the caller can detect ambiguity.
func (s *Store) FindDriversByName(ctx context.Context, name string) ([]Driver, error) {
	cols, err := s.driverColumns(ctx)
	if err != nil {
		return nil, err
	}

	var drivers []Driver
	err = s.db.SelectContext(ctx, &drivers,
		`SELECT `+cols+` FROM drivers d
		  WHERE lower(d.name) = lower($1) ORDER BY d.driver_id`, name)
	if err != nil {
		return nil, err
	}
	if len(drivers) > 0 {
		return drivers, nil
	}

	first := name
	if i := strings.IndexByte(first, ' '); i >= 0 {
		first = first[:i]
	}
	err = s.db.SelectContext(ctx, &drivers,
		`SELECT `+cols+` FROM drivers d
		  WHERE lower(split_part(d.name, ' ', 1)) = lower($1)
		  ORDER BY d.driver_id`, first)
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// AvailableDrivers returns drivers whose shift covers the trip's time and
// who have no other trip within the overlap window on the trip's date.
// A driver with no shift recorded is treated as always on shift.
func (s *Store) AvailableDrivers(ctx context.Context, tripID int) ([]Driver, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	cols, err := s.driverColumns(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + cols + `
		   FROM drivers d
		  WHERE (d.shift_start IS NULL OR d.shift_end IS NULL
		         OR $1::time BETWEEN d.shift_start AND d.shift_end)
		    AND NOT EXISTS (
		        SELECT 1
		          FROM deployments dep
		          JOIN trips t2 ON t2.trip_id = dep.trip_id
		         WHERE dep.driver_id = d.driver_id
		           AND t2.trip_date = $2::date
		           AND dep.trip_id <> $3
		           AND abs(extract(epoch FROM (t2.scheduled_time - $1::time))) / 60 < $4)
		  ORDER BY d.driver_id`
	if s.driverHasStatus {
		query = strings.Replace(query, "WHERE (", "WHERE d.status = 'active' AND (", 1)
	}

	var drivers []Driver
	err = s.db.SelectContext(ctx, &drivers, query,
		trip.ScheduledTime, trip.TripDate, tripID, driverOverlapMinutes)
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// DriverTrips returns the trips a driver is deployed to on a date.
func (s *Store) DriverTrips(ctx context.Context, driverID int, date string) ([]Trip, error) {
	var trips []Trip
	err := s.db.SelectContext(ctx, &trips,
		`SELECT `+tripColumns+`
		   FROM trips t
		   JOIN deployments d ON d.trip_id = t.trip_id
		  WHERE d.driver_id = $1 AND d.deployment_date = $2::date
		  ORDER BY t.scheduled_time`, driverID, date)
	if err != nil {
		return nil, err
	}
	return trips, nil
}

// SetDriverAvailability flips a driver between 'active' and 'unavailable'.
// A no-op error is returned when the schema has no status column to write.
func (s *Store) SetDriverAvailability(ctx context.Context, driverID int, available bool, userID int) (*Driver, error) {
	before, err := s.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !s.driverHasStatus {
		return nil, fmt.Errorf("driver availability is not tracked in this deployment")
	}

	status := "unavailable"
	if available {
		status = "active"
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE drivers SET status = $1 WHERE driver_id = $2`, status, driverID)
	if err != nil {
		return nil, err
	}

	after := *before
	after.Status = status
	s.recordAudit(ctx, "set_driver_availability", "driver", driverID, userID, before, &after)
	return &after, nil
}

// AddDriver registers a new driver. Shift times are optional.
func (s *Store) AddDriver(ctx context.Context, name, shiftStart, shiftEnd string, userID int) (*Driver, error) {
	if name == "" {
		return nil, fmt.Errorf("driver name is required")
	}
	for _, t := range []string{shiftStart, shiftEnd} {
		if t != "" && !ValidHHMM(t) {
			return nil, fmt.Errorf("invalid shift time %q, expected HH:MM", t)
		}
	}

	var id int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO drivers (name, shift_start, shift_end)
		 VALUES ($1, NULLIF($2, '')::time, NULLIF($3, '')::time)
		 RETURNING driver_id`, name, shiftStart, shiftEnd).Scan(&id)
	if err != nil {
		return nil, err
	}

	d, err := s.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "add_driver", "driver", id, userID, nil, d)
	return d, nil
}
