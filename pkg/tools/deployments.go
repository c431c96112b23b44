package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// driverOverlapMinutes is the exclusion window for driver double-booking:
// a driver with another trip within this many minutes of the target trip's
// scheduled time on the same date is unavailable.
const driverOverlapMinutes = 90

// GetDeployment loads the deployment row for a trip, if any.
func (s *Store) GetDeployment(ctx context.Context, tripID int) (*Deployment, error) {
	var d Deployment
	err := s.db.GetContext(ctx, &d,
		`SELECT deployment_id, trip_id, vehicle_id, driver_id,
		        to_char(deployment_date, 'YYYY-MM-DD') AS deployment_date
		   FROM deployments WHERE trip_id = $1`, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// VehicleConflicts returns the ids of other trips on the given date that the
// vehicle is already deployed to.
func (s *Store) VehicleConflicts(ctx context.Context, vehicleID int, tripDate string, excludeTripID int) ([]int, error) {
	var tripIDs []int
	err := s.db.SelectContext(ctx, &tripIDs,
		`SELECT d.trip_id
		   FROM deployments d
		  WHERE d.vehicle_id = $1
		    AND d.deployment_date = $2::date
		    AND d.trip_id <> $3
		  ORDER BY d.trip_id`, vehicleID, tripDate, excludeTripID)
	if err != nil {
		return nil, err
	}
	return tripIDs, nil
}

// DriverConflicts returns the ids of other trips on the given date whose
// scheduled time falls within the overlap window of the target time.
func (s *Store) DriverConflicts(ctx context.Context, driverID int, tripDate, tripTime string, excludeTripID int) ([]int, error) {
	var tripIDs []int
	err := s.db.SelectContext(ctx, &tripIDs,
		`SELECT d.trip_id
		   FROM deployments d
		   JOIN trips t ON t.trip_id = d.trip_id
		  WHERE d.driver_id = $1
		    AND t.trip_date = $2::date
		    AND d.trip_id <> $4
		    AND abs(extract(epoch FROM (t.scheduled_time - $3::time))) / 60 < $5
		  ORDER BY d.trip_id`,
		driverID, tripDate, tripTime, excludeTripID, driverOverlapMinutes)
	if err != nil {
		return nil, err
	}
	return tripIDs, nil
}

// AssignVehicle deploys a vehicle to a trip. The vehicle must be free on the
// trip's date. When the trip already has a deployment row with vehicle_id
// cleared (an orphan left behind by remove_vehicle), that row is updated in
// place; inserting would trip the per-trip unique constraint.
func (s *Store) AssignVehicle(ctx context.Context, tripID, vehicleID, userID int) (*Deployment, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}

	conflicts, err := s.VehicleConflicts(ctx, vehicleID, trip.TripDate, tripID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &ErrConflict{
			Reason:  fmt.Sprintf("vehicle %d is already deployed on %s", vehicleID, trip.TripDate),
			TripIDs: conflicts,
		}
	}

	existing, err := s.GetDeployment(ctx, tripID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE deployments SET vehicle_id = $1, deployment_date = $2::date
			  WHERE deployment_id = $3`,
			vehicleID, trip.TripDate, existing.DeploymentID)
		if err != nil {
			return nil, err
		}
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO deployments (trip_id, vehicle_id, deployment_date)
			 VALUES ($1, $2, $3::date)`, tripID, vehicleID, trip.TripDate)
		if err != nil {
			return nil, err
		}
	}

	after, err := s.GetDeployment(ctx, tripID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "assign_vehicle", "trip", tripID, userID, existing, after)
	return after, nil
}

// AssignDriver deploys a driver to a trip after the overlap-window check.
func (s *Store) AssignDriver(ctx context.Context, tripID, driverID, userID int) (*Deployment, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}

	conflicts, err := s.DriverConflicts(ctx, driverID, trip.TripDate, trip.ScheduledTime, tripID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &ErrConflict{
			Reason: fmt.Sprintf("driver %d has another trip within %d minutes of %s",
				driverID, driverOverlapMinutes, trip.ScheduledTime),
			TripIDs: conflicts,
		}
	}

	existing, err := s.GetDeployment(ctx, tripID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE deployments SET driver_id = $1 WHERE deployment_id = $2`,
			driverID, existing.DeploymentID)
		if err != nil {
			return nil, err
		}
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO deployments (trip_id, driver_id, deployment_date)
			 VALUES ($1, $2, $3::date)`, tripID, driverID, trip.TripDate)
		if err != nil {
			return nil, err
		}
	}

	after, err := s.GetDeployment(ctx, tripID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "assign_driver", "trip", tripID, userID, existing, after)
	return after, nil
}

// RemoveVehicle clears the vehicle from a trip's deployment. The row itself
// stays so an existing driver assignment survives.
func (s *Store) RemoveVehicle(ctx context.Context, tripID, userID int) (*Deployment, error) {
	return s.clearDeploymentField(ctx, "remove_vehicle", "vehicle_id", tripID, userID)
}

// RemoveDriver clears the driver from a trip's deployment.
func (s *Store) RemoveDriver(ctx context.Context, tripID, userID int) (*Deployment, error) {
	return s.clearDeploymentField(ctx, "remove_driver", "driver_id", tripID, userID)
}

func (s *Store) clearDeploymentField(ctx context.Context, action, column string, tripID, userID int) (*Deployment, error) {
	before, err := s.GetDeployment(ctx, tripID)
	if err != nil {
		return nil, err
	}

	// column is one of two compile-time constants, never user input.
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE deployments SET %s = NULL WHERE deployment_id = $1`, column),
		before.DeploymentID)
	if err != nil {
		return nil, err
	}

	after, err := s.GetDeployment(ctx, tripID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, action, "trip", tripID, userID, before, after)
	return after, nil
}
