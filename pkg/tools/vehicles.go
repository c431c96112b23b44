package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetVehicle loads one vehicle by id.
func (s *Store) GetVehicle(ctx context.Context, vehicleID int) (*Vehicle, error) {
	var v Vehicle
	err := s.db.GetContext(ctx, &v,
		`SELECT vehicle_id, registration_number, capacity, status
		   FROM vehicles WHERE vehicle_id = $1`, vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVehicleByRegistration matches a vehicle by registration number,
// case-insensitively.
func (s *Store) FindVehicleByRegistration(ctx context.Context, registration string) (*Vehicle, error) {
	var v Vehicle
	err := s.db.GetContext(ctx, &v,
		`SELECT vehicle_id, registration_number, capacity, status
		   FROM vehicles WHERE lower(registration_number) = lower($1)`, registration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVehicles returns every vehicle.
func (s *Store) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	var vehicles []Vehicle
	err := s.db.SelectContext(ctx, &vehicles,
		`SELECT vehicle_id, registration_number, capacity, status
		   FROM vehicles ORDER BY vehicle_id`)
	if err != nil {
		return nil, err
	}
	return vehicles, nil
}

// UnassignedVehicles returns vehicles with no deployment on the given date.
func (s *Store) UnassignedVehicles(ctx context.Context, date string) ([]Vehicle, error) {
	var vehicles []Vehicle
	err := s.db.SelectContext(ctx, &vehicles,
		`SELECT v.vehicle_id, v.registration_number, v.capacity, v.status
		   FROM vehicles v
		  WHERE NOT EXISTS (
		        SELECT 1 FROM deployments d
		         WHERE d.vehicle_id = v.vehicle_id AND d.deployment_date = $1::date)
		  ORDER BY v.vehicle_id`, date)
	if err != nil {
		return nil, err
	}
	return vehicles, nil
}

// AvailableVehicles returns deployable vehicles for a trip date: not in
// maintenance or blocked, and free of any deployment on that date.
func (s *Store) AvailableVehicles(ctx context.Context, date string) ([]Vehicle, error) {
	var vehicles []Vehicle
	err := s.db.SelectContext(ctx, &vehicles,
		`SELECT v.vehicle_id, v.registration_number, v.capacity, v.status
		   FROM vehicles v
		  WHERE v.status NOT IN ('maintenance', 'blocked')
		    AND NOT EXISTS (
		        SELECT 1 FROM deployments d
		         WHERE d.vehicle_id = v.vehicle_id AND d.deployment_date = $1::date)
		  ORDER BY v.capacity DESC, v.vehicle_id`, date)
	if err != nil {
		return nil, err
	}
	return vehicles, nil
}

// VehicleTrips returns the trips a vehicle is deployed to on a date.
func (s *Store) VehicleTrips(ctx context.Context, vehicleID int, date string) ([]Trip, error) {
	var trips []Trip
	err := s.db.SelectContext(ctx, &trips,
		`SELECT `+tripColumns+`
		   FROM trips t
		   JOIN deployments d ON d.trip_id = t.trip_id
		  WHERE d.vehicle_id = $1 AND d.deployment_date = $2::date
		  ORDER BY t.scheduled_time`, vehicleID, date)
	if err != nil {
		return nil, err
	}
	return trips, nil
}

// SetVehicleStatus transitions a vehicle's status, auditing the change.
// Used by block_vehicle ('blocked'), unblock_vehicle ('active'), and
// maintenance flows.
func (s *Store) SetVehicleStatus(ctx context.Context, vehicleID int, status string, userID int) (*Vehicle, error) {
	before, err := s.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE vehicles SET status = $1 WHERE vehicle_id = $2`, status, vehicleID)
	if err != nil {
		return nil, err
	}
	after := *before
	after.Status = status
	action := "set_vehicle_status"
	switch status {
	case "blocked":
		action = "block_vehicle"
	case "active":
		action = "unblock_vehicle"
	}
	s.recordAudit(ctx, action, "vehicle", vehicleID, userID, before, &after)
	return &after, nil
}

// AddVehicle registers a new vehicle.
func (s *Store) AddVehicle(ctx context.Context, registration string, capacity, userID int) (*Vehicle, error) {
	if registration == "" {
		return nil, fmt.Errorf("registration number is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive number of seats")
	}
	var id int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO vehicles (registration_number, capacity, status)
		 VALUES ($1, $2, 'active') RETURNING vehicle_id`, registration, capacity).Scan(&id)
	if err != nil {
		return nil, err
	}
	v := &Vehicle{VehicleID: id, RegistrationNumber: registration, Capacity: capacity, Status: "active"}
	s.recordAudit(ctx, "add_vehicle", "vehicle", id, userID, nil, v)
	return v, nil
}

// RecommendVehicle picks the best available vehicle for a trip: free on the
// trip's date, active, and with enough capacity for the active bookings.
// The smallest sufficient vehicle wins.
func (s *Store) RecommendVehicle(ctx context.Context, tripID int) (*Vehicle, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	var bookings int
	err = s.db.GetContext(ctx, &bookings,
		`SELECT count(*) FROM bookings WHERE trip_id = $1 AND status = 'ACTIVE'`, tripID)
	if err != nil {
		return nil, err
	}

	var v Vehicle
	err = s.db.GetContext(ctx, &v,
		`SELECT v.vehicle_id, v.registration_number, v.capacity, v.status
		   FROM vehicles v
		  WHERE v.status NOT IN ('maintenance', 'blocked')
		    AND v.capacity >= $1
		    AND NOT EXISTS (
		        SELECT 1 FROM deployments d
		         WHERE d.vehicle_id = v.vehicle_id AND d.deployment_date = $2::date)
		  ORDER BY v.capacity ASC, v.vehicle_id
		  LIMIT 1`, bookings, trip.TripDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SuggestAlternateVehicle recommends a replacement for a trip's current
// vehicle, excluding the one already assigned.
func (s *Store) SuggestAlternateVehicle(ctx context.Context, tripID int) (*Vehicle, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	current := 0
	dep, err := s.GetDeployment(ctx, tripID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if dep != nil && dep.VehicleID.Valid {
		current = int(dep.VehicleID.Int64)
	}

	var v Vehicle
	err = s.db.GetContext(ctx, &v,
		`SELECT v.vehicle_id, v.registration_number, v.capacity, v.status
		   FROM vehicles v
		  WHERE v.status NOT IN ('maintenance', 'blocked')
		    AND v.vehicle_id <> $1
		    AND NOT EXISTS (
		        SELECT 1 FROM deployments d
		         WHERE d.vehicle_id = v.vehicle_id AND d.deployment_date = $2::date)
		  ORDER BY v.capacity DESC, v.vehicle_id
		  LIMIT 1`, current, trip.TripDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
