package tools

import (
	"context"
)

// BookingCount returns the number of active bookings on a trip.
func (s *Store) BookingCount(ctx context.Context, tripID int) (int, error) {
	if _, err := s.GetTrip(ctx, tripID); err != nil {
		return 0, err
	}
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT count(*) FROM bookings WHERE trip_id = $1 AND status = 'ACTIVE'`, tripID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListPassengers returns the active bookings on a trip.
func (s *Store) ListPassengers(ctx context.Context, tripID int) ([]Booking, error) {
	if _, err := s.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	var bookings []Booking
	err := s.db.SelectContext(ctx, &bookings,
		`SELECT booking_id, trip_id, employee_name, office, status
		   FROM bookings
		  WHERE trip_id = $1 AND status = 'ACTIVE'
		  ORDER BY employee_name`, tripID)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// CancelAllBookings marks every active booking on a trip CANCELLED and
// returns how many were affected.
func (s *Store) CancelAllBookings(ctx context.Context, tripID, userID int) (int, error) {
	if _, err := s.GetTrip(ctx, tripID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = 'CANCELLED'
		  WHERE trip_id = $1 AND status = 'ACTIVE'`, tripID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, "cancel_all_bookings", "trip", tripID, userID,
		map[string]any{"active_bookings": affected},
		map[string]any{"cancelled": affected})
	return int(affected), nil
}

// EmployeeTrip pairs a booking with the trip it is on, for the
// find_employee_trips report.
type EmployeeTrip struct {
	EmployeeName string `db:"employee_name" json:"employee_name"`
	Trip
}

// FindEmployeeTrips returns the trips an employee holds active bookings on,
// matched case-insensitively on the booking's employee name.
func (s *Store) FindEmployeeTrips(ctx context.Context, employeeName string) ([]EmployeeTrip, error) {
	var results []EmployeeTrip
	err := s.db.SelectContext(ctx, &results,
		`SELECT b.employee_name, `+tripColumns+`
		   FROM bookings b
		   JOIN trips t ON t.trip_id = b.trip_id
		  WHERE lower(b.employee_name) = lower($1) AND b.status = 'ACTIVE'
		  ORDER BY t.trip_date, t.scheduled_time`, employeeName)
	if err != nil {
		return nil, err
	}
	return results, nil
}
