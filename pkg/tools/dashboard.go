package tools

import (
	"context"
	"database/sql"
)

// AttentionTrip is a trip flagged by the attention report, with the reasons
// it was flagged.
type AttentionTrip struct {
	Trip
	BookingCount int      `db:"booking_count" json:"booking_count"`
	HasVehicle   bool     `db:"has_vehicle" json:"has_vehicle"`
	HasDriver    bool     `db:"has_driver" json:"has_driver"`
	Reasons      []string `json:"reasons"`
}

// TripsNeedingAttention flags today's trips that are missing a vehicle or
// driver, or carry bookings with no deployment at all.
func (s *Store) TripsNeedingAttention(ctx context.Context, date string) ([]AttentionTrip, error) {
	var rows []AttentionTrip
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+tripColumns+`,
		        (SELECT count(*) FROM bookings b
		          WHERE b.trip_id = t.trip_id AND b.status = 'ACTIVE') AS booking_count,
		        (d.vehicle_id IS NOT NULL) AS has_vehicle,
		        (d.driver_id IS NOT NULL) AS has_driver
		   FROM trips t
		   LEFT JOIN deployments d ON d.trip_id = t.trip_id
		  WHERE t.trip_date = $1::date
		    AND t.live_status NOT IN ('CANCELLED', 'COMPLETED')
		    AND (d.vehicle_id IS NULL OR d.driver_id IS NULL)
		  ORDER BY t.scheduled_time`, date)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if !rows[i].HasVehicle {
			rows[i].Reasons = append(rows[i].Reasons, "no vehicle assigned")
		}
		if !rows[i].HasDriver {
			rows[i].Reasons = append(rows[i].Reasons, "no driver assigned")
		}
		if rows[i].BookingCount > 0 && !rows[i].HasVehicle {
			rows[i].Reasons = append(rows[i].Reasons, "has bookings but no deployment")
		}
	}
	return rows, nil
}

// TodaySummary is the get_today_summary report.
type TodaySummary struct {
	Date             string `db:"-" json:"date"`
	TotalTrips       int    `db:"total_trips" json:"total_trips"`
	ScheduledTrips   int    `db:"scheduled_trips" json:"scheduled_trips"`
	InProgressTrips  int    `db:"in_progress_trips" json:"in_progress_trips"`
	CompletedTrips   int    `db:"completed_trips" json:"completed_trips"`
	CancelledTrips   int    `db:"cancelled_trips" json:"cancelled_trips"`
	ActiveBookings   int    `db:"active_bookings" json:"active_bookings"`
	DeployedVehicles int    `db:"deployed_vehicles" json:"deployed_vehicles"`
	AssignedDrivers  int    `db:"assigned_drivers" json:"assigned_drivers"`
}

// GetTodaySummary aggregates one date's operational picture.
func (s *Store) GetTodaySummary(ctx context.Context, date string) (*TodaySummary, error) {
	var sum TodaySummary
	err := s.db.GetContext(ctx, &sum,
		`SELECT count(*) AS total_trips,
		        count(*) FILTER (WHERE t.live_status = 'SCHEDULED') AS scheduled_trips,
		        count(*) FILTER (WHERE t.live_status = 'IN_PROGRESS') AS in_progress_trips,
		        count(*) FILTER (WHERE t.live_status = 'COMPLETED') AS completed_trips,
		        count(*) FILTER (WHERE t.live_status = 'CANCELLED') AS cancelled_trips,
		        (SELECT count(*) FROM bookings b
		           JOIN trips t2 ON t2.trip_id = b.trip_id
		          WHERE t2.trip_date = $1::date AND b.status = 'ACTIVE') AS active_bookings,
		        (SELECT count(DISTINCT d.vehicle_id) FROM deployments d
		          WHERE d.deployment_date = $1::date AND d.vehicle_id IS NOT NULL) AS deployed_vehicles,
		        (SELECT count(DISTINCT d.driver_id) FROM deployments d
		          WHERE d.deployment_date = $1::date AND d.driver_id IS NOT NULL) AS assigned_drivers
		   FROM trips t
		  WHERE t.trip_date = $1::date`, date)
	if err != nil {
		return nil, err
	}
	sum.Date = date
	return &sum, nil
}

// OfficeDemand is one row of the high-demand-offices report.
type OfficeDemand struct {
	Office       string `db:"office" json:"office"`
	BookingCount int    `db:"booking_count" json:"booking_count"`
}

// HighDemandOffices ranks offices by active booking volume.
func (s *Store) HighDemandOffices(ctx context.Context, limit int) ([]OfficeDemand, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []OfficeDemand
	err := s.db.SelectContext(ctx, &rows,
		`SELECT b.office, count(*) AS booking_count
		   FROM bookings b
		  WHERE b.status = 'ACTIVE' AND b.office IS NOT NULL
		  GROUP BY b.office
		  ORDER BY booking_count DESC, b.office
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// VehicleUsage is one row of the most-used-vehicles report.
type VehicleUsage struct {
	Vehicle
	DeploymentCount int `db:"deployment_count" json:"deployment_count"`
}

// MostUsedVehicles ranks vehicles by deployment count.
func (s *Store) MostUsedVehicles(ctx context.Context, limit int) ([]VehicleUsage, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []VehicleUsage
	err := s.db.SelectContext(ctx, &rows,
		`SELECT v.vehicle_id, v.registration_number, v.capacity, v.status,
		        count(d.deployment_id) AS deployment_count
		   FROM vehicles v
		   JOIN deployments d ON d.vehicle_id = v.vehicle_id
		  GROUP BY v.vehicle_id, v.registration_number, v.capacity, v.status
		  ORDER BY deployment_count DESC, v.vehicle_id
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OverbookedTrip is one row of the overbooking report: active bookings
// exceed the deployed vehicle's capacity, or the trip has bookings and no
// vehicle at all.
type OverbookedTrip struct {
	Trip
	BookingCount int           `db:"booking_count" json:"booking_count"`
	Capacity     sql.NullInt64 `db:"capacity" json:"capacity,omitempty"`
}

// DetectOverbooking finds trips on a date whose demand exceeds capacity.
func (s *Store) DetectOverbooking(ctx context.Context, date string) ([]OverbookedTrip, error) {
	var rows []OverbookedTrip
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+tripColumns+`, bc.booking_count, v.capacity
		   FROM trips t
		   JOIN LATERAL (
		        SELECT count(*) AS booking_count FROM bookings b
		         WHERE b.trip_id = t.trip_id AND b.status = 'ACTIVE') bc ON true
		   LEFT JOIN deployments d ON d.trip_id = t.trip_id
		   LEFT JOIN vehicles v ON v.vehicle_id = d.vehicle_id
		  WHERE t.trip_date = $1::date
		    AND bc.booking_count > 0
		    AND (v.capacity IS NULL OR bc.booking_count > v.capacity)
		  ORDER BY bc.booking_count DESC`, date)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ProblemTrip is one row of the problem-prediction report, scored by how
// many risk signals the trip shows.
type ProblemTrip struct {
	Trip
	BookingCount int      `db:"booking_count" json:"booking_count"`
	HasVehicle   bool     `db:"has_vehicle" json:"has_vehicle"`
	HasDriver    bool     `db:"has_driver" json:"has_driver"`
	Capacity     int      `db:"capacity" json:"capacity"`
	RiskScore    int      `json:"risk_score"`
	Signals      []string `json:"signals"`
}

// PredictProblemTrips scores upcoming trips by risk signals: missing
// deployment pieces, overbooking pressure, and already-degraded status.
func (s *Store) PredictProblemTrips(ctx context.Context, date string) ([]ProblemTrip, error) {
	var rows []ProblemTrip
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+tripColumns+`,
		        (SELECT count(*) FROM bookings b
		          WHERE b.trip_id = t.trip_id AND b.status = 'ACTIVE') AS booking_count,
		        (d.vehicle_id IS NOT NULL) AS has_vehicle,
		        (d.driver_id IS NOT NULL) AS has_driver,
		        coalesce(v.capacity, 0) AS capacity
		   FROM trips t
		   LEFT JOIN deployments d ON d.trip_id = t.trip_id
		   LEFT JOIN vehicles v ON v.vehicle_id = d.vehicle_id
		  WHERE t.trip_date >= $1::date
		    AND t.live_status NOT IN ('CANCELLED', 'COMPLETED')
		  ORDER BY t.trip_date, t.scheduled_time`, date)
	if err != nil {
		return nil, err
	}

	problems := rows[:0]
	for _, r := range rows {
		if !r.HasVehicle {
			r.RiskScore += 2
			r.Signals = append(r.Signals, "no vehicle assigned")
		}
		if !r.HasDriver {
			r.RiskScore += 2
			r.Signals = append(r.Signals, "no driver assigned")
		}
		if r.Capacity > 0 && r.BookingCount > r.Capacity {
			r.RiskScore += 3
			r.Signals = append(r.Signals, "overbooked")
		} else if r.Capacity > 0 && r.BookingCount*10 >= r.Capacity*9 {
			r.RiskScore++
			r.Signals = append(r.Signals, "near capacity")
		}
		if r.LiveStatus == "DELAYED" {
			r.RiskScore++
			r.Signals = append(r.Signals, "already delayed")
		}
		if r.RiskScore > 0 {
			problems = append(problems, r)
		}
	}
	return problems, nil
}
