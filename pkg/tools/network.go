package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Stops.

// ListStops returns every stop.
func (s *Store) ListStops(ctx context.Context) ([]Stop, error) {
	var stops []Stop
	err := s.db.SelectContext(ctx, &stops,
		`SELECT stop_id, name, latitude, longitude FROM stops ORDER BY stop_id`)
	if err != nil {
		return nil, err
	}
	return stops, nil
}

// GetStop loads one stop by id.
func (s *Store) GetStop(ctx context.Context, stopID int) (*Stop, error) {
	var st Stop
	err := s.db.GetContext(ctx, &st,
		`SELECT stop_id, name, latitude, longitude FROM stops WHERE stop_id = $1`, stopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FindStopsByName matches stops by name, exact case-insensitive first, then
// first-token. All matches at the winning tier are returned.
func (s *Store) FindStopsByName(ctx context.Context, name string) ([]Stop, error) {
	var stops []Stop
	err := s.db.SelectContext(ctx, &stops,
		`SELECT stop_id, name, latitude, longitude FROM stops
		  WHERE lower(name) = lower($1) ORDER BY stop_id`, name)
	if err != nil {
		return nil, err
	}
	if len(stops) > 0 {
		return stops, nil
	}
	err = s.db.SelectContext(ctx, &stops,
		`SELECT stop_id, name, latitude, longitude FROM stops
		  WHERE lower(split_part(name, ' ', 1)) = lower(split_part($1, ' ', 1))
		  ORDER BY stop_id`, name)
	if err != nil {
		return nil, err
	}
	return stops, nil
}

// CreateStop inserts a stop. Coordinates are optional.
func (s *Store) CreateStop(ctx context.Context, name string, lat, lon *float64, userID int) (*Stop, error) {
	if name == "" {
		return nil, fmt.Errorf("stop name is required")
	}
	var id int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO stops (name, latitude, longitude) VALUES ($1, $2, $3)
		 RETURNING stop_id`, name, lat, lon).Scan(&id)
	if err != nil {
		return nil, err
	}
	st, err := s.GetStop(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "create_stop", "stop", id, userID, nil, st)
	return st, nil
}

// RenameStop changes a stop's name.
func (s *Store) RenameStop(ctx context.Context, stopID int, newName string, userID int) (*Stop, error) {
	if newName == "" {
		return nil, fmt.Errorf("new stop name is required")
	}
	before, err := s.GetStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE stops SET name = $1 WHERE stop_id = $2`, newName, stopID)
	if err != nil {
		return nil, err
	}
	after := *before
	after.Name = newName
	s.recordAudit(ctx, "rename_stop", "stop", stopID, userID, before, &after)
	return &after, nil
}

// StopDownstream counts the paths that include a stop.
func (s *Store) StopDownstream(ctx context.Context, stopID int) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT count(DISTINCT path_id) FROM path_stops WHERE stop_id = $1`, stopID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteStop removes a stop. Callers gate on StopDownstream first; the
// foreign key still rejects a delete that would orphan a path.
func (s *Store) DeleteStop(ctx context.Context, stopID, userID int) error {
	before, err := s.GetStop(ctx, stopID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM stops WHERE stop_id = $1`, stopID)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "delete_stop", "stop", stopID, userID, before, nil)
	return nil
}

// Paths.

// ListPaths returns every path.
func (s *Store) ListPaths(ctx context.Context) ([]Path, error) {
	var paths []Path
	err := s.db.SelectContext(ctx, &paths,
		`SELECT path_id, path_name FROM paths ORDER BY path_id`)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// GetPath loads one path by id.
func (s *Store) GetPath(ctx context.Context, pathID int) (*Path, error) {
	var p Path
	err := s.db.GetContext(ctx, &p,
		`SELECT path_id, path_name FROM paths WHERE path_id = $1`, pathID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPathsByName matches paths by name, exact then case-insensitive.
func (s *Store) FindPathsByName(ctx context.Context, name string) ([]Path, error) {
	var paths []Path
	err := s.db.SelectContext(ctx, &paths,
		`SELECT path_id, path_name FROM paths WHERE path_name = $1 ORDER BY path_id`, name)
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		return paths, nil
	}
	err = s.db.SelectContext(ctx, &paths,
		`SELECT path_id, path_name FROM paths
		  WHERE lower(path_name) = lower($1) ORDER BY path_id`, name)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// StopsForPath returns a path's stops in traversal order.
func (s *Store) StopsForPath(ctx context.Context, pathID int) ([]Stop, error) {
	if _, err := s.GetPath(ctx, pathID); err != nil {
		return nil, err
	}
	var stops []Stop
	err := s.db.SelectContext(ctx, &stops,
		`SELECT s.stop_id, s.name, s.latitude, s.longitude
		   FROM path_stops ps
		   JOIN stops s ON s.stop_id = ps.stop_id
		  WHERE ps.path_id = $1
		  ORDER BY ps.stop_order`, pathID)
	if err != nil {
		return nil, err
	}
	return stops, nil
}

// CreatePath inserts a path with its ordered stop list, atomically.
func (s *Store) CreatePath(ctx context.Context, name string, stopIDs []int, userID int) (*Path, error) {
	if name == "" {
		return nil, fmt.Errorf("path name is required")
	}
	if len(stopIDs) < 2 {
		return nil, fmt.Errorf("a path needs at least 2 stops, got %d", len(stopIDs))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO paths (path_name) VALUES ($1) RETURNING path_id`, name).Scan(&id)
	if err != nil {
		return nil, err
	}
	for order, stopID := range stopIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO path_stops (path_id, stop_id, stop_order) VALUES ($1, $2, $3)`,
			id, stopID, order+1)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p := &Path{PathID: id, PathName: name}
	s.recordAudit(ctx, "create_path", "path", id, userID,
		nil, map[string]any{"path": p, "stop_ids": stopIDs})
	return p, nil
}

// UpdatePathStops replaces a path's stop list with a new ordered list.
func (s *Store) UpdatePathStops(ctx context.Context, pathID int, stopIDs []int, userID int) error {
	if len(stopIDs) < 2 {
		return fmt.Errorf("a path needs at least 2 stops, got %d", len(stopIDs))
	}
	before, err := s.StopsForPath(ctx, pathID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM path_stops WHERE path_id = $1`, pathID)
	if err != nil {
		return err
	}
	for order, stopID := range stopIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO path_stops (path_id, stop_id, stop_order) VALUES ($1, $2, $3)`,
			pathID, stopID, order+1)
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.recordAudit(ctx, "update_path_stops", "path", pathID, userID,
		map[string]any{"stops": before}, map[string]any{"stop_ids": stopIDs})
	return nil
}

// PathDownstream counts the routes built on a path.
func (s *Store) PathDownstream(ctx context.Context, pathID int) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT count(*) FROM routes WHERE path_id = $1`, pathID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeletePath removes a path and its stop memberships.
func (s *Store) DeletePath(ctx context.Context, pathID, userID int) error {
	before, err := s.GetPath(ctx, pathID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM paths WHERE path_id = $1`, pathID)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "delete_path", "path", pathID, userID, before, nil)
	return nil
}

// Routes.

// ListRoutes returns every route.
func (s *Store) ListRoutes(ctx context.Context) ([]Route, error) {
	var routes []Route
	err := s.db.SelectContext(ctx, &routes,
		`SELECT route_id, route_name, path_id, shift_time, direction
		   FROM routes ORDER BY route_id`)
	if err != nil {
		return nil, err
	}
	return routes, nil
}

// GetRoute loads one route by id.
func (s *Store) GetRoute(ctx context.Context, routeID int) (*Route, error) {
	var r Route
	err := s.db.GetContext(ctx, &r,
		`SELECT route_id, route_name, path_id, shift_time, direction
		   FROM routes WHERE route_id = $1`, routeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindRoutesByName matches routes by name, exact then case-insensitive.
func (s *Store) FindRoutesByName(ctx context.Context, name string) ([]Route, error) {
	var routes []Route
	err := s.db.SelectContext(ctx, &routes,
		`SELECT route_id, route_name, path_id, shift_time, direction
		   FROM routes WHERE route_name = $1 ORDER BY route_id`, name)
	if err != nil {
		return nil, err
	}
	if len(routes) > 0 {
		return routes, nil
	}
	err = s.db.SelectContext(ctx, &routes,
		`SELECT route_id, route_name, path_id, shift_time, direction
		   FROM routes WHERE lower(route_name) = lower($1) ORDER BY route_id`, name)
	if err != nil {
		return nil, err
	}
	return routes, nil
}

// RoutesUsingPath returns the routes built on a path.
func (s *Store) RoutesUsingPath(ctx context.Context, pathID int) ([]Route, error) {
	if _, err := s.GetPath(ctx, pathID); err != nil {
		return nil, err
	}
	var routes []Route
	err := s.db.SelectContext(ctx, &routes,
		`SELECT route_id, route_name, path_id, shift_time, direction
		   FROM routes WHERE path_id = $1 ORDER BY route_id`, pathID)
	if err != nil {
		return nil, err
	}
	return routes, nil
}

// CreateRoute inserts a route over an existing path.
func (s *Store) CreateRoute(ctx context.Context, name string, pathID int, shiftTime, direction string, userID int) (*Route, error) {
	if name == "" {
		return nil, fmt.Errorf("route name is required")
	}
	if _, err := s.GetPath(ctx, pathID); err != nil {
		return nil, err
	}

	var id int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO routes (route_name, path_id, shift_time, direction)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		 RETURNING route_id`, name, pathID, shiftTime, direction).Scan(&id)
	if err != nil {
		return nil, err
	}

	r, err := s.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "create_route", "route", id, userID, nil, r)
	return r, nil
}

// DuplicateRoute inserts a copy of a route on the same path.
func (s *Store) DuplicateRoute(ctx context.Context, routeID, userID int) (*Route, error) {
	var newID int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO routes (route_name, path_id, shift_time, direction)
		 SELECT route_name || ' (copy)', path_id, shift_time, direction
		   FROM routes WHERE route_id = $1
		 RETURNING route_id`, routeID).Scan(&newID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r, err := s.GetRoute(ctx, newID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "duplicate_route", "route", newID, userID, nil, r)
	return r, nil
}

// RouteDownstream counts the trips scheduled on a route.
func (s *Store) RouteDownstream(ctx context.Context, routeID int) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT count(*) FROM trips WHERE route_id = $1`, routeID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteRoute removes a route.
func (s *Store) DeleteRoute(ctx context.Context, routeID, userID int) error {
	before, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM routes WHERE route_id = $1`, routeID)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "delete_route", "route", routeID, userID, before, nil)
	return nil
}

// RouteValidation is the validate_route report.
type RouteValidation struct {
	RouteID  int      `json:"route_id"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// ValidateRoute checks a route's structural integrity: a path must be
// attached, the path needs at least two stops, and the route should carry a
// shift time.
func (s *Store) ValidateRoute(ctx context.Context, routeID int) (*RouteValidation, error) {
	r, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	v := &RouteValidation{RouteID: routeID}
	if !r.PathID.Valid {
		v.Problems = append(v.Problems, "route has no path attached")
	} else {
		stops, err := s.StopsForPath(ctx, int(r.PathID.Int64))
		if err != nil {
			return nil, err
		}
		if len(stops) < 2 {
			v.Problems = append(v.Problems, fmt.Sprintf("path has only %d stop(s), need at least 2", len(stops)))
		}
	}
	if !r.ShiftTime.Valid || r.ShiftTime.String == "" {
		v.Problems = append(v.Problems, "route has no shift time")
	}
	v.Valid = len(v.Problems) == 0
	return v, nil
}
