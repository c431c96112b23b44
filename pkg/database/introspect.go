package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// requiredColumns lists every physical column the tool catalog names in SQL.
// A rename in the schema (stop_name vs name, license_plate vs
// registration_number) is rejected here, at boot, instead of surfacing as a
// runtime SQL error on first use.
var requiredColumns = map[string][]string{
	"stops":          {"stop_id", "name", "latitude", "longitude"},
	"paths":          {"path_id", "path_name"},
	"path_stops":     {"path_id", "stop_id", "stop_order"},
	"routes":         {"route_id", "route_name", "path_id", "shift_time", "direction"},
	"vehicles":       {"vehicle_id", "registration_number", "capacity", "status"},
	"drivers":        {"driver_id", "name", "shift_start", "shift_end"},
	"trips":          {"trip_id", "display_name", "route_id", "trip_date", "scheduled_time", "live_status"},
	"deployments":    {"deployment_id", "trip_id", "vehicle_id", "driver_id", "deployment_date"},
	"bookings":       {"booking_id", "trip_id", "employee_name", "office", "status"},
	"agent_sessions": {"session_id", "user_id", "kind", "status", "expires_at"},
	"audit_log":      {"audit_id", "action", "entity_type", "entity_id", "user_id"},
}

// ValidateSchema checks that every column the tool catalog depends on exists
// in the physical schema. Optional columns (drivers.status) are deliberately
// absent from requiredColumns; callers probe those with HasColumn.
func ValidateSchema(ctx context.Context, c *Client) error {
	tables := make([]string, 0, len(requiredColumns))
	for t := range requiredColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	query, args, err := buildColumnQuery(tables)
	if err != nil {
		return err
	}

	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to introspect schema: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("failed to scan column row: %w", err)
		}
		present[table+"."+column] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read column rows: %w", err)
	}

	var missing []string
	for _, table := range tables {
		for _, column := range requiredColumns[table] {
			if !present[table+"."+column] {
				missing = append(missing, table+"."+column)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("schema is missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func buildColumnQuery(tables []string) (string, []any, error) {
	placeholders := make([]string, len(tables))
	args := make([]any, len(tables))
	for i, t := range tables {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = t
	}
	query := fmt.Sprintf(
		`SELECT table_name, column_name
		   FROM information_schema.columns
		  WHERE table_schema = current_schema()
		    AND table_name IN (%s)`,
		strings.Join(placeholders, ", "),
	)
	return query, args, nil
}

// HasColumn reports whether a table carries a column. Used for
// schema-resilient projections over columns that may not exist in every
// deployment (for example drivers.status).
func (c *Client) HasColumn(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := c.QueryRowContext(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM information_schema.columns
		     WHERE table_schema = current_schema()
		       AND table_name = $1 AND column_name = $2
		 )`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	return exists, nil
}
