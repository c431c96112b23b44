package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/models"
	"github.com/fleetops/movi/pkg/services"
	"github.com/fleetops/movi/pkg/tools"
)

// handlerFunc executes one catalog action against the store. Handlers write
// ExecutionResult and Message on success and capture action-level failures
// on the state; only infrastructure errors propagate.
type handlerFunc func(ctx context.Context, a *Agent, state *models.FlowState) error

// handlers is the dispatch table keyed by action name. Adding an action is a
// catalog entry plus a table entry; the graph never changes.
var handlers = map[string]handlerFunc{
	// Trip.
	"assign_vehicle":             execAssignVehicle,
	"assign_driver":              execAssignDriver,
	"remove_vehicle":             execRemoveVehicle,
	"remove_driver":              execRemoveDriver,
	"cancel_trip":                execCancelTrip,
	"update_trip_time":           execUpdateTripTime,
	"update_trip_status":         execUpdateTripStatus,
	"delay_trip":                 execDelayTrip,
	"reschedule_trip":            execRescheduleTrip,
	"get_trip_status":            execGetTripStatus,
	"get_trip_details":           execGetTripDetails,
	"get_trip_bookings":          execGetTripBookings,
	"check_trip_readiness":       execCheckTripReadiness,
	"duplicate_trip":             execDuplicateTrip,
	"recommend_vehicle_for_trip": execRecommendVehicle,
	"suggest_alternate_vehicle":  execSuggestAlternateVehicle,

	// Vehicle.
	"list_all_vehicles":       execListVehicles,
	"get_unassigned_vehicles": execUnassignedVehicles,
	"get_vehicle_status":      execGetVehicleStatus,
	"get_vehicle_trips_today": execVehicleTripsToday,
	"block_vehicle":           execBlockVehicle,
	"unblock_vehicle":         execUnblockVehicle,
	"add_vehicle":             execAddVehicle,

	// Driver.
	"list_all_drivers":        execListDrivers,
	"get_available_drivers":   execAvailableDrivers,
	"get_driver_status":       execGetDriverStatus,
	"get_driver_trips_today":  execDriverTripsToday,
	"set_driver_availability": execSetDriverAvailability,
	"add_driver":              execAddDriver,
	"find_driver_by_name":     execFindDriverByName,

	// Booking.
	"get_booking_count":   execBookingCount,
	"list_passengers":     execListPassengers,
	"cancel_all_bookings": execCancelAllBookings,
	"find_employee_trips": execFindEmployeeTrips,

	// Configuration.
	"list_all_stops":         execListStops,
	"create_stop":            execCreateStop,
	"rename_stop":            execRenameStop,
	"delete_stop":            execDeleteStop,
	"list_stops_for_path":    execListStopsForPath,
	"update_path_stops":      execUpdatePathStops,
	"delete_path":            execDeletePath,
	"list_all_paths":         execListPaths,
	"list_routes_using_path": execRoutesUsingPath,
	"duplicate_route":        execDuplicateRoute,
	"delete_route":           execDeleteRoute,
	"list_all_routes":        execListRoutes,
	"validate_route":         execValidateRoute,

	// Dashboard intelligence.
	"get_trips_needing_attention": execTripsNeedingAttention,
	"get_today_summary":           execTodaySummary,
	"get_recent_changes":          execRecentChanges,
	"get_high_demand_offices":     execHighDemandOffices,
	"get_most_used_vehicles":      execMostUsedVehicles,
	"detect_overbooking":          execDetectOverbooking,
	"predict_problem_trips":       execPredictProblemTrips,

	// Meta.
	"simulate_action":       execSimulateAction,
	"explain_decision":      execExplainDecision,
	"create_new_route_help": execCreateRouteHelp,
}

// executeAction dispatches the parsed intent to its tool. It refuses to run
// when clarification is outstanding or when a risky action's session has not
// been confirmed; both guard against routing regressions.
func (a *Agent) executeAction(ctx context.Context, state *models.FlowState) error {
	if state.NeedsClarification {
		state.SetError(models.ErrInvalidParameters, "cannot execute while clarification is pending")
		return nil
	}

	action, ok := catalog.Lookup(state.Intent.Action)
	if !ok {
		state.SetError(models.ErrUnknownAction, "I did not recognize that command")
		return nil
	}

	if action.Risk == catalog.RiskRisky && state.PendingSessionID != "" {
		session, err := a.sessions.Get(ctx, state.PendingSessionID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				state.SetError(models.ErrSessionNotPending, "the confirmation session no longer exists")
				return nil
			}
			return err
		}
		if session.Status != models.StatusConfirmed {
			state.SetError(models.ErrSessionNotPending,
				"this action needs a confirmed session before it can run")
			return nil
		}
	}

	handler, ok := handlers[action.Name]
	if !ok {
		state.SetError(models.ErrUnknownAction,
			fmt.Sprintf("no executor for action %q", action.Name))
		return nil
	}
	return handler(ctx, a, state)
}

// ExecutePending runs the snapshotted action of a confirmed session. The
// graph stages that produced the snapshot are not re-run; the handler is
// dispatched directly and the result formatted the same way as a live turn.
func (a *Agent) ExecutePending(ctx context.Context, session *models.Session) (*models.FinalOutput, error) {
	pa := session.PendingAction
	if pa == nil {
		return nil, fmt.Errorf("session %s has no pending action", session.ID)
	}

	state := &models.FlowState{
		UserID: session.UserID,
		Intent: models.Intent{Action: pa.Action, Parameters: pa.Parameters, Confidence: 1},
		Resolved: models.Resolved{
			EntityType: pa.EntityType,
			EntityID:   pa.EntityID,
			Label:      pa.EntityLabel,
		},
		Consequences:     pa.Consequences,
		PendingSessionID: session.ID,
	}

	handler, ok := handlers[pa.Action]
	if !ok {
		state.SetError(models.ErrUnknownAction, fmt.Sprintf("no executor for action %q", pa.Action))
	} else if err := handler(ctx, a, state); err != nil {
		state.SetError(models.ErrDatabase, err.Error())
	}

	if err := a.reportResult(ctx, state); err != nil {
		return nil, err
	}
	return state.FinalOutput, nil
}

// resolvedTripID returns the trip target, falling back to a trip_id
// parameter when the resolver was skipped (the confirm path).
func resolvedTripID(state *models.FlowState) (int, bool) {
	if state.Resolved.EntityType == models.EntityTrip && state.Resolved.EntityID != nil {
		return *state.Resolved.EntityID, true
	}
	return intParam(state.Intent.Parameters, "trip_id")
}

func requireTrip(state *models.FlowState) (int, bool) {
	id, ok := resolvedTripID(state)
	if !ok {
		state.SetError(models.ErrTripNotFound, "no trip resolved for this command")
	}
	return id, ok
}

func requireEntity(state *models.FlowState, entity models.EntityType) (int, bool) {
	if state.Resolved.EntityType == entity && state.Resolved.EntityID != nil {
		return *state.Resolved.EntityID, true
	}
	if id, ok := intParam(state.Intent.Parameters, string(entity)+"_id"); ok {
		return id, true
	}
	state.SetError(models.NotFoundKind(entity), fmt.Sprintf("no %s resolved for this command", entity))
	return 0, false
}

// captureToolError converts an expected tool failure into a state error.
// Unexpected errors pass through and the runtime reroutes to fallback.
func captureToolError(state *models.FlowState, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tools.ErrNotFound) {
		state.SetError(models.NotFoundKind(state.Resolved.EntityType), "the target no longer exists")
		return nil
	}
	var conflict *tools.ErrConflict
	if errors.As(err, &conflict) {
		kind := models.ErrVehicleConflict
		if strings.Contains(conflict.Reason, "driver") {
			kind = models.ErrDriverConflict
		}
		state.SetError(kind, fmt.Sprintf("%s (trips %v)", conflict.Reason, conflict.TripIDs))
		return nil
	}
	return err
}

func setResult(state *models.FlowState, payloadType string, data any, message string) {
	state.ExecutionResult = &models.Payload{Type: payloadType, Data: data}
	state.Message = message
}

func today() string { return time.Now().Format("2006-01-02") }

// Trip handlers.

func execAssignVehicle(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	vehicleID, ok := intParam(state.Intent.Parameters, "vehicle_id")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): vehicle_id")
		return nil
	}
	dep, err := a.store.AssignVehicle(ctx, tripID, vehicleID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", dep, fmt.Sprintf("vehicle %d assigned to trip %d", vehicleID, tripID))
	return nil
}

func execAssignDriver(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	driverID, ok := intParam(state.Intent.Parameters, "driver_id")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): driver_id")
		return nil
	}
	dep, err := a.store.AssignDriver(ctx, tripID, driverID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", dep, fmt.Sprintf("driver %d assigned to trip %d", driverID, tripID))
	return nil
}

func execRemoveVehicle(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	dep, err := a.store.RemoveVehicle(ctx, tripID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", dep, fmt.Sprintf("vehicle removed from trip %d", tripID))
	return nil
}

func execRemoveDriver(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	dep, err := a.store.RemoveDriver(ctx, tripID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", dep, fmt.Sprintf("driver removed from trip %d", tripID))
	return nil
}

func execCancelTrip(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	trip, err := a.store.CancelTrip(ctx, tripID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", trip, fmt.Sprintf("trip %q cancelled", trip.DisplayName))
	return nil
}

func execUpdateTripTime(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	newTime, ok := stringParam(state.Intent.Parameters, "new_time")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): new_time")
		return nil
	}
	trip, err := a.store.UpdateTripTime(ctx, tripID, newTime, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", trip, fmt.Sprintf("trip rescheduled to %s, now %q", newTime, trip.DisplayName))
	return nil
}

func execUpdateTripStatus(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	status, ok := stringParam(state.Intent.Parameters, "status")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): status")
		return nil
	}
	trip, err := a.store.UpdateTripStatus(ctx, tripID, strings.ToUpper(status), state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", trip, fmt.Sprintf("trip %q is now %s", trip.DisplayName, trip.LiveStatus))
	return nil
}

func execDelayTrip(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	minutes, ok := intParam(state.Intent.Parameters, "delay_minutes")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): delay_minutes")
		return nil
	}
	trip, err := a.store.DelayTrip(ctx, tripID, minutes, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", trip, fmt.Sprintf("trip delayed %d minutes, departs %s", minutes, trip.ScheduledTime))
	return nil
}

func execRescheduleTrip(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	newTime, ok := stringParam(state.Intent.Parameters, "new_time")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): new_time")
		return nil
	}
	newDate, ok := stringParam(state.Intent.Parameters, "new_date")
	if !ok {
		// Same-day reschedule: keep the trip's current date.
		current, err := a.store.GetTrip(ctx, tripID)
		if err != nil {
			return captureToolError(state, err)
		}
		newDate = current.TripDate
	}
	trip, err := a.store.RescheduleTrip(ctx, tripID, newDate, newTime, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", trip, fmt.Sprintf("trip moved to %s %s", trip.TripDate, trip.ScheduledTime))
	return nil
}

func execGetTripStatus(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	trip, err := a.store.GetTrip(ctx, tripID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", trip, fmt.Sprintf("%q is %s", trip.DisplayName, trip.LiveStatus))
	return nil
}

func execGetTripDetails(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	details, err := a.store.GetTripDetails(ctx, tripID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", details, fmt.Sprintf("details for %q", details.Trip.DisplayName))
	return nil
}

func execGetTripBookings(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	bookings, err := a.store.ListPassengers(ctx, tripID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "table", bookings, fmt.Sprintf("%d booking(s) on trip %d", len(bookings), tripID))
	return nil
}

func execCheckTripReadiness(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	readiness, err := a.store.CheckTripReadiness(ctx, tripID)
	if err != nil {
		return captureToolError(state, err)
	}
	msg := "trip is ready to depart"
	if !readiness.Ready {
		msg = fmt.Sprintf("trip is missing: %s", strings.Join(readiness.Missing, ", "))
	}
	setResult(state, "object", readiness, msg)
	return nil
}

func execDuplicateTrip(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	trip, err := a.store.DuplicateTrip(ctx, tripID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", trip, fmt.Sprintf("created %q (trip %d)", trip.DisplayName, trip.TripID))
	return nil
}

func execRecommendVehicle(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	v, err := a.store.RecommendVehicle(ctx, tripID)
	if errors.Is(err, tools.ErrNotFound) {
		setResult(state, "object", nil, "no suitable vehicle is available for this trip")
		return nil
	}
	if err != nil {
		return err
	}
	setResult(state, "object", v,
		fmt.Sprintf("recommend %s (%d seats)", v.RegistrationNumber, v.Capacity))
	return nil
}

func execSuggestAlternateVehicle(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	v, err := a.store.SuggestAlternateVehicle(ctx, tripID)
	if errors.Is(err, tools.ErrNotFound) {
		setResult(state, "object", nil, "no alternate vehicle is available")
		return nil
	}
	if err != nil {
		return err
	}
	setResult(state, "object", v,
		fmt.Sprintf("consider %s (%d seats)", v.RegistrationNumber, v.Capacity))
	return nil
}

// Vehicle handlers.

func execListVehicles(ctx context.Context, a *Agent, state *models.FlowState) error {
	vehicles, err := a.store.ListVehicles(ctx)
	if err != nil {
		return err
	}
	setResult(state, "table", vehicles, fmt.Sprintf("%d vehicle(s)", len(vehicles)))
	return nil
}

func execUnassignedVehicles(ctx context.Context, a *Agent, state *models.FlowState) error {
	vehicles, err := a.store.UnassignedVehicles(ctx, today())
	if err != nil {
		return err
	}
	setResult(state, "table", vehicles, fmt.Sprintf("%d vehicle(s) without a deployment today", len(vehicles)))
	return nil
}

func execGetVehicleStatus(ctx context.Context, a *Agent, state *models.FlowState) error {
	vehicleID, ok := requireEntity(state, models.EntityVehicle)
	if !ok {
		return nil
	}
	v, err := a.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", v, fmt.Sprintf("%s is %s", v.RegistrationNumber, v.Status))
	return nil
}

func execVehicleTripsToday(ctx context.Context, a *Agent, state *models.FlowState) error {
	vehicleID, ok := requireEntity(state, models.EntityVehicle)
	if !ok {
		return nil
	}
	trips, err := a.store.VehicleTrips(ctx, vehicleID, today())
	if err != nil {
		return err
	}
	setResult(state, "table", trips, fmt.Sprintf("%d trip(s) today for vehicle %d", len(trips), vehicleID))
	return nil
}

func execBlockVehicle(ctx context.Context, a *Agent, state *models.FlowState) error {
	vehicleID, ok := requireEntity(state, models.EntityVehicle)
	if !ok {
		return nil
	}
	v, err := a.store.SetVehicleStatus(ctx, vehicleID, "blocked", state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", v, fmt.Sprintf("%s is now blocked", v.RegistrationNumber))
	return nil
}

func execUnblockVehicle(ctx context.Context, a *Agent, state *models.FlowState) error {
	vehicleID, ok := requireEntity(state, models.EntityVehicle)
	if !ok {
		return nil
	}
	v, err := a.store.SetVehicleStatus(ctx, vehicleID, "active", state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", v, fmt.Sprintf("%s is active again", v.RegistrationNumber))
	return nil
}

func execAddVehicle(ctx context.Context, a *Agent, state *models.FlowState) error {
	registration, ok := stringParam(state.Intent.Parameters, "registration_number")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): registration_number")
		return nil
	}
	capacity, ok := intParam(state.Intent.Parameters, "capacity")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): capacity")
		return nil
	}
	v, err := a.store.AddVehicle(ctx, registration, capacity, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", v, fmt.Sprintf("registered %s with %d seats", v.RegistrationNumber, v.Capacity))
	return nil
}

// Driver handlers.

func execListDrivers(ctx context.Context, a *Agent, state *models.FlowState) error {
	drivers, err := a.store.ListDrivers(ctx)
	if err != nil {
		return err
	}
	setResult(state, "table", drivers, fmt.Sprintf("%d driver(s)", len(drivers)))
	return nil
}

// execAvailableDrivers lists assignable drivers: scoped to a trip's window
// when a trip is in context, the full roster otherwise.
func execAvailableDrivers(ctx context.Context, a *Agent, state *models.FlowState) error {
	if tripID, ok := resolvedTripID(state); ok {
		drivers, err := a.store.AvailableDrivers(ctx, tripID)
		if err != nil {
			return captureToolError(state, err)
		}
		setResult(state, "table", drivers, fmt.Sprintf("%d driver(s) free for trip %d", len(drivers), tripID))
		return nil
	}
	drivers, err := a.store.ListDrivers(ctx)
	if err != nil {
		return err
	}
	available := drivers[:0]
	for _, d := range drivers {
		if d.Status != "unavailable" {
			available = append(available, d)
		}
	}
	setResult(state, "table", available, fmt.Sprintf("%d driver(s) available", len(available)))
	return nil
}

func execGetDriverStatus(ctx context.Context, a *Agent, state *models.FlowState) error {
	driverID, ok := requireEntity(state, models.EntityDriver)
	if !ok {
		return nil
	}
	d, err := a.store.GetDriver(ctx, driverID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", d, fmt.Sprintf("%s is %s", d.Name, d.Status))
	return nil
}

func execDriverTripsToday(ctx context.Context, a *Agent, state *models.FlowState) error {
	driverID, ok := requireEntity(state, models.EntityDriver)
	if !ok {
		return nil
	}
	trips, err := a.store.DriverTrips(ctx, driverID, today())
	if err != nil {
		return err
	}
	setResult(state, "table", trips, fmt.Sprintf("%d trip(s) today for driver %d", len(trips), driverID))
	return nil
}

func execSetDriverAvailability(ctx context.Context, a *Agent, state *models.FlowState) error {
	driverID, ok := requireEntity(state, models.EntityDriver)
	if !ok {
		return nil
	}
	available, ok := boolParam(state.Intent.Parameters, "available")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): available")
		return nil
	}
	d, err := a.store.SetDriverAvailability(ctx, driverID, available, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", d, fmt.Sprintf("%s is now %s", d.Name, d.Status))
	return nil
}

func execAddDriver(ctx context.Context, a *Agent, state *models.FlowState) error {
	name, ok := stringParam(state.Intent.Parameters, "name")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): name")
		return nil
	}
	shiftStart, _ := stringParam(state.Intent.Parameters, "shift_start")
	shiftEnd, _ := stringParam(state.Intent.Parameters, "shift_end")
	d, err := a.store.AddDriver(ctx, name, shiftStart, shiftEnd, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", d, fmt.Sprintf("registered driver %s (id %d)", d.Name, d.DriverID))
	return nil
}

func execFindDriverByName(ctx context.Context, a *Agent, state *models.FlowState) error {
	name, ok := stringParam(state.Intent.Parameters, "name")
	if !ok {
		name = state.Intent.TargetLabel
	}
	if name == "" {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): name")
		return nil
	}
	drivers, err := a.store.FindDriversByName(ctx, name)
	if err != nil {
		return err
	}
	setResult(state, "table", drivers, fmt.Sprintf("%d driver(s) match %q", len(drivers), name))
	return nil
}

// Booking handlers.

func execBookingCount(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	count, err := a.store.BookingCount(ctx, tripID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", map[string]int{"trip_id": tripID, "booking_count": count},
		fmt.Sprintf("trip %d has %d active booking(s)", tripID, count))
	return nil
}

func execListPassengers(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	passengers, err := a.store.ListPassengers(ctx, tripID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "table", passengers, fmt.Sprintf("%d passenger(s) on trip %d", len(passengers), tripID))
	return nil
}

func execCancelAllBookings(ctx context.Context, a *Agent, state *models.FlowState) error {
	tripID, ok := requireTrip(state)
	if !ok {
		return nil
	}
	count, err := a.store.CancelAllBookings(ctx, tripID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", map[string]int{"trip_id": tripID, "cancelled": count},
		fmt.Sprintf("cancelled %d booking(s) on trip %d", count, tripID))
	return nil
}

func execFindEmployeeTrips(ctx context.Context, a *Agent, state *models.FlowState) error {
	name, ok := stringParam(state.Intent.Parameters, "employee_name")
	if !ok {
		name = state.Intent.TargetLabel
	}
	if name == "" {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): employee_name")
		return nil
	}
	trips, err := a.store.FindEmployeeTrips(ctx, name)
	if err != nil {
		return err
	}
	setResult(state, "table", trips, fmt.Sprintf("%d trip(s) booked by %q", len(trips), name))
	return nil
}

// Configuration handlers.

func execListStops(ctx context.Context, a *Agent, state *models.FlowState) error {
	stops, err := a.store.ListStops(ctx)
	if err != nil {
		return err
	}
	setResult(state, "table", stops, fmt.Sprintf("%d stop(s)", len(stops)))
	return nil
}

func execCreateStop(ctx context.Context, a *Agent, state *models.FlowState) error {
	name, ok := stringParam(state.Intent.Parameters, "name")
	if !ok {
		name = state.Intent.TargetLabel
	}
	if name == "" {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): name")
		return nil
	}
	var lat, lon *float64
	if f, ok := floatParam(state.Intent.Parameters, "latitude"); ok {
		lat = &f
	}
	if f, ok := floatParam(state.Intent.Parameters, "longitude"); ok {
		lon = &f
	}
	stop, err := a.store.CreateStop(ctx, name, lat, lon, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", stop, fmt.Sprintf("created stop %q (id %d)", stop.Name, stop.StopID))
	return nil
}

func execRenameStop(ctx context.Context, a *Agent, state *models.FlowState) error {
	stopID, ok := requireEntity(state, models.EntityStop)
	if !ok {
		return nil
	}
	newName, ok := stringParam(state.Intent.Parameters, "new_name")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): new_name")
		return nil
	}
	stop, err := a.store.RenameStop(ctx, stopID, newName, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", stop, fmt.Sprintf("stop renamed to %q", stop.Name))
	return nil
}

func execDeleteStop(ctx context.Context, a *Agent, state *models.FlowState) error {
	stopID, ok := requireEntity(state, models.EntityStop)
	if !ok {
		return nil
	}
	if err := captureToolError(state, a.store.DeleteStop(ctx, stopID, state.UserID)); err != nil {
		return err
	}
	if state.Error != nil {
		return nil
	}
	setResult(state, "object", map[string]int{"stop_id": stopID}, fmt.Sprintf("stop %d deleted", stopID))
	return nil
}

func execListStopsForPath(ctx context.Context, a *Agent, state *models.FlowState) error {
	pathID, ok := requireEntity(state, models.EntityPath)
	if !ok {
		return nil
	}
	stops, err := a.store.StopsForPath(ctx, pathID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "table", stops, fmt.Sprintf("%d stop(s) on path %d", len(stops), pathID))
	return nil
}

func execUpdatePathStops(ctx context.Context, a *Agent, state *models.FlowState) error {
	pathID, ok := requireEntity(state, models.EntityPath)
	if !ok {
		return nil
	}
	stopIDs := intSlice(state.Intent.Parameters["stop_ids"])
	if len(stopIDs) < 2 {
		state.SetError(models.ErrInvalidParameters, "stop_ids must name at least 2 stops in order")
		return nil
	}
	if err := captureToolError(state, a.store.UpdatePathStops(ctx, pathID, stopIDs, state.UserID)); err != nil {
		return err
	}
	if state.Error != nil {
		return nil
	}
	setResult(state, "object", map[string]any{"path_id": pathID, "stop_ids": stopIDs},
		fmt.Sprintf("path %d now has %d stops", pathID, len(stopIDs)))
	return nil
}

func execDeletePath(ctx context.Context, a *Agent, state *models.FlowState) error {
	pathID, ok := requireEntity(state, models.EntityPath)
	if !ok {
		return nil
	}
	if err := captureToolError(state, a.store.DeletePath(ctx, pathID, state.UserID)); err != nil {
		return err
	}
	if state.Error != nil {
		return nil
	}
	setResult(state, "object", map[string]int{"path_id": pathID}, fmt.Sprintf("path %d deleted", pathID))
	return nil
}

func execListPaths(ctx context.Context, a *Agent, state *models.FlowState) error {
	paths, err := a.store.ListPaths(ctx)
	if err != nil {
		return err
	}
	setResult(state, "table", paths, fmt.Sprintf("%d path(s)", len(paths)))
	return nil
}

func execRoutesUsingPath(ctx context.Context, a *Agent, state *models.FlowState) error {
	pathID, ok := requireEntity(state, models.EntityPath)
	if !ok {
		return nil
	}
	routes, err := a.store.RoutesUsingPath(ctx, pathID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "table", routes, fmt.Sprintf("%d route(s) use path %d", len(routes), pathID))
	return nil
}

func execDuplicateRoute(ctx context.Context, a *Agent, state *models.FlowState) error {
	routeID, ok := requireEntity(state, models.EntityRoute)
	if !ok {
		return nil
	}
	route, err := a.store.DuplicateRoute(ctx, routeID, state.UserID)
	if err != nil {
		return captureToolError(state, err)
	}
	setResult(state, "object", route, fmt.Sprintf("created %q (route %d)", route.RouteName, route.RouteID))
	return nil
}

func execDeleteRoute(ctx context.Context, a *Agent, state *models.FlowState) error {
	routeID, ok := requireEntity(state, models.EntityRoute)
	if !ok {
		return nil
	}
	if err := captureToolError(state, a.store.DeleteRoute(ctx, routeID, state.UserID)); err != nil {
		return err
	}
	if state.Error != nil {
		return nil
	}
	setResult(state, "object", map[string]int{"route_id": routeID}, fmt.Sprintf("route %d deleted", routeID))
	return nil
}

func execListRoutes(ctx context.Context, a *Agent, state *models.FlowState) error {
	routes, err := a.store.ListRoutes(ctx)
	if err != nil {
		return err
	}
	setResult(state, "table", routes, fmt.Sprintf("%d route(s)", len(routes)))
	return nil
}

func execValidateRoute(ctx context.Context, a *Agent, state *models.FlowState) error {
	routeID, ok := requireEntity(state, models.EntityRoute)
	if !ok {
		return nil
	}
	validation, err := a.store.ValidateRoute(ctx, routeID)
	if err != nil {
		return captureToolError(state, err)
	}
	msg := "route configuration is valid"
	if len(validation.Problems) > 0 {
		msg = fmt.Sprintf("route has %d problem(s): %s", len(validation.Problems), strings.Join(validation.Problems, "; "))
	}
	setResult(state, "object", validation, msg)
	return nil
}

// Dashboard handlers.

func execTripsNeedingAttention(ctx context.Context, a *Agent, state *models.FlowState) error {
	trips, err := a.store.TripsNeedingAttention(ctx, today())
	if err != nil {
		return err
	}
	setResult(state, "table", trips, fmt.Sprintf("%d trip(s) need attention today", len(trips)))
	return nil
}

func execTodaySummary(ctx context.Context, a *Agent, state *models.FlowState) error {
	summary, err := a.store.GetTodaySummary(ctx, today())
	if err != nil {
		return err
	}
	setResult(state, "object", summary, "today's operations summary")
	return nil
}

func execRecentChanges(ctx context.Context, a *Agent, state *models.FlowState) error {
	limit, _ := intParam(state.Intent.Parameters, "limit")
	changes, err := a.store.RecentChanges(ctx, limit)
	if err != nil {
		return err
	}
	setResult(state, "table", changes, fmt.Sprintf("%d recent change(s)", len(changes)))
	return nil
}

func execHighDemandOffices(ctx context.Context, a *Agent, state *models.FlowState) error {
	limit, _ := intParam(state.Intent.Parameters, "limit")
	offices, err := a.store.HighDemandOffices(ctx, limit)
	if err != nil {
		return err
	}
	setResult(state, "table", offices, fmt.Sprintf("top %d office(s) by demand", len(offices)))
	return nil
}

func execMostUsedVehicles(ctx context.Context, a *Agent, state *models.FlowState) error {
	limit, _ := intParam(state.Intent.Parameters, "limit")
	usage, err := a.store.MostUsedVehicles(ctx, limit)
	if err != nil {
		return err
	}
	setResult(state, "table", usage, fmt.Sprintf("top %d vehicle(s) by deployments", len(usage)))
	return nil
}

func execDetectOverbooking(ctx context.Context, a *Agent, state *models.FlowState) error {
	overbooked, err := a.store.DetectOverbooking(ctx, today())
	if err != nil {
		return err
	}
	msg := "no trips are overbooked today"
	if len(overbooked) > 0 {
		msg = fmt.Sprintf("%d trip(s) are overbooked", len(overbooked))
	}
	setResult(state, "table", overbooked, msg)
	return nil
}

func execPredictProblemTrips(ctx context.Context, a *Agent, state *models.FlowState) error {
	problems, err := a.store.PredictProblemTrips(ctx, today())
	if err != nil {
		return err
	}
	setResult(state, "table", problems, fmt.Sprintf("%d trip(s) likely to have problems", len(problems)))
	return nil
}

// Meta handlers.

// execSimulateAction previews the consequences an action would trigger,
// reusing the consequence queries against the named target. Read-only: no
// session is created and nothing is written.
func execSimulateAction(ctx context.Context, a *Agent, state *models.FlowState) error {
	target, ok := stringParam(state.Intent.Parameters, "action")
	if !ok {
		state.SetError(models.ErrMissingParameters, "missing required parameter(s): action")
		return nil
	}
	action, found := catalog.Lookup(target)
	if !found {
		state.SetError(models.ErrUnknownAction, fmt.Sprintf("cannot simulate unknown action %q", target))
		return nil
	}

	preview := map[string]any{
		"action": action.Name,
		"risk":   action.Risk,
	}
	if tripID, ok := intParam(state.Intent.Parameters, "trip_id"); ok {
		c, err := a.store.TripConsequences(ctx, tripID)
		if errors.Is(err, tools.ErrNotFound) {
			state.SetError(models.ErrTripNotFound, fmt.Sprintf("trip %d does not exist", tripID))
			return nil
		}
		if err != nil {
			return err
		}
		preview["consequences"] = c
		state.Consequences = c
	}

	verdict := "would execute immediately"
	if action.Risk == catalog.RiskRisky && state.Consequences != nil &&
		(state.Consequences.BookingCount > 0 || state.Consequences.LiveStatus == "IN_PROGRESS") {
		verdict = "would require confirmation"
	}
	preview["verdict"] = verdict
	setResult(state, "object", preview, fmt.Sprintf("%s %s", action.Name, verdict))
	return nil
}

func execExplainDecision(_ context.Context, _ *Agent, state *models.FlowState) error {
	setResult(state, "help", map[string]any{
		"risk_policy": "Actions that can lose bookings, break deployments, or delete configuration " +
			"with dependents are held behind a confirmation session. Queries and additive " +
			"creations run immediately.",
		"confirmation_triggers": []string{
			"active bookings on the trip",
			"trip already in progress",
			"existing vehicle or driver deployment",
			"downstream paths, routes, or trips",
		},
	}, "how risky actions are gated")
	return nil
}

func execCreateRouteHelp(_ context.Context, _ *Agent, state *models.FlowState) error {
	setResult(state, "help", map[string]any{
		"steps": []string{
			"Create the stops the route will serve (create stop <name>)",
			"Create a path ordering those stops (create path)",
			"Create the route on that path with a shift time and direction (create route)",
			"Schedule trips on the route from the dashboard",
		},
	}, "route creation walkthrough")
	return nil
}

// boolParam reads a boolean parameter, coercing common string forms.
func boolParam(params map[string]any, key string) (bool, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	}
	return false, false
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	}
	return 0, false
}
