package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/models"
)

// tripConfirmActions require confirmation whenever the trip carries active
// bookings or is already under way.
var tripConfirmActions = map[string]bool{
	"cancel_trip":         true,
	"remove_vehicle":      true,
	"remove_driver":       true,
	"update_trip_time":    true,
	"update_trip_status":  true,
	"delay_trip":          true,
	"reschedule_trip":     true,
	"cancel_all_bookings": true,
}

// deleteActions gate on downstream dependents instead.
var deleteActions = map[string]bool{
	"delete_stop":  true,
	"delete_path":  true,
	"delete_route": true,
}

// checkConsequences computes the impact of a proposed mutation and, when
// the decision rules demand it, blocks the action behind a durable
// pending-confirmation session. This node never mutates the domain tables.
func (a *Agent) checkConsequences(ctx context.Context, state *models.FlowState) error {
	if state.Error != nil || state.NeedsClarification {
		return nil
	}

	action, ok := catalog.Lookup(state.Intent.Action)
	if !ok || action.Risk == catalog.RiskSafe || action.Category != catalog.CategoryMutate {
		return nil
	}

	switch {
	case action.Name == "assign_vehicle":
		return a.checkAssignVehicle(ctx, state)
	case tripConfirmActions[action.Name] && action.TargetEntity == models.EntityTrip:
		return a.checkTripMutation(ctx, state)
	case deleteActions[action.Name]:
		return a.checkDelete(ctx, state)
	default:
		return a.checkTargetInUse(ctx, state)
	}
}

func (a *Agent) checkAssignVehicle(ctx context.Context, state *models.FlowState) error {
	if state.Resolved.EntityID == nil {
		state.SetError(models.ErrTripNotFound, "no trip resolved for assignment")
		return nil
	}
	tripID := *state.Resolved.EntityID

	c, err := a.store.TripConsequences(ctx, tripID)
	if err != nil {
		return err
	}
	state.Consequences = c

	// Availability check up front, so the operator is not asked to
	// confirm an assignment that cannot succeed anyway.
	if vehicleID, ok := intParam(state.Intent.Parameters, "vehicle_id"); ok {
		trip, err := a.store.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		conflicts, err := a.store.VehicleConflicts(ctx, vehicleID, trip.TripDate, tripID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			state.SetError(models.ErrVehicleConflict,
				fmt.Sprintf("vehicle %d is already deployed on %s (trips %v)",
					vehicleID, trip.TripDate, conflicts))
			return nil
		}
	}

	if c.HasDeployment {
		return a.blockForConfirmation(ctx, state,
			"this trip already has a deployment, replacing it needs confirmation")
	}
	return nil
}

func (a *Agent) checkTripMutation(ctx context.Context, state *models.FlowState) error {
	if state.Resolved.EntityID == nil {
		state.SetError(models.ErrTripNotFound, "no trip resolved")
		return nil
	}

	c, err := a.store.TripConsequences(ctx, *state.Resolved.EntityID)
	if err != nil {
		return err
	}
	state.Consequences = c

	if c.BookingCount > 0 || c.LiveStatus == "IN_PROGRESS" {
		return a.blockForConfirmation(ctx, state,
			fmt.Sprintf("%s affects %d active booking(s)", state.Intent.Action, c.BookingCount))
	}
	return nil
}

func (a *Agent) checkDelete(ctx context.Context, state *models.FlowState) error {
	if state.Resolved.EntityID == nil {
		state.SetError(models.NotFoundKind(state.Resolved.EntityType), "nothing resolved to delete")
		return nil
	}
	id := *state.Resolved.EntityID

	var downstream int
	var what string
	var err error
	switch state.Intent.Action {
	case "delete_stop":
		downstream, err = a.store.StopDownstream(ctx, id)
		what = "path(s) include this stop"
	case "delete_path":
		downstream, err = a.store.PathDownstream(ctx, id)
		what = "route(s) are built on this path"
	default:
		downstream, err = a.store.RouteDownstream(ctx, id)
		what = "trip(s) are scheduled on this route"
	}
	if err != nil {
		return err
	}

	state.Consequences = &models.Consequences{Downstream: downstream}
	if downstream > 0 {
		state.Consequences.Warnings = []string{fmt.Sprintf("%d %s", downstream, what)}
		return a.blockForConfirmation(ctx, state,
			fmt.Sprintf("%d %s, deleting needs confirmation", downstream, what))
	}
	return nil
}

// checkTargetInUse covers the remaining risky mutations (block_vehicle,
// unblock_vehicle, set_driver_availability): confirmation is needed only
// when the target is deployed today.
func (a *Agent) checkTargetInUse(ctx context.Context, state *models.FlowState) error {
	if state.Resolved.EntityID == nil {
		state.SetError(models.ErrInvalidParameters, "no target resolved")
		return nil
	}
	id := *state.Resolved.EntityID
	today := time.Now().Format("2006-01-02")

	var deployed int
	var err error
	switch state.Resolved.EntityType {
	case models.EntityVehicle:
		trips, terr := a.store.VehicleTrips(ctx, id, today)
		deployed, err = len(trips), terr
	case models.EntityDriver:
		trips, terr := a.store.DriverTrips(ctx, id, today)
		deployed, err = len(trips), terr
	}
	if err != nil {
		return err
	}

	state.Consequences = &models.Consequences{Downstream: deployed}
	if deployed > 0 {
		return a.blockForConfirmation(ctx, state,
			fmt.Sprintf("%s is deployed to %d trip(s) today", state.Resolved.Label, deployed))
	}
	return nil
}

// blockForConfirmation snapshots the action into a durable session and
// flags the state so the formatter emits awaiting_confirmation.
func (a *Agent) blockForConfirmation(ctx context.Context, state *models.FlowState, reason string) error {
	pa := &models.PendingAction{
		Action:       state.Intent.Action,
		Parameters:   state.Intent.Parameters,
		EntityType:   state.Resolved.EntityType,
		EntityID:     state.Resolved.EntityID,
		EntityLabel:  state.Resolved.Label,
		Consequences: state.Consequences,
	}
	session, err := a.sessions.CreatePendingConfirmation(ctx, state.UserID, pa)
	if err != nil {
		return fmt.Errorf("failed to persist pending confirmation: %w", err)
	}

	state.NeedsConfirmation = true
	state.PendingSessionID = session.ID
	state.Message = reason
	return nil
}
