package agent

import (
	"context"
	"fmt"

	"github.com/fleetops/movi/pkg/models"
)

// provideVehicleSelection builds the vehicle picker for an assignment that
// arrived without a vehicle: active vehicles free on the trip's date.
func (a *Agent) provideVehicleSelection(ctx context.Context, state *models.FlowState) error {
	if state.Resolved.EntityID == nil {
		state.SetError(models.ErrTripNotFound, "no trip resolved for vehicle selection")
		return nil
	}
	trip, err := a.store.GetTrip(ctx, *state.Resolved.EntityID)
	if err != nil {
		return err
	}

	vehicles, err := a.store.AvailableVehicles(ctx, trip.TripDate)
	if err != nil {
		return err
	}

	state.AwaitingSelection = true
	state.SelectionType = models.SelectionVehicle
	for _, v := range vehicles {
		state.ClarificationOptions = append(state.ClarificationOptions, models.Option{
			ID:          v.VehicleID,
			Label:       v.RegistrationNumber,
			Description: fmt.Sprintf("%d seats, free on %s", v.Capacity, trip.TripDate),
		})
	}
	if len(vehicles) == 0 {
		state.Message = fmt.Sprintf("no vehicles are available on %s", trip.TripDate)
	} else {
		state.Message = fmt.Sprintf("which vehicle for %s?", trip.DisplayName)
	}
	return nil
}

// provideDriverSelection builds the driver picker: drivers whose shift
// covers the trip's time and who are clear of the overlap window.
func (a *Agent) provideDriverSelection(ctx context.Context, state *models.FlowState) error {
	if state.Resolved.EntityID == nil {
		state.SetError(models.ErrTripNotFound, "no trip resolved for driver selection")
		return nil
	}
	trip, err := a.store.GetTrip(ctx, *state.Resolved.EntityID)
	if err != nil {
		return err
	}

	drivers, err := a.store.AvailableDrivers(ctx, trip.TripID)
	if err != nil {
		return err
	}

	state.AwaitingSelection = true
	state.SelectionType = models.SelectionDriver
	for _, d := range drivers {
		desc := "available"
		if d.ShiftStart.Valid && d.ShiftEnd.Valid {
			desc = fmt.Sprintf("shift %s-%s, no conflicting trips", d.ShiftStart.String, d.ShiftEnd.String)
		}
		state.ClarificationOptions = append(state.ClarificationOptions, models.Option{
			ID:          d.DriverID,
			Label:       d.Name,
			Description: desc,
		})
	}
	if len(drivers) == 0 {
		state.Message = fmt.Sprintf("no drivers are free around %s on %s", trip.ScheduledTime, trip.TripDate)
	} else {
		state.Message = fmt.Sprintf("which driver for %s?", trip.DisplayName)
	}
	return nil
}
