package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/models"
	"github.com/fleetops/movi/pkg/tools"
)

// vaguePhrases are references that only make sense against the UI's current
// selection ("cancel this trip", "assign a vehicle to it").
var vaguePhrases = map[string]bool{
	"this": true, "it": true, "that": true,
	"this trip": true, "that trip": true, "the trip": true,
	"this one": true, "current trip": true, "selected trip": true,
}

// resolveTarget turns the parsed intent into a concrete database target.
// The ladder, in priority order: the UI selection when the text came from
// OCR, an explicit id (LLM or structured parameter), the extracted label,
// the UI's current selection for vague references, and finally an id
// pattern in the raw text. Configuration entities never fall back to trip
// resolution.
func (a *Agent) resolveTarget(ctx context.Context, state *models.FlowState) error {
	if state.Error != nil || state.NeedsClarification {
		return nil
	}

	action, ok := catalog.Lookup(state.Intent.Action)
	if !ok || action.TargetFree() {
		state.ResolveResult = models.ResolveSkipped
		return nil
	}

	switch action.TargetEntity {
	case models.EntityTrip:
		return a.resolveTrip(ctx, state)
	case models.EntityRoute, models.EntityPath, models.EntityStop:
		return a.resolveConfigEntity(ctx, state, action.TargetEntity)
	case models.EntityVehicle:
		return a.resolveVehicle(ctx, state)
	case models.EntityDriver:
		return a.resolveDriver(ctx, state)
	default:
		state.ResolveResult = models.ResolveSkipped
		return nil
	}
}

func (a *Agent) resolveTrip(ctx context.Context, state *models.FlowState) error {
	intent := &state.Intent

	// OCR-sourced turns carry the UI's own trip match; it outranks whatever
	// the parser extracted from the noisy text.
	if state.FromImage && state.SelectedTripID != nil {
		trip, err := a.store.GetTrip(ctx, *state.SelectedTripID)
		if errors.Is(err, tools.ErrNotFound) {
			state.ResolveResult = models.ResolveNotFound
			state.SetError(models.ErrTripNotFound, "the selected trip no longer exists")
			return nil
		}
		if err != nil {
			return err
		}
		a.setResolved(state, models.EntityTrip, trip.TripID, trip.DisplayName)
		return nil
	}

	// Explicit ids next: LLM extraction, then structured parameters.
	tripID := intent.TargetTripID
	if tripID == nil {
		if id, ok := intParam(intent.Parameters, "trip_id"); ok {
			tripID = &id
		}
	}
	if tripID != nil {
		trip, err := a.store.GetTrip(ctx, *tripID)
		if errors.Is(err, tools.ErrNotFound) {
			state.ResolveResult = models.ResolveNotFound
			state.SetError(models.ErrTripNotFound, fmt.Sprintf("trip %d does not exist", *tripID))
			return nil
		}
		if err != nil {
			return err
		}
		a.setResolved(state, models.EntityTrip, trip.TripID, trip.DisplayName)
		return nil
	}

	if label := intent.TargetLabel; label != "" && !vaguePhrases[strings.ToLower(label)] {
		trips, err := a.store.FindTripsByLabel(ctx, label)
		if err != nil {
			return err
		}
		switch len(trips) {
		case 0:
			// Fall through the ladder.
		case 1:
			a.setResolved(state, models.EntityTrip, trips[0].TripID, trips[0].DisplayName)
			return nil
		default:
			a.setAmbiguousTrips(state, trips)
			return nil
		}
	}

	if intent.TargetTime != "" && tools.ValidHHMM(intent.TargetTime) {
		trips, err := a.store.SearchTrips(ctx, intent.TargetTime)
		if err != nil {
			return err
		}
		trips = filterTripsByDate(trips, time.Now().Format("2006-01-02"))
		switch len(trips) {
		case 0:
		case 1:
			a.setResolved(state, models.EntityTrip, trips[0].TripID, trips[0].DisplayName)
			return nil
		default:
			a.setAmbiguousTrips(state, trips)
			return nil
		}
	}

	// Vague reference: lean on what the UI has selected.
	label := strings.ToLower(intent.TargetLabel)
	if state.SelectedTripID != nil && (label == "" || vaguePhrases[label]) {
		trip, err := a.store.GetTrip(ctx, *state.SelectedTripID)
		if errors.Is(err, tools.ErrNotFound) {
			state.ResolveResult = models.ResolveNotFound
			state.SetError(models.ErrTripNotFound, "the selected trip no longer exists")
			return nil
		}
		if err != nil {
			return err
		}
		a.setResolved(state, models.EntityTrip, trip.TripID, trip.DisplayName)
		return nil
	}

	// Last rung: an id pattern buried in the raw text.
	if m := tripIDPattern.FindStringSubmatch(state.InputText); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil {
			trip, lookupErr := a.store.GetTrip(ctx, id)
			if lookupErr == nil {
				a.setResolved(state, models.EntityTrip, trip.TripID, trip.DisplayName)
				return nil
			}
			if !errors.Is(lookupErr, tools.ErrNotFound) {
				return lookupErr
			}
		}
	}

	state.ResolveResult = models.ResolveNotFound
	state.SetError(models.ErrTripNotFound, "I could not find which trip you mean, try the trip name or id")
	return nil
}

func (a *Agent) resolveConfigEntity(ctx context.Context, state *models.FlowState, entity models.EntityType) error {
	intent := &state.Intent
	idKey := string(entity) + "_id"

	if id, ok := intParam(intent.Parameters, idKey); ok {
		label, err := a.configEntityLabel(ctx, entity, id)
		if errors.Is(err, tools.ErrNotFound) {
			state.ResolveResult = models.ResolveNotFound
			state.SetError(models.NotFoundKind(entity), fmt.Sprintf("%s %d does not exist", entity, id))
			return nil
		}
		if err != nil {
			return err
		}
		a.setResolved(state, entity, id, label)
		return nil
	}

	label := intent.TargetLabel
	if label == "" {
		if entity == models.EntityRoute && state.SelectedRouteID != nil {
			routeLabel, err := a.configEntityLabel(ctx, entity, *state.SelectedRouteID)
			if err == nil {
				a.setResolved(state, entity, *state.SelectedRouteID, routeLabel)
				return nil
			}
			if !errors.Is(err, tools.ErrNotFound) {
				return err
			}
		}
		state.ResolveResult = models.ResolveNotFound
		state.SetError(models.NotFoundKind(entity), fmt.Sprintf("which %s do you mean?", entity))
		return nil
	}

	ids, labels, err := a.findConfigEntities(ctx, entity, label)
	if err != nil {
		return err
	}
	switch len(ids) {
	case 0:
		state.ResolveResult = models.ResolveNotFound
		state.SetError(models.NotFoundKind(entity), fmt.Sprintf("no %s named %q", entity, label))
	case 1:
		a.setResolved(state, entity, ids[0], labels[0])
	default:
		state.ResolveResult = models.ResolveAmbiguous
		state.NeedsClarification = true
		for i := range ids {
			state.ClarificationOptions = append(state.ClarificationOptions,
				models.Option{ID: ids[i], Label: labels[i]})
		}
		state.Message = fmt.Sprintf("several %ss match %q, which one?", entity, label)
	}
	return nil
}

func (a *Agent) configEntityLabel(ctx context.Context, entity models.EntityType, id int) (string, error) {
	switch entity {
	case models.EntityRoute:
		r, err := a.store.GetRoute(ctx, id)
		if err != nil {
			return "", err
		}
		return r.RouteName, nil
	case models.EntityPath:
		p, err := a.store.GetPath(ctx, id)
		if err != nil {
			return "", err
		}
		return p.PathName, nil
	default:
		st, err := a.store.GetStop(ctx, id)
		if err != nil {
			return "", err
		}
		return st.Name, nil
	}
}

func (a *Agent) findConfigEntities(ctx context.Context, entity models.EntityType, label string) ([]int, []string, error) {
	var ids []int
	var labels []string
	switch entity {
	case models.EntityRoute:
		routes, err := a.store.FindRoutesByName(ctx, label)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range routes {
			ids = append(ids, r.RouteID)
			labels = append(labels, r.RouteName)
		}
	case models.EntityPath:
		paths, err := a.store.FindPathsByName(ctx, label)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range paths {
			ids = append(ids, p.PathID)
			labels = append(labels, p.PathName)
		}
	default:
		stops, err := a.store.FindStopsByName(ctx, label)
		if err != nil {
			return nil, nil, err
		}
		for _, st := range stops {
			ids = append(ids, st.StopID)
			labels = append(labels, st.Name)
		}
	}
	return ids, labels, nil
}

func (a *Agent) resolveVehicle(ctx context.Context, state *models.FlowState) error {
	intent := &state.Intent

	if id, ok := intParam(intent.Parameters, "vehicle_id"); ok {
		v, err := a.store.GetVehicle(ctx, id)
		if errors.Is(err, tools.ErrNotFound) {
			state.ResolveResult = models.ResolveNotFound
			state.SetError(models.ErrInvalidParameters, fmt.Sprintf("vehicle %d does not exist", id))
			return nil
		}
		if err != nil {
			return err
		}
		a.setResolved(state, models.EntityVehicle, v.VehicleID, v.RegistrationNumber)
		return nil
	}

	if label := intent.TargetLabel; label != "" {
		v, err := a.store.FindVehicleByRegistration(ctx, label)
		if err == nil {
			a.setResolved(state, models.EntityVehicle, v.VehicleID, v.RegistrationNumber)
			return nil
		}
		if !errors.Is(err, tools.ErrNotFound) {
			return err
		}
	}

	state.ResolveResult = models.ResolveNotFound
	state.SetError(models.ErrInvalidParameters, "which vehicle? give its registration number")
	return nil
}

func (a *Agent) resolveDriver(ctx context.Context, state *models.FlowState) error {
	intent := &state.Intent

	if id, ok := intParam(intent.Parameters, "driver_id"); ok {
		d, err := a.store.GetDriver(ctx, id)
		if errors.Is(err, tools.ErrNotFound) {
			state.ResolveResult = models.ResolveNotFound
			state.SetError(models.ErrInvalidParameters, fmt.Sprintf("driver %d does not exist", id))
			return nil
		}
		if err != nil {
			return err
		}
		a.setResolved(state, models.EntityDriver, d.DriverID, d.Name)
		return nil
	}

	label := intent.TargetLabel
	if label == "" {
		if name, ok := stringParam(intent.Parameters, "name"); ok {
			label = name
		}
	}
	if label != "" {
		drivers, err := a.store.FindDriversByName(ctx, label)
		if err != nil {
			return err
		}
		switch len(drivers) {
		case 0:
			state.ResolveResult = models.ResolveNotFound
			state.SetError(models.ErrInvalidParameters, fmt.Sprintf("no driver named %q", label))
		case 1:
			a.setResolved(state, models.EntityDriver, drivers[0].DriverID, drivers[0].Name)
		default:
			state.ResolveResult = models.ResolveAmbiguous
			state.NeedsClarification = true
			for _, d := range drivers {
				state.ClarificationOptions = append(state.ClarificationOptions,
					models.Option{ID: d.DriverID, Label: d.Name})
			}
			state.Message = fmt.Sprintf("several drivers match %q, which one?", label)
		}
		return nil
	}

	state.ResolveResult = models.ResolveNotFound
	state.SetError(models.ErrInvalidParameters, "which driver? give a name")
	return nil
}

func (a *Agent) setResolved(state *models.FlowState, entity models.EntityType, id int, label string) {
	state.ResolveResult = models.ResolveFound
	state.Resolved = models.Resolved{EntityType: entity, EntityID: &id, Label: label}
}

func (a *Agent) setAmbiguousTrips(state *models.FlowState, trips []tools.Trip) {
	state.ResolveResult = models.ResolveAmbiguous
	state.NeedsClarification = true
	state.SelectionType = models.SelectionTrip
	for _, t := range trips {
		state.ClarificationOptions = append(state.ClarificationOptions, models.Option{
			ID:          t.TripID,
			Label:       t.DisplayName,
			Description: fmt.Sprintf("%s %s", t.TripDate, t.ScheduledTime),
		})
	}
	state.Message = "several trips match, which one?"
}

func filterTripsByDate(trips []tools.Trip, date string) []tools.Trip {
	out := trips[:0]
	for _, t := range trips {
		if t.TripDate == date {
			out = append(out, t)
		}
	}
	return out
}

// intParam reads an integer-valued parameter, coercing JSON floats and
// numeric strings.
func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok && s != "" {
		return s, true
	}
	return "", false
}
