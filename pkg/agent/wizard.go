package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/models"
	"github.com/fleetops/movi/pkg/tools"
)

// cancelWords abort a wizard from any step.
var cancelWords = map[string]bool{"cancel": true, "abort": true, "stop": true, "quit": true, "nevermind": true}

// wizardStep is one declared step of a flow: what to collect, how to ask,
// and how to validate the answer.
type wizardStep struct {
	Key      string
	Prompt   string
	Validate func(ctx context.Context, a *Agent, ws *models.WizardState, input string) (any, error)
	// Options, when set, supplies picker choices alongside the prompt.
	Options func(ctx context.Context, a *Agent, ws *models.WizardState) ([]models.Option, error)
}

func textStep(key, prompt string) wizardStep {
	return wizardStep{
		Key:    key,
		Prompt: prompt,
		Validate: func(_ context.Context, _ *Agent, _ *models.WizardState, input string) (any, error) {
			if strings.TrimSpace(input) == "" {
				return nil, fmt.Errorf("a value is required")
			}
			return strings.TrimSpace(input), nil
		},
	}
}

func timeStep(key, prompt string) wizardStep {
	return wizardStep{
		Key:    key,
		Prompt: prompt,
		Validate: func(_ context.Context, _ *Agent, _ *models.WizardState, input string) (any, error) {
			t := strings.TrimSpace(input)
			if !tools.ValidHHMM(t) {
				return nil, fmt.Errorf("%q is not a valid time, use HH:MM", t)
			}
			return t, nil
		},
	}
}

func confirmStep() wizardStep {
	return wizardStep{
		Key:    "confirm",
		Prompt: "Everything look right? (yes/no)",
		Validate: func(_ context.Context, _ *Agent, _ *models.WizardState, input string) (any, error) {
			switch strings.ToLower(strings.TrimSpace(input)) {
			case "yes", "y", "confirm", "ok":
				return true, nil
			case "no", "n":
				return nil, errAbort
			default:
				return nil, fmt.Errorf("please answer yes or no")
			}
		},
	}
}

// errAbort signals a negative confirm answer; the wizard cancels cleanly.
var errAbort = fmt.Errorf("wizard aborted")

// errLaunchPath signals that the route wizard should detour into path
// creation before picking a path.
var errLaunchPath = fmt.Errorf("launch path wizard")

var wizardFlows = map[models.WizardFlow][]wizardStep{
	models.WizardTripCreation: {
		textStep("name", "What should the trip be called?"),
		{
			Key:    "date",
			Prompt: "What date? (YYYY-MM-DD)",
			Validate: func(_ context.Context, _ *Agent, _ *models.WizardState, input string) (any, error) {
				d := strings.TrimSpace(input)
				if len(d) != 10 || d[4] != '-' || d[7] != '-' {
					return nil, fmt.Errorf("%q is not a valid date, use YYYY-MM-DD", d)
				}
				return d, nil
			},
		},
		timeStep("time", "What time? (HH:MM)"),
		{
			Key:    "route_id",
			Prompt: "Which route?",
			Validate: func(ctx context.Context, a *Agent, _ *models.WizardState, input string) (any, error) {
				return a.pickRoute(ctx, input)
			},
			Options: func(ctx context.Context, a *Agent, _ *models.WizardState) ([]models.Option, error) {
				routes, err := a.store.ListRoutes(ctx)
				if err != nil {
					return nil, err
				}
				opts := make([]models.Option, 0, len(routes))
				for _, r := range routes {
					opts = append(opts, models.Option{ID: r.RouteID, Label: r.RouteName})
				}
				return opts, nil
			},
		},
		{
			Key:    "vehicle_id",
			Prompt: "Which vehicle? (or 'skip')",
			Validate: func(ctx context.Context, a *Agent, _ *models.WizardState, input string) (any, error) {
				return a.pickVehicle(ctx, input)
			},
			Options: func(ctx context.Context, a *Agent, ws *models.WizardState) ([]models.Option, error) {
				date, _ := ws.Collected["date"].(string)
				vehicles, err := a.store.AvailableVehicles(ctx, date)
				if err != nil {
					return nil, err
				}
				opts := make([]models.Option, 0, len(vehicles))
				for _, v := range vehicles {
					opts = append(opts, models.Option{
						ID:          v.VehicleID,
						Label:       v.RegistrationNumber,
						Description: fmt.Sprintf("%d seats", v.Capacity),
					})
				}
				return opts, nil
			},
		},
		{
			Key:    "driver_id",
			Prompt: "Which driver? (or 'skip')",
			Validate: func(ctx context.Context, a *Agent, _ *models.WizardState, input string) (any, error) {
				return a.pickDriver(ctx, input)
			},
			Options: func(ctx context.Context, a *Agent, _ *models.WizardState) ([]models.Option, error) {
				drivers, err := a.store.ListDrivers(ctx)
				if err != nil {
					return nil, err
				}
				opts := make([]models.Option, 0, len(drivers))
				for _, d := range drivers {
					opts = append(opts, models.Option{ID: d.DriverID, Label: d.Name})
				}
				return opts, nil
			},
		},
		confirmStep(),
	},
	models.WizardRouteCreation: {
		textStep("name", "What should the route be called?"),
		{
			Key:    "path_id",
			Prompt: "Which path should it follow? (or 'new' to create one)",
			Validate: func(ctx context.Context, a *Agent, _ *models.WizardState, input string) (any, error) {
				switch strings.ToLower(strings.TrimSpace(input)) {
				case "new", "create", "new path", "create path", "create a new path":
					return nil, errLaunchPath
				}
				return a.pickPath(ctx, input)
			},
			Options: func(ctx context.Context, a *Agent, _ *models.WizardState) ([]models.Option, error) {
				paths, err := a.store.ListPaths(ctx)
				if err != nil {
					return nil, err
				}
				opts := make([]models.Option, 0, len(paths))
				for _, p := range paths {
					opts = append(opts, models.Option{ID: p.PathID, Label: p.PathName})
				}
				return opts, nil
			},
		},
		timeStep("shift_time", "What shift time? (HH:MM)"),
		{
			Key:    "direction",
			Prompt: "Which direction? (pickup/drop)",
			Validate: func(_ context.Context, _ *Agent, _ *models.WizardState, input string) (any, error) {
				d := strings.ToLower(strings.TrimSpace(input))
				if d != "pickup" && d != "drop" {
					return nil, fmt.Errorf("direction must be pickup or drop")
				}
				return d, nil
			},
		},
	},
	models.WizardPathCreation: {
		textStep("name", "What should the path be called?"),
		{
			Key:    "stop_ids",
			Prompt: "List the stops in order, comma-separated (ids or names, at least 2)",
			Validate: func(ctx context.Context, a *Agent, _ *models.WizardState, input string) (any, error) {
				return a.pickStops(ctx, input)
			},
			Options: func(ctx context.Context, a *Agent, _ *models.WizardState) ([]models.Option, error) {
				stops, err := a.store.ListStops(ctx)
				if err != nil {
					return nil, err
				}
				opts := make([]models.Option, 0, len(stops))
				for _, st := range stops {
					opts = append(opts, models.Option{ID: st.StopID, Label: st.Name})
				}
				return opts, nil
			},
		},
		confirmStep(),
	},
	models.WizardStopCreation: {
		textStep("name", "What should the stop be called?"),
		{
			Key:    "latitude",
			Prompt: "Latitude? (or 'skip')",
			Validate: func(_ context.Context, _ *Agent, _ *models.WizardState, input string) (any, error) {
				return parseCoordinate(input, -90, 90)
			},
		},
		{
			Key:    "longitude",
			Prompt: "Longitude? (or 'skip')",
			Validate: func(_ context.Context, _ *Agent, _ *models.WizardState, input string) (any, error) {
				return parseCoordinate(input, -180, 180)
			},
		},
		confirmStep(),
	},
}

// wizardStepNode drives a wizard one turn forward: start a new flow, apply
// the current step's validator, or commit on the final step.
func (a *Agent) wizardStepNode(ctx context.Context, state *models.FlowState) error {
	if state.Wizard == nil {
		return a.startWizard(ctx, state)
	}

	ws := state.Wizard
	steps, ok := wizardFlows[ws.Flow]
	if !ok {
		state.SetError(models.ErrInvalidParameters, fmt.Sprintf("unknown wizard flow %q", ws.Flow))
		return nil
	}

	input := strings.TrimSpace(state.InputText)
	if cancelWords[strings.ToLower(input)] {
		return a.cancelWizard(ctx, state, "wizard cancelled")
	}

	if ws.CurrentStep >= len(steps) {
		// Should have committed already; treat as done.
		return a.commitWizard(ctx, state)
	}

	step := steps[ws.CurrentStep]
	value, err := step.Validate(ctx, a, ws, input)
	if err == errAbort {
		return a.cancelWizard(ctx, state, "okay, nothing was created")
	}
	if err == errLaunchPath {
		return a.launchPathWizard(ctx, state)
	}
	if err != nil {
		// Invalid input: re-prompt without advancing.
		state.Message = fmt.Sprintf("%s %s", err.Error(), step.Prompt)
		return a.emitWizardPrompt(ctx, state, step)
	}

	if step.Key != "confirm" {
		ws.Set(step.Key, value)
	}
	ws.CurrentStep++

	if ws.CurrentStep >= len(steps) {
		return a.commitWizard(ctx, state)
	}

	next := steps[ws.CurrentStep]
	state.Message = next.Prompt
	if err := a.sessions.UpdateWizardState(ctx, state.PendingSessionID, ws); err != nil {
		return err
	}
	return a.emitWizardPrompt(ctx, state, next)
}

func (a *Agent) startWizard(ctx context.Context, state *models.FlowState) error {
	action, ok := catalog.Lookup(state.Intent.Action)
	if !ok || action.Flow == "" {
		state.SetError(models.ErrUnknownAction, "no wizard flow for this command")
		return nil
	}

	ws := &models.WizardState{Flow: action.Flow, CurrentStep: 0}
	session, err := a.sessions.CreateWizard(ctx, state.UserID, ws)
	if err != nil {
		return fmt.Errorf("failed to persist wizard session: %w", err)
	}

	state.Wizard = ws
	state.PendingSessionID = session.ID
	first := wizardFlows[action.Flow][0]
	state.Message = first.Prompt
	return a.emitWizardPrompt(ctx, state, first)
}

func (a *Agent) emitWizardPrompt(ctx context.Context, state *models.FlowState, step wizardStep) error {
	state.ClarificationOptions = nil
	if step.Options != nil {
		opts, err := step.Options(ctx, a, state.Wizard)
		if err != nil {
			return err
		}
		state.ClarificationOptions = opts
	}
	return nil
}

func (a *Agent) cancelWizard(ctx context.Context, state *models.FlowState, message string) error {
	state.Wizard.Cancelled = true
	state.Message = message
	if state.PendingSessionID != "" {
		if err := a.sessions.Cancel(ctx, state.PendingSessionID); err != nil {
			return fmt.Errorf("failed to cancel wizard session: %w", err)
		}
	}
	return nil
}

// commitWizard runs the flow's creation tool with the collected values.
func (a *Agent) commitWizard(ctx context.Context, state *models.FlowState) error {
	ws := state.Wizard
	var err error

	switch ws.Flow {
	case models.WizardStopCreation:
		err = a.commitStop(ctx, state)
	case models.WizardPathCreation:
		err = a.commitPath(ctx, state)
		if err == nil && state.Error == nil {
			if _, stashed := ws.Collected["route_name"]; stashed {
				return a.resumeRouteWizard(ctx, state)
			}
		}
	case models.WizardRouteCreation:
		err = a.commitRoute(ctx, state)
	case models.WizardTripCreation:
		err = a.commitTrip(ctx, state)
	default:
		state.SetError(models.ErrInvalidParameters, fmt.Sprintf("unknown wizard flow %q", ws.Flow))
		return nil
	}
	if err != nil {
		return err
	}
	if state.Error != nil {
		return nil
	}

	if state.PendingSessionID != "" {
		if err := a.sessions.MarkWizardDone(ctx, state.PendingSessionID); err != nil {
			return fmt.Errorf("failed to close wizard session: %w", err)
		}
	}
	// Terminate: the wizard no longer owns the conversation.
	state.Wizard = nil
	return nil
}

// launchPathWizard detours a route wizard into path creation. The route's
// collected name is stashed; commitWizard resumes the route once the path
// exists.
func (a *Agent) launchPathWizard(ctx context.Context, state *models.FlowState) error {
	ws := state.Wizard
	routeName, _ := ws.Collected["name"].(string)
	ws.Flow = models.WizardPathCreation
	ws.CurrentStep = 0
	ws.Collected = map[string]any{"route_name": routeName}

	first := wizardFlows[models.WizardPathCreation][0]
	state.Message = "okay, let's create the path first. " + first.Prompt
	if err := a.sessions.UpdateWizardState(ctx, state.PendingSessionID, ws); err != nil {
		return err
	}
	return a.emitWizardPrompt(ctx, state, first)
}

// resumeRouteWizard returns from a path-creation detour: the fresh path
// becomes the route's pick and the route flow continues at shift time.
func (a *Agent) resumeRouteWizard(ctx context.Context, state *models.FlowState) error {
	ws := state.Wizard
	routeName, _ := ws.Collected["route_name"].(string)
	path, _ := state.ExecutionResult.Data.(*tools.Path)
	if path == nil {
		state.SetError(models.ErrDatabase, "path creation did not produce a path")
		return nil
	}

	ws.Flow = models.WizardRouteCreation
	ws.CurrentStep = 2 // the step after the path pick
	ws.Collected = map[string]any{"name": routeName, "path_id": path.PathID}

	next := wizardFlows[models.WizardRouteCreation][ws.CurrentStep]
	state.Message = fmt.Sprintf("created path %q, back to the route. %s", path.PathName, next.Prompt)
	if err := a.sessions.UpdateWizardState(ctx, state.PendingSessionID, ws); err != nil {
		return err
	}
	return a.emitWizardPrompt(ctx, state, next)
}

func (a *Agent) commitStop(ctx context.Context, state *models.FlowState) error {
	ws := state.Wizard
	name, _ := ws.Collected["name"].(string)
	lat := floatOrNil(ws.Collected["latitude"])
	lon := floatOrNil(ws.Collected["longitude"])

	stop, err := a.store.CreateStop(ctx, name, lat, lon, state.UserID)
	if err != nil {
		return err
	}
	state.ExecutionResult = &models.Payload{Type: "object", Data: stop}
	state.Message = fmt.Sprintf("created stop %q (id %d)", stop.Name, stop.StopID)
	return nil
}

func (a *Agent) commitPath(ctx context.Context, state *models.FlowState) error {
	ws := state.Wizard
	name, _ := ws.Collected["name"].(string)
	stopIDs := intSlice(ws.Collected["stop_ids"])
	if len(stopIDs) < 2 {
		state.SetError(models.ErrInvalidParameters, "a path needs at least 2 stops")
		return nil
	}

	path, err := a.store.CreatePath(ctx, name, stopIDs, state.UserID)
	if err != nil {
		return err
	}
	state.ExecutionResult = &models.Payload{Type: "object", Data: path}
	state.Message = fmt.Sprintf("created path %q with %d stops", path.PathName, len(stopIDs))
	return nil
}

func (a *Agent) commitRoute(ctx context.Context, state *models.FlowState) error {
	ws := state.Wizard
	name, _ := ws.Collected["name"].(string)
	pathID, _ := intParam(ws.Collected, "path_id")
	shiftTime, _ := ws.Collected["shift_time"].(string)
	direction, _ := ws.Collected["direction"].(string)

	route, err := a.store.CreateRoute(ctx, name, pathID, shiftTime, direction, state.UserID)
	if err != nil {
		return err
	}
	state.ExecutionResult = &models.Payload{Type: "object", Data: route}
	state.Message = fmt.Sprintf("created route %q (id %d)", route.RouteName, route.RouteID)
	return nil
}

func (a *Agent) commitTrip(ctx context.Context, state *models.FlowState) error {
	ws := state.Wizard
	name, _ := ws.Collected["name"].(string)
	date, _ := ws.Collected["date"].(string)
	timeOfDay, _ := ws.Collected["time"].(string)
	routeID, _ := intParam(ws.Collected, "route_id")

	trip, err := a.store.CreateTrip(ctx, name, routeID, date, timeOfDay, state.UserID)
	if err != nil {
		return err
	}

	if vehicleID, ok := intParam(ws.Collected, "vehicle_id"); ok {
		if _, err := a.store.AssignVehicle(ctx, trip.TripID, vehicleID, state.UserID); err != nil {
			return err
		}
	}
	if driverID, ok := intParam(ws.Collected, "driver_id"); ok {
		if _, err := a.store.AssignDriver(ctx, trip.TripID, driverID, state.UserID); err != nil {
			return err
		}
	}

	state.ExecutionResult = &models.Payload{Type: "object", Data: trip}
	state.Message = fmt.Sprintf("created trip %q on %s at %s", trip.DisplayName, trip.TripDate, trip.ScheduledTime)
	return nil
}

// Picker validators: accept a numeric id or a name.

func (a *Agent) pickRoute(ctx context.Context, input string) (any, error) {
	input = strings.TrimSpace(input)
	if id, err := strconv.Atoi(input); err == nil {
		if _, err := a.store.GetRoute(ctx, id); err != nil {
			return nil, fmt.Errorf("route %d does not exist", id)
		}
		return id, nil
	}
	routes, err := a.store.FindRoutesByName(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(routes) != 1 {
		return nil, fmt.Errorf("%q does not match exactly one route", input)
	}
	return routes[0].RouteID, nil
}

func (a *Agent) pickPath(ctx context.Context, input string) (any, error) {
	input = strings.TrimSpace(input)
	if id, err := strconv.Atoi(input); err == nil {
		if _, err := a.store.GetPath(ctx, id); err != nil {
			return nil, fmt.Errorf("path %d does not exist", id)
		}
		return id, nil
	}
	paths, err := a.store.FindPathsByName(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(paths) != 1 {
		return nil, fmt.Errorf("%q does not match exactly one path", input)
	}
	return paths[0].PathID, nil
}

func (a *Agent) pickVehicle(ctx context.Context, input string) (any, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "skip") {
		return nil, nil
	}
	if id, err := strconv.Atoi(input); err == nil {
		if _, err := a.store.GetVehicle(ctx, id); err != nil {
			return nil, fmt.Errorf("vehicle %d does not exist", id)
		}
		return id, nil
	}
	v, err := a.store.FindVehicleByRegistration(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%q does not match a vehicle registration", input)
	}
	return v.VehicleID, nil
}

func (a *Agent) pickDriver(ctx context.Context, input string) (any, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "skip") {
		return nil, nil
	}
	if id, err := strconv.Atoi(input); err == nil {
		if _, err := a.store.GetDriver(ctx, id); err != nil {
			return nil, fmt.Errorf("driver %d does not exist", id)
		}
		return id, nil
	}
	drivers, err := a.store.FindDriversByName(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(drivers) != 1 {
		return nil, fmt.Errorf("%q does not match exactly one driver", input)
	}
	return drivers[0].DriverID, nil
}

func (a *Agent) pickStops(ctx context.Context, input string) (any, error) {
	parts := strings.Split(input, ",")
	var ids []int
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.Atoi(part); err == nil {
			if _, err := a.store.GetStop(ctx, id); err != nil {
				return nil, fmt.Errorf("stop %d does not exist", id)
			}
			ids = append(ids, id)
			continue
		}
		stops, err := a.store.FindStopsByName(ctx, part)
		if err != nil {
			return nil, err
		}
		if len(stops) != 1 {
			return nil, fmt.Errorf("%q does not match exactly one stop", part)
		}
		ids = append(ids, stops[0].StopID)
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("a path needs at least 2 stops, got %d", len(ids))
	}
	return ids, nil
}

func parseCoordinate(input string, min, max float64) (any, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "skip") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", input)
	}
	if f < min || f > max {
		return nil, fmt.Errorf("%v is out of range [%v, %v]", f, min, max)
	}
	return f, nil
}

func floatOrNil(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func intSlice(v any) []int {
	switch s := v.(type) {
	case []int:
		return s
	case []any:
		out := make([]int, 0, len(s))
		for _, e := range s {
			switch n := e.(type) {
			case int:
				out = append(out, n)
			case float64:
				out = append(out, int(n))
			}
		}
		return out
	}
	return nil
}
