// Package catalog declares the immutable action catalog: every operation the
// agent can perform, with its category, risk class, page requirement,
// required parameters, and expected target entity. The catalog is built once
// at init and never mutated afterwards.
package catalog

import (
	"sort"

	"github.com/agext/levenshtein"

	"github.com/fleetops/movi/pkg/models"
)

// Category groups actions by what they do.
type Category string

const (
	CategoryQuery  Category = "query"
	CategoryMutate Category = "mutate"
	CategoryWizard Category = "wizard"
	CategoryHelper Category = "helper"
)

// Risk classifies whether an action may lose bookings, break deployments,
// or delete configuration with downstream dependents.
type Risk string

const (
	RiskSafe  Risk = "safe"
	RiskRisky Risk = "risky"
)

// PageRequirement declares which UI page an action may be issued from.
type PageRequirement string

const (
	PageDashboard   PageRequirement = "dashboard"
	PageManageRoute PageRequirement = "manageRoute"
	PageAny         PageRequirement = "any"
)

// SimilarityThreshold is the minimum string similarity for accepting an
// out-of-catalog action name as a typo of a catalog entry.
const SimilarityThreshold = 0.85

// Action is one catalog entry.
type Action struct {
	Name           string
	Category       Category
	Risk           Risk
	Page           PageRequirement
	RequiredParams []string
	// TargetEntity is the entity category the resolver should look up.
	// EntityNone marks target-free actions that skip resolution entirely.
	TargetEntity models.EntityType
	// Flow is set for wizard-owning actions.
	Flow        models.WizardFlow
	Description string
}

// TargetFree reports whether the action never needs a resolved target.
func (a Action) TargetFree() bool { return a.TargetEntity == models.EntityNone }

// Sentinel action names that are not operator commands.
const (
	ActionUnknown         = "unknown"
	ActionContextMismatch = "context_mismatch"
)

var actions = []Action{
	// Trip operations.
	{Name: "assign_vehicle", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, RequiredParams: []string{"vehicle_id"}, TargetEntity: models.EntityTrip, Description: "Assign a vehicle to a trip"},
	{Name: "assign_driver", Category: CategoryMutate, Risk: RiskSafe, Page: PageDashboard, TargetEntity: models.EntityTrip, Description: "Assign a driver to a trip"},
	{Name: "remove_vehicle", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, TargetEntity: models.EntityTrip, Description: "Remove the assigned vehicle from a trip"},
	{Name: "remove_driver", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, TargetEntity: models.EntityTrip, Description: "Remove the assigned driver from a trip"},
	{Name: "cancel_trip", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, TargetEntity: models.EntityTrip, Description: "Cancel a scheduled trip"},
	{Name: "update_trip_time", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, RequiredParams: []string{"new_time"}, TargetEntity: models.EntityTrip, Description: "Change a trip's scheduled time"},
	{Name: "update_trip_status", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, RequiredParams: []string{"status"}, TargetEntity: models.EntityTrip, Description: "Set a trip's lifecycle status"},
	{Name: "delay_trip", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, RequiredParams: []string{"delay_minutes"}, TargetEntity: models.EntityTrip, Description: "Delay a trip by a number of minutes"},
	{Name: "reschedule_trip", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, RequiredParams: []string{"new_time"}, TargetEntity: models.EntityTrip, Description: "Move a trip to a new date or time"},
	{Name: "get_trip_status", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "Show a trip's current status"},
	{Name: "get_trip_details", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "Show full details of a trip"},
	{Name: "get_trip_bookings", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "List bookings on a trip"},
	{Name: "check_trip_readiness", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "Check whether a trip has vehicle, driver, and capacity"},
	{Name: "duplicate_trip", Category: CategoryMutate, Risk: RiskSafe, Page: PageDashboard, TargetEntity: models.EntityTrip, Description: "Create a copy of an existing trip"},
	{Name: "create_followup_trip", Category: CategoryWizard, Risk: RiskSafe, Page: PageManageRoute, TargetEntity: models.EntityNone, Flow: models.WizardTripCreation, Description: "Start the guided trip creation flow"},

	// Vehicle operations.
	{Name: "list_all_vehicles", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List every vehicle in the fleet"},
	{Name: "get_unassigned_vehicles", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List vehicles with no deployment today"},
	{Name: "get_vehicle_status", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityVehicle, Description: "Show a vehicle's status"},
	{Name: "get_vehicle_trips_today", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityVehicle, Description: "List today's trips for a vehicle"},
	{Name: "block_vehicle", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, TargetEntity: models.EntityVehicle, Description: "Mark a vehicle as blocked"},
	{Name: "unblock_vehicle", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, TargetEntity: models.EntityVehicle, Description: "Clear a vehicle's blocked status"},
	{Name: "add_vehicle", Category: CategoryMutate, Risk: RiskSafe, Page: PageDashboard, RequiredParams: []string{"registration_number", "capacity"}, TargetEntity: models.EntityNone, Description: "Register a new vehicle"},
	{Name: "recommend_vehicle_for_trip", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "Recommend the best available vehicle for a trip"},
	{Name: "suggest_alternate_vehicle", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "Suggest a replacement vehicle for a trip"},

	// Driver operations.
	{Name: "list_all_drivers", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List every driver"},
	{Name: "get_available_drivers", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List drivers available right now"},
	{Name: "get_driver_status", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityDriver, Description: "Show a driver's status"},
	{Name: "get_driver_trips_today", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityDriver, Description: "List today's trips for a driver"},
	{Name: "set_driver_availability", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, RequiredParams: []string{"available"}, TargetEntity: models.EntityDriver, Description: "Mark a driver available or unavailable"},
	{Name: "add_driver", Category: CategoryMutate, Risk: RiskSafe, Page: PageDashboard, RequiredParams: []string{"name"}, TargetEntity: models.EntityNone, Description: "Register a new driver"},
	{Name: "find_driver_by_name", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, RequiredParams: []string{"name"}, TargetEntity: models.EntityNone, Description: "Look up a driver by name"},

	// Booking operations.
	{Name: "get_booking_count", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "Count active bookings on a trip"},
	{Name: "list_passengers", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityTrip, Description: "List passengers booked on a trip"},
	{Name: "cancel_all_bookings", Category: CategoryMutate, Risk: RiskRisky, Page: PageDashboard, TargetEntity: models.EntityTrip, Description: "Cancel every active booking on a trip"},
	{Name: "find_employee_trips", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, RequiredParams: []string{"employee_name"}, TargetEntity: models.EntityNone, Description: "Find trips an employee is booked on"},

	// Route configuration.
	{Name: "list_all_stops", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List every stop"},
	{Name: "create_stop", Category: CategoryMutate, Risk: RiskSafe, Page: PageManageRoute, RequiredParams: []string{"name"}, TargetEntity: models.EntityNone, Flow: models.WizardStopCreation, Description: "Create a new stop"},
	{Name: "rename_stop", Category: CategoryMutate, Risk: RiskSafe, Page: PageManageRoute, RequiredParams: []string{"new_name"}, TargetEntity: models.EntityStop, Description: "Rename a stop"},
	{Name: "delete_stop", Category: CategoryMutate, Risk: RiskRisky, Page: PageManageRoute, TargetEntity: models.EntityStop, Description: "Delete a stop"},
	{Name: "list_stops_for_path", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityPath, Description: "List the stops of a path in order"},
	{Name: "create_path", Category: CategoryWizard, Risk: RiskSafe, Page: PageManageRoute, TargetEntity: models.EntityNone, Flow: models.WizardPathCreation, Description: "Start the guided path creation flow"},
	{Name: "update_path_stops", Category: CategoryMutate, Risk: RiskRisky, Page: PageManageRoute, RequiredParams: []string{"stop_ids"}, TargetEntity: models.EntityPath, Description: "Replace the ordered stops of a path"},
	{Name: "delete_path", Category: CategoryMutate, Risk: RiskRisky, Page: PageManageRoute, TargetEntity: models.EntityPath, Description: "Delete a path"},
	{Name: "list_all_paths", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List every path"},
	{Name: "list_routes_using_path", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityPath, Description: "List routes that use a path"},
	{Name: "create_route", Category: CategoryWizard, Risk: RiskSafe, Page: PageManageRoute, TargetEntity: models.EntityNone, Flow: models.WizardRouteCreation, Description: "Start the guided route creation flow"},
	{Name: "duplicate_route", Category: CategoryMutate, Risk: RiskSafe, Page: PageManageRoute, TargetEntity: models.EntityRoute, Description: "Create a copy of a route"},
	{Name: "delete_route", Category: CategoryMutate, Risk: RiskRisky, Page: PageManageRoute, TargetEntity: models.EntityRoute, Description: "Delete a route"},
	{Name: "list_all_routes", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List every route"},
	{Name: "validate_route", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityRoute, Description: "Validate a route's configuration"},

	// Dashboard intelligence.
	{Name: "get_trips_needing_attention", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "List trips missing a vehicle or driver, or overbooked"},
	{Name: "get_today_summary", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Summarize today's operations"},
	{Name: "get_recent_changes", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Show recent audited changes"},
	{Name: "get_high_demand_offices", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Rank offices by booking demand"},
	{Name: "get_most_used_vehicles", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Rank vehicles by deployment count"},
	{Name: "detect_overbooking", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Find trips with more bookings than capacity"},
	{Name: "predict_problem_trips", Category: CategoryQuery, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Predict trips likely to have problems"},

	// Meta.
	{Name: "simulate_action", Category: CategoryHelper, Risk: RiskSafe, Page: PageAny, RequiredParams: []string{"action"}, TargetEntity: models.EntityNone, Description: "Preview the consequences of an action without executing it"},
	{Name: "explain_decision", Category: CategoryHelper, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Explain the last decision the assistant made"},
	{Name: "create_new_route_help", Category: CategoryHelper, Risk: RiskSafe, Page: PageManageRoute, TargetEntity: models.EntityNone, Description: "Explain how to create a new route"},
	{Name: ActionContextMismatch, Category: CategoryHelper, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Reports that the command belongs on a different page"},
	{Name: ActionUnknown, Category: CategoryHelper, Risk: RiskSafe, Page: PageAny, TargetEntity: models.EntityNone, Description: "Unrecognized command"},
}

var byName = func() map[string]Action {
	m := make(map[string]Action, len(actions))
	for _, a := range actions {
		m[a.Name] = a
	}
	return m
}()

// Lookup returns the catalog entry for name.
func Lookup(name string) (Action, bool) {
	a, ok := byName[name]
	return a, ok
}

// All returns the catalog sorted by name. The returned slice is a copy.
func All() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Closest finds the catalog action most similar to name. It returns the
// match only when similarity clears SimilarityThreshold, so "cancel_trips"
// maps to cancel_trip while arbitrary text does not.
func Closest(name string) (Action, bool) {
	params := levenshtein.NewParams()
	best := Action{}
	bestScore := 0.0
	for _, a := range actions {
		score := levenshtein.Similarity(name, a.Name, params)
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	if bestScore >= SimilarityThreshold {
		return best, true
	}
	return Action{}, false
}

// PageAllowed reports whether an action may run from the given UI page.
// An empty page means the caller supplied no UI context; gating is skipped.
func PageAllowed(a Action, page models.Page) bool {
	if page == models.PageNone || a.Page == PageAny {
		return true
	}
	return string(a.Page) == string(page)
}
