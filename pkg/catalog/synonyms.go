package catalog

import "strings"

// synonyms maps action names the LLM tends to emit (and common operator
// verbs) to their canonical catalog entries. Keys are lowercase.
var synonyms = map[string]string{
	// assign_driver variants
	"allocate_driver":    "assign_driver",
	"appoint_driver":     "assign_driver",
	"give_driver":        "assign_driver",
	"send_driver":        "assign_driver",
	"reserve_driver":     "assign_driver",
	"add_driver_to_trip": "assign_driver",

	// assign_vehicle variants
	"allocate_vehicle": "assign_vehicle",
	"give_vehicle":     "assign_vehicle",
	"send_vehicle":     "assign_vehicle",
	"reserve_vehicle":  "assign_vehicle",
	"add_bus":          "assign_vehicle",

	// cancel_trip variants
	"delete_trip": "cancel_trip",
	"abort_trip":  "cancel_trip",
	"abort":       "cancel_trip",
	"stop_trip":   "cancel_trip",

	// removal variants
	"unassign_vehicle": "remove_vehicle",
	"unassign_driver":  "remove_driver",
	"clear_vehicle":    "remove_vehicle",

	// query variants
	"show_trip":     "get_trip_details",
	"trip_info":     "get_trip_details",
	"show_stops":    "list_all_stops",
	"list_stops":    "list_all_stops",
	"show_vehicles": "list_all_vehicles",
	"show_drivers":  "list_all_drivers",
	"show_routes":   "list_all_routes",
	"today_summary": "get_today_summary",
	"daily_summary": "get_today_summary",

	// time changes
	"change_trip_time": "update_trip_time",
	"move_trip":        "reschedule_trip",
	"postpone_trip":    "delay_trip",
}

// Canonical maps a raw action name through the synonym table and returns the
// catalog entry it lands on. The second return is false when neither the raw
// name nor any synonym is in the catalog.
func Canonical(raw string) (Action, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if a, ok := byName[name]; ok {
		return a, true
	}
	if canonical, ok := synonyms[name]; ok {
		return byName[canonical], true
	}
	return Action{}, false
}
