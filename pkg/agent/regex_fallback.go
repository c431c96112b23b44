package agent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fleetops/movi/pkg/models"
)

// The regex strategy is the deterministic floor under the LLM: when every
// completion attempt fails, these patterns classify the most common phrasings
// so the assistant degrades instead of going dark. Confidence is fixed below
// the LLM's usual scores so downstream consumers can tell the strategies
// apart.
const regexConfidence = 0.6

type regexRule struct {
	pattern *regexp.Regexp
	action  string
	// params maps capture-group index -> parameter key.
	params map[int]string
}

var regexRules = []regexRule{
	{pattern: regexp.MustCompile(`(?i)\bcancel\b.*\btrip\b`), action: "cancel_trip"},
	{pattern: regexp.MustCompile(`(?i)\b(assign|add|put)\b.*\bvehicle\b`), action: "assign_vehicle"},
	{pattern: regexp.MustCompile(`(?i)\b(assign|add|put)\b.*\bdriver\b`), action: "assign_driver"},
	{pattern: regexp.MustCompile(`(?i)\bremove\b.*\bvehicle\b`), action: "remove_vehicle"},
	{pattern: regexp.MustCompile(`(?i)\bremove\b.*\bdriver\b`), action: "remove_driver"},
	{pattern: regexp.MustCompile(`(?i)\bdelay\b.*?\b(\d+)\s*(?:min|mins|minutes)\b`), action: "delay_trip", params: map[int]string{1: "delay_minutes"}},
	{pattern: regexp.MustCompile(`(?i)\b(change|update|move)\b.*\btime\b.*?\b(\d{1,2}:\d{2})\b`), action: "update_trip_time", params: map[int]string{2: "new_time"}},
	{pattern: regexp.MustCompile(`(?i)\b(list|show|all)\b.*\bvehicles\b`), action: "list_all_vehicles"},
	{pattern: regexp.MustCompile(`(?i)\b(list|show|all)\b.*\bdrivers\b`), action: "list_all_drivers"},
	{pattern: regexp.MustCompile(`(?i)\b(list|show|all)\b.*\bstops\b`), action: "list_all_stops"},
	{pattern: regexp.MustCompile(`(?i)\b(list|show|all)\b.*\bpaths\b`), action: "list_all_paths"},
	{pattern: regexp.MustCompile(`(?i)\b(list|show|all)\b.*\broutes\b`), action: "list_all_routes"},
	{pattern: regexp.MustCompile(`(?i)\b(bookings?|passengers?)\b.*\b(count|how many)\b`), action: "get_booking_count"},
	{pattern: regexp.MustCompile(`(?i)\b(list|show|who)\b.*\bpassengers\b`), action: "list_passengers"},
	{pattern: regexp.MustCompile(`(?i)\btrip\b.*\bstatus\b`), action: "get_trip_status"},
	{pattern: regexp.MustCompile(`(?i)\b(summary|overview)\b.*\btoday\b|\btoday'?s?\b.*\b(summary|overview)\b`), action: "get_today_summary"},
	{pattern: regexp.MustCompile(`(?i)\b(attention|problem|issues)\b.*\btrips?\b|\btrips?\b.*\b(attention|problems?|issues)\b`), action: "get_trips_needing_attention"},
	{pattern: regexp.MustCompile(`(?i)\boverbook`), action: "detect_overbooking"},
	{pattern: regexp.MustCompile(`(?i)\bunassigned\b.*\bvehicles\b`), action: "get_unassigned_vehicles"},
	{pattern: regexp.MustCompile(`(?i)\bavailable\b.*\bdrivers\b`), action: "get_available_drivers"},
}

// tripIDPattern pulls an explicit trip id out of free text.
var tripIDPattern = regexp.MustCompile(`(?i)\btrip\s*(?:id\s*)?#?(\d+)\b`)

// parseWithRegex classifies the input with the deterministic rule table.
// The first matching rule wins; no match yields the unknown action.
func parseWithRegex(text string) *models.Intent {
	intent := &models.Intent{
		Action:     "unknown",
		Confidence: 0,
		Parameters: make(map[string]any),
	}

	for _, rule := range regexRules {
		m := rule.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		intent.Action = rule.action
		intent.Confidence = regexConfidence
		for idx, key := range rule.params {
			if idx < len(m) && m[idx] != "" {
				intent.Parameters[key] = coerceValue(m[idx])
			}
		}
		break
	}

	if m := tripIDPattern.FindStringSubmatch(text); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil {
			intent.TargetTripID = &id
		}
	} else if intent.Action != "unknown" {
		// Whatever trails the verb phrase may name the target.
		intent.TargetLabel = strings.TrimSpace(trailingLabel(text))
	}
	return intent
}

// labelAfterPreposition captures the words trailing "from", "to", or
// "cancel" ("remove vehicle from Airport Express").
var labelAfterPreposition = regexp.MustCompile(`(?i)\b(?:from|to|cancel)\s+(?:the\s+)?(?:trip\s+)?([A-Za-z][\w :-]*?)[\s.!?]*$`)

// labelNoise are captures that name nothing; dropping them leaves the
// resolver free to use the UI selection instead.
var labelNoise = map[string]bool{
	"trip": true, "it": true, "this": true, "that": true,
	"one": true, "please": true, "now": true, "them": true,
}

// trailingLabel extracts the target label from the raw text: a quoted
// phrase wins, else the phrase trailing a from/to/cancel preposition.
func trailingLabel(text string) string {
	if i := strings.IndexByte(text, '"'); i >= 0 {
		if j := strings.IndexByte(text[i+1:], '"'); j >= 0 {
			return text[i+1 : i+1+j]
		}
	}
	if m := labelAfterPreposition.FindStringSubmatch(text); m != nil {
		label := strings.TrimSpace(m[1])
		if !labelNoise[strings.ToLower(label)] {
			return label
		}
	}
	return ""
}
