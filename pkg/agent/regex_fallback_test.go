package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithRegexClassifiesCommonPhrasings(t *testing.T) {
	tests := []struct {
		text   string
		action string
	}{
		{"cancel the trip please", "cancel_trip"},
		{"assign a vehicle to it", "assign_vehicle"},
		{"put a driver on this", "assign_driver"},
		{"remove the vehicle", "remove_vehicle"},
		{"list all vehicles", "list_all_vehicles"},
		{"show me the drivers", "list_all_drivers"},
		{"show stops", "list_all_stops"},
		{"what's the trip status", "get_trip_status"},
		{"give me today's summary", "get_today_summary"},
		{"any overbooked trips?", "detect_overbooking"},
		{"unassigned vehicles today", "get_unassigned_vehicles"},
		{"available drivers right now", "get_available_drivers"},
	}
	for _, tt := range tests {
		intent := parseWithRegex(tt.text)
		assert.Equal(t, tt.action, intent.Action, "text %q", tt.text)
		assert.Equal(t, regexConfidence, intent.Confidence, "text %q", tt.text)
	}
}

func TestParseWithRegexExtractsParameters(t *testing.T) {
	intent := parseWithRegex("delay trip 42 by 30 minutes")
	assert.Equal(t, "delay_trip", intent.Action)
	assert.Equal(t, 30, intent.Parameters["delay_minutes"])
	require.NotNil(t, intent.TargetTripID)
	assert.Equal(t, 42, *intent.TargetTripID)

	intent = parseWithRegex("change the time to 14:30")
	assert.Equal(t, "update_trip_time", intent.Action)
	assert.Equal(t, "14:30", intent.Parameters["new_time"])
}

func TestParseWithRegexTripIDForms(t *testing.T) {
	for _, text := range []string{"cancel trip 7", "cancel trip #7", "cancel trip id 7"} {
		intent := parseWithRegex(text)
		require.NotNil(t, intent.TargetTripID, "text %q", text)
		assert.Equal(t, 7, *intent.TargetTripID, "text %q", text)
	}
}

func TestParseWithRegexQuotedLabel(t *testing.T) {
	intent := parseWithRegex(`cancel the trip "Airport 08:00"`)
	assert.Equal(t, "cancel_trip", intent.Action)
	assert.Nil(t, intent.TargetTripID)
	assert.Equal(t, "Airport 08:00", intent.TargetLabel)
}

func TestParseWithRegexUnquotedTrailingLabel(t *testing.T) {
	tests := []struct {
		text   string
		action string
		label  string
	}{
		{"remove the vehicle from Airport Express", "remove_vehicle", "Airport Express"},
		{"cancel trip Morning Shuttle", "cancel_trip", "Morning Shuttle"},
		{"assign a vehicle to Evening Run 18:45", "assign_vehicle", "Evening Run 18:45"},
	}
	for _, tt := range tests {
		intent := parseWithRegex(tt.text)
		assert.Equal(t, tt.action, intent.Action, "text %q", tt.text)
		assert.Equal(t, tt.label, intent.TargetLabel, "text %q", tt.text)
	}
}

func TestParseWithRegexNoiseWordsYieldNoLabel(t *testing.T) {
	// "cancel the trip please" names nothing; the resolver falls back to
	// the UI selection instead of searching for a trip called "please".
	for _, text := range []string{"cancel the trip please", "cancel the trip", "assign a vehicle to it"} {
		intent := parseWithRegex(text)
		assert.Empty(t, intent.TargetLabel, "text %q", text)
	}
}

func TestParseWithRegexUnknown(t *testing.T) {
	intent := parseWithRegex("please order a pizza")
	assert.Equal(t, "unknown", intent.Action)
	assert.Zero(t, intent.Confidence)
	assert.Empty(t, intent.TargetLabel)
}
