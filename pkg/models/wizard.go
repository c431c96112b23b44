package models

// WizardFlow identifies one of the declared multi-step creation flows.
type WizardFlow string

const (
	WizardTripCreation  WizardFlow = "trip_creation"
	WizardRouteCreation WizardFlow = "route_creation"
	WizardPathCreation  WizardFlow = "path_creation"
	WizardStopCreation  WizardFlow = "stop_creation"
)

// WizardState is the serializable progress of an in-flight wizard.
// Step declarations (prompts, validators, option providers) are static
// per flow and live with the wizard node; only progress is persisted.
type WizardState struct {
	Flow        WizardFlow     `json:"flow"`
	CurrentStep int            `json:"current_step"`
	Collected   map[string]any `json:"collected,omitempty"`
	Cancelled   bool           `json:"cancelled,omitempty"`
}

// Set records a collected parameter, allocating the map on first use.
func (w *WizardState) Set(key string, value any) {
	if w.Collected == nil {
		w.Collected = make(map[string]any)
	}
	w.Collected[key] = value
}
