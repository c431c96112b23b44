// Package models defines the data records shared across the agent graph:
// the Flow State threaded through every node, durable sessions, wizard
// progress, and the response envelope returned to the UI.
package models

// Page identifies the UI context a command was issued from.
type Page string

const (
	PageDashboard   Page = "dashboard"
	PageManageRoute Page = "manageRoute"
	PageNone        Page = ""
)

// EntityType categorizes a resolved database target.
type EntityType string

const (
	EntityTrip    EntityType = "trip"
	EntityRoute   EntityType = "route"
	EntityPath    EntityType = "path"
	EntityStop    EntityType = "stop"
	EntityVehicle EntityType = "vehicle"
	EntityDriver  EntityType = "driver"
	EntityNone    EntityType = "none"
)

// ResolveResult is the outcome of target resolution.
type ResolveResult string

const (
	ResolveFound     ResolveResult = "found"
	ResolveNotFound  ResolveResult = "not_found"
	ResolveAmbiguous ResolveResult = "ambiguous"
	ResolveSkipped   ResolveResult = "skipped"
)

// SelectionType tells the UI which picker to render.
type SelectionType string

const (
	SelectionDriver  SelectionType = "driver"
	SelectionVehicle SelectionType = "vehicle"
	SelectionTrip    SelectionType = "trip"
	SelectionNone    SelectionType = ""
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Intent is the typed result of intent parsing.
type Intent struct {
	Action       string         `json:"action"`
	Confidence   float64        `json:"confidence"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	TargetLabel  string         `json:"target_label,omitempty"`
	TargetTripID *int           `json:"target_trip_id,omitempty"`
	TargetTime   string         `json:"target_time,omitempty"`
	Explanation  string         `json:"explanation,omitempty"`
}

// Resolved holds the concrete database target the resolver settled on.
type Resolved struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   *int       `json:"entity_id,omitempty"`
	Label      string     `json:"label,omitempty"`
}

// Consequences describes the impact of a proposed mutation.
type Consequences struct {
	BookingCount      int      `json:"booking_count"`
	BookingPercentage float64  `json:"booking_percentage"`
	HasDeployment     bool     `json:"has_deployment"`
	LiveStatus        string   `json:"live_status,omitempty"`
	Downstream        int      `json:"downstream"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Option is a single clarification or selection choice.
type Option struct {
	ID          int    `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Payload is a typed executor result the UI knows how to render.
// Nested payloads already shaped as {type, data} must be passed through
// unchanged by the formatter.
type Payload struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// FlowState is the record threaded through every node of a single request.
// Nodes own disjoint field sets; the graph runtime consumes NextNode.
type FlowState struct {
	UserID          int    `json:"user_id"`
	InputText       string `json:"input_text"`
	Page            Page   `json:"page,omitempty"`
	SelectedTripID  *int   `json:"selected_trip_id,omitempty"`
	SelectedRouteID *int   `json:"selected_route_id,omitempty"`
	FromImage       bool   `json:"from_image,omitempty"`

	History []Message `json:"conversation_history,omitempty"`

	Intent        Intent        `json:"intent"`
	Resolved      Resolved      `json:"resolved"`
	ResolveResult ResolveResult `json:"resolve_result,omitempty"`

	Consequences         *Consequences `json:"consequences,omitempty"`
	NeedsConfirmation    bool          `json:"needs_confirmation,omitempty"`
	NeedsClarification   bool          `json:"needs_clarification,omitempty"`
	ClarificationOptions []Option      `json:"clarification_options,omitempty"`
	AwaitingSelection    bool          `json:"awaiting_selection,omitempty"`
	SelectionType        SelectionType `json:"selection_type,omitempty"`

	Wizard           *WizardState `json:"wizard,omitempty"`
	PendingSessionID string       `json:"pending_session_id,omitempty"`

	ExecutionResult *Payload     `json:"execution_result,omitempty"`
	Suggestions     []string     `json:"suggestions,omitempty"`
	Error           *AgentError  `json:"error,omitempty"`
	FinalOutput     *FinalOutput `json:"final_output,omitempty"`

	// NextNode is set by a node to override edge routing; the runtime
	// consumes and clears it each iteration.
	NextNode string `json:"-"`

	// Message carries user-facing text accumulated by nodes for the formatter.
	Message string `json:"message,omitempty"`
}

// SetError records a node-local error on the state unless one is already set.
func (s *FlowState) SetError(kind ErrorKind, message string) {
	if s.Error == nil {
		s.Error = &AgentError{Kind: kind, Message: message}
	}
}
