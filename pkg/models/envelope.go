package models

// OutputStatus is the terminal status of a request.
type OutputStatus string

const (
	StatusAwaitingConfirmation  OutputStatus = "awaiting_confirmation"
	StatusAwaitingClarification OutputStatus = "awaiting_clarification"
	StatusExecuted              OutputStatus = "executed"
	StatusOutputCancelled       OutputStatus = "cancelled"
	StatusError                 OutputStatus = "error"
)

// FinalOutput is the normalized response record built exactly once, by the
// result formatter, at the terminal node.
type FinalOutput struct {
	Action        string        `json:"action"`
	Status        OutputStatus  `json:"status"`
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	SessionID     string        `json:"session_id,omitempty"`
	Consequences  *Consequences `json:"consequences,omitempty"`
	Options       []Option      `json:"options,omitempty"`
	Suggestions   []string      `json:"suggestions,omitempty"`
	SelectionType SelectionType `json:"selection_type,omitempty"`
	Error         *AgentError   `json:"error,omitempty"`
	Data          *Payload      `json:"data,omitempty"`
}
