package agent

import (
	"fmt"
	"strings"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/models"
)

// buildSystemPrompt assembles the intent-parsing instructions: the full
// action catalog, the caller's UI context, and the output contract. The
// trailing history window is sent as prior chat turns, not inlined here.
func buildSystemPrompt(state *models.FlowState) string {
	var b strings.Builder

	b.WriteString(`You are the intent parser for a fleet operations assistant. ` +
		`Classify the operator's message into exactly one action from the catalog below ` +
		`and extract its parameters.` + "\n\nACTIONS:\n")

	for _, a := range catalog.All() {
		b.WriteString("- ")
		b.WriteString(a.Name)
		if len(a.RequiredParams) > 0 {
			fmt.Fprintf(&b, " (requires: %s)", strings.Join(a.RequiredParams, ", "))
		}
		b.WriteString(": ")
		b.WriteString(a.Description)
		b.WriteByte('\n')
	}

	b.WriteString("\nCONTEXT:\n")
	if state.Page != models.PageNone {
		fmt.Fprintf(&b, "- current page: %s\n", state.Page)
	}
	if state.SelectedTripID != nil {
		fmt.Fprintf(&b, "- selected trip id: %d\n", *state.SelectedTripID)
	}
	if state.SelectedRouteID != nil {
		fmt.Fprintf(&b, "- selected route id: %d\n", *state.SelectedRouteID)
	}
	if state.FromImage {
		b.WriteString("- the message is OCR text extracted from an image; it may contain recognition noise\n")
	}

	b.WriteString(`
OUTPUT: respond with a single JSON object, no prose:
{
  "action": "<catalog action name>",
  "confidence": <0.0-1.0>,
  "parameters": {<key>: <value>, ...},
  "target_label": "<entity name mentioned, if any>",
  "target_trip_id": <integer trip id if explicitly mentioned, else null>,
  "target_time": "<HH:MM if a time identifies the target trip>",
  "needs_clarification": <true only when the request is genuinely ambiguous>,
  "clarification_question": "<question to ask when needs_clarification>",
  "explanation": "<one short sentence>"
}
Use "unknown" when nothing in the catalog fits. Never invent ids.`)

	return b.String()
}

// promptMessages builds the chat turns: trailing history then the user text.
func promptMessages(state *models.FlowState, historyLimit int) []models.Message {
	history := state.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	messages := make([]models.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, models.Message{Role: "user", Content: state.InputText})
	return messages
}
