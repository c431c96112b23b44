package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/models"
)

// fallbackNode turns a captured error into recovery guidance. It never
// clears the error; the formatter still reports status=error. Unknown
// actions get capability hints, resolver misses get a rephrase
// suggestion, everything else passes through with its message intact.
func (a *Agent) fallbackNode(_ context.Context, state *models.FlowState) error {
	if state.Error == nil {
		// Routed here without a captured error; record one so the formatter
		// does not fabricate a success.
		state.SetError(models.ErrUnknownAction, "the request could not be completed")
	}

	switch state.Error.Kind {
	case models.ErrUnknownAction:
		state.Message = "I did not recognize that command. Here is what I can help with:"
		state.Suggestions = capabilityHints(state)

	case models.ErrTripNotFound, models.ErrRouteNotFound, models.ErrPathNotFound, models.ErrStopNotFound:
		state.Suggestions = []string{
			"Try the exact name as it appears on screen",
			"Or reference the target by id, e.g. 'trip 42'",
		}
		if state.Message == "" {
			state.Message = state.Error.Message
		}

	case models.ErrContextMismatch:
		state.Suggestions = []string{state.Error.Message}
		if state.Message == "" {
			state.Message = state.Error.Message
		}

	case models.ErrLLMTimeout:
		state.Message = "I could not understand that right now. Try a simpler phrasing like 'cancel trip 42'."

	default:
		if state.Message == "" {
			state.Message = state.Error.Message
		}
	}
	return nil
}

// capabilityHints picks example commands for the user: the closest catalog
// name when the input was nearly right, otherwise a sample of queries
// available on the current page.
func capabilityHints(state *models.FlowState) []string {
	if action, ok := catalog.Closest(state.Intent.Action); ok {
		return []string{fmt.Sprintf("Did you mean %q? (%s)", humanize(action.Name), action.Description)}
	}

	var hints []string
	for _, action := range catalog.All() {
		if action.Category != catalog.CategoryQuery || !catalog.PageAllowed(action, state.Page) {
			continue
		}
		hints = append(hints, fmt.Sprintf("%s: %s", humanize(action.Name), action.Description))
		if len(hints) == 5 {
			break
		}
	}
	return hints
}

func humanize(action string) string {
	return strings.ReplaceAll(action, "_", " ")
}
