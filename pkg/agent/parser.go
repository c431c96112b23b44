package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/llm"
	"github.com/fleetops/movi/pkg/models"
)

// minConfidence is the floor below which a parsed intent is not acted on.
// The structured path reports 1.0 and the regex table 0.6, so only shaky
// LLM parses land here; the user is asked to rephrase instead.
const minConfidence = 0.30

// llmIntent is the JSON shape the model is asked to produce.
type llmIntent struct {
	Action                string         `json:"action"`
	Confidence            float64        `json:"confidence"`
	Parameters            map[string]any `json:"parameters"`
	TargetLabel           string         `json:"target_label"`
	TargetTripID          *int           `json:"target_trip_id"`
	TargetTime            string         `json:"target_time"`
	NeedsClarification    bool           `json:"needs_clarification"`
	ClarificationQuestion string         `json:"clarification_question"`
	Explanation           string         `json:"explanation"`
}

// parseIntent classifies the inbound text. Strategy order: the structured
// fast path (no LLM call), then the LLM, then the regex table once the LLM's
// retry ladder is exhausted.
func (a *Agent) parseIntent(ctx context.Context, state *models.FlowState) error {
	// An active wizard owns the turn; its own step parser runs instead.
	if state.Wizard != nil && !state.Wizard.Cancelled {
		return nil
	}

	text := strings.TrimSpace(state.InputText)
	if text == "" {
		state.SetError(models.ErrInvalidParameters, "empty message")
		return nil
	}

	// A literal 'undefined' means the UI forwarded a broken selection;
	// parsing it as a label would resolve garbage.
	if strings.Contains(strings.ToLower(text), "undefined") {
		state.SetError(models.ErrInvalidSelection, "please select a valid option and try again")
		return nil
	}

	if strings.HasPrefix(text, StructuredPrefix) {
		intent, err := parseStructured(text)
		if err != nil {
			state.SetError(models.ErrInvalidParameters, err.Error())
			return nil
		}
		state.Intent = *intent
		a.validateIntent(state)
		return nil
	}

	intent, err := a.parseWithLLM(ctx, state)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("LLM strategy failed, falling back to regex",
				"user_id", state.UserID, "error", err)
			state.Intent = *parseWithRegex(text)
			a.validateIntent(state)
			return nil
		}
		return fmt.Errorf("intent parsing failed: %w", err)
	}

	state.Intent = *intent
	if !state.NeedsClarification && intent.Confidence < minConfidence {
		state.NeedsClarification = true
		state.Message = "I'm not sure I understood that, could you rephrase?"
	}
	a.validateIntent(state)
	return nil
}

func (a *Agent) parseWithLLM(ctx context.Context, state *models.FlowState) (*models.Intent, error) {
	raw, err := a.llm.Complete(ctx, llm.Request{
		System:    buildSystemPrompt(state),
		Messages:  promptMessages(state, a.cfg.HistoryLimit),
		ForceJSON: true,
	})
	if err != nil {
		return nil, err
	}

	payload := extractJSON(raw)
	var parsed llmIntent
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		// A malformed completion gets the same treatment as an
		// unavailable model.
		slog.Warn("LLM returned unparseable intent", "error", err)
		return nil, llm.ErrUnavailable
	}

	intent := &models.Intent{
		Action:       normalizeAction(parsed.Action),
		Confidence:   parsed.Confidence,
		Parameters:   parsed.Parameters,
		TargetLabel:  strings.TrimSpace(parsed.TargetLabel),
		TargetTripID: parsed.TargetTripID,
		TargetTime:   strings.TrimSpace(parsed.TargetTime),
		Explanation:  parsed.Explanation,
	}
	if intent.Parameters == nil {
		intent.Parameters = make(map[string]any)
	}

	if parsed.NeedsClarification {
		state.NeedsClarification = true
		if parsed.ClarificationQuestion != "" {
			state.Message = parsed.ClarificationQuestion
		} else {
			state.Message = "Could you clarify what you want to do?"
		}
	}
	return intent, nil
}

// normalizeAction maps a raw action name onto the catalog: direct hit,
// synonym table, then a similarity match for typos. Anything else is unknown.
func normalizeAction(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return catalog.ActionUnknown
	}
	if a, ok := catalog.Canonical(name); ok {
		return a.Name
	}
	if a, ok := catalog.Closest(name); ok {
		return a.Name
	}
	return catalog.ActionUnknown
}

// validateIntent applies the checks shared by all parsing strategies: catalog
// membership, page gating, and required parameters.
func (a *Agent) validateIntent(state *models.FlowState) {
	action, ok := catalog.Lookup(state.Intent.Action)
	if !ok {
		state.Intent.Action = catalog.ActionUnknown
		state.SetError(models.ErrUnknownAction, "I did not recognize that command")
		return
	}
	if action.Name == catalog.ActionUnknown {
		state.SetError(models.ErrUnknownAction, "I did not recognize that command")
		return
	}

	if !catalog.PageAllowed(action, state.Page) {
		state.Intent.Action = catalog.ActionContextMismatch
		state.SetError(models.ErrContextMismatch,
			fmt.Sprintf("this command is only available on the %s page", action.Page))
		return
	}

	if missing := missingParams(action, &state.Intent); len(missing) > 0 {
		// Assignment targets are offered via selection lists, and
		// wizard-backed actions collect their inputs step by step.
		if action.Flow == "" && !selectionCoversParams(action.Name, missing) {
			state.SetError(models.ErrMissingParameters,
				fmt.Sprintf("missing required parameter(s): %s", strings.Join(missing, ", ")))
		}
	}
}

// selectionCoversParams reports whether the missing keys are assignment
// targets that a selection provider will supply interactively.
func selectionCoversParams(action string, missing []string) bool {
	if action != "assign_vehicle" && action != "assign_driver" {
		return false
	}
	for _, key := range missing {
		if key != "vehicle_id" && key != "driver_id" {
			return false
		}
	}
	return true
}

// extractJSON pulls the first balanced JSON object out of a completion,
// tolerating code fences and surrounding prose.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
