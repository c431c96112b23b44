package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/models"
)

// StructuredPrefix marks a machine-issued command that bypasses the LLM.
const StructuredPrefix = "STRUCTURED_CMD:"

// parseStructured decodes STRUCTURED_CMD:<action>(|<key>:<value>)* into an
// intent with confidence 1.0. Values are integer literals, quoted strings
// (spaces allowed), or barewords. Unknown keys are kept; the executor
// ignores what it does not need.
func parseStructured(text string) (*models.Intent, error) {
	body := strings.TrimPrefix(text, StructuredPrefix)
	segments := splitStructured(body)
	if len(segments) == 0 || segments[0] == "" {
		return nil, fmt.Errorf("empty structured command")
	}

	action := strings.TrimSpace(segments[0])
	intent := &models.Intent{
		Action:     action,
		Confidence: 1.0,
		Parameters: make(map[string]any),
	}

	for _, seg := range segments[1:] {
		key, raw, ok := strings.Cut(seg, ":")
		if !ok {
			return nil, fmt.Errorf("malformed segment %q, expected key:value", seg)
		}
		key = strings.TrimSpace(key)
		intent.Parameters[key] = coerceValue(strings.TrimSpace(raw))
	}
	return intent, nil
}

// splitStructured splits on '|' while honoring double quotes, so
// `create_stop|name:"North Gate"|lat:12` yields three segments.
func splitStructured(body string) []string {
	var segments []string
	var cur strings.Builder
	inQuote := false
	for _, r := range body {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == '|' && !inQuote:
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	segments = append(segments, cur.String())
	return segments
}

func coerceValue(raw string) any {
	if len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) {
		return raw[1 : len(raw)-1]
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// missingParams returns the catalog-required keys absent from the intent.
func missingParams(a catalog.Action, intent *models.Intent) []string {
	var missing []string
	for _, key := range a.RequiredParams {
		if _, ok := intent.Parameters[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
