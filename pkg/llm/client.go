// Package llm abstracts the intent-parsing language model behind a small
// interface so the parser can be tested with a stub and the production
// implementation can target any OpenAI-compatible endpoint.
package llm

import (
	"context"
	"errors"

	"github.com/fleetops/movi/pkg/models"
)

// ErrUnavailable is returned once the retry ladder is exhausted (timeouts or
// transport failures on every attempt). The intent parser treats it as the
// signal to fall through to the regex strategy.
var ErrUnavailable = errors.New("llm unavailable after retries")

// Request is a single completion call.
type Request struct {
	System   string
	Messages []models.Message
	// ForceJSON requests a JSON-object response format from the provider.
	ForceJSON bool
}

// Client produces a completion for a request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
