package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fleetops/movi/pkg/config"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	cfg    config.LLMConfig
}

// NewOpenAIClient builds a client from configuration. The API key comes from
// the OPENAI_API_KEY environment variable.
func NewOpenAIClient(cfg config.LLMConfig) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	slog.Info("Initializing LLM client", "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// Complete runs one chat completion through the retry ladder: a per-attempt
// timeout, a bounded attempt count, and exponential backoff between attempts
// (1s -> 2s -> 4s with the defaults). A terminal failure returns
// ErrUnavailable so the caller can fall back to its deterministic strategy.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: messages,
	}
	if req.ForceJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	backoff := c.cfg.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		resp, err := c.client.CreateChatCompletion(attemptCtx, chatReq)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = fmt.Errorf("llm returned no choices")
			} else {
				return resp.Choices[0].Message.Content, nil
			}
		} else {
			lastErr = err
		}

		// The caller going away is not retryable.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if attempt < c.cfg.MaxAttempts {
			slog.Warn("LLM attempt failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}
	}

	slog.Error("LLM retries exhausted", "attempts", c.cfg.MaxAttempts, "error", lastErr)
	return "", errors.Join(ErrUnavailable, lastErr)
}

var _ Client = (*OpenAIClient)(nil)
