package extract

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/zakupki-realty/internal/resilience"
	"github.com/sells-group/zakupki-realty/pkg/anthropic"
	"github.com/sells-group/zakupki-realty/pkg/openrouter"
)

// Prompt is one extraction request.
type Prompt struct {
	RegNumber string
	System    string
	User      string
}

// Completer sends a prompt to a language model and returns the raw text reply.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ModelSettings are the sampling parameters shared by both providers.
type ModelSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// AnthropicCompleter sends prompts through the Messages API with the system
// prompt marked for caching.
type AnthropicCompleter struct {
	client   anthropic.Client
	settings ModelSettings
}

// NewAnthropicCompleter wraps an Anthropic client.
func NewAnthropicCompleter(client anthropic.Client, s ModelSettings) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, settings: s}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	temp := c.settings.Temperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.settings.Model,
		MaxTokens:   int64(c.settings.MaxTokens),
		System:      anthropic.CachedSystemPrompt(p.System, ""),
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return "", resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return "", err
	}
	resp.Usage.LogCost(c.settings.Model, p.RegNumber)
	return resp.Text(), nil
}

// OpenRouterCompleter sends prompts through OpenRouter in JSON-object mode.
type OpenRouterCompleter struct {
	client   openrouter.Client
	settings ModelSettings
}

// NewOpenRouterCompleter wraps an OpenRouter client.
func NewOpenRouterCompleter(client openrouter.Client, s ModelSettings) *OpenRouterCompleter {
	return &OpenRouterCompleter{client: client, settings: s}
}

func (c *OpenRouterCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := c.client.Complete(ctx, openrouter.ChatRequest{
		Model:       c.settings.Model,
		System:      p.System,
		User:        p.User,
		Temperature: float32(c.settings.Temperature),
		MaxTokens:   c.settings.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
			return "", resilience.NewTransientError(err, apiErr.HTTPStatusCode)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && resilience.IsTransientHTTPStatus(reqErr.HTTPStatusCode) {
			return "", resilience.NewTransientError(err, reqErr.HTTPStatusCode)
		}
		return "", err
	}
	return resp.Content, nil
}
