// Package openrouter talks to OpenRouter's OpenAI-compatible chat API.
package openrouter

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Client performs chat completions.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single system+user exchange.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	JSON        bool // request a JSON object response
}

// ChatResponse carries the first choice and token usage.
type ChatResponse struct {
	ID               string
	Model            string
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Option customizes the client.
type Option func(*openai.ClientConfig)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *openai.ClientConfig) {
		if u != "" {
			c.BaseURL = u
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *openai.ClientConfig) {
		c.HTTPClient = &http.Client{Timeout: d}
	}
}

type client struct {
	api *openai.Client
}

// NewClient creates an OpenRouter client. The default request timeout is 120s.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = DefaultBaseURL
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	return &client{api: openai.NewClientWithConfig(cfg)}
}

func (c *client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openrouter: no choices in response")
	}

	zap.L().Debug("openrouter: completion",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &ChatResponse{
		ID:               resp.ID,
		Model:            resp.Model,
		Content:          resp.Choices[0].Message.Content,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
