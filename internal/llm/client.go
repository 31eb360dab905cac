// Package llm calls the hosted chat-completion model and retries failed or
// unusable responses.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/storemate/internal/task"
)

const (
	DefaultBaseURL = "https://api.deepseek.com/v1"
	defaultTimeout = 30 * time.Second
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces a single chat completion. It does not retry.
type Completer interface {
	Complete(ctx context.Context, messages []Message, params task.Params) (string, error)
}

// Client is a Completer for any OpenAI-compatible endpoint (DeepSeek by default).
type Client struct {
	api     *openai.Client
	timeout time.Duration
}

// NewClient creates a Client. An empty baseURL targets DeepSeek; timeout
// bounds each request and defaults to 30s.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{api: openai.NewClientWithConfig(cfg), timeout: timeout}
}

// Complete sends one chat completion request and returns the assistant text.
func (c *Client) Complete(ctx context.Context, messages []Message, params task.Params) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
		TopP:        float32(params.TopP),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &QualityError{Length: 0, Min: 1}
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps go-openai errors onto the package error taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &StatusError{Code: reqErr.HTTPStatusCode, Body: body}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportError{Err: err}
}
