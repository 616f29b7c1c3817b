package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/mamadbah2/agrimatch/pkg/clients/throttle"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
	systemPrompt     = "You are a decision engine. Reply with a single JSON object and nothing else."
)

// Client defines the completion operation used by the matching engine.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest holds one prompt and its generation controls.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	TopK        int
	MaxTokens   int
	// PrefillJSON seeds the assistant turn with "{" to force a JSON object.
	PrefillJSON bool
}

// APIError is the error payload returned by the Messages API.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Detail     struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic api error: status=%d type=%s message=%s", e.StatusCode, e.Detail.Type, e.Detail.Message)
}

// HTTPStatus exposes the response status for error classification.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

type anthropicClient struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
}

// Options configures the client. RequestsPerSecond <= 0 disables client-side throttling.
type Options struct {
	APIKey            string
	RequestsPerSecond float64
	BaseURL           string
	Timeout           time.Duration
}

// NewClient creates a configured Anthropic client.
func NewClient(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("x-api-key", opts.APIKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("content-type", "application/json").
		SetTimeout(opts.Timeout)

	return &anthropicClient{httpClient: client, limiter: throttle.NewLimiter(opts.RequestsPerSecond)}
}

type messageRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopK        int       `json:"top_k,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := throttle.Wait(ctx, c.limiter); err != nil {
		return "", err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := []Message{{Role: "user", Content: req.Prompt}}
	if req.PrefillJSON {
		messages = append(messages, Message{Role: "assistant", Content: "{"})
	}

	reqBody := messageRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      systemPrompt,
		Messages:    messages,
		Temperature: req.Temperature,
		TopK:        req.TopK,
	}

	var respBody messageResponse
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(reqBody).
		SetResult(&respBody).
		SetError(apiErr).
		Post("/v1/messages")

	if err != nil {
		return "", fmt.Errorf("anthropic api call: %w", err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if apiErr.Detail.Message == "" {
			apiErr.Detail.Message = resp.String()
		}
		return "", apiErr
	}

	var b strings.Builder
	for _, block := range respBody.Content {
		if block.Type == "" || block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from anthropic")
	}

	// Reconstruct the full JSON since we prefilled the opening brace
	if req.PrefillJSON && !strings.HasPrefix(strings.TrimSpace(text), "{") {
		text = "{" + text
	}
	return text, nil
}
