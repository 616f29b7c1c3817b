package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/mamadbah2/agrimatch/pkg/clients/throttle"
)

const (
	defaultBaseURL           = "https://generativelanguage.googleapis.com/v1beta"
	defaultRequestsPerSecond = 2
)

// ErrEmptyResponse indicates the model returned no usable text.
var ErrEmptyResponse = errors.New("empty response from gemini")

// Client defines the completion operation used by the matching engine.
type Client interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest holds one prompt and its generation controls.
type GenerateRequest struct {
	Model           string
	Prompt          string
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
	JSONResponse    bool
}

// Options configures the client.
type Options struct {
	APIKey            string
	RequestsPerSecond float64
	BaseURL           string
	Timeout           time.Duration
}

// APIError is the error payload returned by the Generative Language API.
type APIError struct {
	StatusCode int `json:"-"`
	Detail     struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error: status=%d code=%s message=%s", e.StatusCode, e.Detail.Status, e.Detail.Message)
}

// HTTPStatus exposes the response status for error classification.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiClient struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
}

// NewClient creates a Gemini client for the generateContent REST endpoint.
func NewClient(opts Options) (Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key must be provided")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", opts.APIKey).
		SetTimeout(opts.Timeout)

	return &geminiClient{httpClient: client, limiter: throttle.NewLimiter(rps)}, nil
}

func (c *geminiClient) GenerateContent(ctx context.Context, req GenerateRequest) (string, error) {
	if err := throttle.Wait(ctx, c.limiter); err != nil {
		return "", err
	}

	body := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			TopK:            req.TopK,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.JSONResponse {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	var respBody generateContentResponse
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&respBody).
		SetError(apiErr).
		Post("/" + modelResource(req.Model) + ":generateContent")

	if err != nil {
		return "", fmt.Errorf("gemini generate content (%s): %w", req.Model, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if apiErr.Detail.Message == "" {
			apiErr.Detail.Message = resp.String()
		}
		return "", apiErr
	}

	text := firstText(respBody)
	if text == "" {
		if reason := respBody.PromptFeedback.BlockReason; reason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, reason)
		}
		return "", ErrEmptyResponse
	}
	return text, nil
}

func modelResource(model string) string {
	model = strings.TrimPrefix(model, "models/")
	return "models/" + url.PathEscape(model)
}

func firstText(resp generateContentResponse) string {
	for _, cand := range resp.Candidates {
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text
		}
	}
	return ""
}
