package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned when no access token or phone number id is set.
var ErrNotConfigured = errors.New("whatsapp client not configured")

// Client sends outbound WhatsApp messages.
type Client interface {
	SendText(ctx context.Context, msg TextMessage) (string, error)
}

// Options configures the Cloud API client.
type Options struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	Timeout       time.Duration
}

// TextMessage is a plain text message to one recipient.
type TextMessage struct {
	To         string
	Body       string
	PreviewURL bool
}

// APIError is the Graph API error payload.
type APIError struct {
	StatusCode int `json:"-"`
	Detail     struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	code := e.Detail.Code
	if code == 0 {
		code = e.StatusCode
	}
	return fmt.Sprintf("whatsapp api error: code=%d, message=%s", code, e.Detail.Message)
}

// HTTPStatus exposes the response status.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// APIClient is a resty-backed Client.
type APIClient struct {
	httpClient    *resty.Client
	phoneNumberID string
}

// NewClient builds a Cloud API client. It returns ErrNotConfigured when credentials are missing.
func NewClient(opts Options) (*APIClient, error) {
	if opts.AccessToken == "" || opts.PhoneNumberID == "" {
		return nil, ErrNotConfigured
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://graph.facebook.com"
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "v20.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	restyClient := resty.New().
		SetBaseURL(fmt.Sprintf("%s/%s", strings.TrimSuffix(opts.BaseURL, "/"), opts.APIVersion)).
		SetHeader("Authorization", "Bearer "+opts.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(opts.Timeout)

	return &APIClient{
		httpClient:    restyClient,
		phoneNumberID: opts.PhoneNumberID,
	}, nil
}

// SendText delivers msg and returns the message id assigned by Meta.
func (c *APIClient) SendText(ctx context.Context, msg TextMessage) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                normalizeRecipient(msg.To),
		"type":              "text",
		"text": map[string]any{
			"body":        msg.Body,
			"preview_url": msg.PreviewURL,
		},
	}

	result := new(sendResponse)
	apiErr := new(APIError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post(c.phoneNumberID + "/messages")
	if err != nil {
		return "", fmt.Errorf("send whatsapp message: %w", err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return "", apiErr
	}

	if len(result.Messages) == 0 {
		return "", nil
	}
	return result.Messages[0].ID, nil
}

// normalizeRecipient strips the formatting characters people type into phone fields.
func normalizeRecipient(to string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '+', ' ', '-', '(', ')':
			return -1
		}
		return r
	}, to)
}
