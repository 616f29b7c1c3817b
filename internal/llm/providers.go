package llm

import (
	"context"

	"github.com/mamadbah2/agrimatch/pkg/clients/anthropic"
	"github.com/mamadbah2/agrimatch/pkg/clients/gemini"
)

// GeminiProvider adapts the Gemini client to Generator.
type GeminiProvider struct {
	Client gemini.Client
}

// Generate implements Generator.
func (p GeminiProvider) Generate(ctx context.Context, model string, req Request) (string, error) {
	return p.Client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:           model,
		Prompt:          req.Prompt,
		Temperature:     req.Temperature,
		TopK:            req.TopK,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
		JSONResponse:    req.JSON,
	})
}

// AnthropicProvider adapts the Anthropic client to Generator.
type AnthropicProvider struct {
	Client anthropic.Client
}

// Generate implements Generator.
func (p AnthropicProvider) Generate(ctx context.Context, model string, req Request) (string, error) {
	return p.Client.Complete(ctx, anthropic.CompletionRequest{
		Model:       model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
		PrefillJSON: req.JSON,
	})
}
