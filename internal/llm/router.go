package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProvider is returned for a model identifier no registered provider serves.
var ErrUnknownProvider = errors.New("no provider registered for model")

// Router dispatches model identifiers to providers by prefix.
type Router struct {
	routes []route
}

type route struct {
	prefix   string
	provider Generator
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register serves every model whose identifier starts with prefix from provider.
func (r *Router) Register(prefix string, provider Generator) {
	r.routes = append(r.routes, route{prefix: strings.ToLower(prefix), provider: provider})
}

// Supports reports whether a provider is registered for model.
func (r *Router) Supports(model string) bool {
	_, ok := r.lookup(model)
	return ok
}

// Generate implements Generator.
func (r *Router) Generate(ctx context.Context, model string, req Request) (string, error) {
	provider, ok := r.lookup(model)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, model)
	}
	return provider.Generate(ctx, model, req)
}

func (r *Router) lookup(model string) (Generator, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, rt := range r.routes {
		if strings.HasPrefix(m, rt.prefix) {
			return rt.provider, true
		}
	}
	return nil, false
}
