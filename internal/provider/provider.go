// Package provider adapts fantasy language-model providers to the
// router's Invoker interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openrouter"

	"github.com/rand/fathom/internal/router"
)

// Client wraps a fantasy.Provider as a router.Invoker.
type Client struct {
	provider fantasy.Provider
	name     string
}

// NewAnthropic builds a client backed by the Anthropic API.
func NewAnthropic(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	p, err := anthropic.New(anthropic.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create anthropic provider: %w", err)
	}
	return &Client{provider: p, name: "anthropic"}, nil
}

// NewOpenRouter builds a client backed by OpenRouter, which serves every
// family in the default catalog.
func NewOpenRouter(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter api key is required")
	}
	p, err := openrouter.New(openrouter.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create openrouter provider: %w", err)
	}
	return &Client{provider: p, name: "openrouter"}, nil
}

// Name returns the backing provider name.
func (c *Client) Name() string {
	return c.name
}

// Invoke implements router.Invoker. Effort is advisory here; reasoning
// depth is chosen by model selection, so only temperature is forwarded.
func (c *Client) Invoke(ctx context.Context, model string, payload router.Payload) (*router.InvokeResult, error) {
	lm, err := c.provider.LanguageModel(ctx, model)
	if err != nil {
		return nil, classify(fmt.Errorf("get language model: %w", err))
	}

	prompt := payload.Prompt
	if payload.Context != "" {
		prompt = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", payload.Context, payload.Prompt)
	}

	maxTokens64 := int64(payload.MaxTokens)
	call := fantasy.Call{
		Prompt:          fantasy.Prompt{fantasy.NewUserMessage(prompt)},
		MaxOutputTokens: &maxTokens64,
	}
	if payload.Temperature != nil {
		call.Temperature = payload.Temperature
	}

	resp, err := lm.Generate(ctx, call)
	if err != nil {
		return nil, classify(fmt.Errorf("%s generate: %w", c.name, err))
	}

	text := resp.Content.Text()
	if text == "" {
		return nil, router.Transient(errors.New("empty response"))
	}

	return &router.InvokeResult{
		Text:         text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// classify tags provider errors for the router's retry policy. Auth and
// malformed-request failures are fatal; everything else is worth a retry
// or a tier fallback.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"):
		return router.Fatal(err)
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "invalid request"),
		strings.Contains(msg, "malformed"):
		return router.Fatal(err)
	default:
		return router.Transient(err)
	}
}
