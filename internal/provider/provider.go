// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ryansansbury/model-platform/internal/catalog"
)

// Timeouts per request kind. Streaming requests get longer since the
// whole reply arrives within them.
const (
	callTimeout   = 120 * time.Second
	streamTimeout = 300 * time.Second
)

// =============================================================================
// TYPES
// =============================================================================

// Message is one turn forwarded to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a chat call after backend validation.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	// MaxTokens zero means use the model's catalog limit.
	MaxTokens int
}

// Result is a normalized non-streaming reply.
type Result struct {
	Response     string
	InputTokens  int
	OutputTokens int
	Model        string
}

// StreamFunc receives each text chunk in arrival order.
type StreamFunc func(text string)

// Endpoints are the provider API base URLs, overridable for tests.
type Endpoints struct {
	OpenAI    string
	Anthropic string
	Google    string
	XAI       string
	DeepSeek  string
	Groq      string
}

// DefaultEndpoints returns the production provider URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		OpenAI:    "https://api.openai.com/v1",
		Anthropic: "https://api.anthropic.com/v1",
		Google:    "https://generativelanguage.googleapis.com/v1beta",
		XAI:       "https://api.x.ai/v1",
		DeepSeek:  "https://api.deepseek.com/v1",
		Groq:      "https://api.groq.com/openai/v1",
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnsupportedProvider indicates an unknown provider name.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// Error is a failure reported by a provider's API.
type Error struct {
	Provider string
	Status   int
	Message  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// missingKeyError reports an absent API key for a provider.
func missingKeyError(provider string) error {
	return fmt.Errorf("%s API key not provided", provider)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client dispatches chat requests to provider adapters. One Client is
// built per backend request, carrying that request's API keys.
type Client struct {
	apiKeys      map[string]string
	endpoints    Endpoints
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a dispatching client over the given per-provider
// API keys.
func NewClient(apiKeys map[string]string) *Client {
	if apiKeys == nil {
		apiKeys = map[string]string{}
	}
	return &Client{
		apiKeys:      apiKeys,
		endpoints:    DefaultEndpoints(),
		httpClient:   &http.Client{Timeout: callTimeout},
		streamClient: &http.Client{Timeout: streamTimeout},
	}
}

// WithEndpoints overrides the provider API URLs.
func (c *Client) WithEndpoints(e Endpoints) *Client {
	c.endpoints = e
	return c
}

// key returns the API key for provider or a descriptive error.
func (c *Client) key(provider string) (string, error) {
	key := c.apiKeys[provider]
	if key == "" {
		return "", missingKeyError(provider)
	}
	return key, nil
}

// Call performs a non-streaming chat request against the named provider.
func (c *Client) Call(ctx context.Context, provider string, req Request) (*Result, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = catalog.MaxOutputTokens(provider, req.Model)
	}

	switch provider {
	case "openai":
		return c.callOpenAI(ctx, req)
	case "anthropic":
		return c.callAnthropic(ctx, req)
	case "google":
		return c.callGoogle(ctx, req)
	case "xai", "deepseek", "groq":
		return c.callCompat(ctx, provider, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}

// Stream performs a streaming chat request, invoking fn for each chunk.
// Providers without native streaming are called synchronously and their
// full reply emitted as one chunk.
func (c *Client) Stream(ctx context.Context, provider string, req Request, fn StreamFunc) error {
	if req.MaxTokens <= 0 {
		req.MaxTokens = catalog.MaxOutputTokens(provider, req.Model)
	}

	switch provider {
	case "openai":
		return c.streamOpenAI(ctx, req, fn)
	case "anthropic":
		return c.streamAnthropic(ctx, req, fn)
	case "google":
		return c.streamGoogle(ctx, req, fn)
	case "xai", "deepseek", "groq":
		result, err := c.callCompat(ctx, provider, req)
		if err != nil {
			return err
		}
		fn(result.Response)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}
