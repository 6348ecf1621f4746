// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// =============================================================================
// OPENAI-COMPATIBLE PROVIDERS (XAI, DEEPSEEK, GROQ)
// =============================================================================

// compatRequest is the classic chat completions shape. Unlike OpenAI proper,
// these providers still take max_tokens and accept temperature everywhere.
type compatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

func (c *Client) compatEndpoint(provider string) string {
	switch provider {
	case "xai":
		return c.endpoints.XAI
	case "deepseek":
		return c.endpoints.DeepSeek
	case "groq":
		return c.endpoints.Groq
	default:
		return ""
	}
}

func (c *Client) callCompat(ctx context.Context, provider string, req Request) (*Result, error) {
	key, err := c.key(provider)
	if err != nil {
		return nil, err
	}

	endpoint := c.compatEndpoint(provider)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	body, err := json.Marshal(compatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	data, err := c.postJSON(ctx, c.httpClient, endpoint+"/chat/completions", body, bearerAuth(key), provider)
	if err != nil {
		if provider == "groq" && isStatus(err, http.StatusTooManyRequests) {
			return nil, &Error{
				Provider: provider,
				Status:   http.StatusTooManyRequests,
				Message:  "Groq rate limit exceeded. Please wait and try again.",
			}
		}
		return nil, err
	}

	var resp openaiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: provider, Message: "no choices in response"}
	}

	result := &Result{
		Response:     resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	return result, nil
}

func isStatus(err error, status int) bool {
	pe, ok := err.(*Error)
	return ok && pe.Status == status
}
