// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ryansansbury/model-platform/internal/relay"
)

// =============================================================================
// OPENAI WIRE TYPES
// =============================================================================

// openaiRequest uses max_completion_tokens; the older max_tokens field is
// rejected by newer models. Temperature is a pointer because reasoning
// models (o1, o3) reject the parameter entirely.
type openaiRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	MaxCompletionTokens int       `json:"max_completion_tokens"`
	Temperature         *float64  `json:"temperature,omitempty"`
	Stream              bool      `json:"stream,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// openaiError is the {"error": {"message": ...}} shape shared by OpenAI
// and the OpenAI-compatible providers.
type openaiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// isReasoningModel reports whether model is an OpenAI reasoning model
// that rejects the temperature parameter.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3"} {
		if strings.HasPrefix(m, prefix) || strings.Contains(m, "/"+prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// OPENAI CALLS
// =============================================================================

func (c *Client) openaiBody(req Request, stream bool) ([]byte, error) {
	body := openaiRequest{
		Model:               req.Model,
		Messages:            req.Messages,
		MaxCompletionTokens: req.MaxTokens,
		Stream:              stream,
	}
	if !isReasoningModel(req.Model) {
		temp := req.Temperature
		body.Temperature = &temp
	}
	return json.Marshal(body)
}

func (c *Client) callOpenAI(ctx context.Context, req Request) (*Result, error) {
	key, err := c.key("openai")
	if err != nil {
		return nil, err
	}

	body, err := c.openaiBody(req, false)
	if err != nil {
		return nil, err
	}

	data, err := c.postJSON(ctx, c.httpClient, c.endpoints.OpenAI+"/chat/completions", body, bearerAuth(key), "openai")
	if err != nil {
		return nil, err
	}

	var resp openaiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: "openai", Message: "no choices in response"}
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

func (c *Client) streamOpenAI(ctx context.Context, req Request, fn StreamFunc) error {
	key, err := c.key("openai")
	if err != nil {
		return err
	}

	body, err := c.openaiBody(req, true)
	if err != nil {
		return err
	}

	resp, err := c.openStream(ctx, c.endpoints.OpenAI+"/chat/completions", body, bearerAuth(key), "openai")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := relay.NewSSEReader(resp.Body)
	for {
		data, err := reader.ReadData()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			fn(chunk.Choices[0].Delta.Content)
		}
	}
}

// =============================================================================
// SHARED HTTP HELPERS
// =============================================================================

type headerFunc func(req *http.Request)

func bearerAuth(key string) headerFunc {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// postJSON posts body and returns the response bytes, converting non-2xx
// replies into a provider Error with the vendor's message when parseable.
func (c *Client) postJSON(ctx context.Context, hc *http.Client, url string, body []byte, auth headerFunc, provider string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		auth(req)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%s read failed: %w", provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerError(provider, resp.StatusCode, data)
	}
	return data, nil
}

// openStream posts body and returns the live response for SSE reading.
func (c *Client) openStream(ctx context.Context, url string, body []byte, auth headerFunc, provider string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if auth != nil {
		auth(req)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, providerError(provider, resp.StatusCode, data)
	}
	return resp, nil
}

// providerError extracts the vendor's error message from an error body.
func providerError(provider string, status int, body []byte) error {
	var oe openaiError
	if err := json.Unmarshal(body, &oe); err == nil && oe.Error.Message != "" {
		return &Error{Provider: provider, Status: status, Message: oe.Error.Message}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Provider: provider, Status: status, Message: msg}
}
