// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ryansansbury/model-platform/internal/relay"
)

// =============================================================================
// ANTHROPIC WIRE TYPES
// =============================================================================

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicStreamEvent covers the content_block_delta events; other event
// types decode with an empty delta and are ignored.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// =============================================================================
// ANTHROPIC CALLS
// =============================================================================

// anthropicBody separates system messages into the top-level system field,
// which the Messages API requires.
func (c *Client) anthropicBody(req Request, stream bool) ([]byte, error) {
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			body.System = msg.Content
			continue
		}
		body.Messages = append(body.Messages, msg)
	}
	return json.Marshal(body)
}

func anthropicAuth(key string) headerFunc {
	return func(req *http.Request) {
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", anthropicVersion)
	}
}

func (c *Client) callAnthropic(ctx context.Context, req Request) (*Result, error) {
	key, err := c.key("anthropic")
	if err != nil {
		return nil, err
	}

	body, err := c.anthropicBody(req, false)
	if err != nil {
		return nil, err
	}

	data, err := c.postJSON(ctx, c.httpClient, c.endpoints.Anthropic+"/messages", body, anthropicAuth(key), "anthropic")
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse anthropic response: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	result := &Result{
		Response:     text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Model:        resp.Model,
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	return result, nil
}

func (c *Client) streamAnthropic(ctx context.Context, req Request, fn StreamFunc) error {
	key, err := c.key("anthropic")
	if err != nil {
		return err
	}

	body, err := c.anthropicBody(req, true)
	if err != nil {
		return err
	}

	resp, err := c.openStream(ctx, c.endpoints.Anthropic+"/messages", body, anthropicAuth(key), "anthropic")
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

		var event anthropicStreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		if event.Type == "message_stop" {
			return nil
		}
		if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
			fn(event.Delta.Text)
		}
	}
}
