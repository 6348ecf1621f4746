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
	"net/url"
)

// =============================================================================
// GOOGLE WIRE TYPES
// =============================================================================

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	Contents          []googleContent `json:"contents"`
	SystemInstruction *googleContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type googleError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// GOOGLE CALLS
// =============================================================================

// googleBody maps chat roles onto Gemini's user/model vocabulary and hoists
// system messages into systemInstruction.
func (c *Client) googleBody(req Request) ([]byte, error) {
	var body googleRequest
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			body.SystemInstruction = &googleContent{
				Parts: []googlePart{{Text: msg.Content}},
			}
		case "assistant":
			body.Contents = append(body.Contents, googleContent{
				Role:  "model",
				Parts: []googlePart{{Text: msg.Content}},
			})
		default:
			body.Contents = append(body.Contents, googleContent{
				Role:  "user",
				Parts: []googlePart{{Text: msg.Content}},
			})
		}
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	return json.Marshal(body)
}

func (c *Client) googleURL(model, verb, key string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", c.endpoints.Google, model, verb, url.QueryEscape(key))
}

func googleText(resp *googleResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text
}

func (c *Client) callGoogle(ctx context.Context, req Request) (*Result, error) {
	key, err := c.key("google")
	if err != nil {
		return nil, err
	}

	body, err := c.googleBody(req)
	if err != nil {
		return nil, err
	}

	data, err := c.postJSON(ctx, c.httpClient, c.googleURL(req.Model, "generateContent", key), body, nil, "google")
	if err != nil {
		return nil, err
	}

	var resp googleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse google response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, &Error{Provider: "google", Message: "no candidates in response"}
	}

	return &Result{
		Response:     googleText(&resp),
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		Model:        req.Model,
	}, nil
}

// streamGoogle reads the streamGenerateContent reply, which is a single JSON
// array of response objects delivered incrementally. json.Decoder consumes
// array elements as they arrive without buffering the whole body.
func (c *Client) streamGoogle(ctx context.Context, req Request, fn StreamFunc) error {
	key, err := c.key("google")
	if err != nil {
		return err
	}

	body, err := c.googleBody(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.googleURL(req.Model, "streamGenerateContent", key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("google request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var ge googleError
		if json.Unmarshal(data, &ge) == nil && ge.Error.Message != "" {
			return &Error{Provider: "google", Status: resp.StatusCode, Message: ge.Error.Message}
		}
		return providerError("google", resp.StatusCode, data)
	}

	dec := json.NewDecoder(resp.Body)
	if _, err := dec.Token(); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to parse google stream: %w", err)
	}
	for dec.More() {
		var chunk googleResponse
		if err := dec.Decode(&chunk); err != nil {
			return fmt.Errorf("failed to parse google stream: %w", err)
		}
		if text := googleText(&chunk); text != "" {
			fn(text)
		}
	}
	return nil
}
