// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testKeys() map[string]string {
	return map[string]string{
		"openai":    "sk-openai-test",
		"anthropic": "sk-ant-test",
		"google":    "g-test",
		"xai":       "xai-test",
		"deepseek":  "ds-test",
		"groq":      "gsk-test",
	}
}

func testRequest() Request {
	return Request{
		Model: "test-model",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	}
}

// clientFor points every provider endpoint at the same test server.
func clientFor(srv *httptest.Server) *Client {
	return NewClient(testKeys()).WithEndpoints(Endpoints{
		OpenAI:    srv.URL,
		Anthropic: srv.URL,
		Google:    srv.URL,
		XAI:       srv.URL,
		DeepSeek:  srv.URL,
		Groq:      srv.URL,
	})
}

// =============================================================================
// OPENAI
// =============================================================================

func TestCallOpenAI(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-openai-test" {
			t.Errorf("Authorization = %q, want bearer key", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"model":"test-model","choices":[{"message":{"content":"hi there"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`)
	}))
	defer srv.Close()

	result, err := clientFor(srv).Call(context.Background(), "openai", testRequest())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Response != "hi there" {
		t.Errorf("Response = %q, want %q", result.Response, "hi there")
	}
	if result.InputTokens != 12 || result.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", result.InputTokens, result.OutputTokens)
	}
	if got.MaxCompletionTokens != 256 {
		t.Errorf("max_completion_tokens = %d, want 256", got.MaxCompletionTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", got.Temperature)
	}
}

func TestCallOpenAI_ReasoningModelSkipsTemperature(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}],"usage":{}}`)
	}))
	defer srv.Close()

	req := testRequest()
	req.Model = "o3-mini"
	if _, err := clientFor(srv).Call(context.Background(), "openai", req); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if _, present := raw["temperature"]; present {
		t.Error("temperature sent for reasoning model, want omitted")
	}
}

func TestStreamOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !got.Stream {
			t.Error("stream = false, want true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var chunks []string
	err := clientFor(srv).Stream(context.Background(), "openai", testRequest(), func(text string) {
		chunks = append(chunks, text)
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Join(chunks, "") != "Hello" {
		t.Errorf("chunks = %v, want Hello", chunks)
	}
}

func TestCallOpenAI_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer srv.Close()

	_, err := clientFor(srv).Call(context.Background(), "openai", testRequest())
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("Call() error = %v, want *Error", err)
	}
	if pe.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", pe.Status)
	}
	if !strings.Contains(pe.Message, "Incorrect API key") {
		t.Errorf("Message = %q, want vendor message", pe.Message)
	}
}

// =============================================================================
// ANTHROPIC
// =============================================================================

func TestCallAnthropic(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("x-api-key"); key != "sk-ant-test" {
			t.Errorf("x-api-key = %q, want test key", key)
		}
		if v := r.Header.Get("anthropic-version"); v != "2023-06-01" {
			t.Errorf("anthropic-version = %q, want 2023-06-01", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"model":"test-model","content":[{"type":"text","text":"hi "},{"type":"text","text":"there"}],"usage":{"input_tokens":9,"output_tokens":2}}`)
	}))
	defer srv.Close()

	result, err := clientFor(srv).Call(context.Background(), "anthropic", testRequest())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Response != "hi there" {
		t.Errorf("Response = %q, want %q", result.Response, "hi there")
	}
	if result.InputTokens != 9 || result.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d, want 9/2", result.InputTokens, result.OutputTokens)
	}
	if got.System != "be brief" {
		t.Errorf("system = %q, want system message extracted", got.System)
	}
	for _, msg := range got.Messages {
		if msg.Role == "system" {
			t.Error("system message left in messages array")
		}
	}
	if got.MaxTokens != 256 {
		t.Errorf("max_tokens = %d, want 256", got.MaxTokens)
	}
}

func TestStreamAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	var full strings.Builder
	err := clientFor(srv).Stream(context.Background(), "anthropic", testRequest(), func(text string) {
		full.WriteString(text)
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if full.String() != "Hello" {
		t.Errorf("streamed = %q, want %q", full.String(), "Hello")
	}
}

// =============================================================================
// GOOGLE
// =============================================================================

func TestCallGoogle(t *testing.T) {
	var got googleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/test-model:generateContent") {
			t.Errorf("path = %q, want generateContent URL", r.URL.Path)
		}
		if key := r.URL.Query().Get("key"); key != "g-test" {
			t.Errorf("key param = %q, want test key", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hi there"}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":2}}`)
	}))
	defer srv.Close()

	req := testRequest()
	req.Messages = append(req.Messages, Message{Role: "assistant", Content: "earlier reply"})
	result, err := clientFor(srv).Call(context.Background(), "google", req)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Response != "hi there" {
		t.Errorf("Response = %q, want %q", result.Response, "hi there")
	}
	if result.InputTokens != 7 || result.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d, want 7/2", result.InputTokens, result.OutputTokens)
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Error("systemInstruction not populated from system message")
	}
	roles := make([]string, len(got.Contents))
	for i, content := range got.Contents {
		roles[i] = content.Role
	}
	if len(roles) != 2 || roles[0] != "user" || roles[1] != "model" {
		t.Errorf("content roles = %v, want [user model]", roles)
	}
	if got.GenerationConfig.MaxOutputTokens != 256 {
		t.Errorf("maxOutputTokens = %d, want 256", got.GenerationConfig.MaxOutputTokens)
	}
}

func TestStreamGoogle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("path = %q, want streamGenerateContent URL", r.URL.Path)
		}
		// Streamed replies arrive as one incrementally delivered JSON array.
		fmt.Fprint(w, `[{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]},`)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"lo"}]}}]}]`)
	}))
	defer srv.Close()

	var full strings.Builder
	err := clientFor(srv).Stream(context.Background(), "google", testRequest(), func(text string) {
		full.WriteString(text)
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if full.String() != "Hello" {
		t.Errorf("streamed = %q, want %q", full.String(), "Hello")
	}
}

// =============================================================================
// OPENAI-COMPATIBLE PROVIDERS
// =============================================================================

func TestCallCompat(t *testing.T) {
	for _, provider := range []string{"xai", "deepseek", "groq"} {
		t.Run(provider, func(t *testing.T) {
			var got compatRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
					t.Errorf("Authorization = %q, want bearer key", auth)
				}
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Fatalf("decode request: %v", err)
				}
				fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":5,"completion_tokens":1}}`)
			}))
			defer srv.Close()

			result, err := clientFor(srv).Call(context.Background(), provider, testRequest())
			if err != nil {
				t.Fatalf("Call() error = %v", err)
			}
			if result.Response != "ok" {
				t.Errorf("Response = %q, want %q", result.Response, "ok")
			}
			if got.MaxTokens != 256 {
				t.Errorf("max_tokens = %d, want 256", got.MaxTokens)
			}
			if got.Temperature != 0.7 {
				t.Errorf("temperature = %v, want 0.7", got.Temperature)
			}
		})
	}
}

func TestCallGroq_RateLimitMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"upstream says slow down"}}`)
	}))
	defer srv.Close()

	_, err := clientFor(srv).Call(context.Background(), "groq", testRequest())
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("Call() error = %v, want *Error", err)
	}
	if pe.Message != "Groq rate limit exceeded. Please wait and try again." {
		t.Errorf("Message = %q, want groq rate limit message", pe.Message)
	}
}

func TestStreamCompat_EmitsSingleChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"full reply"}}],"usage":{}}`)
	}))
	defer srv.Close()

	var chunks []string
	err := clientFor(srv).Stream(context.Background(), "xai", testRequest(), func(text string) {
		chunks = append(chunks, text)
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "full reply" {
		t.Errorf("chunks = %v, want single full reply", chunks)
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestCall_MissingKey(t *testing.T) {
	client := NewClient(map[string]string{})
	_, err := client.Call(context.Background(), "anthropic", testRequest())
	if err == nil {
		t.Fatal("Call() error = nil, want missing key error")
	}
	if !strings.Contains(err.Error(), "anthropic API key not provided") {
		t.Errorf("error = %q, want missing key message", err)
	}
}

func TestCall_UnsupportedProvider(t *testing.T) {
	client := NewClient(testKeys())
	_, err := client.Call(context.Background(), "cohere", testRequest())
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("Call() error = %v, want ErrUnsupportedProvider", err)
	}
}

func TestCall_DefaultMaxTokens(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}],"usage":{}}`)
	}))
	defer srv.Close()

	req := testRequest()
	req.Model = "claude-3-5-haiku-20241022"
	req.MaxTokens = 0
	if _, err := clientFor(srv).Call(context.Background(), "anthropic", req); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.MaxTokens != 8192 {
		t.Errorf("max_tokens = %d, want catalog default 8192", got.MaxTokens)
	}
}

func TestIsReasoningModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"o1-preview", true},
		{"o3-mini", true},
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
		{"gpt-5.2", false},
	}
	for _, tt := range tests {
		if got := isReasoningModel(tt.model); got != tt.want {
			t.Errorf("isReasoningModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
