// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ryansansbury/model-platform/internal/provider"
)

// fakeAnthropic serves canned Messages API replies for relay tests.
func fakeAnthropic(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode upstream request: %v", err)
		}

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
			fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
			fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
			return
		}

		fmt.Fprint(w, `{"model":"claude-3-5-haiku-20241022","content":[{"type":"text","text":"Hello"}],"usage":{"input_tokens":10,"output_tokens":2}}`)
	}))
}

func testServer(upstream string) *Server {
	s := NewServer(0)
	if upstream != "" {
		s.WithProviderEndpoints(provider.Endpoints{Anthropic: upstream})
	}
	return s
}

func chatBody(stream bool) string {
	return fmt.Sprintf(`{
		"provider": "anthropic",
		"model": "claude-3-5-haiku-20241022",
		"messages": [{"role": "user", "content": "hi"}],
		"temperature": 0.7,
		"stream": %v,
		"api_keys": {"anthropic": "sk-ant-test"}
	}`, stream)
}

// ============================================================================
// HEALTH AND MODELS
// ============================================================================

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer("").Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want %q", health.Status, "healthy")
	}
	if health.Version != Version {
		t.Errorf("version = %q, want %q", health.Version, Version)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

func TestModels(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer("").Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/models", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Providers) != 6 {
		t.Errorf("providers = %d, want 6", len(resp.Providers))
	}
	if len(resp.Models) == 0 {
		t.Error("models list is empty")
	}
}

// ============================================================================
// CHAT VALIDATION
// ============================================================================

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "empty body",
			body: "",
			want: "Request body is required",
		},
		{
			name: "missing provider",
			body: `{"model":"m","messages":[{"role":"user","content":"hi"}],"api_keys":{"openai":"k"}}`,
			want: "Provider is required",
		},
		{
			name: "missing model",
			body: `{"provider":"openai","messages":[{"role":"user","content":"hi"}],"api_keys":{"openai":"k"}}`,
			want: "Model is required",
		},
		{
			name: "missing messages",
			body: `{"provider":"openai","model":"m","api_keys":{"openai":"k"}}`,
			want: "Messages are required",
		},
		{
			name: "missing api key",
			body: `{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}],"api_keys":{}}`,
			want: "API key for openai is required",
		},
		{
			name: "temperature out of range",
			body: `{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}],"temperature":3.5,"api_keys":{"openai":"k"}}`,
			want: "temperature must be between",
		},
	}

	handler := testServer("").Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", strings.NewReader(tt.body)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if !strings.Contains(resp["error"], tt.want) {
				t.Errorf("error = %q, want containing %q", resp["error"], tt.want)
			}
		})
	}
}

// ============================================================================
// CHAT RELAY
// ============================================================================

func TestChat_NonStreaming(t *testing.T) {
	upstream := fakeAnthropic(t)
	defer upstream.Close()

	rec := httptest.NewRecorder()
	testServer(upstream.URL).Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", strings.NewReader(chatBody(false))))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "Hello" {
		t.Errorf("response = %q, want %q", resp.Response, "Hello")
	}
	if resp.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", resp.Provider)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d, want 10/2", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Cost <= 0 {
		t.Errorf("cost = %v, want > 0", resp.Cost)
	}
	if resp.ResponseTime < 0 {
		t.Errorf("response_time = %v, want >= 0", resp.ResponseTime)
	}
}

func TestChat_Streaming(t *testing.T) {
	upstream := fakeAnthropic(t)
	defer upstream.Close()

	rec := httptest.NewRecorder()
	testServer(upstream.URL).Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", strings.NewReader(chatBody(true))))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var contents []string
	var metadata *streamMetadata
	sawDone := false

	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}

		var record struct {
			Type    string `json:"type"`
			Content string `json:"content"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			t.Fatalf("malformed record %q: %v", payload, err)
		}
		if record.Error != "" {
			t.Fatalf("unexpected error record: %s", record.Error)
		}
		if record.Type == "metadata" {
			metadata = &streamMetadata{}
			if err := json.Unmarshal([]byte(payload), metadata); err != nil {
				t.Fatalf("decode metadata: %v", err)
			}
			continue
		}
		if record.Content != "" {
			contents = append(contents, record.Content)
		}
	}

	if strings.Join(contents, "") != "Hello" {
		t.Errorf("streamed content = %v, want Hello", contents)
	}
	if metadata == nil {
		t.Fatal("no metadata record in stream")
	}
	if metadata.Provider != "anthropic" {
		t.Errorf("metadata provider = %q, want anthropic", metadata.Provider)
	}
	if !sawDone {
		t.Error("stream missing [DONE] marker")
	}
}

func TestChat_StreamingUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded"}}`)
	}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	testServer(upstream.URL).Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", strings.NewReader(chatBody(true))))

	body := rec.Body.String()
	if !strings.Contains(body, `"error"`) {
		t.Errorf("stream = %q, want error record", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Error("stream has [DONE] after error, want stream closed on error")
	}
}

// ============================================================================
// RATE LIMITING
// ============================================================================

func TestChat_RateLimit(t *testing.T) {
	s := testServer("").WithChatRateLimit(2)
	handler := s.Handler()

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, httptest.NewRequest("POST", "/api/chat", strings.NewReader("")))
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}

	var resp struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(last.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "Rate limit exceeded. Please slow down." {
		t.Errorf("error = %q, want rate limit message", resp.Error)
	}
	if resp.RetryAfter != 60 {
		t.Errorf("retry_after = %d, want 60", resp.RetryAfter)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After header = %q, want 60", last.Header().Get("Retry-After"))
	}
}

func TestWithHost_BindsConfiguredAddress(t *testing.T) {
	s := NewServer(0).WithHost("127.0.0.1")

	if s.host != "127.0.0.1" {
		t.Errorf("host = %q, want %q", s.host, "127.0.0.1")
	}
	if s.port != DefaultPort {
		t.Errorf("port = %d, want %d", s.port, DefaultPort)
	}
}

func TestWithChatRateLimit_NonPositiveUsesDefault(t *testing.T) {
	s := NewServer(0).WithChatRateLimit(0)

	if s.limiter.limit != ChatRateLimit {
		t.Errorf("limit = %d, want %d", s.limiter.limit, ChatRateLimit)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("10.0.0.1") {
		t.Error("first request from 10.0.0.1 denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("second request from 10.0.0.1 allowed, want denied")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("first request from 10.0.0.2 denied, limits should be per IP")
	}
}

func TestGetClientIP_IgnoresSpoofedHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/health", nil)
	r.RemoteAddr = "203.0.113.9:4321"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if ip := GetClientIP(r); ip != "203.0.113.9" {
		t.Errorf("GetClientIP = %q, want untrusted connection IP", ip)
	}
}

func TestGetClientIP_TrustsLocalProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/health", nil)
	r.RemoteAddr = "127.0.0.1:4321"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if ip := GetClientIP(r); ip != "1.2.3.4" {
		t.Errorf("GetClientIP = %q, want forwarded IP", ip)
	}
}
