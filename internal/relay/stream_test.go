// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ryansansbury/model-platform/internal/model"
)

// fakeCreds is an in-memory CredentialSource for tests.
type fakeCreds map[string]string

func (f fakeCreds) GetCredential(provider string) (string, bool) {
	key, ok := f[provider]
	return key, ok && key != ""
}

func (f fakeCreds) GetCredentials() map[string]string {
	return map[string]string(f)
}

// sseServer returns a test backend that writes the given SSE records to
// every /api/chat request.
func sseServer(t *testing.T, records ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, rec := range records {
			fmt.Fprintf(w, "data: %s\n\n", rec)
		}
	}))
}

func testParams() ChatParams {
	return ChatParams{
		Provider: "anthropic",
		Model:    "claude-3-5-haiku-20241022",
		Messages: []ChatMessage{{Role: "user", Content: "Hi"}},
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestChatStream_ChunksThenComplete(t *testing.T) {
	srv := sseServer(t,
		`{"content":"Hel"}`,
		`{"content":"lo"}`,
		`[DONE]`,
	)
	defer srv.Close()

	client := New(srv.URL, fakeCreds{"anthropic": "sk-test"})

	var chunks []string
	var completeCalls int
	var full string

	err := client.ChatStream(context.Background(), testParams(), StreamCallbacks{
		OnChunk:    func(text string) { chunks = append(chunks, text) },
		OnComplete: func(text string, _ *model.Metadata) { completeCalls++; full = text },
		OnError:    func(err error) { t.Errorf("Unexpected OnError: %v", err) },
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	if len(chunks) != 2 || chunks[0] != "Hel" || chunks[1] != "lo" {
		t.Errorf("Chunks = %v, want [Hel lo]", chunks)
	}
	if completeCalls != 1 {
		t.Errorf("OnComplete calls = %d, want 1", completeCalls)
	}
	if full != "Hello" {
		t.Errorf("Full text = %q, want %q", full, "Hello")
	}
}

func TestChatStream_ErrorMidStream(t *testing.T) {
	srv := sseServer(t,
		`{"content":"partial"}`,
		`{"error":"rate limited"}`,
	)
	defer srv.Close()

	client := New(srv.URL, fakeCreds{"anthropic": "sk-test"})

	var chunkCalls, errorCalls int
	var gotErr error

	client.ChatStream(context.Background(), testParams(), StreamCallbacks{
		OnChunk:    func(string) { chunkCalls++ },
		OnComplete: func(string, *model.Metadata) { t.Error("OnComplete must not run after an error") },
		OnError:    func(err error) { errorCalls++; gotErr = err },
	})

	if chunkCalls != 1 {
		t.Errorf("OnChunk calls = %d, want 1", chunkCalls)
	}
	if errorCalls != 1 {
		t.Fatalf("OnError calls = %d, want 1", errorCalls)
	}
	if gotErr.Error() != "rate limited" {
		t.Errorf("Error message = %q, want %q", gotErr.Error(), "rate limited")
	}
	var provErr *ProviderError
	if !errors.As(gotErr, &provErr) {
		t.Errorf("Expected ProviderError, got %T", gotErr)
	}
}

func TestChatStream_MissingCredential(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	client := New(srv.URL, fakeCreds{})

	var errorCalls int
	err := client.ChatStream(context.Background(), testParams(), StreamCallbacks{
		OnChunk:    func(string) { t.Error("OnChunk must not run") },
		OnComplete: func(string, *model.Metadata) { t.Error("OnComplete must not run") },
		OnError:    func(error) { errorCalls++ },
	})

	if errorCalls != 1 {
		t.Errorf("OnError calls = %d, want 1", errorCalls)
	}
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Expected ErrMissingCredential, got %v", err)
	}
	if !strings.Contains(err.Error(), "anthropic") {
		t.Errorf("Error should name the provider, got %q", err.Error())
	}
	if requests.Load() != 0 {
		t.Errorf("Network requests = %d, want 0", requests.Load())
	}
}

func TestStream_MetadataCaptured(t *testing.T) {
	srv := sseServer(t,
		`{"content":"Hi"}`,
		`{"type":"metadata","provider":"anthropic","model":"claude-3-5-haiku-20241022","input_tokens":3,"output_tokens":1,"cost":0.000008,"response_time":0.42}`,
		`[DONE]`,
	)
	defer srv.Close()

	client := New(srv.URL, fakeCreds{"anthropic": "sk-test"})

	events, err := client.Stream(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var last Event
	var metaAsChunk bool
	for ev := range events {
		if ev.Kind == EventChunk && strings.Contains(ev.Content, "metadata") {
			metaAsChunk = true
		}
		last = ev
	}

	if metaAsChunk {
		t.Error("Metadata record must not surface as a chunk")
	}
	if last.Kind != EventComplete {
		t.Fatalf("Last event kind = %d, want EventComplete", last.Kind)
	}
	if last.Metadata == nil {
		t.Fatal("Expected captured metadata")
	}
	if last.Metadata.OutputTokens != 1 || last.Metadata.Provider != "anthropic" {
		t.Errorf("Metadata = %+v", last.Metadata)
	}
	if last.Metadata.ResponseTime != 0.42 {
		t.Errorf("ResponseTime = %v, want 0.42", last.Metadata.ResponseTime)
	}
}

func TestStream_MalformedRecordsSkipped(t *testing.T) {
	srv := sseServer(t,
		`{"content":"a"}`,
		`{"content":`, // split record
		`{"content":"b"}`,
		`[DONE]`,
	)
	defer srv.Close()

	client := New(srv.URL, fakeCreds{"anthropic": "sk-test"})

	events, err := client.Stream(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var full string
	for ev := range events {
		if ev.Kind == EventError {
			t.Fatalf("Unexpected error event: %v", ev.Err)
		}
		if ev.Kind == EventComplete {
			full = ev.Content
		}
	}
	if full != "ab" {
		t.Errorf("Full text = %q, want %q", full, "ab")
	}
}

func TestStream_EOFWithoutSentinel(t *testing.T) {
	srv := sseServer(t, `{"content":"truncated"}`)
	defer srv.Close()

	client := New(srv.URL, fakeCreds{"anthropic": "sk-test"})

	events, err := client.Stream(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var completes int
	var full string
	for ev := range events {
		if ev.Kind == EventComplete {
			completes++
			full = ev.Content
		}
	}
	if completes != 1 {
		t.Errorf("Complete events = %d, want 1", completes)
	}
	if full != "truncated" {
		t.Errorf("Full text = %q, want %q", full, "truncated")
	}
}

func TestStream_Non2xxResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"Rate limit exceeded. Please slow down."}`)
	}))
	defer srv.Close()

	client := New(srv.URL, fakeCreds{"anthropic": "sk-test"})

	events, err := client.Stream(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var last Event
	for ev := range events {
		last = ev
	}
	if last.Kind != EventError {
		t.Fatalf("Last event kind = %d, want EventError", last.Kind)
	}
	var relayErr *RelayError
	if !errors.As(last.Err, &relayErr) {
		t.Fatalf("Expected RelayError, got %T", last.Err)
	}
	if relayErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", relayErr.Status)
	}
	if !strings.Contains(relayErr.Message, "Rate limit exceeded") {
		t.Errorf("Message = %q", relayErr.Message)
	}
}

func TestStream_SendsCredentialsAndHistory(t *testing.T) {
	var gotBody wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := New(srv.URL, fakeCreds{"anthropic": "sk-test", "openai": "sk-other"})

	params := testParams()
	params.Temperature = 0.9
	params.MaxTokens = 1024

	events, err := client.Stream(context.Background(), params)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	for range events {
	}

	if !gotBody.Stream {
		t.Error("Expected stream=true on the wire")
	}
	if gotBody.Provider != "anthropic" || gotBody.Model != params.Model {
		t.Errorf("Wire request = %+v", gotBody)
	}
	if gotBody.Temperature != 0.9 || gotBody.MaxTokens != 1024 {
		t.Errorf("Generation params = %v/%v", gotBody.Temperature, gotBody.MaxTokens)
	}
	if gotBody.APIKeys["anthropic"] != "sk-test" {
		t.Error("Expected stored credentials on the wire")
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "Hi" {
		t.Errorf("Messages = %+v", gotBody.Messages)
	}
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_CRLFAndComments(t *testing.T) {
	input := ": keep-alive\r\n" +
		"data: {\"content\":\"x\"}\r\n" +
		"\r\n" +
		"data: [DONE]\r\n" +
		"\r\n"
	reader := NewSSEReader(strings.NewReader(input))

	data, err := reader.ReadData()
	if err != nil {
		t.Fatalf("ReadData failed: %v", err)
	}
	if string(data) != `{"content":"x"}` {
		t.Errorf("Data = %q", data)
	}

	data, err = reader.ReadData()
	if err != nil {
		t.Fatalf("ReadData failed: %v", err)
	}
	if string(data) != "[DONE]" {
		t.Errorf("Data = %q", data)
	}
}

func TestSSEReader_FlushesPendingDataOnEOF(t *testing.T) {
	reader := NewSSEReader(strings.NewReader("data: tail"))

	// Line without trailing newline is still delivered before EOF.
	data, err := reader.ReadData()
	if err != nil {
		t.Fatalf("ReadData failed: %v", err)
	}
	if string(data) != "tail" {
		t.Errorf("Data = %q, want %q", data, "tail")
	}
}

func TestSendTerminal_CanceledConsumerDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Event) // no receiver, no buffer
	done := make(chan struct{})
	go func() {
		sendTerminal(ctx, out, Event{Kind: EventError, Err: context.Canceled})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sendTerminal blocked with a canceled context and no receiver")
	}
}

func TestSendTerminal_DeliversWhenBufferHasRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled context must not drop the terminal event when the
	// consumer's buffer can still hold it.
	out := make(chan Event, 1)
	sendTerminal(ctx, out, Event{Kind: EventComplete, Content: "done"})

	select {
	case ev := <-out:
		if ev.Kind != EventComplete {
			t.Errorf("Kind = %v, want EventComplete", ev.Kind)
		}
	default:
		t.Fatal("terminal event dropped despite buffer space")
	}
}
