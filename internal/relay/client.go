// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ryansansbury/model-platform/internal/catalog"
	"github.com/ryansansbury/model-platform/internal/model"
)

// Configuration constants for the backend client.
const (
	// DefaultBaseURL is the local backend address.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds non-streaming requests. Streaming requests
	// are bounded by their context instead.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

// CredentialSource supplies the user's per-provider API keys. The
// storage.Store satisfies it.
type CredentialSource interface {
	GetCredential(provider string) (string, bool)
	GetCredentials() map[string]string
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend. Construct with New and share one
// instance; it is safe for concurrent use.
type Client struct {
	baseURL      string
	creds        CredentialSource
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a backend client. creds gates chat requests: a request for
// a provider with no stored key fails before touching the network.
func New(baseURL string, creds CredentialSource) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		// No timeout for streaming, controlled via context.
		streamClient: &http.Client{},
	}
}

// WithTimeout sets the non-streaming request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithHTTPClient replaces both underlying HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// ChatMessage is one turn of the history sent to the backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams describes one chat request.
type ChatParams struct {
	Provider    string
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// wireRequest is the POST /api/chat body.
type wireRequest struct {
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Messages    []ChatMessage     `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream"`
	APIKeys     map[string]string `json:"api_keys"`
}

// ChatResult is the non-streaming reply.
type ChatResult struct {
	Response     string  `json:"response"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	ResponseTime float64 `json:"response_time"`
}

// Metadata converts the result's accounting fields for persistence.
func (r *ChatResult) Metadata() *model.Metadata {
	return &model.Metadata{
		Provider:     r.Provider,
		Model:        r.Model,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		Cost:         r.Cost,
		ResponseTime: r.ResponseTime,
	}
}

// ModelList is the GET /api/models reply.
type ModelList struct {
	Models    []catalog.ModelInfo `json:"models"`
	Providers []string            `json:"providers"`
}

// errorBody is the backend's JSON error shape.
type errorBody struct {
	Error string `json:"error"`
}

// =============================================================================
// NON-STREAMING CHAT
// =============================================================================

// Chat submits a chat request and waits for the full reply. The same
// credential precondition as the streaming path applies.
func (c *Client) Chat(ctx context.Context, params ChatParams) (*ChatResult, error) {
	if err := c.checkCredential(params.Provider); err != nil {
		return nil, err
	}

	body, err := c.requestBody(params, false)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RelayError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, &RelayError{Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newRelayError(resp.StatusCode, data)
	}

	// An error payload in a 200 body is a provider-reported failure.
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error != "" {
		return nil, &ProviderError{Message: eb.Error}
	}

	var result ChatResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &RelayError{Message: "failed to parse response: " + err.Error()}
	}
	return &result, nil
}

// =============================================================================
// MODELS AND HEALTH
// =============================================================================

// ListModels retrieves available provider/model pairs from the backend.
func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RelayError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, &RelayError{Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newRelayError(resp.StatusCode, data)
	}

	var list ModelList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &RelayError{Message: "failed to parse models response: " + err.Error()}
	}
	return &list, nil
}

// Health probes the backend liveness endpoint. Any 2xx means healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RelayError{Message: err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RelayError{Status: resp.StatusCode, Message: "backend unhealthy"}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// checkCredential enforces the precondition that a key exists for the
// requested provider. A client built without a credential source can
// only reach the key-free endpoints.
func (c *Client) checkCredential(provider string) error {
	if c.creds == nil {
		return &MissingCredentialError{Provider: provider}
	}
	if _, ok := c.creds.GetCredential(provider); !ok {
		return &MissingCredentialError{Provider: provider}
	}
	return nil
}

// requestBody builds the wire request, attaching the stored credentials.
func (c *Client) requestBody(params ChatParams, stream bool) ([]byte, error) {
	req := wireRequest{
		Provider:    params.Provider,
		Model:       params.Model,
		Messages:    params.Messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stream:      stream,
		APIKeys:     c.creds.GetCredentials(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

// readBody reads a response body with a size cap.
func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// newRelayError converts a non-2xx response into a RelayError, preferring
// the backend's JSON error message over the raw body.
func newRelayError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return &RelayError{Status: status, Message: eb.Error}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &RelayError{Status: status, Message: msg}
}
