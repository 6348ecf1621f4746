// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ryansansbury/model-platform/internal/catalog"
	"github.com/ryansansbury/model-platform/internal/provider"
	"github.com/ryansansbury/model-platform/internal/util"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8000

	// Version is reported by the health endpoint.
	Version = "1.0.0"

	// MaxRequestBodySize caps chat request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageCount is the maximum number of messages in a request.
	MaxMessageCount = 100

	// MaxMessageLength is the maximum length of a single message.
	MaxMessageLength = 100000

	// DefaultTemperature is applied when the request omits temperature.
	DefaultTemperature = 0.7

	// MinTemperature and MaxTemperature bound the temperature parameter.
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// ============================================================================
// WIRE TYPES
// ============================================================================

// ChatMessage is one turn of the conversation being relayed.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the POST /api/chat body. API keys travel with the request;
// the server stores nothing between calls.
type ChatRequest struct {
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Messages    []ChatMessage     `json:"messages"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Stream      bool              `json:"stream"`
	APIKeys     map[string]string `json:"api_keys"`
}

// ChatResponse is the buffered (non-streaming) chat reply.
type ChatResponse struct {
	Response     string  `json:"response"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	ResponseTime float64 `json:"response_time"`
}

// streamMetadata is the final record of a streamed reply, sent before [DONE].
type streamMetadata struct {
	Type         string  `json:"type"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	ResponseTime float64 `json:"response_time"`
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the backend HTTP relay.
type Server struct {
	host      string
	port      int
	router    *http.ServeMux
	server    *http.Server
	endpoints provider.Endpoints
	limiter   *RateLimiter
}

// NewServer creates a Server listening on port. If port is 0, the default
// port (8000) is used.
func NewServer(port int) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:      port,
		router:    http.NewServeMux(),
		endpoints: provider.DefaultEndpoints(),
		limiter:   NewRateLimiter(ChatRateLimit, time.Minute),
	}

	s.setupRoutes()
	return s
}

// WithProviderEndpoints overrides the upstream provider URLs.
func (s *Server) WithProviderEndpoints(e provider.Endpoints) *Server {
	s.endpoints = e
	return s
}

// WithHost sets the listen address. Empty binds all interfaces.
func (s *Server) WithHost(host string) *Server {
	s.host = host
	return s
}

// WithChatRateLimit replaces the per-IP chat request budget per minute.
// The routes capture the limiter, so they are rebuilt.
func (s *Server) WithChatRateLimit(perMinute int) *Server {
	if perMinute <= 0 {
		perMinute = ChatRateLimit
	}
	s.limiter = NewRateLimiter(perMinute, time.Minute)
	s.router = http.NewServeMux()
	s.setupRoutes()
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Handle("POST /api/chat", RateLimitMiddleware(s.limiter)(http.HandlerFunc(s.handleChat)))
	s.router.HandleFunc("GET /api/models", s.handleModels)
	s.router.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns the full middleware-wrapped handler, exported for tests.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		CacheControlMiddleware(),
		CORSMiddleware(),
		LoggingMiddleware(log.Default()),
	)(s.router)
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Request body is required")
		return
	}

	if msg, ok := s.validateChat(&req); !ok {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	client := provider.NewClient(req.APIKeys).WithEndpoints(s.endpoints)
	preq := provider.Request{
		Model:       req.Model,
		Messages:    toProviderMessages(req.Messages),
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}

	if req.Stream {
		s.streamChat(w, r, client, req, preq, start)
		return
	}

	result, err := client.Call(r.Context(), req.Provider, preq)
	if err != nil {
		log.Printf("CHAT_ERROR | provider=%s model=%s error=%v", req.Provider, req.Model, err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	inputTokens := result.InputTokens
	if inputTokens == 0 {
		inputTokens = estimateInput(req.Messages)
	}
	outputTokens := result.OutputTokens
	if outputTokens == 0 {
		outputTokens = util.EstimateTokens(result.Response)
	}

	responseModel := result.Model
	if responseModel == "" {
		responseModel = req.Model
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{
		Response:     result.Response,
		Provider:     req.Provider,
		Model:        responseModel,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         catalog.Cost(req.Provider, req.Model, inputTokens, outputTokens),
		ResponseTime: time.Since(start).Seconds(),
	})
}

// streamChat relays a streaming reply over SSE. Content chunks are forwarded
// as they arrive; the final metadata record carries the usage estimate.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, client *provider.Client, req ChatRequest, preq provider.Request, start time.Time) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	var full strings.Builder
	err := client.Stream(r.Context(), req.Provider, preq, func(text string) {
		full.WriteString(text)
		sendRecord(w, flusher, map[string]string{"content": text})
	})

	if err != nil {
		log.Printf("STREAM_ERROR | provider=%s model=%s error=%v", req.Provider, req.Model, err)
		sendRecord(w, flusher, map[string]string{"error": err.Error()})
		return
	}

	inputTokens := estimateInput(req.Messages)
	outputTokens := util.EstimateTokens(full.String())

	sendRecord(w, flusher, streamMetadata{
		Type:         "metadata",
		Provider:     req.Provider,
		Model:        req.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         catalog.Cost(req.Provider, req.Model, inputTokens, outputTokens),
		ResponseTime: time.Since(start).Seconds(),
	})

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// sendRecord writes one SSE data record and flushes it.
func sendRecord(w http.ResponseWriter, flusher http.Flusher, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// validateChat checks required fields and parameter bounds. The error
// messages are part of the wire contract the clients display verbatim.
func (s *Server) validateChat(req *ChatRequest) (string, bool) {
	if req.Provider == "" {
		return "Provider is required", false
	}
	if req.Model == "" {
		return "Model is required", false
	}
	if len(req.Messages) == 0 {
		return "Messages are required", false
	}
	if _, ok := req.APIKeys[req.Provider]; !ok {
		return fmt.Sprintf("API key for %s is required", req.Provider), false
	}
	if len(req.Messages) > MaxMessageCount {
		return fmt.Sprintf("Too many messages: maximum is %d", MaxMessageCount), false
	}
	for i, msg := range req.Messages {
		switch msg.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Sprintf("Message %d has invalid role: %s", i, msg.Role), false
		}
		if len(msg.Content) > MaxMessageLength {
			return fmt.Sprintf("Message %d exceeds maximum length of %d", i, MaxMessageLength), false
		}
	}
	if req.Temperature != nil && (*req.Temperature < MinTemperature || *req.Temperature > MaxTemperature) {
		return fmt.Sprintf("temperature must be between %.1f and %.1f", MinTemperature, MaxTemperature), false
	}
	if req.MaxTokens < 0 {
		return "max_tokens must be positive", false
	}
	return "", true
}

func toProviderMessages(messages []ChatMessage) []provider.Message {
	out := make([]provider.Message, len(messages))
	for i, msg := range messages {
		out[i] = provider.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// estimateInput approximates the prompt token count from message lengths.
func estimateInput(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	return total / 4
}

// ============================================================================
// MODELS HANDLER
// ============================================================================

// ModelsResponse lists the catalog for client-side model pickers.
type ModelsResponse struct {
	Models    []catalog.ModelInfo `json:"models"`
	Providers []string            `json:"providers"`
}

// handleModels handles GET /api/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ModelsResponse{
		Models:    catalog.All(),
		Providers: catalog.Providers(),
	})
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response in the {"error": ...} shape the
// clients expect.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
