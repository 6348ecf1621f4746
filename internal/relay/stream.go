// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ryansansbury/model-platform/internal/model"
)

// STREAMING: Robust SSE parsing with exactly-once terminal delivery.

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventKind discriminates stream events.
type EventKind int

const (
	// EventChunk carries an incremental piece of the reply.
	EventChunk EventKind = iota

	// EventComplete is the terminal success event: Content holds the full
	// accumulated text, Metadata any captured accounting record.
	EventComplete

	// EventError is the terminal failure event.
	EventError
)

// Event is one item of a chat stream. Exactly one EventComplete or
// EventError is delivered per stream, always last, after which the
// channel is closed.
type Event struct {
	Kind     EventKind
	Content  string
	Metadata *model.Metadata
	Err      error
}

// StreamCallbacks is the callback surface for ChatStream. Nil callbacks
// are skipped.
type StreamCallbacks struct {
	// OnChunk receives each content piece in arrival order.
	OnChunk func(text string)

	// OnComplete receives the full text and any captured metadata.
	// Invoked at most once, never after OnError.
	OnComplete func(full string, meta *model.Metadata)

	// OnError terminates the stream. Invoked at most once; OnComplete is
	// not invoked afterward.
	OnError func(err error)
}

// streamRecord is the decoded form of one SSE data record. The backend
// emits three shapes: {"content": ...}, {"type": "metadata", ...}, and
// {"error": ...}.
type streamRecord struct {
	Type         string  `json:"type"`
	Content      string  `json:"content"`
	Error        string  `json:"error"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	ResponseTime float64 `json:"response_time"`
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses server-sent events from a byte stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates an SSE reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadData returns the data payload of the next event, joining multi-line
// data fields. Returns io.EOF when the stream ends; pending data is
// flushed before EOF is reported.
func (s *SSEReader) ReadData() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// A final line without a trailing newline still counts.
				line = bytes.TrimRight(line, "\r\n")
				if bytes.HasPrefix(line, []byte("data:")) {
					dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
				}
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (event:, id:, retry:, comments).
	}
}

// =============================================================================
// CHANNEL-BASED STREAMING
// =============================================================================

// Stream submits a streaming chat request and returns a channel of
// events. The credential precondition is checked synchronously: a missing
// key returns an error here, before any network activity, and no channel
// is created.
//
// The channel delivers zero or more EventChunk items followed by exactly
// one EventComplete or EventError, then closes. Canceling ctx tears the
// stream down with an EventError.
func (c *Client) Stream(ctx context.Context, params ChatParams) (<-chan Event, error) {
	if err := c.checkCredential(params.Provider); err != nil {
		return nil, err
	}

	body, err := c.requestBody(params, true)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 64)

	go func() {
		defer close(events)
		c.runStream(ctx, body, events)
	}()

	return events, nil
}

// sendTerminal delivers the final event. Delivery wins whenever buffer
// space exists, even after cancellation, so draining callers still see
// the terminal event; the send only gives up when the channel is full
// and the caller has canceled, instead of blocking forever.
func sendTerminal(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
		return
	default:
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// runStream issues the request and pumps decoded events into out. It
// sends at most one terminal event.
func (c *Client) runStream(ctx context.Context, body []byte, out chan<- Event) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		sendTerminal(ctx, out, Event{Kind: EventError, Err: &RelayError{Message: err.Error()}})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		sendTerminal(ctx, out, Event{Kind: EventError, Err: &RelayError{Message: err.Error()}})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxEventSize))
		sendTerminal(ctx, out, Event{Kind: EventError, Err: newRelayError(resp.StatusCode, data)})
		return
	}

	var accumulated strings.Builder
	var meta *model.Metadata
	reader := NewSSEReader(resp.Body)

	for {
		select {
		case <-ctx.Done():
			sendTerminal(ctx, out, Event{Kind: EventError, Err: ctx.Err()})
			return
		default:
		}

		data, err := reader.ReadData()
		if err != nil {
			if err == io.EOF {
				// Stream ended without a sentinel. Still complete.
				sendTerminal(ctx, out, Event{Kind: EventComplete, Content: accumulated.String(), Metadata: meta})
				return
			}
			sendTerminal(ctx, out, Event{Kind: EventError, Err: &RelayError{Message: err.Error()}})
			return
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			sendTerminal(ctx, out, Event{Kind: EventComplete, Content: accumulated.String(), Metadata: meta})
			return
		}

		var rec streamRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			// Malformed records are skipped, they may be a record split
			// across network reads.
			continue
		}

		switch {
		case rec.Error != "":
			sendTerminal(ctx, out, Event{Kind: EventError, Err: &ProviderError{Message: rec.Error}})
			return
		case rec.Type == "metadata":
			meta = &model.Metadata{
				Provider:     rec.Provider,
				Model:        rec.Model,
				InputTokens:  rec.InputTokens,
				OutputTokens: rec.OutputTokens,
				Cost:         rec.Cost,
				ResponseTime: rec.ResponseTime,
			}
		case rec.Content != "":
			accumulated.WriteString(rec.Content)
			select {
			case out <- Event{Kind: EventChunk, Content: rec.Content}:
			case <-ctx.Done():
				sendTerminal(ctx, out, Event{Kind: EventError, Err: ctx.Err()})
				return
			}
		}
	}
}

// =============================================================================
// CALLBACK WRAPPER
// =============================================================================

// ChatStream runs a streaming chat request and routes events to cb. It
// blocks until the stream terminates. A missing credential invokes
// OnError synchronously, makes no network call, and returns the error.
//
// Callback order follows arrival order; OnComplete or OnError is the last
// callback invoked, exactly once each per call, never both.
func (c *Client) ChatStream(ctx context.Context, params ChatParams, cb StreamCallbacks) error {
	events, err := c.Stream(ctx, params)
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return err
	}

	var terminal error
	for ev := range events {
		switch ev.Kind {
		case EventChunk:
			if cb.OnChunk != nil {
				cb.OnChunk(ev.Content)
			}
		case EventComplete:
			if cb.OnComplete != nil {
				cb.OnComplete(ev.Content, ev.Metadata)
			}
		case EventError:
			terminal = ev.Err
			if cb.OnError != nil {
				cb.OnError(ev.Err)
			}
		}
	}
	return terminal
}
