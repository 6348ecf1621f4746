// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay is the client for the chat backend. It submits requests
// to the backend's /api/chat endpoint and delivers replies either as an
// incremental server-sent event stream or as a single synchronous result.
//
// The relay never talks to a model provider directly; the backend holds
// that responsibility. Credentials travel inside the request body, so a
// missing key for the requested provider fails before any network call.
//
// Streaming has two surfaces. Stream returns a channel of events with a
// single terminal completion or error event, which makes cancellation and
// backpressure structural. ChatStream wraps it in the callback shape
// (per-chunk, on-complete, on-error) for callers that render as tokens
// arrive. Neither retries: a failed request is reported once and the
// caller decides whether to try again.
package relay
