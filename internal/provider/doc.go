// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider translates chat requests into each vendor's wire
// format and normalizes the replies. It supports OpenAI, Anthropic,
// Google, xAI, DeepSeek, and Groq.
//
// OpenAI, Anthropic, and Google stream natively; the remaining providers
// answer in full and the stream path emits their reply as a single
// chunk. Endpoints are overridable so tests can point adapters at a
// local server.
package provider
