// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the backend HTTP API that relays chat requests
// to the configured model providers.
//
// Endpoints:
//   - POST /api/chat   - Relay a chat request (streaming or buffered)
//   - GET  /api/models - List the model catalog
//   - GET  /api/health - Health check
//
// The server holds no credentials of its own: every chat request carries the
// caller's API keys, which are used for that request only and discarded.
package server
