// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive chat client: command parsing, the
// REPL loop, conversation management, and credential entry.
package cli
