// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the model-platform
// application: rune-safe string handling, token estimation, and atomic
// file writes.
//
// These helpers are dependency-free and safe for concurrent use.
package util
