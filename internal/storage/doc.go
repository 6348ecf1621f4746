// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable local persistence for conversations,
// messages, settings, and provider credentials, backed by SQLite.
//
// A Store is constructed once with Open and passed by reference to
// consumers; Close releases the database. All conversation and message
// mutations run inside a single transaction, so denormalized fields
// (message count, preview, updated timestamp) never drift from the live
// message rows.
//
// Settings and credential reads are deliberately forgiving: a missing or
// corrupt stored value yields the caller's default or an empty map, never
// an error. They gate convenience, not correctness.
package storage
