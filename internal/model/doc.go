// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// These types are shared by the local store, the relay client, and the
// terminal client. They carry no behavior beyond construction and small
// presentation helpers; persistence lives in internal/storage.
package model
