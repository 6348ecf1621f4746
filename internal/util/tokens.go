// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strconv"

// TOKENS: Providers bill per token but tokenizers differ between vendors.
// A character-count heuristic (roughly 4 characters per token for English
// text) keeps estimates provider-neutral and dependency-free. Estimates
// feed cost display only, never billing.

// EstimateTokens returns an approximate token count for text.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// FormatCost renders a dollar cost with enough precision for sub-cent
// amounts. Values under a cent keep six decimals so cheap models do not
// round to $0.00.
func FormatCost(cost float64) string {
	if cost < 0.01 {
		return "$" + strconv.FormatFloat(cost, 'f', 6, 64)
	}
	return "$" + strconv.FormatFloat(cost, 'f', 4, 64)
}
