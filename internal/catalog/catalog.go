// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog is the registry of supported providers and models with
// their pricing and limits. Costs are per 1000 tokens in dollars.
//
// The registry is static at build time. Unknown provider/model pairs fall
// back to zero cost and a conservative default output limit rather than
// failing, so a stale client keeps working against a newer backend.
package catalog

import "sort"

// DefaultMaxOutput is the output token ceiling applied when a model is
// not in the registry.
const DefaultMaxOutput = 4096

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo contains pricing and limits for a single model.
type ModelInfo struct {
	// Provider identifies the hosting vendor (openai, anthropic, ...)
	Provider string `json:"provider"`

	// ID is the model identifier used in API calls
	ID string `json:"model"`

	// InputCost is dollars per 1000 input tokens
	InputCost float64 `json:"input_cost"`

	// OutputCost is dollars per 1000 output tokens
	OutputCost float64 `json:"output_cost"`

	// MaxTokens is the maximum context window size
	MaxTokens int `json:"max_tokens"`

	// MaxOutput is the maximum tokens a single response may produce
	MaxOutput int `json:"max_output"`

	// Description is a brief explanation of the model
	Description string `json:"description"`

	// Strengths lists what the model is good at, for display
	Strengths []string `json:"strengths"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// registry maps provider name to model ID to model metadata.
var registry = map[string]map[string]ModelInfo{
	"openai": {
		"gpt-5.2": {
			InputCost:   0.00175,
			OutputCost:  0.014,
			MaxTokens:   400000,
			MaxOutput:   32768,
			Description: "Latest GPT-5.2 flagship model",
			Strengths:   []string{"coding", "agentic", "reasoning", "multimodal", "sota"},
		},
		"gpt-5-2025-08-07": {
			InputCost:   0.00125,
			OutputCost:  0.01,
			MaxTokens:   256000,
			MaxOutput:   32768,
			Description: "GPT-5 flagship model",
			Strengths:   []string{"coding", "agentic", "reasoning", "multimodal"},
		},
		"gpt-5-mini-2025-08-07": {
			InputCost:   0.001,
			OutputCost:  0.004,
			MaxTokens:   256000,
			MaxOutput:   16384,
			Description: "GPT-5 Mini - fast and efficient",
			Strengths:   []string{"fast", "efficient", "balanced", "reasoning"},
		},
		"gpt-5-nano-2025-08-07": {
			InputCost:   0.005,
			OutputCost:  0.015,
			MaxTokens:   256000,
			MaxOutput:   8192,
			Description: "GPT-5 Nano - lightweight",
			Strengths:   []string{"fast", "lightweight", "quick_tasks"},
		},
		"gpt-4.1": {
			InputCost:   0.01,
			OutputCost:  0.03,
			MaxTokens:   1000000,
			MaxOutput:   32768,
			Description: "GPT-4.1 with 1M context",
			Strengths:   []string{"long_context", "improved_instruction_following"},
		},
		"gpt-4o": {
			InputCost:   0.0025,
			OutputCost:  0.01,
			MaxTokens:   128000,
			MaxOutput:   16384,
			Description: "GPT-4o multimodal",
			Strengths:   []string{"multimodal", "general", "fast"},
		},
		"gpt-4o-mini": {
			InputCost:   0.000075,
			OutputCost:  0.0003,
			MaxTokens:   128000,
			MaxOutput:   16384,
			Description: "GPT-4o Mini - fast and affordable",
			Strengths:   []string{"fast", "cheap", "general"},
		},
	},
	"anthropic": {
		"claude-opus-4-5-20251101": {
			InputCost:   0.005,
			OutputCost:  0.025,
			MaxTokens:   200000,
			MaxOutput:   32768,
			Description: "Claude Opus 4.5 - most capable",
			Strengths:   []string{"coding", "agents", "computer_use", "sota", "agentic"},
		},
		"claude-sonnet-4-5-20250929": {
			InputCost:   0.003,
			OutputCost:  0.015,
			MaxTokens:   200000,
			MaxOutput:   64000,
			Description: "Claude Sonnet 4.5 - balanced",
			Strengths:   []string{"coding", "agents", "computer_use"},
		},
		"claude-opus-4-1-20250805": {
			InputCost:   0.015,
			OutputCost:  0.075,
			MaxTokens:   200000,
			MaxOutput:   32768,
			Description: "Claude Opus 4.1",
			Strengths:   []string{"coding", "reasoning", "complex_tasks", "agentic"},
		},
		"claude-sonnet-4-20250514": {
			InputCost:   0.003,
			OutputCost:  0.015,
			MaxTokens:   1000000,
			MaxOutput:   64000,
			Description: "Claude Sonnet 4 with 1M context",
			Strengths:   []string{"coding", "long_context", "web_development"},
		},
		"claude-opus-4-20250514": {
			InputCost:   0.015,
			OutputCost:  0.075,
			MaxTokens:   200000,
			MaxOutput:   32768,
			Description: "Claude Opus 4",
			Strengths:   []string{"complex_reasoning", "coding", "autonomous_work"},
		},
		"claude-3-5-haiku-20241022": {
			InputCost:   0.001,
			OutputCost:  0.005,
			MaxTokens:   200000,
			MaxOutput:   8192,
			Description: "Claude 3.5 Haiku - fast and cheap",
			Strengths:   []string{"fast", "cheap", "quick_fixes"},
		},
	},
	"google": {
		"gemini-3-flash-preview": {
			InputCost:   0.0005,
			OutputCost:  0.003,
			MaxTokens:   1000000,
			MaxOutput:   64000,
			Description: "Gemini 3 Flash - ultra fast",
			Strengths:   []string{"ultra_fast", "reasoning", "multimodal", "coding"},
		},
		"gemini-3-pro-preview": {
			InputCost:   0.002,
			OutputCost:  0.012,
			MaxTokens:   1000000,
			MaxOutput:   64000,
			Description: "Gemini 3 Pro - highest quality",
			Strengths:   []string{"reasoning", "agentic", "multimodal", "sota"},
		},
		"gemini-2.5-flash": {
			InputCost:   0.000075,
			OutputCost:  0.0003,
			MaxTokens:   1000000,
			MaxOutput:   8192,
			Description: "Gemini 2.5 Flash",
			Strengths:   []string{"fast", "long_context", "efficient"},
		},
		"gemini-2.5-flash-lite": {
			InputCost:   0.0000375,
			OutputCost:  0.00015,
			MaxTokens:   1000000,
			MaxOutput:   8192,
			Description: "Gemini 2.5 Flash Lite - ultra cheap",
			Strengths:   []string{"ultra_fast", "cheap", "high_volume"},
		},
		"gemini-2.0-flash": {
			InputCost:   0.000075,
			OutputCost:  0.0003,
			MaxTokens:   1000000,
			MaxOutput:   8192,
			Description: "Gemini 2.0 Flash - reliable",
			Strengths:   []string{"fast", "reliable", "proven"},
		},
		"gemini-2.0-flash-lite": {
			InputCost:   0.0000375,
			OutputCost:  0.00015,
			MaxTokens:   1000000,
			MaxOutput:   8192,
			Description: "Gemini 2.0 Flash Lite",
			Strengths:   []string{"ultra_cheap", "fast", "budget"},
		},
		"gemini-1.5-pro": {
			InputCost:   0.00125,
			OutputCost:  0.005,
			MaxTokens:   2000000,
			MaxOutput:   8192,
			Description: "Gemini 1.5 Pro - 2M context",
			Strengths:   []string{"long_context", "multimodal", "reasoning"},
		},
		"gemini-1.5-flash": {
			InputCost:   0.000075,
			OutputCost:  0.0003,
			MaxTokens:   1000000,
			MaxOutput:   8192,
			Description: "Gemini 1.5 Flash",
			Strengths:   []string{"fast", "multimodal", "balanced"},
		},
	},
	"xai": {
		"grok-4-0709": {
			InputCost:   0.003,
			OutputCost:  0.015,
			MaxTokens:   256000,
			MaxOutput:   32768,
			Description: "Grok 4 - most intelligent",
			Strengths:   []string{"reasoning", "tool_use", "search"},
		},
		"grok-4-fast": {
			InputCost:   0.001,
			OutputCost:  0.003,
			MaxTokens:   2000000,
			MaxOutput:   32768,
			Description: "Grok 4 Fast - 2M context",
			Strengths:   []string{"ultra_fast", "efficient", "reasoning"},
		},
		"grok-code-fast-1": {
			InputCost:   0.001,
			OutputCost:  0.003,
			MaxTokens:   256000,
			MaxOutput:   32768,
			Description: "Grok Code - coding specialized",
			Strengths:   []string{"coding", "agentic", "fast"},
		},
		"grok-3": {
			InputCost:   0.005,
			OutputCost:  0.015,
			MaxTokens:   1000000,
			MaxOutput:   32768,
			Description: "Grok 3",
			Strengths:   []string{"reasoning", "long_context"},
		},
		"grok-3-mini": {
			InputCost:   0.001,
			OutputCost:  0.003,
			MaxTokens:   500000,
			MaxOutput:   16384,
			Description: "Grok 3 Mini",
			Strengths:   []string{"fast", "cheap"},
		},
		"grok-2": {
			InputCost:   0.002,
			OutputCost:  0.010,
			MaxTokens:   131072,
			MaxOutput:   32768,
			Description: "Grok 2",
			Strengths:   []string{"reasoning", "general"},
		},
	},
	"deepseek": {
		"deepseek-reasoner": {
			InputCost:   0.00055,
			OutputCost:  0.00219,
			MaxTokens:   128000,
			MaxOutput:   8192,
			Description: "DeepSeek Reasoner - chain of thought",
			Strengths:   []string{"reasoning", "chain_of_thought", "math", "algorithms"},
		},
		"deepseek-chat": {
			InputCost:   0.00027,
			OutputCost:  0.0011,
			MaxTokens:   128000,
			MaxOutput:   8192,
			Description: "DeepSeek Chat - ultra affordable",
			Strengths:   []string{"ultra_cheap", "coding", "general", "efficient"},
		},
	},
	"groq": {
		"llama-3.3-70b-versatile": {
			InputCost:   0.00059,
			OutputCost:  0.00079,
			MaxTokens:   128000,
			MaxOutput:   32768,
			Description: "Llama 3.3 70B on Groq - ultra fast",
			Strengths:   []string{"ultra_fast", "free_tier", "high_quality", "reasoning"},
		},
		"llama-3.1-70b-versatile": {
			InputCost:   0.00059,
			OutputCost:  0.00079,
			MaxTokens:   128000,
			MaxOutput:   32768,
			Description: "Llama 3.1 70B on Groq",
			Strengths:   []string{"ultra_fast", "free_tier", "coding", "reasoning"},
		},
		"llama-3.1-8b-instant": {
			InputCost:   0.00005,
			OutputCost:  0.00008,
			MaxTokens:   128000,
			MaxOutput:   8192,
			Description: "Llama 3.1 8B - fastest",
			Strengths:   []string{"ultra_fast", "ultra_cheap", "free_tier"},
		},
		"mixtral-8x7b-32768": {
			InputCost:   0.00024,
			OutputCost:  0.00024,
			MaxTokens:   32768,
			MaxOutput:   8192,
			Description: "Mixtral 8x7B MoE",
			Strengths:   []string{"ultra_fast", "free_tier", "balanced", "coding"},
		},
		"gemma2-9b-it": {
			InputCost:   0.00020,
			OutputCost:  0.00020,
			MaxTokens:   8192,
			MaxOutput:   8192,
			Description: "Gemma 2 9B",
			Strengths:   []string{"fast", "efficient", "google_quality"},
		},
	},
}

// =============================================================================
// LOOKUP FUNCTIONS
// =============================================================================

// Lookup returns metadata for a provider/model pair. The second return is
// false when the pair is not in the registry. Provider and ID fields are
// populated on the returned value even though the registry stores them as
// map keys.
func Lookup(provider, model string) (ModelInfo, bool) {
	models, ok := registry[provider]
	if !ok {
		return ModelInfo{}, false
	}
	info, ok := models[model]
	if !ok {
		return ModelInfo{}, false
	}
	info.Provider = provider
	info.ID = model
	return info, true
}

// Cost calculates the dollar cost of a request from token counts.
// Unknown models cost zero.
func Cost(provider, model string, inputTokens, outputTokens int) float64 {
	info, ok := Lookup(provider, model)
	if !ok {
		return 0
	}
	inputCost := float64(inputTokens) / 1000 * info.InputCost
	outputCost := float64(outputTokens) / 1000 * info.OutputCost
	return inputCost + outputCost
}

// MaxOutputTokens returns the output token ceiling for a model, or
// DefaultMaxOutput when the model is unknown.
func MaxOutputTokens(provider, model string) int {
	info, ok := Lookup(provider, model)
	if !ok {
		return DefaultMaxOutput
	}
	return info.MaxOutput
}

// All returns every registered model, sorted by provider then model ID
// for stable output.
func All() []ModelInfo {
	var models []ModelInfo
	for provider, providerModels := range registry {
		for id, info := range providerModels {
			info.Provider = provider
			info.ID = id
			models = append(models, info)
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Provider != models[j].Provider {
			return models[i].Provider < models[j].Provider
		}
		return models[i].ID < models[j].ID
	})
	return models
}

// Providers returns the sorted list of provider names.
func Providers() []string {
	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// IsProvider reports whether name is a known provider.
func IsProvider(name string) bool {
	_, ok := registry[name]
	return ok
}
