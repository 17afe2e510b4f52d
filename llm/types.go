// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"fmt"
)

// Message is one turn of a chat conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// Schema describes the structured output the caller wants back.
type Schema struct {
	// Name labels the schema; used as the synthetic tool name for the
	// tool-invocation strategy (default: "structured_output").
	Name string `json:"name,omitempty"`

	// Definition is a JSON Schema object ("type", "properties", ...).
	// A nil or empty definition is treated as an empty object schema.
	Definition map[string]any `json:"definition,omitempty"`
}

// Request encapsulates one completion call.
type Request struct {
	// Prompt is the user's input text. Ignored when Messages is set.
	Prompt string `json:"prompt,omitempty"`

	// Messages is a full chat-message sequence. Takes precedence over Prompt.
	Messages []Message `json:"messages,omitempty"`

	// System is an optional system instruction.
	System string `json:"system,omitempty"`

	// Model overrides the client's default model.
	Model string `json:"model,omitempty"`

	// Schema requests structured output.
	Schema *Schema `json:"schema,omitempty"`

	// MaxTokens limits the response length. If 0, defaults are used.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Zero means provider default.
	Temperature float64 `json:"temperature,omitempty"`

	// APIKey is an explicit per-call credential override. When set, the
	// shared credential store (and its refresh) is bypassed.
	APIKey string `json:"-"`

	// SkipFallback disables the automatic invalid-model fallback retry.
	SkipFallback bool `json:"skip_fallback,omitempty"`

	// SkipRefresh disables credential refresh-and-retry.
	SkipRefresh bool `json:"skip_refresh,omitempty"`

	// ValidateResult validates the final value against Schema and fails the
	// call when it does not conform.
	ValidateResult bool `json:"validate_result,omitempty"`
}

// StructuredPayloadError is raised when the upstream explicitly reports an
// error inside an otherwise well-formed payload. It terminates assembly
// immediately; partial output already delivered is never retracted.
type StructuredPayloadError struct {
	Code    string
	Message string
}

func (e *StructuredPayloadError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream reported error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream reported error: %s", e.Message)
}
