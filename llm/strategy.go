// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"strings"
)

// StrategyKind identifies a request-shaping / response-extraction strategy.
type StrategyKind string

const (
	// StrategyNone leaves the request unchanged and passes text through.
	StrategyNone StrategyKind = "none"

	// StrategyNativeSchema declares a response_format JSON schema
	// (OpenAI-compatible family).
	StrategyNativeSchema StrategyKind = "native_schema"

	// StrategyToolInvocation defines a single synthetic tool built from the
	// schema and forces the model to invoke it (Anthropic family).
	StrategyToolInvocation StrategyKind = "tool_invocation"

	// StrategySystemInstruction prepends a system message instructing JSON
	// output (models with no native structured-output mode).
	StrategySystemInstruction StrategyKind = "system_instruction"
)

// DefaultToolName is the synthetic tool identifier used when the schema
// carries no name.
const DefaultToolName = "structured_output"

// Family pattern lists driving strategy selection. Matching is
// case-insensitive substring against the model identifier.
var (
	// ToolFamilyPatterns select the tool-invocation strategy.
	ToolFamilyPatterns = []string{"claude", "anthropic"}

	// InstructionFamilyPatterns select the system-instruction strategy:
	// models without a reliable native structured-output mode.
	InstructionFamilyPatterns = []string{"llama", "gemma", "mistral", "mixtral", "qwen", "deepseek"}
)

// Strategy is the per-model policy for how a structured-output schema is
// turned into request fields and how the response is reduced back to a
// string. Immutable once resolved; a fallback retry re-resolves it for the
// fallback model.
type Strategy struct {
	Kind   StrategyKind
	Model  string
	Schema *Schema

	// ForceStream means buffered callers still get a stream opened
	// internally and consumed transparently, because structured extraction
	// for this family is only reliable post-completion.
	ForceStream bool
}

// ResolveStrategy selects the strategy for a model identifier and an
// optional output schema.
func ResolveStrategy(model string, schema *Schema) Strategy {
	if schema == nil {
		return Strategy{Kind: StrategyNone, Model: model}
	}

	lower := strings.ToLower(model)
	for _, p := range ToolFamilyPatterns {
		if strings.Contains(lower, p) {
			return Strategy{Kind: StrategyToolInvocation, Model: model, Schema: schema, ForceStream: true}
		}
	}
	for _, p := range InstructionFamilyPatterns {
		if strings.Contains(lower, p) {
			return Strategy{Kind: StrategySystemInstruction, Model: model, Schema: schema}
		}
	}
	return Strategy{Kind: StrategyNativeSchema, Model: model, Schema: schema}
}

// toolName returns the synthetic tool identifier for this strategy.
func (s Strategy) toolName() string {
	if s.Schema != nil && s.Schema.Name != "" {
		return s.Schema.Name
	}
	return DefaultToolName
}

// definition returns the schema definition, defaulting to an empty object
// schema when the caller supplied none.
func (s Strategy) definition() map[string]any {
	if s.Schema != nil && len(s.Schema.Definition) > 0 {
		return s.Schema.Definition
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// ShapeRequest merges this strategy's partial request fragment into the
// outbound request body. The body's "messages" entry, when present, is a
// []map[string]any in wire form.
func (s Strategy) ShapeRequest(body map[string]any) {
	switch s.Kind {
	case StrategyToolInvocation:
		name := s.toolName()
		body["tools"] = []map[string]any{
			{
				"name":         name,
				"description":  "Produce the structured result for this request.",
				"input_schema": s.definition(),
			},
		}
		body["tool_choice"] = map[string]any{"type": "tool", "name": name}

	case StrategyNativeSchema:
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   s.toolName(),
				"strict": true,
				"schema": NormalizeSchema(s.definition()),
			},
		}

	case StrategySystemInstruction:
		def, err := json.Marshal(s.definition())
		if err != nil {
			return
		}
		instruction := "Respond with a single JSON object matching this JSON Schema, and nothing else: " + string(def)
		if messages, ok := body["messages"].([]map[string]any); ok {
			system := map[string]any{"role": "system", "content": instruction}
			body["messages"] = append([]map[string]any{system}, messages...)
		}
	}
}

// ExtractResult reduces a fully-formed (buffered) response payload to the
// public string-typed result. Preference order: provider-specific
// structured payload when the stop/finish reason indicates a tool call,
// then the first text-like content field, then heuristic JSON extraction
// for schema-bearing strategies. Objects are canonicalized through standard
// JSON serialization so the contract stays string-typed.
func (s Strategy) ExtractResult(payload map[string]any) string {
	if value, ok := extractToolPayload(payload); ok {
		return canonicalize(value)
	}

	text, ok := extractText(payload)
	if !ok {
		// No text-like field at all: canonicalize whatever arrived.
		return canonicalize(payload)
	}
	return s.RenderText(text)
}

// RenderText produces the best current rendering of accumulated text.
// Schema-bearing strategies re-attempt JSON extraction on every call so each
// yield is a complete, independently valid rendering; the no-schema strategy
// passes text through untouched.
func (s Strategy) RenderText(text string) string {
	if s.Kind == StrategyNone {
		return text
	}
	return ExtractJSON(text)
}

// ExtractToolArguments treats a completed tool-argument buffer as the final
// payload. Valid JSON is canonicalized; anything else goes through the same
// heuristic extraction as plain text.
func (s Strategy) ExtractToolArguments(args string) string {
	var value any
	if err := json.Unmarshal([]byte(args), &value); err == nil {
		return canonicalize(value)
	}
	return ExtractJSON(args)
}

// extractToolPayload finds the structured tool/function-call payload when
// the finish reason indicates one occurred. Handles both the Anthropic
// (stop_reason: tool_use, content block of type tool_use) and
// OpenAI-compatible (finish_reason: tool_calls, message.tool_calls) shapes.
func extractToolPayload(payload map[string]any) (any, bool) {
	if stopReason, _ := payload["stop_reason"].(string); stopReason == "tool_use" {
		if blocks, ok := payload["content"].([]any); ok {
			for _, b := range blocks {
				block, ok := b.(map[string]any)
				if !ok {
					continue
				}
				if blockType, _ := block["type"].(string); blockType == "tool_use" {
					return block["input"], true
				}
			}
		}
	}

	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return nil, false
	}
	finishReason, _ := choice["finish_reason"].(string)
	if finishReason != "tool_calls" && finishReason != "function_call" {
		return nil, false
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return nil, false
	}
	calls, ok := message["tool_calls"].([]any)
	if !ok || len(calls) == 0 {
		return nil, false
	}
	call, ok := calls[0].(map[string]any)
	if !ok {
		return nil, false
	}
	function, ok := call["function"].(map[string]any)
	if !ok {
		return nil, false
	}
	if args, ok := function["arguments"].(string); ok {
		var value any
		if err := json.Unmarshal([]byte(args), &value); err == nil {
			return value, true
		}
		return args, true
	}
	return nil, false
}

// extractText finds the first text-like content field in a response
// payload. Ties between multiple candidate blocks are broken by
// first-occurrence order.
func extractText(payload map[string]any) (string, bool) {
	switch content := payload["content"].(type) {
	case string:
		return content, true
	case []any:
		for _, b := range content {
			block, ok := b.(map[string]any)
			if !ok {
				continue
			}
			if blockType, _ := block["type"].(string); blockType == "text" {
				if text, ok := block["text"].(string); ok {
					return text, true
				}
			}
		}
	}

	if choices, ok := payload["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if text, ok := message["content"].(string); ok {
					return text, true
				}
			}
			if text, ok := choice["text"].(string); ok {
				return text, true
			}
		}
	}

	return "", false
}

// canonicalize serializes a value to its canonical JSON text form. Strings
// pass through unchanged.
func canonicalize(value any) string {
	if text, ok := value.(string); ok {
		return text
	}
	out, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(out)
}
