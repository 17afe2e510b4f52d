// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json fence wins",
			input:    "Here is the result:\n```json\n{\"a\": 1}\n```\nHope that helps!",
			expected: `{"a": 1}`,
		},
		{
			name:     "json fence preferred over earlier plain fence",
			input:    "```\nnot it\n```\n```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "any-language fence",
			input:    "```\n{\"b\": 2}\n```",
			expected: `{"b": 2}`,
		},
		{
			name:     "labelled fence",
			input:    "```JSON\n{\"c\": 3}\n```",
			expected: `{"c": 3}`,
		},
		{
			name:     "bare object amid prose",
			input:    `Sure! The answer is {"capital": "Paris"} as requested.`,
			expected: `{"capital": "Paris"}`,
		},
		{
			name:     "nested braces balance",
			input:    `prefix {"a": {"b": {"c": 1}}} suffix`,
			expected: `{"a": {"b": {"c": 1}}}`,
		},
		{
			name:     "braces inside string literals ignored",
			input:    `{"text": "uses { and } freely", "n": 1} trailing`,
			expected: `{"text": "uses { and } freely", "n": 1}`,
		},
		{
			name:     "escaped quote inside string",
			input:    `{"text": "quote \" then } brace"} rest`,
			expected: `{"text": "quote \" then } brace"}`,
		},
		{
			name:     "unclosed span returns growing prefix",
			input:    `leading {"capital": "Par`,
			expected: `{"capital": "Par`,
		},
		{
			name:     "no json at all passes through trimmed",
			input:    "  plain prose answer  ",
			expected: "plain prose answer",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "first of multiple json fences",
			input:    "```json\n{\"first\": true}\n```\n```json\n{\"second\": true}\n```",
			expected: `{"first": true}`,
		},
		{
			name:     "array inside fence survives",
			input:    "```json\n[1, 2, 3]\n```",
			expected: `[1, 2, 3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.input))
		})
	}
}

func TestExtractJSON_Idempotent(t *testing.T) {
	inputs := []string{
		"```json\n{\"a\": 1}\n```",
		`prose {"a": {"b": 2}} prose`,
		`{"clean": true}`,
		"no json here",
		`{"partial": "val`,
	}
	for _, in := range inputs {
		once := ExtractJSON(in)
		assert.Equal(t, once, ExtractJSON(once), "input %q", in)
	}
}
