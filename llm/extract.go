// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"regexp"
	"strings"
)

// Fenced-block patterns. (?s) lets the body span newlines.
var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*(.*?)```")
)

// ExtractJSON reduces model output that wraps JSON in a fenced code block or
// surrounds it with prose down to the JSON itself. Precedence: first
// ```json fence, then first fence of any language, then the first top-level
// {...} span, then the raw text. The function is heuristic and pure; it
// never fails, it only falls through.
//
// A brace span with no closing brace yet (a partial streaming render) is
// returned from the opening brace to the end of the text, so every yield
// during streaming is the growing prefix of the final value.
func ExtractJSON(text string) string {
	trimmed := strings.TrimSpace(text)

	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyRe.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" {
			return candidate
		}
	}
	if span, ok := braceSpan(trimmed); ok {
		return span
	}
	return trimmed
}

// braceSpan finds the first top-level {...} span, tracking string literals
// and escapes so braces inside strings do not affect nesting. When the span
// never closes, the remainder from the opening brace is returned.
func braceSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// Unclosed span: partial streaming output.
	return text[start:], true
}
