// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// NormalizeSchema returns a deep copy of a JSON Schema object where every
// object node declares additionalProperties: false and a required list equal
// to its own property keys. Strict-mode structured output on
// OpenAI-compatible providers rejects schemas missing these declarations.
// The input is never mutated.
func NormalizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"required":             []any{},
			"additionalProperties": false,
		}
	}

	out := deepCopyMap(schema)
	normalizeNode(out)
	return out
}

// normalizeNode rewrites one schema node in place and recurses into
// properties, array items, and nested definitions.
func normalizeNode(node map[string]any) {
	props, hasProps := node["properties"].(map[string]any)
	nodeType, _ := node["type"].(string)

	if nodeType == "object" || hasProps {
		node["additionalProperties"] = false

		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		required := make([]any, len(keys))
		for i, k := range keys {
			required[i] = k
		}
		node["required"] = required

		for _, v := range props {
			if child, ok := v.(map[string]any); ok {
				normalizeNode(child)
			}
		}
	}

	if items, ok := node["items"].(map[string]any); ok {
		normalizeNode(items)
	}
	for _, defsKey := range []string{"$defs", "definitions"} {
		if defs, ok := node[defsKey].(map[string]any); ok {
			for _, v := range defs {
				if child, ok := v.(map[string]any); ok {
					normalizeNode(child)
				}
			}
		}
	}
}

// deepCopyMap copies a JSON-shaped map recursively.
func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return deepCopyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// ValidateResult validates a final result string against the caller's
// schema. The result must be valid JSON conforming to schema.Definition.
func ValidateResult(schema *Schema, result string) error {
	if schema == nil || len(schema.Definition) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema.Definition)
	resultLoader := gojsonschema.NewStringLoader(result)

	validation, err := gojsonschema.Validate(schemaLoader, resultLoader)
	if err != nil {
		return fmt.Errorf("result validation failed: %w", err)
	}
	if validation.Valid() {
		return nil
	}

	issues := make([]string, 0, len(validation.Errors()))
	for _, e := range validation.Errors() {
		issues = append(issues, e.String())
	}
	return fmt.Errorf("result does not conform to schema: %s", strings.Join(issues, "; "))
}
