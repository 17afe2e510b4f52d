// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
)

// eventKind discriminates the shapes a frame payload can take. The shape is
// resolved once at parse time rather than probed ad hoc during assembly.
type eventKind int

const (
	// eventNoise carries nothing assembly cares about (message_start,
	// pings, content_block_start, role-only chunks).
	eventNoise eventKind = iota

	// eventText carries an incremental text delta.
	eventText

	// eventToolDelta carries an incremental fragment of structured-call
	// arguments. Fragments are not valid standalone JSON.
	eventToolDelta

	// eventFinish signals a stop/finish reason.
	eventFinish

	// eventError is an explicit upstream error payload.
	eventError
)

// streamEvent is the parsed form of one frame.
type streamEvent struct {
	kind eventKind
	text string
	args string

	// toolFinish is true when the finish reason indicates a tool or
	// function call completed.
	toolFinish bool

	errType    string
	errMessage string
}

// wireEvent covers both upstream dialects in one decode: Anthropic-style
// typed events and OpenAI-style choice chunks.
type wireEvent struct {
	Type string `json:"type,omitempty"`

	Delta *struct {
		Type        string `json:"type,omitempty"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`

	Error *struct {
		Type    string `json:"type,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`

	Choices []struct {
		Delta struct {
			Content   string `json:"content,omitempty"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices,omitempty"`
}

// parseEvent parses one frame payload into its tagged form. A parse error
// means the frame was malformed (for example a JSON token split across two
// physical frames); the caller skips it and continues.
func parseEvent(data string) (streamEvent, error) {
	var ev wireEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return streamEvent{}, err
	}

	if ev.Error != nil {
		return streamEvent{
			kind:       eventError,
			errType:    ev.Error.Type,
			errMessage: ev.Error.Message,
		}, nil
	}

	switch ev.Type {
	case "content_block_delta":
		if ev.Delta == nil {
			return streamEvent{kind: eventNoise}, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return streamEvent{kind: eventText, text: ev.Delta.Text}, nil
		case "input_json_delta":
			return streamEvent{kind: eventToolDelta, args: ev.Delta.PartialJSON}, nil
		}
		return streamEvent{kind: eventNoise}, nil

	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			return streamEvent{
				kind:       eventFinish,
				toolFinish: ev.Delta.StopReason == "tool_use",
			}, nil
		}
		return streamEvent{kind: eventNoise}, nil

	case "message_stop":
		// Flush point for tool arguments when message_delta never carried
		// a stop reason. Harmless when nothing is pending.
		return streamEvent{kind: eventFinish, toolFinish: true}, nil
	}

	if len(ev.Choices) > 0 {
		choice := ev.Choices[0]
		if choice.Delta.Content != "" {
			return streamEvent{kind: eventText, text: choice.Delta.Content}, nil
		}
		if len(choice.Delta.ToolCalls) > 0 {
			args := choice.Delta.ToolCalls[0].Function.Arguments
			if args != "" {
				return streamEvent{kind: eventToolDelta, args: args}, nil
			}
		}
		if choice.FinishReason != "" {
			return streamEvent{
				kind:       eventFinish,
				toolFinish: choice.FinishReason == "tool_calls" || choice.FinishReason == "function_call",
			}, nil
		}
	}

	return streamEvent{kind: eventNoise}, nil
}
