// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package llm implements a provider-agnostic client for chat-completion style
LLM HTTP APIs. Callers supply a prompt (plain text or a chat-message
sequence) and an optional structured-output schema; the client returns
either a single completed string or a live stream of progressively-complete
strings, regardless of which upstream request dialect (OpenAI-style JSON
schema, Anthropic-style tool use, plain system-message instruction) is
needed to obtain it.

# Strategies

ResolveStrategy picks the per-model policy for turning a schema into request
fields and reducing the response back to a string:

  - StrategyNone: no schema; text passes through.
  - StrategyNativeSchema: OpenAI-compatible response_format with a
    strict-mode normalized JSON schema.
  - StrategyToolInvocation: Anthropic-family synthetic tool definition; the
    model is forced to invoke it. Structured extraction for this family is
    only reliable post-completion, so buffered callers get a stream opened
    internally and consumed transparently.
  - StrategySystemInstruction: open-weights models without a native
    structured-output mode get a system message instructing JSON output.

# Streaming

FrameDecoder turns a live chunked response body into decoded event frames,
buffering incomplete trailing bytes so frame boundaries may split JSON
values, UTF-8 code points, or property names arbitrarily. Assembler consumes
frames plus the active strategy and yields a best-effort-so-far rendering
per frame, with one authoritative final value at stream end:

	stream, err := client.CompleteStream(ctx, llm.Request{Prompt: "..."})
	if err != nil {
		return err
	}
	defer stream.Close()
	for {
		partial, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		render(partial)
	}
	answer := stream.Final()

# Resilience

Every attempt is routed through the sdk coordinator: invalid-model failures
retry once against a fixed fallback model, and credential failures trigger a
serialized refresh of the shared key before a final retry.
*/
package llm
