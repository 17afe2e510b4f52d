// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"io"
	"strings"

	"modelrelay/client/shared/logger"
)

// Assembler consumes decoded frames plus the resolved strategy and yields a
// lazy sequence of strings, each a complete, self-consistent best current
// rendering of the answer so far. On natural stream end it produces one
// final string the caller may treat as authoritative.
//
// An Assembler is owned by exactly one streaming call and is not safe for
// concurrent use. Yield order follows frame arrival order; a value is never
// emitted "earlier" in construction order than one already emitted.
type Assembler struct {
	dec   *FrameDecoder
	strat Strategy
	log   *logger.Logger

	accumulated strings.Builder
	pendingArgs strings.Builder
	lastEmitted string

	toolFlushed  bool
	done         bool
	finalEmitted bool
	final        string
}

// NewAssembler creates an assembler over a frame decoder.
func NewAssembler(dec *FrameDecoder, strat Strategy) *Assembler {
	return &Assembler{
		dec:   dec,
		strat: strat,
		log:   logger.New("assembler"),
	}
}

// Next returns the next best-effort rendering. io.EOF marks end of
// sequence; the final value is yielded before io.EOF and is also available
// from Final afterwards. Any other error terminates the sequence: partial
// output already delivered is never retracted, but no further values come.
func (a *Assembler) Next() (string, error) {
	if a.done {
		return "", io.EOF
	}

	for {
		frame, err := a.dec.Next()
		if err == io.EOF {
			return a.finish()
		}
		if err != nil {
			a.done = true
			return "", err
		}
		promStreamFrames.Inc()

		ev, perr := parseEvent(frame.Data)
		if perr != nil {
			// A single malformed record must not terminate assembly: the
			// upstream delta field is cumulative, so the next frame
			// re-covers whatever this one carried.
			a.log.Debug("", "skipping malformed frame", map[string]interface{}{"error": perr.Error()})
			continue
		}

		switch ev.kind {
		case eventError:
			a.done = true
			return "", &StructuredPayloadError{Code: ev.errType, Message: ev.errMessage}

		case eventText:
			a.accumulated.WriteString(ev.text)
			candidate := a.strat.RenderText(a.accumulated.String())
			if candidate != a.lastEmitted {
				a.lastEmitted = candidate
				return candidate, nil
			}

		case eventToolDelta:
			// Partial JSON fragments of a call payload are not valid
			// standalone values; buffer until the finish signal.
			a.pendingArgs.WriteString(ev.args)

		case eventFinish:
			if ev.toolFinish && a.pendingArgs.Len() > 0 && !a.toolFlushed {
				a.toolFlushed = true
				value := a.strat.ExtractToolArguments(a.pendingArgs.String())
				a.lastEmitted = value
				return value, nil
			}
		}
	}
}

// finish computes the authoritative final value at natural stream end and
// yields it once when it was not already the last emission.
func (a *Assembler) finish() (string, error) {
	a.done = true

	switch {
	case a.pendingArgs.Len() > 0 && !a.toolFlushed:
		// Tool arguments accumulated but never flushed: return the buffer
		// verbatim rather than dropping partial data.
		a.final = a.pendingArgs.String()
	case a.toolFlushed:
		a.final = a.lastEmitted
	default:
		a.final = a.strat.RenderText(a.accumulated.String())
	}

	a.finalEmitted = true
	if a.final != a.lastEmitted {
		a.lastEmitted = a.final
		return a.final, nil
	}
	return "", io.EOF
}

// Final returns the authoritative final value. Valid once the sequence has
// ended; before that it returns the empty string.
func (a *Assembler) Final() string {
	if !a.finalEmitted {
		return ""
	}
	return a.final
}
