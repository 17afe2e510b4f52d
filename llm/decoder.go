// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	// dataPrefix marks a candidate event-data line.
	dataPrefix = "data:"

	// doneSentinel is the literal stream-termination value. It carries no
	// content and is converted to end-of-sequence.
	doneSentinel = "[DONE]"

	readChunkSize = 4096
)

// Frame is one decoded logical event record, already stripped of protocol
// framing. Keep-alive and sentinel records never reach the caller.
type Frame struct {
	Data string
}

// FrameDecoder consumes raw byte chunks from a live response body and yields
// well-formed event records. Incomplete trailing data is buffered across
// chunk boundaries: a chunk may end mid-line or even mid-UTF-8-codepoint.
// One decoder instance serves exactly one response body, once.
type FrameDecoder struct {
	r       io.Reader
	buf     []byte
	readBuf []byte
	done    bool
}

// NewFrameDecoder creates a decoder over a response body.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{
		r:       r,
		readBuf: make([]byte, readChunkSize),
	}
}

// Next returns the next frame. io.EOF marks end of sequence, either from
// the termination sentinel or from the body ending. After the sentinel the
// decoder never reads the body again.
func (d *FrameDecoder) Next() (Frame, error) {
	for {
		if d.done {
			return Frame{}, io.EOF
		}
		// Drain complete lines already buffered.
		for {
			i := bytes.IndexByte(d.buf, '\n')
			if i < 0 {
				break
			}
			line := string(d.buf[:i])
			d.buf = d.buf[i+1:]

			frame, ok, end := decodeLine(line)
			if end {
				d.done = true
				d.buf = nil
				return Frame{}, io.EOF
			}
			if ok {
				return frame, nil
			}
		}

		if d.done {
			return Frame{}, io.EOF
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.buf = append(d.buf, d.readBuf[:n]...)
		}
		if err == io.EOF {
			d.done = true
			// A final line may arrive without a trailing newline.
			if len(d.buf) > 0 {
				line := string(d.buf)
				d.buf = nil
				frame, ok, end := decodeLine(line)
				if ok && !end {
					return frame, nil
				}
			}
			return Frame{}, io.EOF
		}
		if err != nil {
			return Frame{}, fmt.Errorf("stream read error: %w", err)
		}
	}
}

// decodeLine turns one complete line into a frame. Lines without the data
// prefix (blank separators, ": heartbeat" comments, vendor status lines) and
// lines that are not valid text are dropped silently; corruption of one
// frame must never abort the whole sequence.
func decodeLine(line string) (frame Frame, ok bool, end bool) {
	line = strings.TrimRight(line, "\r")

	if !utf8.ValidString(line) {
		return Frame{}, false, false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return Frame{}, false, false
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == doneSentinel {
		return Frame{}, false, true
	}
	if data == "" {
		return Frame{}, false, false
	}
	return Frame{Data: data}, true, false
}
