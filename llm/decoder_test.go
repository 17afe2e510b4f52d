// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader delivers its payload in fixed-size chunks so tests can force
// frame boundaries to fall mid-line and mid-codepoint.
type chunkedReader struct {
	data      []byte
	chunkSize int
	offset    int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.offset >= len(r.data) {
		return 0, io.EOF
	}
	end := r.offset + r.chunkSize
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.offset:end])
	r.offset += n
	return n, nil
}

func collectFrames(t *testing.T, r io.Reader) []string {
	t.Helper()
	dec := NewFrameDecoder(r)
	var frames []string
	for {
		frame, err := dec.Next()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, frame.Data)
	}
}

func TestFrameDecoder_BasicStream(t *testing.T) {
	raw := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"

	frames := collectFrames(t, bytes.NewReader([]byte(raw)))

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, frames)
}

func TestFrameDecoder_ChunkBoundaryInvariance(t *testing.T) {
	raw := []byte("data: {\"capital\":\"Parìs\"}\n" +
		": keep-alive\n" +
		"\n" +
		"data: {\"population\":67.5}\n" +
		"event: processing\n" +
		"data: {\"languages\":[\"Français\"]}\n" +
		"data: [DONE]\n")

	whole := collectFrames(t, bytes.NewReader(raw))
	require.Len(t, whole, 3)

	// Every chunk size must yield the identical frame sequence, including
	// sizes that split multi-byte codepoints and property names.
	for size := 1; size <= len(raw); size++ {
		chunked := collectFrames(t, &chunkedReader{data: raw, chunkSize: size})
		assert.Equal(t, whole, chunked, "chunk size %d diverged", size)
	}
}

func TestFrameDecoder_SentinelStopsReading(t *testing.T) {
	// Bytes after the sentinel must never be read.
	r := &chunkedReader{
		data:      []byte("data: {\"a\":1}\ndata: [DONE]\ndata: {\"never\":true}\n"),
		chunkSize: 14, // first Read ends exactly after the first line
	}
	dec := NewFrameDecoder(r)

	frame, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, frame.Data)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)

	// Subsequent calls stay at end of sequence.
	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFrameDecoder_DropsNonDataLines(t *testing.T) {
	raw := "event: message_start\n" +
		": heartbeat comment\n" +
		"\n" +
		"retry: 3000\n" +
		"data: {\"kept\":true}\n"

	frames := collectFrames(t, bytes.NewReader([]byte(raw)))

	assert.Equal(t, []string{`{"kept":true}`}, frames)
}

func TestFrameDecoder_DropsUndecodableLine(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("data: {\"a\":1}\n")
	buf.WriteString("data: ")
	buf.Write([]byte{0xff, 0xfe, 0xfd}) // not valid UTF-8
	buf.WriteString("\n")
	buf.WriteString("data: {\"b\":2}\n")

	frames := collectFrames(t, bytes.NewReader(buf.Bytes()))

	// The corrupted frame vanishes; the rest of the stream survives.
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, frames)
}

func TestFrameDecoder_TrailingLineWithoutNewline(t *testing.T) {
	raw := "data: {\"a\":1}\ndata: {\"b\":2}"

	frames := collectFrames(t, bytes.NewReader([]byte(raw)))

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, frames)
}

func TestFrameDecoder_CRLFLines(t *testing.T) {
	raw := "data: {\"a\":1}\r\ndata: [DONE]\r\n"

	frames := collectFrames(t, bytes.NewReader([]byte(raw)))

	assert.Equal(t, []string{`{"a":1}`}, frames)
}

func TestFrameDecoder_PrefixWithoutSpace(t *testing.T) {
	raw := "data:{\"a\":1}\ndata:[DONE]\n"

	frames := collectFrames(t, bytes.NewReader([]byte(raw)))

	assert.Equal(t, []string{`{"a":1}`}, frames)
}

func TestFrameDecoder_EmptyBody(t *testing.T) {
	frames := collectFrames(t, bytes.NewReader(nil))
	assert.Empty(t, frames)
}
