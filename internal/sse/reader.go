// Package sse splits a raw byte stream into discrete wire frames: blank-line
// delimited Server-Sent-Events records, or one JSON object per line for
// NDJSON transports. Readers are lazy and one-shot: each Next call consumes
// exactly as much input as one frame needs, and a reader is never restarted.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Frame is one discrete unit of the incremental wire grammar.
type Frame struct {
	// Event is the SSE event name, empty when the vendor only sends data lines.
	Event string
	// Data is the frame payload. Multiple data: lines are joined with \n.
	Data []byte
	// ID is the SSE id field, empty when absent.
	ID string
}

// Option configures a Reader.
type Option func(*Reader)

// WithCommentObserver registers a callback invoked for every comment line
// (a line starting with a colon). Comments are dropped from the frame stream
// but vendors use them as heartbeats, so observers get visibility.
func WithCommentObserver(fn func(comment string)) Option {
	return func(r *Reader) {
		r.onComment = fn
	}
}

// Reader yields SSE frames from a byte stream. It never blocks beyond the
// underlying read: a frame is returned as soon as its terminating blank line
// (or EOF) has been seen.
type Reader struct {
	sc        *bufio.Scanner
	onComment func(string)
	err       error
	done      bool
}

// NewReader wraps an SSE byte stream. The caller retains ownership of r and
// must close it when done.
func NewReader(r io.Reader, opts ...Option) *Reader {
	sc := bufio.NewScanner(r)
	// Frames carrying base64 payloads can run large.
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)

	rd := &Reader{sc: sc}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next returns the next complete frame. It returns io.EOF after the stream
// ends cleanly and the transport error as the terminal item otherwise.
func (r *Reader) Next() (Frame, error) {
	if r.err != nil {
		return Frame{}, r.err
	}
	if r.done {
		return Frame{}, io.EOF
	}

	var frame Frame
	var dataLines [][]byte
	haveField := false

	flush := func() Frame {
		frame.Data = bytes.Join(dataLines, []byte("\n"))
		return frame
	}

	for r.sc.Scan() {
		line := r.sc.Text()

		if line == "" {
			if haveField {
				return flush(), nil
			}
			// Leading blank lines between frames carry nothing.
			continue
		}

		if strings.HasPrefix(line, ":") {
			if r.onComment != nil {
				r.onComment(strings.TrimPrefix(line, ":"))
			}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			frame.Event = value
			haveField = true
		case "data":
			dataLines = append(dataLines, []byte(value))
			haveField = true
		case "id":
			frame.ID = value
			haveField = true
		default:
			// Unknown fields are ignored per the SSE grammar.
		}
	}

	if err := r.sc.Err(); err != nil {
		r.err = err
		return Frame{}, err
	}

	r.done = true
	if haveField {
		// Stream ended without a trailing blank line; the buffered frame is
		// still complete.
		return flush(), nil
	}
	return Frame{}, io.EOF
}

// splitField splits "field: value", tolerating a missing space after the
// colon as the SSE grammar requires.
func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}

// JSONLinesReader yields one frame per non-empty line, for vendors that
// stream newline-delimited JSON instead of SSE records.
type JSONLinesReader struct {
	sc   *bufio.Scanner
	err  error
	done bool
}

// NewJSONLinesReader wraps an NDJSON byte stream.
func NewJSONLinesReader(r io.Reader) *JSONLinesReader {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	return &JSONLinesReader{sc: sc}
}

// Next returns the next non-empty line as a frame, io.EOF at clean end of
// stream, or the transport error.
func (r *JSONLinesReader) Next() (Frame, error) {
	if r.err != nil {
		return Frame{}, r.err
	}
	if r.done {
		return Frame{}, io.EOF
	}
	for r.sc.Scan() {
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		return Frame{Data: data}, nil
	}
	if err := r.sc.Err(); err != nil {
		r.err = err
		return Frame{}, err
	}
	r.done = true
	return Frame{}, io.EOF
}
