package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReader_BasicFrames(t *testing.T) {
	input := "event: message_start\ndata: {\"a\":1}\n\nevent: message_stop\ndata: {}\n\n"
	r := NewReader(strings.NewReader(input))

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Event != "message_start" {
		t.Errorf("Event = %q, want %q", f.Event, "message_start")
	}
	if string(f.Data) != `{"a":1}` {
		t.Errorf("Data = %q, want %q", f.Data, `{"a":1}`)
	}

	f, err = r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Event != "message_stop" {
		t.Errorf("Event = %q, want %q", f.Event, "message_stop")
	}

	if _, err = r.Next(); err != io.EOF {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

func TestReader_MultiLineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	r := NewReader(strings.NewReader(input))

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != "line1\nline2" {
		t.Errorf("Data = %q, want %q", f.Data, "line1\nline2")
	}
}

func TestReader_CommentsReportedAndDropped(t *testing.T) {
	var comments []string
	input := ": ping\ndata: {}\n\n: keepalive\n"
	r := NewReader(strings.NewReader(input), WithCommentObserver(func(c string) {
		comments = append(comments, c)
	}))

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != "{}" {
		t.Errorf("Data = %q, want %q", f.Data, "{}")
	}
	if _, err = r.Next(); err != io.EOF {
		t.Errorf("Next() = %v, want io.EOF", err)
	}
	if len(comments) != 2 {
		t.Fatalf("observed %d comments, want 2", len(comments))
	}
	if comments[0] != " ping" {
		t.Errorf("comment = %q, want %q", comments[0], " ping")
	}
}

func TestReader_MissingTrailingBlankLine(t *testing.T) {
	input := "data: tail"
	r := NewReader(strings.NewReader(input))

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != "tail" {
		t.Errorf("Data = %q, want %q", f.Data, "tail")
	}
	if _, err = r.Next(); err != io.EOF {
		t.Errorf("Next() = %v, want io.EOF", err)
	}
}

type failingReader struct {
	data string
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		n := copy(p, f.data)
		return n, nil
	}
	return 0, errors.New("connection reset")
}

func TestReader_TransportErrorIsTerminal(t *testing.T) {
	r := NewReader(&failingReader{data: "data: {\"x\":1}\n\n"})

	if _, err := r.Next(); err != nil {
		t.Fatalf("first frame error = %v", err)
	}
	_, err := r.Next()
	if err == nil || err == io.EOF {
		t.Fatalf("Next() = %v, want transport error", err)
	}
	// The error is sticky: the reader is consumed exactly once.
	if _, again := r.Next(); again != err {
		t.Errorf("second Next() = %v, want same terminal error", again)
	}
}

func TestJSONLinesReader(t *testing.T) {
	input := "{\"a\":1}\n\n{\"b\":2}\n"
	r := NewJSONLinesReader(strings.NewReader(input))

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != `{"a":1}` {
		t.Errorf("Data = %q, want %q", f.Data, `{"a":1}`)
	}
	f, err = r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != `{"b":2}` {
		t.Errorf("Data = %q, want %q", f.Data, `{"b":2}`)
	}
	if _, err = r.Next(); err != io.EOF {
		t.Errorf("Next() = %v, want io.EOF", err)
	}
}
