package gemini

import (
	"strings"
	"testing"

	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/sse"
)

func decodeAll(t *testing.T, d *Decoder, lines []string) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	for _, l := range lines {
		evs, err := d.Decode(sse.Frame{Data: []byte(l)})
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", l, err)
		}
		events = append(events, evs...)
	}
	return events
}

func TestDecoder_TextStream(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(t, d, []string{
		`{"responseId":"r1","modelVersion":"gemini-2.0-flash","candidates":[{"index":0,"content":{"role":"model","parts":[{"text":"Hel"}]}}]}`,
		`{"candidates":[{"index":0,"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":2,"totalTokenCount":10}}`,
	})

	if events[0].Type != domain.EventStreamStart || events[0].Meta.ID != "r1" {
		t.Fatalf("events[0] = %+v", events[0])
	}

	var text strings.Builder
	for _, ev := range events {
		if ev.Type == domain.EventContentDelta {
			text.WriteString(ev.Text)
		}
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q, want Hello", text.String())
	}

	flushed := d.Flush()
	if len(flushed) != 1 || flushed[0].Type != domain.EventStreamEnd {
		t.Fatalf("Flush() = %+v, want one stream_end", flushed)
	}
	resp := flushed[0].Response
	if resp.Text() != "Hello" {
		t.Errorf("final text = %q", resp.Text())
	}
	if resp.Choices[0].FinishReason != domain.FinishStop {
		t.Errorf("finish = %q, want stop", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens == nil || *resp.Usage.TotalTokens != 10 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	if again := d.Flush(); len(again) != 0 {
		t.Errorf("second Flush() = %+v, want empty", again)
	}
}

func TestDecoder_ThoughtParts(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(t, d, []string{
		`{"responseId":"r","candidates":[{"index":0,"content":{"parts":[{"text":"considering","thought":true},{"text":"answer"}]},"finishReason":"STOP"}]}`,
	})

	var thinking, text string
	for _, ev := range events {
		switch ev.Type {
		case domain.EventThinkingDelta:
			thinking += ev.Text
		case domain.EventContentDelta:
			text += ev.Text
		}
	}
	if thinking != "considering" || text != "answer" {
		t.Errorf("thinking = %q, text = %q", thinking, text)
	}
}

func TestDecoder_FunctionCall(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(t, d, []string{
		`{"responseId":"r","candidates":[{"index":0,"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"Oslo"}}}]},"finishReason":"STOP"}]}`,
	})

	var tool *domain.ToolCallDelta
	for _, ev := range events {
		if ev.Type == domain.EventToolCallDelta {
			tool = ev.ToolCall
		}
	}
	if tool == nil {
		t.Fatal("no tool delta")
	}
	if tool.Name != "get_weather" || tool.CallID == "" {
		t.Errorf("tool = %+v", tool)
	}
	if tool.ArgumentsFragment != `{"city":"Oslo"}` {
		t.Errorf("args = %q", tool.ArgumentsFragment)
	}

	flushed := d.Flush()
	if len(flushed) != 1 {
		t.Fatal("no terminal event")
	}
	choice := flushed[0].Response.Choices[0]
	if choice.FinishReason != domain.FinishToolCalls {
		t.Errorf("finish = %q, want tool_calls", choice.FinishReason)
	}
	if len(choice.ToolCalls) != 1 || choice.ToolCalls[0].Arguments != `{"city":"Oslo"}` {
		t.Errorf("final calls = %+v", choice.ToolCalls)
	}
}

func TestDecoder_MalformedLineIsTerminal(t *testing.T) {
	d := NewDecoder()
	_, err := d.Decode(sse.Frame{Data: []byte("{not-json}")})
	if err == nil {
		t.Fatal("Decode(malformed) = nil error, want decode error")
	}
	if apiErr, ok := err.(*domain.APIError); !ok || apiErr.Kind != domain.ErrKindDecode {
		t.Fatalf("error = %v, want decode kind", err)
	}
	if flushed := d.Flush(); len(flushed) != 0 {
		t.Errorf("Flush() after poison = %+v, want empty", flushed)
	}
}

func TestDecoder_EmbeddedError(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(t, d, []string{
		`{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`,
	})
	if len(events) != 1 || events[0].Type != domain.EventError {
		t.Fatalf("events = %+v, want one error", events)
	}
	if events[0].Err.StatusCode != 429 || events[0].Err.Message != "quota exhausted" {
		t.Errorf("err = %+v", events[0].Err)
	}
}

func TestDecoder_TruncatedStreamProducesNothing(t *testing.T) {
	d := NewDecoder()
	decodeAll(t, d, []string{
		`{"responseId":"r","candidates":[{"index":0,"content":{"parts":[{"text":"partial"}]}}]}`,
	})
	if flushed := d.Flush(); len(flushed) != 0 {
		t.Errorf("Flush() without finishReason = %+v, want empty", flushed)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := []struct {
		in   string
		want domain.FinishReason
	}{
		{"STOP", domain.FinishStop},
		{"MAX_TOKENS", domain.FinishLength},
		{"SAFETY", domain.FinishContentFilter},
		{"MALFORMED_FUNCTION_CALL", domain.FinishError},
		{"FUTURE_REASON", domain.FinishUnknown},
	}
	for _, tc := range cases {
		if got := MapFinishReason(tc.in); got != tc.want {
			t.Errorf("MapFinishReason(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
