package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	wire "github.com/polywire/polywire/internal/api/openai"
	"github.com/polywire/polywire/internal/codec"
	"github.com/polywire/polywire/internal/domain"
)

func mustEncoder(t *testing.T, p codec.UnsupportedPolicy) *Encoder {
	t.Helper()
	e, err := NewEncoder(p)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func parseChunk(t *testing.T, b []byte) wire.ChatCompletionChunk {
	t.Helper()
	payload := bytes.TrimSuffix(bytes.TrimPrefix(b, []byte("data: ")), []byte("\n\n"))
	var chunk wire.ChatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		t.Fatalf("chunk %q: %v", b, err)
	}
	return chunk
}

func TestEncoder_RequiresPolicy(t *testing.T) {
	var unset codec.UnsupportedPolicy
	if _, err := NewEncoder(unset); err == nil {
		t.Fatal("NewEncoder(zero policy) = nil error, want error")
	}
}

func TestEncoder_FrameGrammar(t *testing.T) {
	e := mustEncoder(t, codec.PolicyDrop)
	ts := time.Unix(1700000000, 0)

	b, err := e.Encode(domain.StreamStart(domain.StreamMeta{ID: "id-1", Model: "gpt-4o", Timestamp: ts}))
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.HasPrefix(s, "data: ") || !strings.HasSuffix(s, "\n\n") {
		t.Errorf("frame = %q, want data: prefix and blank-line terminator", s)
	}
	chunk := parseChunk(t, b)
	if chunk.ID != "id-1" || chunk.Model != "gpt-4o" || chunk.Created != 1700000000 {
		t.Errorf("chunk = %+v", chunk)
	}
	if chunk.Object != "chat.completion.chunk" {
		t.Errorf("object = %q", chunk.Object)
	}
	if chunk.Choices[0].Delta.Role != "assistant" {
		t.Errorf("role delta = %+v", chunk.Choices[0].Delta)
	}
}

func TestEncoder_ContentAndEnd(t *testing.T) {
	e := mustEncoder(t, codec.PolicyDrop)
	if _, err := e.Encode(domain.StreamStart(domain.StreamMeta{ID: "id", Model: "m"})); err != nil {
		t.Fatal(err)
	}

	b, err := e.Encode(domain.ContentDelta("hi", 0))
	if err != nil {
		t.Fatal(err)
	}
	if got := parseChunk(t, b).Choices[0].Delta.Content; got != "hi" {
		t.Errorf("content = %q", got)
	}

	resp := &domain.CanonicalResponse{Choices: []domain.Choice{{FinishReason: domain.FinishLength}}}
	b, err = e.Encode(domain.StreamEnd(resp))
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.SplitAfter(string(b), "\n\n")
	if len(parts) < 2 || parts[1] != "data: [DONE]\n\n" {
		t.Fatalf("stream end frames = %q, want finish chunk then [DONE]", b)
	}
	chunk := parseChunk(t, []byte(parts[0]))
	if chunk.Choices[0].FinishReason == nil || *chunk.Choices[0].FinishReason != "length" {
		t.Errorf("finish chunk = %+v", chunk.Choices[0])
	}
}

func TestEncoder_ToolCallIndexes(t *testing.T) {
	e := mustEncoder(t, codec.PolicyDrop)

	b, err := e.Encode(domain.ToolDelta(domain.ToolCallDelta{CallID: "call_1", Name: "search"}))
	if err != nil {
		t.Fatal(err)
	}
	first := parseChunk(t, b).Choices[0].Delta.ToolCalls[0]
	if first.Index != 0 || first.ID != "call_1" || first.Type != "function" {
		t.Errorf("first fragment = %+v", first)
	}
	if first.Function.Name != "search" {
		t.Errorf("name = %q", first.Function.Name)
	}

	b, err = e.Encode(domain.ToolDelta(domain.ToolCallDelta{CallID: "call_1", ArgumentsFragment: `{"q":1}`}))
	if err != nil {
		t.Fatal(err)
	}
	later := parseChunk(t, b).Choices[0].Delta.ToolCalls[0]
	if later.Index != 0 || later.ID != "" {
		t.Errorf("later fragment repeats identity: %+v", later)
	}
	if later.Function.Arguments != `{"q":1}` {
		t.Errorf("arguments = %q", later.Function.Arguments)
	}

	b, err = e.Encode(domain.ToolDelta(domain.ToolCallDelta{CallID: "call_2", Name: "other"}))
	if err != nil {
		t.Fatal(err)
	}
	if got := parseChunk(t, b).Choices[0].Delta.ToolCalls[0].Index; got != 1 {
		t.Errorf("second call index = %d, want 1", got)
	}
}

func TestEncoder_ThinkingPolicy(t *testing.T) {
	drop := mustEncoder(t, codec.PolicyDrop)
	b, err := drop.Encode(domain.ThinkingDelta("hmm"))
	if err != nil || len(b) != 0 {
		t.Errorf("drop: (%q, %v), want empty, nil", b, err)
	}

	down := mustEncoder(t, codec.PolicyDowngrade)
	b, err = down.Encode(domain.ThinkingDelta("hmm"))
	if err != nil {
		t.Fatal(err)
	}
	if got := parseChunk(t, b).Choices[0].Delta.Content; got != "hmm" {
		t.Errorf("downgrade content = %q", got)
	}

	strict := mustEncoder(t, codec.PolicyError)
	if _, err := strict.Encode(domain.ThinkingDelta("hmm")); !errors.Is(err, codec.ErrUnsupportedConstruct) {
		t.Errorf("error policy = %v, want ErrUnsupportedConstruct", err)
	}
}

// An OpenAI stream decoded and re-encoded as OpenAI must reproduce the text
// and tool payloads exactly.
func TestIdentityTranscode(t *testing.T) {
	d := NewChatDecoder()
	e := mustEncoder(t, codec.PolicyDrop)

	payloads := []string{
		`{"id":"c","model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"c","model":"m","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"id":"c","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		"[DONE]",
	}

	var out bytes.Buffer
	for _, p := range payloads {
		evs, err := d.Decode(frameData(p))
		if err != nil {
			t.Fatal(err)
		}
		for _, ev := range evs {
			b, err := e.Encode(ev)
			if err != nil {
				t.Fatal(err)
			}
			out.Write(b)
		}
	}

	s := out.String()
	if !strings.Contains(s, `"content":"Hel"`) || !strings.Contains(s, `"content":"lo"`) {
		t.Errorf("re-encoded stream missing deltas: %q", s)
	}
	if !strings.Contains(s, `"finish_reason":"stop"`) {
		t.Errorf("re-encoded stream missing finish: %q", s)
	}
	if !strings.HasSuffix(s, "data: [DONE]\n\n") {
		t.Errorf("re-encoded stream missing sentinel: %q", s)
	}
}
