package openai

import (
	"encoding/json"
	"fmt"

	wire "github.com/polywire/polywire/internal/api/openai"
	"github.com/polywire/polywire/internal/codec"
	"github.com/polywire/polywire/internal/domain"
)

// Encoder serializes canonical events into Chat Completions SSE chunks,
// byte-compatible with the OpenAI streaming grammar including the [DONE]
// sentinel. Thinking deltas and custom events have no chat representation
// and fall under the configured unsupported-construct policy.
type Encoder struct {
	policy codec.UnsupportedPolicy

	id      string
	model   string
	created int64

	// toolIndex assigns stable positional indexes to call ids; the chat
	// grammar addresses fragments by index, not id.
	toolIndex map[string]int
}

// NewEncoder returns an encoder. The policy choice is required.
func NewEncoder(policy codec.UnsupportedPolicy) (*Encoder, error) {
	if err := codec.ValidatePolicy(policy); err != nil {
		return nil, err
	}
	return &Encoder{policy: policy, toolIndex: make(map[string]int)}, nil
}

// Encode returns the wire bytes for one event.
func (e *Encoder) Encode(ev domain.StreamEvent) ([]byte, error) {
	switch ev.Type {
	case domain.EventStreamStart:
		if ev.Meta != nil {
			e.id = ev.Meta.ID
			e.model = ev.Meta.Model
			if !ev.Meta.Timestamp.IsZero() {
				e.created = ev.Meta.Timestamp.Unix()
			}
		}
		return e.chunk(wire.ChunkChoice{Delta: wire.ChunkDelta{Role: "assistant"}})

	case domain.EventContentDelta:
		return e.chunk(wire.ChunkChoice{
			Index: ev.ChoiceIndex,
			Delta: wire.ChunkDelta{Content: ev.Text},
		})

	case domain.EventThinkingDelta:
		switch e.policy {
		case codec.PolicyDrop:
			return nil, nil
		case codec.PolicyDowngrade:
			return e.chunk(wire.ChunkChoice{Delta: wire.ChunkDelta{Content: ev.Text}})
		default:
			return nil, fmt.Errorf("thinking delta: %w", codec.ErrUnsupportedConstruct)
		}

	case domain.EventToolCallDelta:
		tc := ev.ToolCall
		if tc == nil {
			return nil, nil
		}
		idx, known := e.toolIndex[tc.CallID]
		if !known {
			idx = len(e.toolIndex)
			e.toolIndex[tc.CallID] = idx
		}
		frag := wire.ToolCallChunk{Index: idx}
		if !known {
			frag.ID = tc.CallID
			frag.Type = "function"
		}
		if tc.Name != "" || tc.ArgumentsFragment != "" {
			frag.Function = &wire.FunctionCallChunk{
				Name:      tc.Name,
				Arguments: tc.ArgumentsFragment,
			}
		}
		return e.chunk(wire.ChunkChoice{
			Index: tc.ChoiceIndex,
			Delta: wire.ChunkDelta{ToolCalls: []wire.ToolCallChunk{frag}},
		})

	case domain.EventUsage:
		u := usageToWire(ev.Usage)
		body, err := e.envelope(nil, u)
		if err != nil {
			return nil, err
		}
		return frame(body), nil

	case domain.EventStreamEnd:
		reason := "stop"
		if ev.Response != nil && len(ev.Response.Choices) > 0 {
			reason = finishToWire(ev.Response.Choices[0].FinishReason)
		}
		body, err := e.envelope([]wire.ChunkChoice{{FinishReason: &reason}}, nil)
		if err != nil {
			return nil, err
		}
		out := frame(body)
		out = append(out, frame([]byte(wire.DoneSentinel))...)
		return out, nil

	case domain.EventError:
		msg := "stream error"
		if ev.Err != nil {
			msg = ev.Err.Message
		}
		body, err := json.Marshal(wire.ErrorResponse{
			Error: &wire.WireError{Message: msg, Type: "server_error"},
		})
		if err != nil {
			return nil, err
		}
		out := frame(body)
		out = append(out, frame([]byte(wire.DoneSentinel))...)
		return out, nil

	case domain.EventCustom:
		switch e.policy {
		case codec.PolicyDrop:
			return nil, nil
		case codec.PolicyDowngrade:
			note, err := json.Marshal(ev.CustomData)
			if err != nil {
				return nil, err
			}
			return e.chunk(wire.ChunkChoice{
				Delta: wire.ChunkDelta{Content: fmt.Sprintf("[%s] %s", ev.CustomType, note)},
			})
		default:
			return nil, fmt.Errorf("custom event %q: %w", ev.CustomType, codec.ErrUnsupportedConstruct)
		}
	}
	return nil, nil
}

func (e *Encoder) chunk(choice wire.ChunkChoice) ([]byte, error) {
	body, err := e.envelope([]wire.ChunkChoice{choice}, nil)
	if err != nil {
		return nil, err
	}
	return frame(body), nil
}

func (e *Encoder) envelope(choices []wire.ChunkChoice, usage *wire.Usage) ([]byte, error) {
	if choices == nil {
		choices = []wire.ChunkChoice{}
	}
	return json.Marshal(wire.ChatCompletionChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: choices,
		Usage:   usage,
	})
}

func frame(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out
}

func usageToWire(u *domain.Usage) *wire.Usage {
	if u == nil {
		return nil
	}
	out := &wire.Usage{}
	if u.PromptTokens != nil {
		out.PromptTokens = *u.PromptTokens
	}
	if u.CompletionTokens != nil {
		out.CompletionTokens = *u.CompletionTokens
	}
	if u.TotalTokens != nil {
		out.TotalTokens = *u.TotalTokens
	}
	if u.CachedTokens != nil {
		out.PromptTokensDetails = &wire.PromptTokensDetails{CachedTokens: *u.CachedTokens}
	}
	if u.ReasoningTokens != nil {
		out.CompletionTokensDetails = &wire.CompletionTokensDetails{ReasoningTokens: *u.ReasoningTokens}
	}
	return out
}

func finishToWire(r domain.FinishReason) string {
	switch r {
	case domain.FinishLength:
		return "length"
	case domain.FinishToolCalls:
		return "tool_calls"
	case domain.FinishContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}
