package anthropic

import (
	"encoding/json"
	"fmt"

	wire "github.com/polywire/polywire/internal/api/anthropic"
	"github.com/polywire/polywire/internal/codec"
	"github.com/polywire/polywire/internal/domain"
)

// Encoder serializes canonical events into the Anthropic Messages SSE
// grammar: typed event frames addressing indexed content blocks. The encoder
// opens and closes blocks as the canonical channels interleave. Thinking has
// a native block type; additional choices beyond the first and custom events
// fall under the configured unsupported-construct policy.
type Encoder struct {
	policy codec.UnsupportedPolicy

	nextIndex int
	// open is the currently open block: "", "text", "thinking", "tool_use".
	open      string
	openIndex int
	// toolBlocks maps call ids to their block index while the call streams.
	toolBlocks map[string]int
	openCallID string

	usage *wire.Usage
}

// NewEncoder returns an encoder. The policy choice is required.
func NewEncoder(policy codec.UnsupportedPolicy) (*Encoder, error) {
	if err := codec.ValidatePolicy(policy); err != nil {
		return nil, err
	}
	return &Encoder{policy: policy, toolBlocks: make(map[string]int)}, nil
}

// Encode returns the wire bytes for one event.
func (e *Encoder) Encode(ev domain.StreamEvent) ([]byte, error) {
	switch ev.Type {
	case domain.EventStreamStart:
		msg := wire.MessagesResponse{Type: "message", Role: "assistant"}
		if ev.Meta != nil {
			msg.ID = ev.Meta.ID
			msg.Model = ev.Meta.Model
		}
		msg.Content = []wire.ContentBlock{}
		return marshalFrame(wire.EventMessageStart, wire.StreamEvent{
			Type:    wire.EventMessageStart,
			Message: &msg,
		})

	case domain.EventContentDelta:
		if ev.ChoiceIndex != 0 {
			switch e.policy {
			case codec.PolicyDrop:
				return nil, nil
			case codec.PolicyError:
				return nil, fmt.Errorf("choice %d: %w", ev.ChoiceIndex, codec.ErrUnsupportedConstruct)
			}
			// Downgrade folds extra choices into the single message.
		}
		out, err := e.ensureBlock("text", wire.ContentBlock{Type: "text"})
		if err != nil {
			return nil, err
		}
		b, err := marshalFrame(wire.EventContentBlockDelta, wire.StreamEvent{
			Type:  wire.EventContentBlockDelta,
			Index: e.openIndex,
			Delta: &wire.Delta{Type: "text_delta", Text: ev.Text},
		})
		if err != nil {
			return nil, err
		}
		return append(out, b...), nil

	case domain.EventThinkingDelta:
		out, err := e.ensureBlock("thinking", wire.ContentBlock{Type: "thinking"})
		if err != nil {
			return nil, err
		}
		b, err := marshalFrame(wire.EventContentBlockDelta, wire.StreamEvent{
			Type:  wire.EventContentBlockDelta,
			Index: e.openIndex,
			Delta: &wire.Delta{Type: "thinking_delta", Thinking: ev.Text},
		})
		if err != nil {
			return nil, err
		}
		return append(out, b...), nil

	case domain.EventToolCallDelta:
		tc := ev.ToolCall
		if tc == nil {
			return nil, nil
		}
		var out []byte
		if _, known := e.toolBlocks[tc.CallID]; !known {
			opened, err := e.ensureBlock("tool_use", wire.ContentBlock{
				Type: "tool_use",
				ID:   tc.CallID,
				Name: tc.Name,
			})
			if err != nil {
				return nil, err
			}
			out = opened
			e.toolBlocks[tc.CallID] = e.openIndex
			e.openCallID = tc.CallID
		} else if e.open != "tool_use" || e.openCallID != tc.CallID {
			return nil, fmt.Errorf("interleaved fragments for tool call %s", tc.CallID)
		}
		if tc.ArgumentsFragment == "" {
			return out, nil
		}
		b, err := marshalFrame(wire.EventContentBlockDelta, wire.StreamEvent{
			Type:  wire.EventContentBlockDelta,
			Index: e.toolBlocks[tc.CallID],
			Delta: &wire.Delta{Type: "input_json_delta", PartialJSON: tc.ArgumentsFragment},
		})
		if err != nil {
			return nil, err
		}
		return append(out, b...), nil

	case domain.EventUsage:
		// Anthropic reports usage inside message_delta; hold it for the end.
		e.usage = usageToWire(ev.Usage)
		return nil, nil

	case domain.EventStreamEnd:
		out, err := e.closeOpenBlock()
		if err != nil {
			return nil, err
		}
		stop := "end_turn"
		if ev.Response != nil && len(ev.Response.Choices) > 0 {
			stop = stopToWire(ev.Response.Choices[0].FinishReason)
		}
		if e.usage == nil && ev.Response != nil {
			e.usage = usageToWire(&ev.Response.Usage)
		}
		b, err := marshalFrame(wire.EventMessageDelta, wire.StreamEvent{
			Type:  wire.EventMessageDelta,
			Delta: &wire.Delta{StopReason: stop},
			Usage: e.usage,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		b, err = marshalFrame(wire.EventMessageStop, wire.StreamEvent{Type: wire.EventMessageStop})
		if err != nil {
			return nil, err
		}
		return append(out, b...), nil

	case domain.EventError:
		msg := "stream error"
		if ev.Err != nil {
			msg = ev.Err.Message
		}
		return marshalFrame(wire.EventError, wire.StreamEvent{
			Type:  wire.EventError,
			Error: &wire.WireError{Type: "api_error", Message: msg},
		})

	case domain.EventCustom:
		switch e.policy {
		case codec.PolicyDrop:
			return nil, nil
		case codec.PolicyDowngrade:
			note, err := json.Marshal(ev.CustomData)
			if err != nil {
				return nil, err
			}
			return e.Encode(domain.ContentDelta(fmt.Sprintf("[%s] %s", ev.CustomType, note), 0))
		default:
			return nil, fmt.Errorf("custom event %q: %w", ev.CustomType, codec.ErrUnsupportedConstruct)
		}
	}
	return nil, nil
}

// ensureBlock closes any open block of a different kind and opens a new one
// of the requested kind, returning the frames produced. Tool blocks are
// always freshly opened; text and thinking blocks are reused while the
// channel stays the same.
func (e *Encoder) ensureBlock(kind string, block wire.ContentBlock) ([]byte, error) {
	if e.open == kind && kind != "tool_use" {
		return nil, nil
	}
	out, err := e.closeOpenBlock()
	if err != nil {
		return nil, err
	}
	idx := e.nextIndex
	e.nextIndex++
	b, err := marshalFrame(wire.EventContentBlockStart, wire.StreamEvent{
		Type:         wire.EventContentBlockStart,
		Index:        idx,
		ContentBlock: &block,
	})
	if err != nil {
		return nil, err
	}
	e.open = kind
	e.openIndex = idx
	return append(out, b...), nil
}

func (e *Encoder) closeOpenBlock() ([]byte, error) {
	if e.open == "" {
		return nil, nil
	}
	b, err := marshalFrame(wire.EventContentBlockStop, wire.StreamEvent{
		Type:  wire.EventContentBlockStop,
		Index: e.openIndex,
	})
	if err != nil {
		return nil, err
	}
	e.open = ""
	e.openCallID = ""
	return b, nil
}

func marshalFrame(event string, payload wire.StreamEvent) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(event)+16)
	out = append(out, "event: "...)
	out = append(out, event...)
	out = append(out, "\ndata: "...)
	out = append(out, body...)
	out = append(out, "\n\n"...)
	return out, nil
}

func usageToWire(u *domain.Usage) *wire.Usage {
	if u == nil || u.Empty() {
		return nil
	}
	return &wire.Usage{
		InputTokens:          u.PromptTokens,
		OutputTokens:         u.CompletionTokens,
		CacheReadInputTokens: u.CachedTokens,
	}
}

func stopToWire(r domain.FinishReason) string {
	switch r {
	case domain.FinishLength:
		return "max_tokens"
	case domain.FinishToolCalls:
		return "tool_use"
	case domain.FinishContentFilter:
		return "refusal"
	default:
		return "end_turn"
	}
}
