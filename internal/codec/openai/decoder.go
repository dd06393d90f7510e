// Package openai translates between the canonical event algebra and the
// OpenAI wire protocols: the Chat Completions SSE stream, the item-based
// Responses API stream, and the Chat Completions chunk grammar for encoding.
package openai

import (
	"encoding/json"
	"fmt"

	wire "github.com/polywire/polywire/internal/api/openai"
	"github.com/polywire/polywire/internal/codec"
	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/sse"
)

const providerName = "openai"

// MapFinishReason maps an OpenAI finish_reason to the canonical set.
func MapFinishReason(s string) domain.FinishReason {
	switch s {
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "tool_calls", "function_call":
		return domain.FinishToolCalls
	case "content_filter":
		return domain.FinishContentFilter
	default:
		return domain.FinishUnknown
	}
}

// ChatDecoder decodes a Chat Completions SSE stream. The stream normally
// terminates with the [DONE] sentinel; when the connection closes without it,
// Flush synthesizes the terminal event from the last observed finish_reason.
type ChatDecoder struct {
	acc    *domain.Accumulator
	guards *codec.Guards
	tools  *codec.ToolCalls

	// toolIDs resolves positional tool indexes to call ids; later fragments
	// omit the id.
	toolIDs map[string]string

	finishSeen bool
	done       bool
	poisoned   bool
}

// NewChatDecoder returns a decoder for one request.
func NewChatDecoder() *ChatDecoder {
	return &ChatDecoder{
		acc:     domain.NewAccumulator(),
		guards:  codec.NewGuards(),
		tools:   codec.NewToolCalls(),
		toolIDs: make(map[string]string),
	}
}

// Decode converts one SSE frame into canonical events.
func (d *ChatDecoder) Decode(frame sse.Frame) ([]domain.StreamEvent, error) {
	if d.poisoned {
		return nil, domain.ErrDecode(providerName, "decode aborted by earlier malformed frame")
	}
	if d.done {
		return nil, nil
	}

	if string(frame.Data) == wire.DoneSentinel {
		d.done = true
		return []domain.StreamEvent{d.end()}, nil
	}

	var chunk wire.ChatCompletionChunk
	if err := json.Unmarshal(frame.Data, &chunk); err != nil {
		d.poisoned = true
		return nil, domain.ErrDecode(providerName, fmt.Sprintf("malformed chunk: %v", err))
	}

	var events []domain.StreamEvent
	emit := func(ev domain.StreamEvent) {
		d.acc.Add(ev)
		events = append(events, ev)
	}

	if d.guards.MarkOnce("stream_start") {
		emit(domain.StreamStart(domain.StreamMeta{
			ID:       chunk.ID,
			Model:    chunk.Model,
			Provider: providerName,
		}))
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			emit(domain.ContentDelta(choice.Delta.Content, choice.Index))
		}
		for _, tc := range choice.Delta.ToolCalls {
			key := fmt.Sprintf("%d/%d", choice.Index, tc.Index)
			if tc.ID != "" {
				d.toolIDs[key] = tc.ID
			}
			id := d.toolIDs[key]
			if id == "" {
				d.poisoned = true
				return nil, domain.ErrDecode(providerName,
					fmt.Sprintf("tool fragment at index %s before any call id", key))
			}
			delta := domain.ToolCallDelta{CallID: id, ChoiceIndex: choice.Index}
			if tc.Function != nil {
				delta.Name = tc.Function.Name
				delta.ArgumentsFragment = tc.Function.Arguments
			}
			d.tools.Open(id, delta.Name)
			emit(domain.ToolDelta(delta))
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			d.finishSeen = true
			d.acc.SetFinish(MapFinishReason(*choice.FinishReason))
		}
	}

	if chunk.Usage != nil {
		emit(domain.UsageUpdate(chunk.Usage.ToCanonical()))
	}

	return events, nil
}

// Flush terminates a stream that closed without the [DONE] sentinel. The
// terminal event is synthesized only when a finish_reason was observed;
// a close before that is a truncated stream and produces nothing.
func (d *ChatDecoder) Flush() []domain.StreamEvent {
	if d.done || d.poisoned || !d.finishSeen {
		return nil
	}
	d.done = true
	return []domain.StreamEvent{d.end()}
}

func (d *ChatDecoder) end() domain.StreamEvent {
	return domain.StreamEnd(d.acc.Response())
}

// ResponsesDecoder decodes the item-based Responses API stream. Items are
// announced by position and addressed by id afterwards; lifecycle events
// repeat item metadata, so emission is guarded to fire once per item.
type ResponsesDecoder struct {
	acc    *domain.Accumulator
	guards *codec.Guards
	tools  *codec.ToolCalls
	items  *codec.ItemIndex

	// callIDs maps item ids to their function call_id.
	callIDs map[string]string

	toolsSeen bool
	done      bool
	poisoned  bool
}

// NewResponsesDecoder returns a decoder for one request.
func NewResponsesDecoder() *ResponsesDecoder {
	return &ResponsesDecoder{
		acc:     domain.NewAccumulator(),
		guards:  codec.NewGuards(),
		tools:   codec.NewToolCalls(),
		items:   codec.NewItemIndex(),
		callIDs: make(map[string]string),
	}
}

// Decode converts one SSE frame into canonical events.
func (d *ResponsesDecoder) Decode(frame sse.Frame) ([]domain.StreamEvent, error) {
	if d.poisoned {
		return nil, domain.ErrDecode(providerName, "decode aborted by earlier malformed frame")
	}
	if d.done {
		return nil, nil
	}

	var ev wire.ResponsesEvent
	if err := json.Unmarshal(frame.Data, &ev); err != nil {
		d.poisoned = true
		return nil, domain.ErrDecode(providerName, fmt.Sprintf("malformed event: %v", err))
	}

	var events []domain.StreamEvent
	emit := func(e domain.StreamEvent) {
		d.acc.Add(e)
		events = append(events, e)
	}

	switch ev.Type {
	case wire.ResponseCreated:
		if ev.Response != nil && d.guards.MarkOnce("stream_start") {
			meta := domain.StreamMeta{
				ID:       ev.Response.ID,
				Model:    ev.Response.Model,
				Provider: providerName,
			}
			emit(domain.StreamStart(meta))
		}

	case wire.ResponseOutputItemAdd:
		if ev.Item == nil {
			break
		}
		d.items.Bind(ev.OutputIndex, ev.Item.ID)
		if ev.Item.Type == "function_call" && d.guards.MarkOnce("item_added:"+ev.Item.ID) {
			d.toolsSeen = true
			callID := ev.Item.CallID
			if callID == "" {
				callID = ev.Item.ID
			}
			d.callIDs[ev.Item.ID] = callID
			d.tools.Open(callID, ev.Item.Name)
			emit(domain.ToolDelta(domain.ToolCallDelta{
				CallID: callID,
				Name:   ev.Item.Name,
			}))
		}

	case wire.ResponseTextDelta:
		if ev.Delta != "" {
			emit(domain.ContentDelta(ev.Delta, 0))
		}

	case wire.ResponseReasoningDelta:
		if ev.Delta != "" {
			emit(domain.ThinkingDelta(ev.Delta))
		}

	case wire.ResponseFuncArgsDelta:
		itemID := ev.ItemID
		if itemID == "" {
			bound, ok := d.items.Lookup(ev.OutputIndex)
			if !ok {
				d.poisoned = true
				return nil, domain.ErrDecode(providerName,
					fmt.Sprintf("arguments delta for unannounced output index %d", ev.OutputIndex))
			}
			itemID = bound
		}
		callID, ok := d.callIDs[itemID]
		if !ok {
			d.poisoned = true
			return nil, domain.ErrDecode(providerName,
				fmt.Sprintf("arguments delta for unknown item %s", itemID))
		}
		if st := d.tools.Get(callID); st != nil {
			st.Args.WriteString(ev.Delta)
		}
		emit(domain.ToolDelta(domain.ToolCallDelta{
			CallID:            callID,
			ArgumentsFragment: ev.Delta,
		}))

	case wire.ResponseOutputItemDone:
		if ev.Item != nil && d.guards.MarkOnce("item_done:"+ev.Item.ID) {
			if callID, ok := d.callIDs[ev.Item.ID]; ok {
				d.tools.Close(callID)
			}
		}

	case wire.ResponseCompleted:
		d.done = true
		if ev.Response != nil && ev.Response.Usage != nil {
			emit(domain.UsageUpdate(ev.Response.Usage.ToCanonical()))
		}
		if d.toolsSeen {
			d.acc.SetFinish(domain.FinishToolCalls)
		} else {
			d.acc.SetFinish(domain.FinishStop)
		}
		events = append(events, domain.StreamEnd(d.acc.Response()))

	case wire.ResponseFailed:
		d.done = true
		d.acc.SetFinish(domain.FinishError)
		events = append(events, domain.ErrorEvent(
			&domain.APIError{Kind: domain.ErrKindProvider, Provider: providerName, Message: "response failed"}))

	case wire.ResponseErrorEvent:
		d.done = true
		events = append(events, domain.ErrorEvent(
			&domain.APIError{Kind: domain.ErrKindProvider, Provider: providerName, Message: ev.Message}))

	default:
		// Unknown lifecycle events are ignored for forward compatibility.
	}

	return events, nil
}

// Flush produces nothing: the Responses stream is explicitly terminated by a
// response.completed or error event.
func (d *ResponsesDecoder) Flush() []domain.StreamEvent { return nil }
