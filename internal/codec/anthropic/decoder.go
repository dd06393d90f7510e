// Package anthropic translates between the canonical event algebra and the
// Anthropic Messages stream protocol. Anthropic frames are typed SSE events
// addressing indexed content blocks; the decoder tracks block types by index
// and the encoder manages block lifecycles on the way out.
package anthropic

import (
	"encoding/json"
	"fmt"

	wire "github.com/polywire/polywire/internal/api/anthropic"
	"github.com/polywire/polywire/internal/codec"
	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/sse"
)

const providerName = "anthropic"

// MapStopReason maps an Anthropic stop_reason to the canonical set.
func MapStopReason(s string) domain.FinishReason {
	switch s {
	case "end_turn", "stop_sequence":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishLength
	case "tool_use":
		return domain.FinishToolCalls
	case "refusal":
		return domain.FinishContentFilter
	default:
		return domain.FinishUnknown
	}
}

// blockState remembers what kind of content lives at a block index, so
// deltas can be routed without re-reading the start frame.
type blockState struct {
	kind   string
	callID string
}

// Decoder decodes an Anthropic Messages SSE stream.
type Decoder struct {
	acc    *domain.Accumulator
	guards *codec.Guards
	tools  *codec.ToolCalls

	blocks map[int]blockState

	done     bool
	poisoned bool
}

// NewDecoder returns a decoder for one request.
func NewDecoder() *Decoder {
	return &Decoder{
		acc:    domain.NewAccumulator(),
		guards: codec.NewGuards(),
		tools:  codec.NewToolCalls(),
		blocks: make(map[int]blockState),
	}
}

// Decode converts one SSE frame into canonical events.
func (d *Decoder) Decode(frame sse.Frame) ([]domain.StreamEvent, error) {
	if d.poisoned {
		return nil, domain.ErrDecode(providerName, "decode aborted by earlier malformed frame")
	}
	if d.done {
		return nil, nil
	}

	var ev wire.StreamEvent
	if err := json.Unmarshal(frame.Data, &ev); err != nil {
		d.poisoned = true
		return nil, domain.ErrDecode(providerName, fmt.Sprintf("malformed event: %v", err))
	}
	// The SSE event name and the payload type field carry the same tag; the
	// payload wins when both are present.
	kind := ev.Type
	if kind == "" {
		kind = frame.Event
	}

	var events []domain.StreamEvent
	emit := func(e domain.StreamEvent) {
		d.acc.Add(e)
		events = append(events, e)
	}

	switch kind {
	case wire.EventMessageStart:
		if ev.Message == nil {
			break
		}
		if d.guards.MarkOnce("stream_start") {
			emit(domain.StreamStart(domain.StreamMeta{
				ID:       ev.Message.ID,
				Model:    ev.Message.Model,
				Provider: providerName,
			}))
		}
		if ev.Message.Usage != nil {
			emit(domain.UsageUpdate(ev.Message.Usage.ToCanonical()))
		}

	case wire.EventContentBlockStart:
		if ev.ContentBlock == nil {
			break
		}
		st := blockState{kind: ev.ContentBlock.Type}
		if ev.ContentBlock.Type == "tool_use" {
			st.callID = ev.ContentBlock.ID
			d.tools.Open(st.callID, ev.ContentBlock.Name)
			emit(domain.ToolDelta(domain.ToolCallDelta{
				CallID: st.callID,
				Name:   ev.ContentBlock.Name,
			}))
		}
		d.blocks[ev.Index] = st

	case wire.EventContentBlockDelta:
		if ev.Delta == nil {
			break
		}
		switch ev.Delta.Type {
		case "text_delta":
			emit(domain.ContentDelta(ev.Delta.Text, 0))
		case "thinking_delta":
			emit(domain.ThinkingDelta(ev.Delta.Thinking))
		case "input_json_delta":
			block, ok := d.blocks[ev.Index]
			if !ok || block.kind != "tool_use" {
				d.poisoned = true
				return nil, domain.ErrDecode(providerName,
					fmt.Sprintf("input_json_delta for non-tool block %d", ev.Index))
			}
			if st := d.tools.Get(block.callID); st != nil {
				st.Args.WriteString(ev.Delta.PartialJSON)
			}
			emit(domain.ToolDelta(domain.ToolCallDelta{
				CallID:            block.callID,
				ArgumentsFragment: ev.Delta.PartialJSON,
			}))
		}

	case wire.EventContentBlockStop:
		if block, ok := d.blocks[ev.Index]; ok && block.kind == "tool_use" {
			d.tools.Close(block.callID)
		}

	case wire.EventMessageDelta:
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			d.acc.SetFinish(MapStopReason(ev.Delta.StopReason))
		}
		if ev.Usage != nil {
			emit(domain.UsageUpdate(ev.Usage.ToCanonical()))
		}

	case wire.EventMessageStop:
		d.done = true
		events = append(events, domain.StreamEnd(d.acc.Response()))

	case wire.EventPing:
		// Heartbeat, nothing to emit.

	case wire.EventError:
		d.done = true
		msg := "stream error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		events = append(events, domain.ErrorEvent(
			&domain.APIError{Kind: domain.ErrKindProvider, Provider: providerName, Message: msg}))

	default:
		// Unknown event types are ignored for forward compatibility.
	}

	return events, nil
}

// Flush produces nothing: the Messages stream is explicitly terminated by
// message_stop or an error frame.
func (d *Decoder) Flush() []domain.StreamEvent { return nil }
