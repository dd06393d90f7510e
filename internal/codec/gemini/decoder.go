// Package gemini decodes the Gemini streaming generateContent protocol. The
// transport is newline-delimited JSON; every line is a complete response
// object carrying incremental candidate parts. Gemini has no terminal frame:
// the stream ends when the connection closes, so Flush materializes the
// terminal event.
package gemini

import (
	"encoding/json"
	"fmt"

	wire "github.com/polywire/polywire/internal/api/gemini"
	"github.com/polywire/polywire/internal/codec"
	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/sse"
)

const providerName = "gemini"

// MapFinishReason maps a Gemini finishReason to the canonical set.
func MapFinishReason(s string) domain.FinishReason {
	switch s {
	case "STOP":
		return domain.FinishStop
	case "MAX_TOKENS":
		return domain.FinishLength
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return domain.FinishContentFilter
	case "MALFORMED_FUNCTION_CALL":
		return domain.FinishError
	default:
		return domain.FinishUnknown
	}
}

// Decoder decodes a Gemini NDJSON stream.
type Decoder struct {
	acc    *domain.Accumulator
	guards *codec.Guards

	// Gemini function calls carry no id; synthesized ids keep the canonical
	// fragment contract addressable.
	nextCall int

	finishSeen bool
	toolsSeen  bool
	done       bool
	poisoned   bool
}

// NewDecoder returns a decoder for one request.
func NewDecoder() *Decoder {
	return &Decoder{
		acc:    domain.NewAccumulator(),
		guards: codec.NewGuards(),
	}
}

// Decode converts one NDJSON line into canonical events.
func (d *Decoder) Decode(frame sse.Frame) ([]domain.StreamEvent, error) {
	if d.poisoned {
		return nil, domain.ErrDecode(providerName, "decode aborted by earlier malformed line")
	}
	if d.done {
		return nil, nil
	}

	var resp wire.GenerateContentResponse
	if err := json.Unmarshal(frame.Data, &resp); err != nil {
		d.poisoned = true
		return nil, domain.ErrDecode(providerName, fmt.Sprintf("malformed line: %v", err))
	}

	var events []domain.StreamEvent
	emit := func(e domain.StreamEvent) {
		d.acc.Add(e)
		events = append(events, e)
	}

	if resp.Error != nil {
		d.done = true
		return []domain.StreamEvent{domain.ErrorEvent(&domain.APIError{
			Kind:       domain.ErrKindProvider,
			Provider:   providerName,
			StatusCode: resp.Error.Code,
			Message:    resp.Error.Message,
		})}, nil
	}

	if d.guards.MarkOnce("stream_start") {
		emit(domain.StreamStart(domain.StreamMeta{
			ID:       resp.ResponseID,
			Model:    resp.ModelVersion,
			Provider: providerName,
		}))
	}

	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					// Complete call in one part: name and full arguments.
					d.toolsSeen = true
					id := fmt.Sprintf("call_%d", d.nextCall)
					d.nextCall++
					emit(domain.ToolDelta(domain.ToolCallDelta{
						CallID:            id,
						Name:              part.FunctionCall.Name,
						ArgumentsFragment: string(part.FunctionCall.Args),
						ChoiceIndex:       cand.Index,
					}))
				case part.Thought && part.Text != "":
					emit(domain.ThinkingDelta(part.Text))
				case part.Text != "":
					emit(domain.ContentDelta(part.Text, cand.Index))
				}
			}
		}
		if cand.FinishReason != "" {
			d.finishSeen = true
			reason := MapFinishReason(cand.FinishReason)
			if reason == domain.FinishStop && d.toolsSeen {
				reason = domain.FinishToolCalls
			}
			d.acc.SetFinish(reason)
		}
	}

	if resp.UsageMetadata != nil {
		emit(domain.UsageUpdate(resp.UsageMetadata.ToCanonical()))
	}

	return events, nil
}

// Flush terminates the stream. Gemini signals completion only by closing the
// connection, so the terminal event is always synthesized here; a close
// before any finishReason is a truncated stream and produces nothing.
func (d *Decoder) Flush() []domain.StreamEvent {
	if d.done || d.poisoned || !d.finishSeen {
		return nil
	}
	d.done = true
	return []domain.StreamEvent{domain.StreamEnd(d.acc.Response())}
}
