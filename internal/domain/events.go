// Package domain provides the canonical types shared by every vendor codec:
// the stream event algebra, request/response shapes, usage accounting, and
// the error taxonomy. It has no dependencies on any vendor package.
package domain

import "time"

// EventType identifies a canonical stream event variant. The set is closed:
// decoders produce only these and encoders consume only these.
type EventType string

const (
	// EventStreamStart carries response metadata, emitted at most once per request.
	EventStreamStart EventType = "stream_start"

	// EventContentDelta carries an incremental fragment of answer text.
	EventContentDelta EventType = "content_delta"

	// EventThinkingDelta carries an incremental fragment of reasoning text.
	// Reasoning is a distinct channel from answer text.
	EventThinkingDelta EventType = "thinking_delta"

	// EventToolCallDelta carries incremental tool-invocation data.
	EventToolCallDelta EventType = "tool_call_delta"

	// EventUsage carries token accounting. A request may emit zero or more,
	// one per step for multi-step vendors.
	EventUsage EventType = "usage"

	// EventStreamEnd is terminal and carries the fully materialized response.
	EventStreamEnd EventType = "stream_end"

	// EventError is terminal and carries a decoder- or transport-detected failure.
	EventError EventType = "error"

	// EventCustom is a vendor/feature-specific envelope (citations, sources,
	// approvals) with a namespaced type tag and a free-form payload.
	EventCustom EventType = "custom"
)

// StreamMeta is the response metadata delivered with EventStreamStart.
type StreamMeta struct {
	ID        string    `json:"id,omitempty"`
	Model     string    `json:"model,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// ToolCallDelta is an incremental fragment of one tool invocation. Name is
// present only on the first fragment of a call; ArgumentsFragment holds the
// new bytes only, never the accumulated buffer. Fragments sharing a CallID
// concatenate, in arrival order, into the call's complete JSON arguments.
type ToolCallDelta struct {
	CallID            string `json:"call_id"`
	Name              string `json:"name,omitempty"`
	ArgumentsFragment string `json:"arguments_fragment,omitempty"`
	ChoiceIndex       int    `json:"choice_index,omitempty"`
}

// StreamEvent is one canonical event. Type selects the variant; the other
// fields are meaningful only for their variant and zero otherwise.
type StreamEvent struct {
	Type EventType `json:"type"`

	// EventStreamStart
	Meta *StreamMeta `json:"meta,omitempty"`

	// EventContentDelta / EventThinkingDelta
	Text        string `json:"text,omitempty"`
	ChoiceIndex int    `json:"choice_index,omitempty"`

	// EventToolCallDelta
	ToolCall *ToolCallDelta `json:"tool_call,omitempty"`

	// EventUsage
	Usage *Usage `json:"usage,omitempty"`

	// EventStreamEnd
	Response *CanonicalResponse `json:"response,omitempty"`

	// EventError
	Err *APIError `json:"error,omitempty"`

	// EventCustom. CustomType is namespaced "vendor:name".
	CustomType string         `json:"custom_type,omitempty"`
	CustomData map[string]any `json:"custom_data,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventStreamEnd || e.Type == EventError
}

// StreamStart builds an EventStreamStart event.
func StreamStart(meta StreamMeta) StreamEvent {
	return StreamEvent{Type: EventStreamStart, Meta: &meta}
}

// ContentDelta builds an EventContentDelta event.
func ContentDelta(text string, choice int) StreamEvent {
	return StreamEvent{Type: EventContentDelta, Text: text, ChoiceIndex: choice}
}

// ThinkingDelta builds an EventThinkingDelta event.
func ThinkingDelta(text string) StreamEvent {
	return StreamEvent{Type: EventThinkingDelta, Text: text}
}

// ToolDelta builds an EventToolCallDelta event.
func ToolDelta(delta ToolCallDelta) StreamEvent {
	return StreamEvent{Type: EventToolCallDelta, ToolCall: &delta}
}

// UsageUpdate builds an EventUsage event.
func UsageUpdate(u Usage) StreamEvent {
	return StreamEvent{Type: EventUsage, Usage: &u}
}

// StreamEnd builds the terminal EventStreamEnd event.
func StreamEnd(resp *CanonicalResponse) StreamEvent {
	return StreamEvent{Type: EventStreamEnd, Response: resp}
}

// ErrorEvent builds the terminal EventError event.
func ErrorEvent(err *APIError) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}

// Custom builds an EventCustom event.
func Custom(eventType string, data map[string]any) StreamEvent {
	return StreamEvent{Type: EventCustom, CustomType: eventType, CustomData: data}
}

// FinishReason is the canonical small set describing why generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
	// FinishUnknown is the fallback for vendor strings we do not recognize.
	// Unrecognized values map here rather than failing, for forward
	// compatibility with new vendor stop reasons.
	FinishUnknown FinishReason = "unknown"
)
