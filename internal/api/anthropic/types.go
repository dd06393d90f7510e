// Package anthropic defines the Anthropic Messages API wire envelopes: the
// request/response bodies and the typed stream event payloads. Translation
// to and from canonical shapes lives in the codec packages.
package anthropic

import (
	"encoding/json"

	"github.com/polywire/polywire/internal/domain"
)

// Stream event type tags. Anthropic names every SSE frame with an event:
// field matching the type field inside the JSON payload.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// MessagesRequest is the Messages API request body.
type MessagesRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	System      string            `json:"system,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature *float32          `json:"temperature,omitempty"`
	TopP        *float32          `json:"top_p,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	Tools       []Tool            `json:"tools,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one typed block inside a message or response.
type ContentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "thinking"
	Thinking string `json:"thinking,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Tool declares one callable tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

// MessagesResponse is the non-streaming response body.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
}

// Usage is the Anthropic accounting block. Fields are pointers because
// message_start and message_delta each report only part of the accounting;
// an absent field must not read as zero.
type Usage struct {
	InputTokens              *int `json:"input_tokens,omitempty"`
	OutputTokens             *int `json:"output_tokens,omitempty"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens,omitempty"`
}

// ToCanonical converts wire usage to the canonical pointer form.
func (u *Usage) ToCanonical() domain.Usage {
	return domain.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		CachedTokens:     u.CacheReadInputTokens,
	}
}

// StreamEvent is the decoded payload of one SSE frame. Type selects which
// fields are populated.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *MessagesResponse `json:"message,omitempty"`

	// content_block_start / content_block_delta / content_block_stop
	Index        int           `json:"index"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`

	// message_delta
	Usage *Usage `json:"usage,omitempty"`

	// error
	Error *WireError `json:"error,omitempty"`
}

// Delta is the incremental payload of content_block_delta and message_delta
// frames. Its own type field distinguishes text, thinking, and tool-input
// fragments from the message-level stop delta.
type Delta struct {
	Type string `json:"type"`

	// text_delta
	Text string `json:"text,omitempty"`

	// thinking_delta
	Thinking string `json:"thinking,omitempty"`

	// input_json_delta, fragment of the tool_use input JSON
	PartialJSON string `json:"partial_json,omitempty"`

	// message_delta
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// ErrorResponse is the Anthropic error body.
type ErrorResponse struct {
	Type  string     `json:"type"`
	Error *WireError `json:"error"`
}

// WireError carries the vendor error details.
type WireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ExtractErrorMessage pulls the human-readable message out of an error body,
// returning "" when the body does not match the Anthropic error shape.
func ExtractErrorMessage(body []byte) string {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == nil {
		return ""
	}
	return er.Error.Message
}
