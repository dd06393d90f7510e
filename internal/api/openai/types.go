// Package openai defines the OpenAI wire envelopes: the Chat Completions
// request/response/chunk shapes and the item-based Responses API stream
// events. These are exact wire types; translation to and from canonical
// shapes lives in the codec packages.
package openai

import (
	"encoding/json"

	"github.com/polywire/polywire/internal/domain"
)

// DoneSentinel terminates a Chat Completions SSE stream. It is a literal
// data payload, not JSON.
const DoneSentinel = "[DONE]"

// ChatCompletionRequest is the Chat Completions request body.
type ChatCompletionRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float32        `json:"temperature,omitempty"`
	TopP          *float32        `json:"top_p,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// StreamOptions tunes streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Message is one chat message on the wire.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Tool declares one callable function.
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionTool `json:"function"`
}

// FunctionTool is the function signature inside a Tool.
type FunctionTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ToolCall is a completed tool invocation in a final message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the invoked name and complete JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is the OpenAI token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// PromptTokensDetails breaks down prompt accounting.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// CompletionTokensDetails breaks down completion accounting.
type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// ToCanonical converts wire usage to the canonical pointer form. Zero detail
// blocks stay unreported rather than reading as zero counts.
func (u *Usage) ToCanonical() domain.Usage {
	out := domain.Usage{
		PromptTokens:     domain.Int(u.PromptTokens),
		CompletionTokens: domain.Int(u.CompletionTokens),
		TotalTokens:      domain.Int(u.TotalTokens),
	}
	if u.PromptTokensDetails != nil {
		out.CachedTokens = domain.Int(u.PromptTokensDetails.CachedTokens)
	}
	if u.CompletionTokensDetails != nil {
		out.ReasoningTokens = domain.Int(u.CompletionTokensDetails.ReasoningTokens)
	}
	return out
}

// ChatCompletionChunk is one streaming SSE frame payload.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice is one choice delta in a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta carries the incremental content of a chunk.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
}

// ToolCallChunk is a partial tool call. ID and the function name arrive on
// the first fragment; later fragments carry argument bytes under the same
// positional index.
type ToolCallChunk struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function *FunctionCallChunk `json:"function,omitempty"`
}

// FunctionCallChunk is the partial function payload of a ToolCallChunk.
type FunctionCallChunk struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Responses API stream envelope. Every frame is one JSON object whose type
// field names the event; the remaining fields are populated per type.

// Responses API event type tags.
const (
	ResponseCreated       = "response.created"
	ResponseOutputItemAdd = "response.output_item.added"
	ResponseTextDelta     = "response.output_text.delta"
	ResponseReasoningDelta = "response.reasoning_summary_text.delta"
	ResponseFuncArgsDelta = "response.function_call_arguments.delta"
	ResponseOutputItemDone = "response.output_item.done"
	ResponseCompleted     = "response.completed"
	ResponseFailed        = "response.failed"
	ResponseErrorEvent    = "error"
)

// ResponsesEvent is the decoded Responses API frame.
type ResponsesEvent struct {
	Type string `json:"type"`

	// response.created / response.completed / response.failed
	Response *ResponsesResponse `json:"response,omitempty"`

	// response.output_item.added / response.output_item.done
	Item *ResponsesItem `json:"item,omitempty"`

	// Delta events address an item by id and position.
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index"`
	Delta       string `json:"delta,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResponsesResponse is the response object carried by lifecycle events.
type ResponsesResponse struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	CreatedAt int64           `json:"created_at"`
	Status    string          `json:"status,omitempty"`
	Output    []ResponsesItem `json:"output,omitempty"`
	Usage     *ResponsesUsage `json:"usage,omitempty"`
}

// ResponsesItem is one output item: a message, function call, or reasoning
// block.
type ResponsesItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ResponsesUsage is the Responses API accounting block. Field names differ
// from Chat Completions.
type ResponsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details,omitempty"`
	OutputTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details,omitempty"`
}

// ToCanonical converts Responses usage to the canonical pointer form.
func (u *ResponsesUsage) ToCanonical() domain.Usage {
	out := domain.Usage{
		PromptTokens:     domain.Int(u.InputTokens),
		CompletionTokens: domain.Int(u.OutputTokens),
		TotalTokens:      domain.Int(u.TotalTokens),
	}
	if u.InputTokensDetails != nil {
		out.CachedTokens = domain.Int(u.InputTokensDetails.CachedTokens)
	}
	if u.OutputTokensDetails != nil {
		out.ReasoningTokens = domain.Int(u.OutputTokensDetails.ReasoningTokens)
	}
	return out
}

// ErrorResponse is the OpenAI error body.
type ErrorResponse struct {
	Error *WireError `json:"error"`
}

// WireError carries the vendor error details.
type WireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ExtractErrorMessage pulls the human-readable message out of an error body,
// returning "" when the body does not match the OpenAI error shape.
func ExtractErrorMessage(body []byte) string {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == nil {
		return ""
	}
	return er.Error.Message
}
