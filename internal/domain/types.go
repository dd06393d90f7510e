package domain

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
	// ToolCallID links a tool-result message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDefinition represents a tool the model can call.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes the function signature.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"` // JSON Schema
}

// CanonicalRequest is the vendor-neutral superset of supported request features.
type CanonicalRequest struct {
	Provider    string            `json:"provider,omitempty"`
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Stream      bool              `json:"stream"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float32          `json:"temperature,omitempty"`
	TopP        *float32          `json:"top_p,omitempty"`
	Tools       []ToolDefinition  `json:"tools,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// Headers are per-request header overrides merged over the vendor base
	// headers by the pipeline. Caller wins on conflict.
	Headers map[string]string `json:"-"`
}

// Clone returns a shallow copy with its own Messages and Tools slices, so
// middleware can transform a request without mutating the caller's value.
func (r *CanonicalRequest) Clone() *CanonicalRequest {
	out := *r
	out.Messages = append([]Message(nil), r.Messages...)
	out.Tools = append([]ToolDefinition(nil), r.Tools...)
	return &out
}

// ToolCall is a fully assembled tool invocation in a final response.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // complete JSON string
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	Thinking     string       `json:"thinking,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Warning annotates a response with a provider- or gateway-detected caveat
// (unsupported feature dropped, usage estimated locally, and so on).
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CanonicalResponse represents a complete response, either from a
// non-streaming call or materialized from a terminated event stream.
type CanonicalResponse struct {
	ID       string    `json:"id"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model"`
	Created  int64     `json:"created,omitempty"`
	Choices  []Choice  `json:"choices"`
	Usage    Usage     `json:"usage"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Text returns the answer text of the first choice.
func (r *CanonicalResponse) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
