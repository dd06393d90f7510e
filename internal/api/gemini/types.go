// Package gemini defines the Gemini generateContent wire envelopes. Gemini
// streams newline-delimited JSON rather than SSE; each line is one
// GenerateContentResponse.
package gemini

import (
	"encoding/json"

	"github.com/polywire/polywire/internal/domain"
)

// GenerateContentRequest is the generateContent request body.
type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	Tools            []Tool            `json:"tools,omitempty"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one conversation turn. Role is "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one typed fragment of a Content.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall is a model-issued tool invocation. Args arrive as a complete
// JSON object, never fragmented.
type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse is a caller-supplied tool result.
type FunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// Tool groups function declarations.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration describes one callable function.
type FunctionDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// GenerationConfig tunes sampling.
type GenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
}

// GenerateContentResponse is one response object; in streaming mode one
// arrives per NDJSON line.
type GenerateContentResponse struct {
	ResponseID    string         `json:"responseId,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	Candidates    []Candidate    `json:"candidates,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	Error         *WireError     `json:"error,omitempty"`
}

// Candidate is one generation alternative.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
	Index        int      `json:"index"`
}

// UsageMetadata is the Gemini accounting block.
type UsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount,omitempty"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount,omitempty"`
}

// ToCanonical converts wire usage to the canonical pointer form.
func (u *UsageMetadata) ToCanonical() domain.Usage {
	out := domain.Usage{
		PromptTokens:     domain.Int(u.PromptTokenCount),
		CompletionTokens: domain.Int(u.CandidatesTokenCount),
		TotalTokens:      domain.Int(u.TotalTokenCount),
	}
	if u.CachedContentTokenCount > 0 {
		out.CachedTokens = domain.Int(u.CachedContentTokenCount)
	}
	if u.ThoughtsTokenCount > 0 {
		out.ReasoningTokens = domain.Int(u.ThoughtsTokenCount)
	}
	return out
}

// WireError is the Gemini error payload, embedded in the response body.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// ExtractErrorMessage pulls the human-readable message out of an error body,
// returning "" when the body does not match the Gemini error shape.
func ExtractErrorMessage(body []byte) string {
	var er struct {
		Error *WireError `json:"error"`
	}
	if err := json.Unmarshal(body, &er); err != nil || er.Error == nil {
		return ""
	}
	return er.Error.Message
}
