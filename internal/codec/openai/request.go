package openai

import (
	wire "github.com/polywire/polywire/internal/api/openai"
	"github.com/polywire/polywire/internal/domain"
)

// BuildChatRequest translates a canonical request into the Chat Completions
// body. Streaming requests ask for usage on the final chunk.
func BuildChatRequest(req *domain.CanonicalRequest) *wire.ChatCompletionRequest {
	out := &wire.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Metadata:    req.Metadata,
	}
	if req.Stream {
		out.StreamOptions = &wire.StreamOptions{IncludeUsage: true}
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, wire.Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wire.Tool{
			Type: "function",
			Function: wire.FunctionTool{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

// ChatRequestToCanonical parses an incoming Chat Completions body into the
// canonical request. This is the gateway-facing direction: the wire shape
// arrives from a caller speaking the OpenAI surface.
func ChatRequestToCanonical(req *wire.ChatCompletionRequest) *domain.CanonicalRequest {
	out := &domain.CanonicalRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Metadata:    req.Metadata,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, domain.Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, domain.ToolDefinition{
			Type: "function",
			Function: domain.FunctionDef{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

// ChatResponseFromCanonical renders a canonical response as a non-streaming
// Chat Completions body.
func ChatResponseFromCanonical(resp *domain.CanonicalResponse) *wire.ChatCompletionResponse {
	out := &wire.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
	}
	if !resp.Usage.Empty() {
		out.Usage = usageToWire(&resp.Usage)
	}
	for _, c := range resp.Choices {
		choice := wire.Choice{
			Index: c.Index,
			Message: wire.Message{
				Role:    c.Message.Role,
				Content: c.Message.Content,
			},
			FinishReason: finishToWire(c.FinishReason),
		}
		if choice.Message.Role == "" {
			choice.Message.Role = "assistant"
		}
		for _, tc := range c.ToolCalls {
			choice.Message.ToolCalls = append(choice.Message.ToolCalls, wire.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wire.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Choices = append(out.Choices, choice)
	}
	return out
}

// ChatResponseToCanonical converts a non-streaming Chat Completions response.
func ChatResponseToCanonical(resp *wire.ChatCompletionResponse) *domain.CanonicalResponse {
	out := &domain.CanonicalResponse{
		ID:       resp.ID,
		Provider: providerName,
		Model:    resp.Model,
		Created:  resp.Created,
	}
	for _, c := range resp.Choices {
		choice := domain.Choice{
			Index: c.Index,
			Message: domain.Message{
				Role:    c.Message.Role,
				Content: c.Message.Content,
			},
			FinishReason: MapFinishReason(c.FinishReason),
		}
		for _, tc := range c.Message.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, domain.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out.Choices = append(out.Choices, choice)
	}
	if resp.Usage != nil {
		out.Usage = resp.Usage.ToCanonical()
	}
	return out
}
