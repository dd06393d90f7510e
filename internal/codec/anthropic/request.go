package anthropic

import (
	wire "github.com/polywire/polywire/internal/api/anthropic"
	"github.com/polywire/polywire/internal/domain"
)

// defaultMaxTokens applies when the caller sets no limit; the Messages API
// requires max_tokens.
const defaultMaxTokens = 4096

// BuildRequest translates a canonical request into the Messages API body.
// System messages become the top-level system field; tool-result messages
// become tool_result content blocks on a user turn.
func BuildRequest(req *domain.CanonicalRequest) *wire.MessagesRequest {
	out := &wire.MessagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Metadata:    req.Metadata,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if out.System != "" {
				out.System += "\n"
			}
			out.System += m.Content
		case "tool":
			out.Messages = append(out.Messages, wire.Message{
				Role: "user",
				Content: []wire.ContentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		default:
			out.Messages = append(out.Messages, wire.Message{
				Role:    m.Role,
				Content: []wire.ContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wire.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return out
}

// ResponseToCanonical converts a non-streaming Messages response.
func ResponseToCanonical(resp *wire.MessagesResponse) *domain.CanonicalResponse {
	choice := domain.Choice{
		Message:      domain.Message{Role: "assistant"},
		FinishReason: MapStopReason(resp.StopReason),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			choice.Message.Content += block.Text
		case "thinking":
			choice.Thinking += block.Thinking
		case "tool_use":
			choice.ToolCalls = append(choice.ToolCalls, domain.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	out := &domain.CanonicalResponse{
		ID:       resp.ID,
		Provider: providerName,
		Model:    resp.Model,
		Choices:  []domain.Choice{choice},
	}
	if resp.Usage != nil {
		out.Usage = resp.Usage.ToCanonical()
		out.Usage.FillTotal()
	}
	return out
}
