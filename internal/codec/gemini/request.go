package gemini

import (
	"encoding/json"
	"fmt"

	wire "github.com/polywire/polywire/internal/api/gemini"
	"github.com/polywire/polywire/internal/domain"
)

// BuildRequest translates a canonical request into the generateContent body.
// System messages become systemInstruction; assistant turns map to the
// "model" role.
func BuildRequest(req *domain.CanonicalRequest) *wire.GenerateContentRequest {
	out := &wire.GenerateContentRequest{}

	if req.MaxTokens != 0 || req.Temperature != nil || req.TopP != nil {
		out.GenerationConfig = &wire.GenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if out.SystemInstruction == nil {
				out.SystemInstruction = &wire.Content{}
			}
			out.SystemInstruction.Parts = append(out.SystemInstruction.Parts,
				wire.Part{Text: m.Content})
		case "assistant":
			out.Contents = append(out.Contents, wire.Content{
				Role:  "model",
				Parts: []wire.Part{{Text: m.Content}},
			})
		case "tool":
			out.Contents = append(out.Contents, wire.Content{
				Role: "user",
				Parts: []wire.Part{{FunctionResponse: &wire.FunctionResponse{
					Name:     m.Name,
					Response: json.RawMessage(m.Content),
				}}},
			})
		default:
			out.Contents = append(out.Contents, wire.Content{
				Role:  "user",
				Parts: []wire.Part{{Text: m.Content}},
			})
		}
	}

	if len(req.Tools) > 0 {
		tool := wire.Tool{}
		for _, t := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, wire.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		out.Tools = []wire.Tool{tool}
	}
	return out
}

// ResponseToCanonical converts a non-streaming generateContent response.
func ResponseToCanonical(resp *wire.GenerateContentResponse) *domain.CanonicalResponse {
	out := &domain.CanonicalResponse{
		ID:       resp.ResponseID,
		Provider: providerName,
		Model:    resp.ModelVersion,
	}
	callSeq := 0
	for _, cand := range resp.Candidates {
		choice := domain.Choice{
			Index:        cand.Index,
			Message:      domain.Message{Role: "assistant"},
			FinishReason: MapFinishReason(cand.FinishReason),
		}
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					choice.ToolCalls = append(choice.ToolCalls, domain.ToolCall{
						ID:        fmt.Sprintf("call_%d", callSeq),
						Name:      part.FunctionCall.Name,
						Arguments: string(part.FunctionCall.Args),
					})
					callSeq++
				case part.Thought:
					choice.Thinking += part.Text
				default:
					choice.Message.Content += part.Text
				}
			}
		}
		if len(choice.ToolCalls) > 0 && choice.FinishReason == domain.FinishStop {
			choice.FinishReason = domain.FinishToolCalls
		}
		out.Choices = append(out.Choices, choice)
	}
	if resp.UsageMetadata != nil {
		out.Usage = resp.UsageMetadata.ToCanonical()
	}
	return out
}
