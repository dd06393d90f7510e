package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	anthropicwire "github.com/polywire/polywire/internal/api/anthropic"
	geminiwire "github.com/polywire/polywire/internal/api/gemini"
	openaiwire "github.com/polywire/polywire/internal/api/openai"
	"github.com/polywire/polywire/internal/codec"
	anthropiccodec "github.com/polywire/polywire/internal/codec/anthropic"
	geminicodec "github.com/polywire/polywire/internal/codec/gemini"
	openaicodec "github.com/polywire/polywire/internal/codec/openai"
	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/sse"
)

// Vendor names of the closed registry.
const (
	VendorOpenAI          = "openai"
	VendorOpenAIResponses = "openai-responses"
	VendorAnthropic       = "anthropic"
	VendorGemini          = "gemini"
)

const anthropicVersion = "2023-06-01"

// frameReader yields wire frames; both the SSE and NDJSON readers satisfy it.
type frameReader interface {
	Next() (sse.Frame, error)
}

// vendorAdapter binds one vendor's endpoint, wire headers, codec, and error
// shape. The set is closed: adapters are constructed here, never registered
// at runtime.
type vendorAdapter interface {
	name() string
	defaultBaseURL() string
	// buildRequest assembles the full outgoing request: URL, JSON body, and
	// base headers. Per-request header overrides are merged by the caller.
	buildRequest(ctx context.Context, cfg vendorSettings, req *domain.CanonicalRequest) (*http.Request, error)
	newDecoder() codec.StreamDecoder
	newFrameReader(body io.Reader, opts ...sse.Option) frameReader
	parseResponse(body []byte) (*domain.CanonicalResponse, error)
	extractError(body []byte) string
}

type vendorSettings struct {
	apiKey  string
	baseURL string
}

func adapterFor(vendor string) (vendorAdapter, error) {
	switch vendor {
	case VendorOpenAI:
		return openaiAdapter{}, nil
	case VendorOpenAIResponses:
		return openaiResponsesAdapter{}, nil
	case VendorAnthropic:
		return anthropicAdapter{}, nil
	case VendorGemini:
		return geminiAdapter{}, nil
	default:
		return nil, domain.ErrValidation(fmt.Sprintf("unknown vendor %q", vendor))
	}
}

func postJSON(ctx context.Context, url string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

type openaiAdapter struct{}

func (openaiAdapter) name() string           { return VendorOpenAI }
func (openaiAdapter) defaultBaseURL() string { return "https://api.openai.com/v1" }

func (a openaiAdapter) buildRequest(ctx context.Context, cfg vendorSettings, req *domain.CanonicalRequest) (*http.Request, error) {
	out, err := postJSON(ctx, cfg.baseURL+"/chat/completions", openaicodec.BuildChatRequest(req))
	if err != nil {
		return nil, err
	}
	out.Header.Set("Authorization", "Bearer "+cfg.apiKey)
	return out, nil
}

func (openaiAdapter) newDecoder() codec.StreamDecoder { return openaicodec.NewChatDecoder() }

func (openaiAdapter) newFrameReader(body io.Reader, opts ...sse.Option) frameReader {
	return sse.NewReader(body, opts...)
}

func (openaiAdapter) parseResponse(body []byte) (*domain.CanonicalResponse, error) {
	var resp openaiwire.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrDecode(VendorOpenAI, fmt.Sprintf("malformed response: %v", err))
	}
	return openaicodec.ChatResponseToCanonical(&resp), nil
}

func (openaiAdapter) extractError(body []byte) string {
	return openaiwire.ExtractErrorMessage(body)
}

type openaiResponsesAdapter struct{}

func (openaiResponsesAdapter) name() string           { return VendorOpenAIResponses }
func (openaiResponsesAdapter) defaultBaseURL() string { return "https://api.openai.com/v1" }

func (a openaiResponsesAdapter) buildRequest(ctx context.Context, cfg vendorSettings, req *domain.CanonicalRequest) (*http.Request, error) {
	body := map[string]any{
		"model":  req.Model,
		"input":  responsesInput(req.Messages),
		"stream": req.Stream,
	}
	if req.MaxTokens > 0 {
		body["max_output_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	out, err := postJSON(ctx, cfg.baseURL+"/responses", body)
	if err != nil {
		return nil, err
	}
	out.Header.Set("Authorization", "Bearer "+cfg.apiKey)
	return out, nil
}

// responsesInput flattens canonical messages into the Responses input list.
func responsesInput(messages []domain.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]any{"role": m.Role, "content": m.Content})
	}
	return out
}

func (openaiResponsesAdapter) newDecoder() codec.StreamDecoder {
	return openaicodec.NewResponsesDecoder()
}

func (openaiResponsesAdapter) newFrameReader(body io.Reader, opts ...sse.Option) frameReader {
	return sse.NewReader(body, opts...)
}

func (openaiResponsesAdapter) parseResponse(body []byte) (*domain.CanonicalResponse, error) {
	var resp openaiwire.ResponsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrDecode(VendorOpenAIResponses, fmt.Sprintf("malformed response: %v", err))
	}
	out := &domain.CanonicalResponse{
		ID:       resp.ID,
		Provider: VendorOpenAI,
		Model:    resp.Model,
		Created:  resp.CreatedAt,
	}
	choice := domain.Choice{Message: domain.Message{Role: "assistant"}, FinishReason: domain.FinishStop}
	for _, item := range resp.Output {
		switch item.Type {
		case "function_call":
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			choice.ToolCalls = append(choice.ToolCalls, domain.ToolCall{
				ID:        id,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
			choice.FinishReason = domain.FinishToolCalls
		}
	}
	out.Choices = []domain.Choice{choice}
	if resp.Usage != nil {
		out.Usage = resp.Usage.ToCanonical()
	}
	return out, nil
}

func (openaiResponsesAdapter) extractError(body []byte) string {
	return openaiwire.ExtractErrorMessage(body)
}

type anthropicAdapter struct{}

func (anthropicAdapter) name() string           { return VendorAnthropic }
func (anthropicAdapter) defaultBaseURL() string { return "https://api.anthropic.com" }

func (a anthropicAdapter) buildRequest(ctx context.Context, cfg vendorSettings, req *domain.CanonicalRequest) (*http.Request, error) {
	out, err := postJSON(ctx, cfg.baseURL+"/v1/messages", anthropiccodec.BuildRequest(req))
	if err != nil {
		return nil, err
	}
	out.Header.Set("x-api-key", cfg.apiKey)
	out.Header.Set("anthropic-version", anthropicVersion)
	return out, nil
}

func (anthropicAdapter) newDecoder() codec.StreamDecoder { return anthropiccodec.NewDecoder() }

func (anthropicAdapter) newFrameReader(body io.Reader, opts ...sse.Option) frameReader {
	return sse.NewReader(body, opts...)
}

func (anthropicAdapter) parseResponse(body []byte) (*domain.CanonicalResponse, error) {
	var resp anthropicwire.MessagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrDecode(VendorAnthropic, fmt.Sprintf("malformed response: %v", err))
	}
	return anthropiccodec.ResponseToCanonical(&resp), nil
}

func (anthropicAdapter) extractError(body []byte) string {
	return anthropicwire.ExtractErrorMessage(body)
}

type geminiAdapter struct{}

func (geminiAdapter) name() string { return VendorGemini }
func (geminiAdapter) defaultBaseURL() string {
	return "https://generativelanguage.googleapis.com/v1beta"
}

func (a geminiAdapter) buildRequest(ctx context.Context, cfg vendorSettings, req *domain.CanonicalRequest) (*http.Request, error) {
	verb := "generateContent"
	if req.Stream {
		verb = "streamGenerateContent"
	}
	url := fmt.Sprintf("%s/models/%s:%s", cfg.baseURL, req.Model, verb)
	out, err := postJSON(ctx, url, geminicodec.BuildRequest(req))
	if err != nil {
		return nil, err
	}
	out.Header.Set("x-goog-api-key", cfg.apiKey)
	if req.Stream {
		// Gemini streams NDJSON, not SSE.
		out.Header.Set("Accept", "application/json")
	}
	return out, nil
}

func (geminiAdapter) newDecoder() codec.StreamDecoder { return geminicodec.NewDecoder() }

func (geminiAdapter) newFrameReader(body io.Reader, opts ...sse.Option) frameReader {
	return sse.NewJSONLinesReader(body)
}

func (geminiAdapter) parseResponse(body []byte) (*domain.CanonicalResponse, error) {
	var resp geminiwire.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.ErrDecode(VendorGemini, fmt.Sprintf("malformed response: %v", err))
	}
	return geminicodec.ResponseToCanonical(&resp), nil
}

func (geminiAdapter) extractError(body []byte) string {
	return geminiwire.ExtractErrorMessage(body)
}

// trimTrailingSlash normalizes configured base URLs.
func trimTrailingSlash(u string) string {
	return strings.TrimRight(u, "/")
}
