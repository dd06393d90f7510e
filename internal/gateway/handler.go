package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	wire "github.com/polywire/polywire/internal/api/openai"
	"github.com/polywire/polywire/internal/codec"
	openaicodec "github.com/polywire/polywire/internal/codec/openai"
	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/pkg/client"
)

// Handler serves the Chat Completions surface backed by the client's vendor.
type Handler struct {
	client *client.Client
	policy codec.UnsupportedPolicy
	log    *slog.Logger
}

// NewHandler returns a handler. The unsupported-construct policy is required:
// it decides what happens when the backend emits constructs the Chat
// Completions grammar cannot express.
func NewHandler(c *client.Client, policy codec.UnsupportedPolicy, log *slog.Logger) (*Handler, error) {
	if err := codec.ValidatePolicy(policy); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{client: c, policy: policy, log: log}, nil
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req wire.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "malformed request body: "+err.Error())
		return
	}

	canonical := openaicodec.ChatRequestToCanonical(&req)
	if req.Stream {
		h.stream(w, r, canonical)
		return
	}

	resp, err := h.client.Complete(r.Context(), canonical)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(openaicodec.ChatResponseFromCanonical(resp)); err != nil {
		h.log.Error("write response", slog.String("error", err.Error()))
	}
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req *domain.CanonicalRequest) {
	events, err := h.client.Stream(r.Context(), req)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}

	enc, err := openaicodec.NewEncoder(h.policy)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming unsupported by server")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		frame, err := enc.Encode(ev)
		if err != nil {
			if errors.Is(err, codec.ErrUnsupportedConstruct) {
				// Headers are gone; surface the policy failure in-band and
				// stop the stream.
				h.log.Warn("unsupported construct", slog.String("error", err.Error()))
				if frame, encErr := enc.Encode(domain.ErrorEvent(
					domain.ErrUnsupported("gateway", err.Error()))); encErr == nil {
					w.Write(frame)
					fl.Flush()
				}
				return
			}
			h.log.Error("encode event", slog.String("error", err.Error()))
			return
		}
		if len(frame) == 0 {
			continue
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		fl.Flush()
	}
}

// writeAPIError maps the error taxonomy onto HTTP statuses and the OpenAI
// error body.
func (h *Handler) writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		writeError(w, http.StatusBadGateway, "server_error", err.Error())
		return
	}
	writeError(w, statusFor(apiErr), errorType(apiErr.Kind), apiErr.Message)
}

func statusFor(e *domain.APIError) int {
	switch e.Kind {
	case domain.ErrKindAuth:
		return http.StatusUnauthorized
	case domain.ErrKindRateLimit:
		return http.StatusTooManyRequests
	case domain.ErrKindValidation:
		return http.StatusBadRequest
	case domain.ErrKindUnsupported:
		return http.StatusNotImplemented
	default:
		if e.StatusCode >= 500 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	}
}

func errorType(kind domain.ErrorKind) string {
	switch kind {
	case domain.ErrKindAuth:
		return "authentication_error"
	case domain.ErrKindRateLimit:
		return "rate_limit_error"
	case domain.ErrKindValidation:
		return "invalid_request_error"
	default:
		return "server_error"
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(wire.ErrorResponse{
		Error: &wire.WireError{Message: message, Type: errType},
	})
}
