package domain

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind is the category of a classified failure.
type ErrorKind string

const (
	// ErrKindTransport is a connection-level failure, fatal to the attempt.
	ErrKindTransport ErrorKind = "transport"

	// ErrKindDecode is a malformed frame or JSON payload. Fatal: the rest of
	// the stream is aborted rather than skipped, because a garbled tool-call
	// buffer would silently corrupt downstream tool execution.
	ErrKindDecode ErrorKind = "decode"

	// ErrKindAuth is HTTP 401, recoverable via exactly one rebuild-and-retry.
	ErrKindAuth ErrorKind = "authentication"

	// ErrKindRateLimit is a vendor rate-limit or quota failure. Surfaced with
	// a retry hint when the vendor provides one; not auto-retried here.
	ErrKindRateLimit ErrorKind = "rate_limit"

	// ErrKindValidation means caller-supplied parameters violate a vendor's
	// documented constraints. Rejected before any network call.
	ErrKindValidation ErrorKind = "validation"

	// ErrKindUnsupported means the caller invoked a capability absent from
	// the target vendor. Rejected before any network call.
	ErrKindUnsupported ErrorKind = "unsupported"

	// ErrKindProvider is the catch-all for classified-but-unmapped vendor
	// failures; carries raw status and body for diagnostics.
	ErrKindProvider ErrorKind = "provider"
)

// APIError is the canonical classified error surfaced by the pipeline and
// carried by terminal EventError events.
type APIError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	// RetryAfter is the vendor-supplied rate-limit hint, zero when absent.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// RawBody is the unparsed error body, kept for diagnostics.
	RawBody string `json:"raw_body,omitempty"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s %d): %s", e.Kind, e.Provider, e.StatusCode, e.Message)
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrTransport creates a transport error.
func ErrTransport(provider string, err error) *APIError {
	return &APIError{Kind: ErrKindTransport, Provider: provider, Message: err.Error()}
}

// ErrDecode creates a decode error.
func ErrDecode(provider, message string) *APIError {
	return &APIError{Kind: ErrKindDecode, Provider: provider, Message: message}
}

// ErrAuth creates an authentication error.
func ErrAuth(provider, message string) *APIError {
	return &APIError{Kind: ErrKindAuth, Provider: provider, Message: message, StatusCode: http.StatusUnauthorized}
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *APIError {
	return &APIError{Kind: ErrKindValidation, Message: message}
}

// ErrUnsupported creates an unsupported-operation error.
func ErrUnsupported(provider, message string) *APIError {
	return &APIError{Kind: ErrKindUnsupported, Provider: provider, Message: message}
}

// ClassifyHTTP maps a non-success status and error body to the taxonomy.
// message should already be extracted from the vendor's error shape when
// possible; the raw body is preserved either way.
func ClassifyHTTP(provider string, status int, message, rawBody string, header http.Header) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	e := &APIError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		RawBody:    rawBody,
	}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = ErrKindAuth
	case status == http.StatusTooManyRequests:
		e.Kind = ErrKindRateLimit
		e.RetryAfter = retryAfterHint(header)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = ErrKindValidation
	default:
		e.Kind = ErrKindProvider
	}
	return e
}

// retryAfterHint reads Retry-After in both of its wire forms: delta seconds
// and an HTTP date.
func retryAfterHint(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
