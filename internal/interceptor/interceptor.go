// Package interceptor provides observation hooks around the HTTP exchange:
// request mutation before send, response and error observation, retry
// notification, and per-frame stream observation with veto. Interceptors are
// HTTP-level; model-level hooks live in the middleware package.
package interceptor

import (
	"context"
	"net/http"

	"github.com/polywire/polywire/internal/sse"
)

// RequestContext identifies one logical request across its attempts. The
// pipeline keeps the same context through an auth retry so interceptors can
// correlate both wire requests.
type RequestContext struct {
	// RequestID is a correlation id minted once per logical request.
	RequestID string
	// Vendor is the target vendor name.
	Vendor string
	// URL is the request URL.
	URL string
	// Stream reports whether the request expects a streaming response.
	Stream bool
}

// Interceptor is the base hook. Implementations opt into the observation
// points below; the chain detects each capability per interceptor.
type Interceptor interface {
	// Name identifies the interceptor in logs.
	Name() string
}

// BeforeSender mutates or inspects the outgoing request after all headers
// are assembled. On an auth retry it runs again against the rebuilt request.
type BeforeSender interface {
	Interceptor
	BeforeSend(ctx context.Context, rc *RequestContext, req *http.Request) error
}

// ResponseObserver sees response status and headers before the body is
// consumed.
type ResponseObserver interface {
	Interceptor
	OnResponse(ctx context.Context, rc *RequestContext, resp *http.Response)
}

// ErrorObserver sees every classified failure, including a 401 that is about
// to be retried.
type ErrorObserver interface {
	Interceptor
	OnError(ctx context.Context, rc *RequestContext, err error)
}

// RetryObserver is notified before a retry attempt is sent. attempt is
// 1-based: the first retry is attempt 1.
type RetryObserver interface {
	Interceptor
	OnRetry(ctx context.Context, rc *RequestContext, attempt int)
}

// SSEObserver sees every raw frame before decoding. Returning an error vetoes
// the frame: the stream is aborted with that error.
type SSEObserver interface {
	Interceptor
	OnSSEEvent(ctx context.Context, rc *RequestContext, frame sse.Frame) error
}

// Chain applies a fixed set of interceptors in registration order.
type Chain struct {
	items []Interceptor
}

// NewChain builds a chain. The slice is not copied; callers must not mutate
// it afterwards.
func NewChain(items ...Interceptor) *Chain {
	return &Chain{items: items}
}

// BeforeSend runs every BeforeSender in order, stopping at the first error.
func (c *Chain) BeforeSend(ctx context.Context, rc *RequestContext, req *http.Request) error {
	for _, it := range c.items {
		if bs, ok := it.(BeforeSender); ok {
			if err := bs.BeforeSend(ctx, rc, req); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnResponse notifies every ResponseObserver.
func (c *Chain) OnResponse(ctx context.Context, rc *RequestContext, resp *http.Response) {
	for _, it := range c.items {
		if ro, ok := it.(ResponseObserver); ok {
			ro.OnResponse(ctx, rc, resp)
		}
	}
}

// OnError notifies every ErrorObserver.
func (c *Chain) OnError(ctx context.Context, rc *RequestContext, err error) {
	for _, it := range c.items {
		if eo, ok := it.(ErrorObserver); ok {
			eo.OnError(ctx, rc, err)
		}
	}
}

// OnRetry notifies every RetryObserver.
func (c *Chain) OnRetry(ctx context.Context, rc *RequestContext, attempt int) {
	for _, it := range c.items {
		if ro, ok := it.(RetryObserver); ok {
			ro.OnRetry(ctx, rc, attempt)
		}
	}
}

// OnSSEEvent runs every SSEObserver in order, stopping at the first veto.
func (c *Chain) OnSSEEvent(ctx context.Context, rc *RequestContext, frame sse.Frame) error {
	for _, it := range c.items {
		if so, ok := it.(SSEObserver); ok {
			if err := so.OnSSEEvent(ctx, rc, frame); err != nil {
				return err
			}
		}
	}
	return nil
}
