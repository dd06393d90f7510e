// Package middleware provides model-level hooks around generation calls:
// request transformation, provider and model routing overrides, completion
// observation, and canonical stream event fan-out. Middleware operates on
// canonical shapes and never sees vendor wire formats; HTTP-level hooks live
// in the interceptor package.
package middleware

import (
	"context"

	"github.com/polywire/polywire/internal/domain"
)

// Middleware is the base hook. Implementations opt into the capabilities
// below; the chain detects each per middleware.
type Middleware interface {
	// Name identifies the middleware in logs.
	Name() string
}

// RequestTransformer rewrites the canonical request before vendor encoding.
// Transformers run in registration order, each seeing the previous output.
type RequestTransformer interface {
	Middleware
	TransformRequest(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalRequest, error)
}

// RouteOverrider redirects a request to a different provider or model.
// Either value may be empty to leave that part of the route unchanged.
type RouteOverrider interface {
	Middleware
	OverrideRoute(ctx context.Context, req *domain.CanonicalRequest) (provider, model string)
}

// PostGenerator observes the completed call: the final request, the response
// when the call succeeded, and the error otherwise.
type PostGenerator interface {
	Middleware
	PostGenerate(ctx context.Context, req *domain.CanonicalRequest, resp *domain.CanonicalResponse, err error)
}

// StreamObserver processes every canonical event of a streaming call, after
// decoding and before delivery to the consumer. req is the final routed
// request the stream belongs to. Return nil to pass the event through
// unchanged, an empty slice to suppress it, or replacement events (fan-out).
type StreamObserver interface {
	Middleware
	OnStreamEvent(ctx context.Context, req *domain.CanonicalRequest, ev domain.StreamEvent) []domain.StreamEvent
}

// Chain applies a fixed set of middleware in registration order.
type Chain struct {
	items []Middleware
}

// NewChain builds a chain.
func NewChain(items ...Middleware) *Chain {
	return &Chain{items: items}
}

// TransformRequest threads the request through every RequestTransformer.
// The input is cloned first so callers never observe mutation.
func (c *Chain) TransformRequest(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalRequest, error) {
	out := req.Clone()
	for _, m := range c.items {
		rt, ok := m.(RequestTransformer)
		if !ok {
			continue
		}
		next, err := rt.TransformRequest(ctx, out)
		if err != nil {
			return nil, err
		}
		if next != nil {
			out = next
		}
	}
	return out, nil
}

// ResolveRoute applies routing overrides. For provider and model
// independently, the first middleware returning a non-empty value wins;
// later overrides for that part are ignored.
func (c *Chain) ResolveRoute(ctx context.Context, req *domain.CanonicalRequest) (provider, model string) {
	provider = req.Provider
	model = req.Model
	var providerSet, modelSet bool
	for _, m := range c.items {
		ro, ok := m.(RouteOverrider)
		if !ok {
			continue
		}
		p, mo := ro.OverrideRoute(ctx, req)
		if p != "" && !providerSet {
			provider = p
			providerSet = true
		}
		if mo != "" && !modelSet {
			model = mo
			modelSet = true
		}
		if providerSet && modelSet {
			break
		}
	}
	return provider, model
}

// PostGenerate notifies every PostGenerator.
func (c *Chain) PostGenerate(ctx context.Context, req *domain.CanonicalRequest, resp *domain.CanonicalResponse, err error) {
	for _, m := range c.items {
		if pg, ok := m.(PostGenerator); ok {
			pg.PostGenerate(ctx, req, resp, err)
		}
	}
}

// OnStreamEvent threads one canonical event through every StreamObserver in
// registration order. Each observer sees the previous observer's output, so
// an event may be rewritten, suppressed, or fanned out along the way.
func (c *Chain) OnStreamEvent(ctx context.Context, req *domain.CanonicalRequest, ev domain.StreamEvent) []domain.StreamEvent {
	events := []domain.StreamEvent{ev}
	for _, m := range c.items {
		so, ok := m.(StreamObserver)
		if !ok {
			continue
		}
		next := make([]domain.StreamEvent, 0, len(events))
		for _, e := range events {
			out := so.OnStreamEvent(ctx, req, e)
			if out == nil {
				next = append(next, e)
				continue
			}
			next = append(next, out...)
		}
		events = next
	}
	return events
}
