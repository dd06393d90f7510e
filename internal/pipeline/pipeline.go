// Package pipeline executes vendor HTTP exchanges: header assembly, the
// interceptor chain, classification of failures into the error taxonomy, and
// the single rebuild-and-retry on an authentication failure. The pipeline
// owns everything between a built request and a readable response body;
// decoding is the caller's concern.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/interceptor"
)

// maxErrorBody bounds how much of an error body is read for classification.
const maxErrorBody = 64 * 1024

// Target describes where one request goes and how its failures read.
type Target struct {
	// Vendor is the vendor name, used for classification and observability.
	Vendor string
	// URL is the full request URL.
	URL string
	// Stream reports whether a streaming response is expected. Streaming
	// requests default to identity content encoding so frames arrive
	// unbuffered; a caller-set Accept-Encoding header wins.
	Stream bool
	// ExtractError pulls a human-readable message out of the vendor's error
	// body shape. May be nil.
	ExtractError func(body []byte) string
}

// BuildFunc constructs the outgoing request from scratch: URL, body, and all
// authentication and vendor headers. It runs once per attempt, so a retry
// observes rotated credentials rather than replaying stale headers.
type BuildFunc func(ctx context.Context) (*http.Request, error)

// Pipeline sends requests for one client instance.
type Pipeline struct {
	client       *http.Client
	chain        *interceptor.Chain
	authRetry    bool
	retryBackoff time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithAuthRetryPolicy controls the single 401 retry. Disabled, the first
// authentication failure is final. backoff is the pause before the retry.
func WithAuthRetryPolicy(enabled bool, backoff time.Duration) Option {
	return func(p *Pipeline) {
		p.authRetry = enabled
		p.retryBackoff = backoff
	}
}

// New returns a pipeline running the given interceptor chain. The default
// transport is instrumented with otelhttp.
func New(chain *interceptor.Chain, opts ...Option) *Pipeline {
	if chain == nil {
		chain = interceptor.NewChain()
	}
	p := &Pipeline{
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		chain:     chain,
		authRetry: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chain exposes the interceptor chain for stream-frame observation.
func (p *Pipeline) Chain() *interceptor.Chain { return p.chain }

// Do executes one logical request. On HTTP 401 the request is rebuilt from
// scratch and retried exactly once; a second 401 is surfaced as the final
// authentication error. The returned RequestContext is stable across both
// attempts. On success the caller owns the response body.
func (p *Pipeline) Do(ctx context.Context, target Target, build BuildFunc) (*http.Response, *interceptor.RequestContext, error) {
	rc := &interceptor.RequestContext{
		RequestID: uuid.New().String(),
		Vendor:    target.Vendor,
		URL:       target.URL,
		Stream:    target.Stream,
	}

	for attempt := 0; ; attempt++ {
		resp, err := p.send(ctx, target, rc, build)
		if err == nil {
			p.chain.OnResponse(ctx, rc, resp)
			return resp, rc, nil
		}

		apiErr, ok := err.(*domain.APIError)
		if !ok {
			p.chain.OnError(ctx, rc, err)
			return nil, rc, err
		}

		// A 401 that is about to be retried is not a terminal failure;
		// interceptors hear about it as OnRetry, and OnError fires at most
		// once per logical request.
		if apiErr.Kind == domain.ErrKindAuth && attempt == 0 && p.authRetry {
			if p.retryBackoff > 0 {
				select {
				case <-time.After(p.retryBackoff):
				case <-ctx.Done():
					cancelErr := domain.ErrTransport(target.Vendor, ctx.Err())
					p.chain.OnError(ctx, rc, cancelErr)
					return nil, rc, cancelErr
				}
			}
			p.chain.OnRetry(ctx, rc, 1)
			continue
		}
		p.chain.OnError(ctx, rc, apiErr)
		return nil, rc, apiErr
	}
}

func (p *Pipeline) send(ctx context.Context, target Target, rc *interceptor.RequestContext, build BuildFunc) (*http.Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if target.Stream {
		applyStreamDefaults(req)
	}
	if err := p.chain.BeforeSend(ctx, rc, req); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.ErrTransport(target.Vendor, err)
	}
	if resp.StatusCode >= 400 {
		return nil, classify(target, resp)
	}
	return resp, nil
}

// applyStreamDefaults sets the streaming request headers unless the caller
// already chose values. Identity encoding matters: a compressing proxy would
// buffer whole frames and defeat incremental delivery.
func applyStreamDefaults(req *http.Request) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}
	if req.Header.Get("Cache-Control") == "" {
		req.Header.Set("Cache-Control", "no-cache")
	}
}

func classify(target Target, resp *http.Response) *domain.APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := ""
	if target.ExtractError != nil {
		msg = target.ExtractError(body)
	}
	return domain.ClassifyHTTP(target.Vendor, resp.StatusCode, msg, string(body), resp.Header)
}
