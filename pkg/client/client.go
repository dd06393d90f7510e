// Package client is the public entry point: a vendor-bound LLM client with
// canonical request/response shapes, a streaming API over the canonical
// event algebra, and hook points at both the HTTP level (interceptors) and
// the model level (middleware).
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/interceptor"
	"github.com/polywire/polywire/internal/middleware"
	"github.com/polywire/polywire/internal/pipeline"
	"github.com/polywire/polywire/internal/tokens"
)

// maxResponseBody bounds non-streaming response reads.
const maxResponseBody = 16 * 1024 * 1024

// Client talks to one or more configured vendors. Construct with New; the
// zero value is not usable.
type Client struct {
	defaultVendor string
	settings      map[string]vendorSettings

	pipe      *pipeline.Pipeline
	mw        *middleware.Chain
	estimator *tokens.Estimator
	log       *slog.Logger
}

type options struct {
	baseURLs     map[string]string
	extraVendors map[string]string
	httpClient   *http.Client
	interceptors []interceptor.Interceptor
	middleware   []middleware.Middleware
	authRetry    bool
	authRetrySet bool
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL overrides a vendor's endpoint, e.g. for proxies or test servers.
func WithBaseURL(vendor, baseURL string) Option {
	return func(o *options) { o.baseURLs[vendor] = trimTrailingSlash(baseURL) }
}

// WithVendor adds credentials for an additional vendor, so middleware can
// route requests across vendors within one client.
func WithVendor(vendor, apiKey string) Option {
	return func(o *options) { o.extraVendors[vendor] = apiKey }
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithInterceptors appends HTTP-level interceptors, run in the given order.
func WithInterceptors(items ...interceptor.Interceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, items...) }
}

// WithMiddleware appends model-level middleware, run in the given order.
func WithMiddleware(items ...middleware.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, items...) }
}

// WithAuthRetry controls the single rebuild-and-retry on 401. Default on.
func WithAuthRetry(enabled bool) Option {
	return func(o *options) {
		o.authRetry = enabled
		o.authRetrySet = true
	}
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// New constructs a client bound to vendor with the given credential.
func New(vendor, apiKey string, opts ...Option) (*Client, error) {
	o := &options{
		baseURLs:     make(map[string]string),
		extraVendors: make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}

	if _, err := adapterFor(vendor); err != nil {
		return nil, err
	}

	settings := make(map[string]vendorSettings)
	addVendor := func(name, key string) error {
		adapter, err := adapterFor(name)
		if err != nil {
			return err
		}
		base := adapter.defaultBaseURL()
		if u, ok := o.baseURLs[name]; ok {
			base = u
		}
		settings[name] = vendorSettings{apiKey: key, baseURL: base}
		return nil
	}
	if err := addVendor(vendor, apiKey); err != nil {
		return nil, err
	}
	for name, key := range o.extraVendors {
		if err := addVendor(name, key); err != nil {
			return nil, err
		}
	}

	var pipeOpts []pipeline.Option
	if o.httpClient != nil {
		pipeOpts = append(pipeOpts, pipeline.WithHTTPClient(o.httpClient))
	}
	if o.authRetrySet {
		pipeOpts = append(pipeOpts, pipeline.WithAuthRetryPolicy(o.authRetry, 0))
	}

	log := o.logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		defaultVendor: vendor,
		settings:      settings,
		pipe:          pipeline.New(interceptor.NewChain(o.interceptors...), pipeOpts...),
		mw:            middleware.NewChain(o.middleware...),
		estimator:     tokens.NewEstimator(),
		log:           log,
	}, nil
}

// resolve applies middleware transforms and routing, returning the final
// request, adapter, and settings.
func (c *Client) resolve(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalRequest, vendorAdapter, vendorSettings, error) {
	if req.Model == "" {
		return nil, nil, vendorSettings{}, domain.ErrValidation("model is required")
	}
	out, err := c.mw.TransformRequest(ctx, req)
	if err != nil {
		return nil, nil, vendorSettings{}, err
	}
	if out.Provider == "" {
		out.Provider = c.defaultVendor
	}
	provider, model := c.mw.ResolveRoute(ctx, out)
	out.Provider = provider
	out.Model = model

	adapter, err := adapterFor(provider)
	if err != nil {
		return nil, nil, vendorSettings{}, err
	}
	cfg, ok := c.settings[provider]
	if !ok {
		return nil, nil, vendorSettings{}, domain.ErrValidation(
			fmt.Sprintf("no credentials configured for vendor %q", provider))
	}
	return out, adapter, cfg, nil
}

// buildFunc returns the per-attempt request builder: vendor base headers
// first, then per-request overrides, caller wins.
func buildFunc(adapter vendorAdapter, cfg vendorSettings, req *domain.CanonicalRequest) pipeline.BuildFunc {
	return func(ctx context.Context) (*http.Request, error) {
		httpReq, err := adapter.buildRequest(ctx, cfg, req)
		if err != nil {
			return nil, err
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}
		return httpReq, nil
	}
}

// Complete performs a non-streaming generation call.
func (c *Client) Complete(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalResponse, error) {
	final, adapter, cfg, err := c.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	final.Stream = false

	target := pipeline.Target{
		Vendor:       adapter.name(),
		URL:          cfg.baseURL,
		ExtractError: adapter.extractError,
	}
	resp, _, err := c.pipe.Do(ctx, target, buildFunc(adapter, cfg, final))
	if err != nil {
		c.mw.PostGenerate(ctx, final, nil, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		apiErr := domain.ErrTransport(adapter.name(), err)
		c.mw.PostGenerate(ctx, final, nil, apiErr)
		return nil, apiErr
	}

	out, err := adapter.parseResponse(body)
	if err != nil {
		c.mw.PostGenerate(ctx, final, nil, err)
		return nil, err
	}
	c.estimator.FillEstimate(final, out)
	c.mw.PostGenerate(ctx, final, out, nil)
	return out, nil
}

// Stream performs a streaming generation call. The returned channel delivers
// canonical events ending with exactly one terminal event, then closes.
// Cancelling ctx aborts the transport; the stream then terminates with an
// error event.
func (c *Client) Stream(ctx context.Context, req *domain.CanonicalRequest) (<-chan domain.StreamEvent, error) {
	final, adapter, cfg, err := c.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	final.Stream = true

	target := pipeline.Target{
		Vendor:       adapter.name(),
		URL:          cfg.baseURL,
		Stream:       true,
		ExtractError: adapter.extractError,
	}
	resp, rc, err := c.pipe.Do(ctx, target, buildFunc(adapter, cfg, final))
	if err != nil {
		c.mw.PostGenerate(ctx, final, nil, err)
		return nil, err
	}

	events := make(chan domain.StreamEvent)
	go c.pump(ctx, adapter, final, rc, resp.Body, events)
	return events, nil
}

// pump reads frames, decodes them, and delivers canonical events until a
// terminal event or a transport failure.
func (c *Client) pump(ctx context.Context, adapter vendorAdapter, req *domain.CanonicalRequest,
	rc *interceptor.RequestContext, body io.ReadCloser, events chan<- domain.StreamEvent) {
	defer close(events)
	defer body.Close()

	decoder := adapter.newDecoder()
	reader := adapter.newFrameReader(body)
	terminal := false

	deliver := func(ev domain.StreamEvent) bool {
		if terminal {
			return false
		}
		if ev.Terminal() {
			terminal = true
			if ev.Type == domain.EventStreamEnd {
				c.estimator.FillEstimate(req, ev.Response)
				c.mw.PostGenerate(ctx, req, ev.Response, nil)
			} else {
				c.mw.PostGenerate(ctx, req, nil, ev.Err)
			}
		}
		select {
		case events <- ev:
			return !terminal
		case <-ctx.Done():
			return false
		}
	}

	// emit runs the event through the middleware chain and delivers whatever
	// comes out; middleware may rewrite, suppress, or fan out.
	emit := func(ev domain.StreamEvent) bool {
		for _, out := range c.mw.OnStreamEvent(ctx, req, ev) {
			if !deliver(out) {
				return false
			}
		}
		return !terminal
	}

	fail := func(err *domain.APIError) {
		c.pipe.Chain().OnError(ctx, rc, err)
		emit(domain.ErrorEvent(err))
	}

	for {
		frame, err := reader.Next()
		if err == io.EOF {
			for _, ev := range decoder.Flush() {
				if !emit(ev) {
					return
				}
			}
			if !terminal {
				fail(domain.ErrTransport(adapter.name(), io.ErrUnexpectedEOF))
			}
			return
		}
		if err != nil {
			fail(domain.ErrTransport(adapter.name(), err))
			return
		}

		if err := c.pipe.Chain().OnSSEEvent(ctx, rc, frame); err != nil {
			fail(&domain.APIError{
				Kind:     domain.ErrKindValidation,
				Provider: adapter.name(),
				Message:  fmt.Sprintf("frame vetoed: %v", err),
			})
			return
		}

		evs, err := decoder.Decode(frame)
		if err != nil {
			if apiErr, ok := err.(*domain.APIError); ok {
				fail(apiErr)
			} else {
				fail(domain.ErrDecode(adapter.name(), err.Error()))
			}
			return
		}
		for _, ev := range evs {
			if !emit(ev) {
				return
			}
		}
	}
}
