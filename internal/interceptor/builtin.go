package interceptor

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logging observes the exchange through a structured logger. Request bodies
// and frame payloads are never logged, only metadata. One instance serves
// concurrent requests; per-request state is keyed by the request id.
type Logging struct {
	log *slog.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

// NewLogging returns a logging interceptor. A nil logger uses slog.Default.
func NewLogging(log *slog.Logger) *Logging {
	if log == nil {
		log = slog.Default()
	}
	return &Logging{log: log, started: make(map[string]time.Time)}
}

func (l *Logging) Name() string { return "logging" }

func (l *Logging) BeforeSend(ctx context.Context, rc *RequestContext, req *http.Request) error {
	l.mu.Lock()
	// The retry's BeforeSend keeps the first attempt's start, so elapsed
	// covers the whole logical request.
	if _, ok := l.started[rc.RequestID]; !ok {
		l.started[rc.RequestID] = time.Now()
	}
	l.mu.Unlock()

	l.log.DebugContext(ctx, "sending request",
		"request_id", rc.RequestID,
		"vendor", rc.Vendor,
		"url", rc.URL,
		"stream", rc.Stream,
	)
	return nil
}

func (l *Logging) OnResponse(ctx context.Context, rc *RequestContext, resp *http.Response) {
	l.log.InfoContext(ctx, "response received",
		"request_id", rc.RequestID,
		"vendor", rc.Vendor,
		"status", resp.StatusCode,
		"elapsed", l.elapsed(rc.RequestID),
	)
}

func (l *Logging) OnError(ctx context.Context, rc *RequestContext, err error) {
	l.log.ErrorContext(ctx, "request failed",
		"request_id", rc.RequestID,
		"vendor", rc.Vendor,
		"error", err,
		"elapsed", l.elapsed(rc.RequestID),
	)
}

func (l *Logging) OnRetry(ctx context.Context, rc *RequestContext, attempt int) {
	l.log.WarnContext(ctx, "retrying after auth failure",
		"request_id", rc.RequestID,
		"vendor", rc.Vendor,
		"attempt", attempt,
	)
}

// elapsed removes the request's start entry and returns the time since it.
// OnResponse and OnError each fire once per logical request, so whichever
// arrives cleans up.
func (l *Logging) elapsed(requestID string) time.Duration {
	l.mu.Lock()
	start, ok := l.started[requestID]
	delete(l.started, requestID)
	l.mu.Unlock()
	if !ok {
		return 0
	}
	return time.Since(start)
}

// Tracing wraps each logical request in an OpenTelemetry span. The span
// covers all attempts; retries are recorded as span events. Spans are keyed
// by request id so one instance serves concurrent requests.
type Tracing struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTracing returns a tracing interceptor using the given tracer name.
func NewTracing(name string) *Tracing {
	return &Tracing{tracer: otel.Tracer(name), spans: make(map[string]trace.Span)}
}

func (t *Tracing) Name() string { return "tracing" }

func (t *Tracing) BeforeSend(ctx context.Context, rc *RequestContext, req *http.Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.spans[rc.RequestID]; ok {
		return nil
	}
	_, span := t.tracer.Start(ctx, "llm.request",
		trace.WithAttributes(
			attribute.String("llm.vendor", rc.Vendor),
			attribute.String("llm.request_id", rc.RequestID),
			attribute.Bool("llm.stream", rc.Stream),
		))
	t.spans[rc.RequestID] = span
	return nil
}

func (t *Tracing) OnResponse(ctx context.Context, rc *RequestContext, resp *http.Response) {
	span := t.take(rc.RequestID)
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (t *Tracing) OnRetry(ctx context.Context, rc *RequestContext, attempt int) {
	t.mu.Lock()
	span := t.spans[rc.RequestID]
	t.mu.Unlock()
	if span != nil {
		span.AddEvent("auth retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
	}
}

func (t *Tracing) OnError(ctx context.Context, rc *RequestContext, err error) {
	span := t.take(rc.RequestID)
	if span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

func (t *Tracing) take(requestID string) trace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	span := t.spans[requestID]
	delete(t.spans, requestID)
	return span
}

// CorrelationHeader is the header carrying the request correlation id.
const CorrelationHeader = "X-Request-Id"

// Correlation stamps every outgoing request with the logical request id, so
// both attempts of a retried request carry the same value.
type Correlation struct{}

func (Correlation) Name() string { return "correlation" }

func (Correlation) BeforeSend(ctx context.Context, rc *RequestContext, req *http.Request) error {
	if rc.RequestID == "" {
		rc.RequestID = uuid.New().String()
	}
	req.Header.Set(CorrelationHeader, rc.RequestID)
	return nil
}
