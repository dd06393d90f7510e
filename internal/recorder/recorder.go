// Package recorder persists completed generation calls as middleware. Each
// call becomes one interaction row; for streaming calls the canonical events
// can be recorded too.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/storage/sqlite"
)

// Recorder records generation calls to a SQLite store. Persistence failures
// are logged and never fail the call being recorded. One instance serves
// concurrent calls; in-flight state is keyed by the request, so register the
// recorder after any middleware that replaces the request value.
type Recorder struct {
	store        *sqlite.Store
	log          *slog.Logger
	streamChunks bool

	mu     sync.Mutex
	active map[*domain.CanonicalRequest]*capture
}

// capture is the in-flight state of one call.
type capture struct {
	started time.Time
	events  []domain.StreamEvent
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStreamChunks also records every canonical event of streamed calls.
func WithStreamChunks() Option {
	return func(r *Recorder) { r.streamChunks = true }
}

// New returns a recorder writing to store. A nil logger uses slog.Default.
func New(store *sqlite.Store, log *slog.Logger, opts ...Option) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{store: store, log: log, active: make(map[*domain.CanonicalRequest]*capture)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Name() string { return "recorder" }

// TransformRequest marks the call's start without changing the request.
func (r *Recorder) TransformRequest(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalRequest, error) {
	r.capture(req)
	return req, nil
}

// OnStreamEvent buffers the call's canonical events until PostGenerate.
func (r *Recorder) OnStreamEvent(ctx context.Context, req *domain.CanonicalRequest, ev domain.StreamEvent) []domain.StreamEvent {
	if r.streamChunks {
		c := r.capture(req)
		r.mu.Lock()
		c.events = append(c.events, ev)
		r.mu.Unlock()
	}
	return nil
}

// PostGenerate persists the completed call and any buffered stream events.
func (r *Recorder) PostGenerate(ctx context.Context, req *domain.CanonicalRequest, resp *domain.CanonicalResponse, callErr error) {
	r.mu.Lock()
	c := r.active[req]
	delete(r.active, req)
	r.mu.Unlock()
	if c == nil {
		c = &capture{}
	}

	var duration time.Duration
	if !c.started.IsZero() {
		duration = time.Since(c.started)
	}
	in := &sqlite.Interaction{
		ID:        uuid.New().String(),
		Provider:  req.Provider,
		Model:     req.Model,
		Streaming: req.Stream,
		Request:   req,
		Response:  resp,
		Duration:  duration,
	}
	if apiErr, ok := callErr.(*domain.APIError); ok {
		in.Error = apiErr
	} else if callErr != nil {
		in.Error = &domain.APIError{Kind: domain.ErrKindProvider, Message: callErr.Error()}
	}

	if err := r.store.SaveInteraction(ctx, in); err != nil {
		r.log.Error("record interaction", "error", err, "interaction_id", in.ID)
		return
	}

	if len(c.events) > 0 {
		rows := make([]sqlite.StreamEvent, len(c.events))
		for i, ev := range c.events {
			rows[i] = sqlite.StreamEvent{InteractionID: in.ID, Seq: i, Event: ev}
		}
		if err := r.store.SaveStreamEvents(ctx, rows); err != nil {
			r.log.Error("record stream events", "error", err, "interaction_id", in.ID)
		}
	}
}

// capture returns the call's in-flight state, creating it on first sight.
func (r *Recorder) capture(req *domain.CanonicalRequest) *capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[req]
	if !ok {
		c = &capture{started: time.Now()}
		r.active[req] = c
	}
	return c
}
