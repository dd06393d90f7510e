package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/polywire/polywire/internal/domain"
)

type prefixer struct {
	prefix string
	err    error
}

func (p *prefixer) Name() string { return "prefixer" }

func (p *prefixer) TransformRequest(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	for i := range req.Messages {
		req.Messages[i].Content = p.prefix + req.Messages[i].Content
	}
	return req, nil
}

type router struct {
	name     string
	provider string
	model    string
}

func (r *router) Name() string { return r.name }

func (r *router) OverrideRoute(ctx context.Context, req *domain.CanonicalRequest) (string, string) {
	return r.provider, r.model
}

type observer struct {
	events []domain.EventType
	calls  int
	err    error
}

func (o *observer) Name() string { return "observer" }

func (o *observer) PostGenerate(ctx context.Context, req *domain.CanonicalRequest, resp *domain.CanonicalResponse, err error) {
	o.calls++
	o.err = err
}

func (o *observer) OnStreamEvent(ctx context.Context, req *domain.CanonicalRequest, ev domain.StreamEvent) []domain.StreamEvent {
	o.events = append(o.events, ev.Type)
	return nil
}

// relabeler turns thinking deltas into plain content, as a reasoning
// extractor would.
type relabeler struct{}

func (relabeler) Name() string { return "relabeler" }

func (relabeler) OnStreamEvent(ctx context.Context, req *domain.CanonicalRequest, ev domain.StreamEvent) []domain.StreamEvent {
	if ev.Type != domain.EventThinkingDelta {
		return nil
	}
	return []domain.StreamEvent{domain.ContentDelta("<think>"+ev.Text+"</think>", 0)}
}

// muter drops usage events from the stream.
type muter struct{}

func (muter) Name() string { return "muter" }

func (muter) OnStreamEvent(ctx context.Context, req *domain.CanonicalRequest, ev domain.StreamEvent) []domain.StreamEvent {
	if ev.Type == domain.EventUsage {
		return []domain.StreamEvent{}
	}
	return nil
}

func TestChain_TransformOrderAndIsolation(t *testing.T) {
	chain := NewChain(&prefixer{prefix: "a:"}, &prefixer{prefix: "b:"})
	in := &domain.CanonicalRequest{
		Model:    "m",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}

	out, err := chain.TransformRequest(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Messages[0].Content; got != "b:a:hi" {
		t.Errorf("content = %q, want transforms applied in order", got)
	}
	// The caller's request is untouched.
	if in.Messages[0].Content != "hi" {
		t.Errorf("input mutated: %q", in.Messages[0].Content)
	}
}

func TestChain_TransformStopsAtError(t *testing.T) {
	boom := errors.New("boom")
	chain := NewChain(&prefixer{err: boom}, &prefixer{prefix: "b:"})
	_, err := chain.TransformRequest(context.Background(), &domain.CanonicalRequest{Model: "m"})
	if err != boom {
		t.Fatalf("TransformRequest() = %v, want boom", err)
	}
}

func TestChain_FirstNonEmptyRouteWins(t *testing.T) {
	chain := NewChain(
		&router{name: "r1", provider: "", model: "gpt-4o-mini"},
		&router{name: "r2", provider: "anthropic", model: "claude-sonnet-4-5"},
	)
	req := &domain.CanonicalRequest{Provider: "openai", Model: "gpt-4o"}

	provider, model := chain.ResolveRoute(context.Background(), req)
	// r1 set the model first; r2 wins only the provider it was first to set.
	if provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", provider)
	}
	if model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", model)
	}
}

func TestChain_NoOverridesKeepRequestRoute(t *testing.T) {
	chain := NewChain(&router{name: "r", provider: "", model: ""})
	req := &domain.CanonicalRequest{Provider: "openai", Model: "gpt-4o"}
	provider, model := chain.ResolveRoute(context.Background(), req)
	if provider != "openai" || model != "gpt-4o" {
		t.Errorf("route = %q/%q, want unchanged", provider, model)
	}
}

func TestChain_PostGenerateSeesError(t *testing.T) {
	o := &observer{}
	chain := NewChain(o)
	boom := errors.New("boom")

	chain.PostGenerate(context.Background(), &domain.CanonicalRequest{}, nil, boom)
	if o.calls != 1 || o.err != boom {
		t.Errorf("calls = %d, err = %v", o.calls, o.err)
	}
}

func TestChain_StreamEventFanOut(t *testing.T) {
	a := &observer{}
	b := &observer{}
	chain := NewChain(a, b)
	req := &domain.CanonicalRequest{Model: "m"}

	out := chain.OnStreamEvent(context.Background(), req, domain.ContentDelta("x", 0))
	out = append(out, chain.OnStreamEvent(context.Background(), req, domain.StreamEnd(nil))...)

	// A nil return passes the event through untouched.
	if len(out) != 2 || out[0].Type != domain.EventContentDelta || out[1].Type != domain.EventStreamEnd {
		t.Errorf("out = %v", out)
	}
	for _, o := range []*observer{a, b} {
		if len(o.events) != 2 || o.events[0] != domain.EventContentDelta || o.events[1] != domain.EventStreamEnd {
			t.Errorf("events = %v", o.events)
		}
	}
}

func TestChain_StreamEventRewrite(t *testing.T) {
	downstream := &observer{}
	chain := NewChain(relabeler{}, downstream)
	req := &domain.CanonicalRequest{Model: "m"}

	out := chain.OnStreamEvent(context.Background(), req, domain.ThinkingDelta("step one"))
	if len(out) != 1 || out[0].Type != domain.EventContentDelta {
		t.Fatalf("out = %+v, want rewritten content delta", out)
	}
	if out[0].Text != "<think>step one</think>" {
		t.Errorf("text = %q", out[0].Text)
	}
	// Later middleware see the rewritten event, not the original.
	if len(downstream.events) != 1 || downstream.events[0] != domain.EventContentDelta {
		t.Errorf("downstream events = %v", downstream.events)
	}
}

func TestChain_StreamEventSuppress(t *testing.T) {
	downstream := &observer{}
	chain := NewChain(muter{}, downstream)
	req := &domain.CanonicalRequest{Model: "m"}

	out := chain.OnStreamEvent(context.Background(), req, domain.UsageUpdate(domain.Usage{}))
	if len(out) != 0 {
		t.Errorf("out = %+v, want suppressed", out)
	}
	if len(downstream.events) != 0 {
		t.Errorf("downstream events = %v, want none", downstream.events)
	}

	out = chain.OnStreamEvent(context.Background(), req, domain.ContentDelta("x", 0))
	if len(out) != 1 {
		t.Errorf("out = %+v, want passthrough", out)
	}
}
