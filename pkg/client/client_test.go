package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/middleware"
)

func decodeJSONBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

func sseHandler(t *testing.T, payloads []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer is not a flusher")
		}
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			fl.Flush()
		}
	}
}

func TestNew_UnknownVendor(t *testing.T) {
	if _, err := New("unknown-vendor", "key"); err == nil {
		t.Fatal("New(unknown) = nil error, want validation error")
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}
		}`))
	}))
	defer srv.Close()

	c, err := New(VendorOpenAI, "sk-test", WithBaseURL(VendorOpenAI, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.Complete(context.Background(), &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text() != "hello" {
		t.Errorf("text = %q", resp.Text())
	}
	if resp.Usage.TotalTokens == nil || *resp.Usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	// Vendor-reported usage means no estimation warning.
	if len(resp.Warnings) != 0 {
		t.Errorf("warnings = %+v", resp.Warnings)
	}
}

func TestStream_DeliversCanonicalEvents(t *testing.T) {
	payloads := []string{
		`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	}
	srv := httptest.NewServer(sseHandler(t, payloads))
	defer srv.Close()

	c, err := New(VendorOpenAI, "sk-test", WithBaseURL(VendorOpenAI, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	events, err := c.Stream(context.Background(), &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var got []domain.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}

	if len(got) == 0 {
		t.Fatal("no events delivered")
	}
	if got[0].Type != domain.EventStreamStart {
		t.Errorf("first event = %q, want stream_start", got[0].Type)
	}
	var text strings.Builder
	for _, ev := range got {
		if ev.Type == domain.EventContentDelta {
			text.WriteString(ev.Text)
		}
	}
	last := got[len(got)-1]
	if last.Type != domain.EventStreamEnd {
		t.Fatalf("last event = %q, want stream_end", last.Type)
	}
	if text.String() != "Hello" || last.Response.Text() != "Hello" {
		t.Errorf("deltas = %q, final = %q, want both Hello", text.String(), last.Response.Text())
	}

	// No vendor usage: the terminal response carries an estimate.
	if last.Response.Usage.Empty() {
		t.Error("usage not estimated")
	}
	found := false
	for _, w := range last.Response.Warnings {
		if w.Code == "estimated_usage" {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %+v, want estimated_usage", last.Response.Warnings)
	}
}

func TestStream_MalformedFrameEndsWithDecodeError(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{`{not-json}`}))
	defer srv.Close()

	c, err := New(VendorOpenAI, "sk-test", WithBaseURL(VendorOpenAI, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	events, err := c.Stream(context.Background(), &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []domain.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("events = %+v, want single terminal error", got)
	}
	if got[0].Type != domain.EventError || got[0].Err.Kind != domain.ErrKindDecode {
		t.Errorf("event = %+v, want decode error", got[0])
	}
}

type modelRewriter struct{}

func (modelRewriter) Name() string { return "rewriter" }

func (modelRewriter) OverrideRoute(ctx context.Context, req *domain.CanonicalRequest) (string, string) {
	return "", "gpt-4o-mini"
}

func TestMiddleware_ModelOverrideReachesWire(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		decodeJSONBody(t, r, &body)
		gotModel = body.Model
		w.Write([]byte(`{"id":"x","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := New(VendorOpenAI, "sk-test",
		WithBaseURL(VendorOpenAI, srv.URL),
		WithMiddleware(modelRewriter{}))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Complete(context.Background(), &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotModel != "gpt-4o-mini" {
		t.Errorf("wire model = %q, want middleware override", gotModel)
	}
}

type deltaMuter struct{}

func (deltaMuter) Name() string { return "delta-muter" }

func (deltaMuter) OnStreamEvent(ctx context.Context, req *domain.CanonicalRequest, ev domain.StreamEvent) []domain.StreamEvent {
	if ev.Type == domain.EventContentDelta {
		return []domain.StreamEvent{}
	}
	return nil
}

func TestStream_MiddlewareSuppressesEvents(t *testing.T) {
	payloads := []string{
		`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"id":"c1","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	}
	srv := httptest.NewServer(sseHandler(t, payloads))
	defer srv.Close()

	c, err := New(VendorOpenAI, "sk-test",
		WithBaseURL(VendorOpenAI, srv.URL),
		WithMiddleware(deltaMuter{}))
	if err != nil {
		t.Fatal(err)
	}

	events, err := c.Stream(context.Background(), &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []domain.StreamEvent
	for ev := range events {
		if ev.Type == domain.EventContentDelta {
			t.Errorf("content delta delivered despite suppression: %+v", ev)
		}
		got = append(got, ev)
	}
	if len(got) == 0 || got[len(got)-1].Type != domain.EventStreamEnd {
		t.Fatalf("events = %+v, want terminal stream_end", got)
	}
	// Suppression hides deltas from the consumer, not from accumulation.
	if text := got[len(got)-1].Response.Text(); text != "Hello" {
		t.Errorf("final text = %q, want Hello", text)
	}
}

type postRecorder struct {
	resp *domain.CanonicalResponse
	err  error
	hits int
}

func (p *postRecorder) Name() string { return "post-recorder" }

func (p *postRecorder) PostGenerate(ctx context.Context, req *domain.CanonicalRequest, resp *domain.CanonicalResponse, err error) {
	p.hits++
	p.resp = resp
	p.err = err
}

var _ middleware.PostGenerator = (*postRecorder)(nil)

func TestComplete_PostGenerateSeesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	pr := &postRecorder{}
	c, err := New(VendorOpenAI, "sk-test",
		WithBaseURL(VendorOpenAI, srv.URL),
		WithMiddleware(pr))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Complete(context.Background(), &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Complete() = nil error, want validation error")
	}
	if pr.hits != 1 || pr.err == nil {
		t.Errorf("post generate hits = %d, err = %v", pr.hits, pr.err)
	}
}

func TestStream_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"id\":\"c\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"},\"finish_reason\":null}]}\n\n")
		fl.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(VendorOpenAI, "sk-test", WithBaseURL(VendorOpenAI, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	events, err := c.Stream(ctx, &domain.CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Consume the first event, then cancel mid-stream.
	<-events
	cancel()

	sawTerminal := false
	for ev := range events {
		if ev.Terminal() {
			sawTerminal = true
			if ev.Type != domain.EventError {
				t.Errorf("terminal = %q, want error after cancellation", ev.Type)
			}
		}
	}
	_ = sawTerminal // the channel may close without a terminal if cancellation raced delivery
}
