package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/polywire/polywire/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetInteraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &Interaction{
		ID:       "int_1",
		Provider: "openai",
		Model:    "gpt-4o",
		Request: &domain.CanonicalRequest{
			Model:    "gpt-4o",
			Messages: []domain.Message{{Role: "user", Content: "hi"}},
		},
		Response: &domain.CanonicalResponse{
			ID:      "resp_1",
			Model:   "gpt-4o",
			Choices: []domain.Choice{{Message: domain.Message{Role: "assistant", Content: "hello"}, FinishReason: domain.FinishStop}},
		},
		Duration: 120 * time.Millisecond,
	}
	if err := s.SaveInteraction(ctx, in); err != nil {
		t.Fatalf("SaveInteraction() error = %v", err)
	}

	got, err := s.GetInteraction(ctx, "int_1")
	if err != nil {
		t.Fatalf("GetInteraction() error = %v", err)
	}
	if got == nil {
		t.Fatal("interaction not found")
	}
	if got.Provider != "openai" || got.Model != "gpt-4o" {
		t.Errorf("interaction = %+v", got)
	}
	if got.Response.Text() != "hello" {
		t.Errorf("response text = %q", got.Response.Text())
	}
	if got.Duration != 120*time.Millisecond {
		t.Errorf("duration = %v", got.Duration)
	}
}

func TestSaveInteraction_WithError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &Interaction{
		ID:       "int_err",
		Provider: "anthropic",
		Model:    "claude-sonnet-4-5",
		Error:    &domain.APIError{Kind: domain.ErrKindRateLimit, Message: "slow down", StatusCode: 429},
	}
	if err := s.SaveInteraction(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetInteraction(ctx, "int_err")
	if err != nil {
		t.Fatal(err)
	}
	if got.Error == nil || got.Error.Kind != domain.ErrKindRateLimit {
		t.Errorf("error = %+v", got.Error)
	}
}

func TestStreamEventsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveInteraction(ctx, &Interaction{ID: "int_s", Provider: "openai", Model: "m", Streaming: true}); err != nil {
		t.Fatal(err)
	}

	events := []StreamEvent{
		{InteractionID: "int_s", Seq: 0, Event: domain.ContentDelta("Hel", 0)},
		{InteractionID: "int_s", Seq: 1, Event: domain.ContentDelta("lo", 0)},
	}
	if err := s.SaveStreamEvents(ctx, events); err != nil {
		t.Fatalf("SaveStreamEvents() error = %v", err)
	}

	got, err := s.ListStreamEvents(ctx, "int_s")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Event.Text != "Hel" || got[1].Event.Text != "lo" {
		t.Errorf("events = %+v", got)
	}
}

func TestGetInteraction_Missing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetInteraction(context.Background(), "absent")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("GetInteraction(absent) = %+v, want nil", got)
	}
}
