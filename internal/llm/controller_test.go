package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/budget"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

// scriptedProvider fails with the scripted errors in order, then
// succeeds with a minimal stream.
type scriptedProvider struct {
	errs  []error
	calls int
	seen  [][]chat.Message
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(_ context.Context, req Request) (Stream, error) {
	p.calls++
	p.seen = append(p.seen, req.Messages)
	if p.calls <= len(p.errs) && p.errs[p.calls-1] != nil {
		return nil, p.errs[p.calls-1]
	}
	return NewStaticStream([]Event{
		{Type: EventStart, MessageID: "m1"},
		{Type: EventFinish, Reason: FinishStop},
		{Type: EventEnd},
	}), nil
}

func retrierConversation() []chat.Message {
	msgs := []chat.Message{chat.SystemText("system"), chat.UserText("hello")}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		msgs = append(msgs,
			chat.Message{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{
				{ID: id, Name: "getWorkflowState", Arguments: json.RawMessage(`{}`)},
			}},
			chat.ToolResultMessage(id, `{"ok":true,"nodes":["a","b","c"]}`),
		)
	}
	return msgs
}

func tooLarge() error {
	return &ProviderError{Kind: KindContextTooLarge, HTTPStatus: 413, Message: "payload too large"}
}

func newTestRetrier(p Provider, maxAttempts int) *CompactionRetrier {
	engine := budget.NewEngine(budget.DefaultLimits(), nil)
	return NewCompactionRetrier(p, engine, maxAttempts, nil)
}

func TestCompactionRetrier_RetriesThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{errs: []error{tooLarge()}}
	retrier := newTestRetrier(provider, 2)

	stream, err := retrier.Stream(context.Background(), Request{Messages: retrierConversation()})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := drainStream(t, stream)

	if provider.calls != 2 {
		t.Errorf("provider invoked %d times, want 2", provider.calls)
	}
	for _, ev := range events {
		if ev.Type == EventError {
			t.Errorf("unexpected error event after successful retry")
		}
	}
	// The retry must carry compacted messages, not the originals.
	second := provider.seen[1]
	summarized := false
	for _, msg := range second {
		if msg.Result != nil && msg.Result.Content != `{"ok":true,"nodes":["a","b","c"]}` {
			summarized = true
		}
	}
	if !summarized {
		t.Errorf("retry was not compacted")
	}
}

func TestCompactionRetrier_ExhaustsAttempts(t *testing.T) {
	provider := &scriptedProvider{errs: []error{tooLarge(), tooLarge(), tooLarge()}}
	retrier := newTestRetrier(provider, 2)

	stream, err := retrier.Stream(context.Background(), Request{Messages: retrierConversation()})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := drainStream(t, stream)

	// maxAttempts=2 bounds compaction: 3 invocations total, then a
	// single terminal error stream.
	if provider.calls != 3 {
		t.Errorf("provider invoked %d times, want 3", provider.calls)
	}
	errorCount := 0
	for _, ev := range events {
		if ev.Type == EventError {
			errorCount++
		}
	}
	if errorCount != 1 {
		t.Errorf("error events = %d, want 1", errorCount)
	}
	got := eventTypes(events)
	want := []EventType{EventStart, EventError, EventFinish, EventEnd}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestCompactionRetrier_RateLimitNeverRetried(t *testing.T) {
	provider := &scriptedProvider{errs: []error{
		&ProviderError{Kind: KindRateLimited, HTTPStatus: 429, Message: "too many requests"},
	}}
	retrier := newTestRetrier(provider, 2)

	stream, err := retrier.Stream(context.Background(), Request{Messages: retrierConversation()})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := drainStream(t, stream)

	if provider.calls != 1 {
		t.Errorf("rate limit retried: %d calls", provider.calls)
	}
	var errEvent *Event
	for i := range events {
		if events[i].Type == EventError {
			errEvent = &events[i]
		}
	}
	if errEvent == nil {
		t.Fatal("missing error event")
	}
	if errEvent.Err.Error() != RateLimitMessage {
		t.Errorf("error = %q, want the fixed rate-limit message", errEvent.Err.Error())
	}
}

func TestCompactionRetrier_GenericErrorTerminal(t *testing.T) {
	provider := &scriptedProvider{errs: []error{
		&ProviderError{Kind: KindGeneric, Message: "connection refused"},
	}}
	retrier := newTestRetrier(provider, 2)

	stream, err := retrier.Stream(context.Background(), Request{Messages: retrierConversation()})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := drainStream(t, stream)

	if provider.calls != 1 {
		t.Errorf("generic error retried: %d calls", provider.calls)
	}
	if events[1].Type != EventError || events[1].Err.Error() != "connection refused" {
		t.Errorf("events = %v", events)
	}
}
