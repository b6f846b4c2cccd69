package llm

import (
	"fmt"
	"strings"
	"testing"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func feedAll(p *thinkParser, chunks ...string) []Event {
	var out []Event
	for _, chunk := range chunks {
		out = append(out, p.Feed(chunk)...)
	}
	return append(out, p.End()...)
}

func joinedText(events []Event, t EventType) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == t {
			b.WriteString(ev.Delta)
		}
	}
	return b.String()
}

func TestThinkParser_InlineBlock(t *testing.T) {
	p := newThinkParser(sequentialIDs())
	events := feedAll(p, "Sure.<think>check state</think> Done.")

	if got := joinedText(events, EventReasoningDelta); got != "check state" {
		t.Errorf("reasoning = %q", got)
	}
	if got := joinedText(events, EventTextDelta); got != "Sure. Done." {
		t.Errorf("text = %q", got)
	}

	// Reasoning must be fully closed before any text event.
	reasoningEnd, textStart := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case EventReasoningEnd:
			reasoningEnd = i
		case EventTextStart:
			if textStart == -1 {
				textStart = i
			}
		}
	}
	if reasoningEnd == -1 || textStart == -1 || reasoningEnd > textStart {
		t.Errorf("reasoning not closed before text: %v", events)
	}
}

func TestThinkParser_TagSplitAcrossChunks(t *testing.T) {
	p := newThinkParser(sequentialIDs())

	var early []Event
	early = append(early, p.Feed("<thi")...)
	early = append(early, p.Feed("nk>secret</th")...)
	if len(early) != 0 {
		t.Fatalf("events emitted before block resolved: %v", early)
	}

	events := p.Feed("ink>visible")
	events = append(events, p.End()...)
	if got := joinedText(events, EventReasoningDelta); got != "secret" {
		t.Errorf("reasoning = %q", got)
	}
	if got := joinedText(events, EventTextDelta); got != "visible" {
		t.Errorf("text = %q", got)
	}
}

func TestThinkParser_PlainTextStreamsImmediately(t *testing.T) {
	p := newThinkParser(sequentialIDs())

	first := p.Feed("Hello ")
	if len(first) != 2 || first[0].Type != EventTextStart || first[1].Delta != "Hello " {
		t.Fatalf("expected immediate text start+delta, got %v", first)
	}
	second := p.Feed("world")
	if len(second) != 1 || second[0].Type != EventTextDelta {
		t.Fatalf("expected single delta, got %v", second)
	}
	if second[0].ID != first[0].ID {
		t.Errorf("text id changed mid-message: %q vs %q", second[0].ID, first[0].ID)
	}
}

func TestThinkParser_SingleTextIDAcrossMessage(t *testing.T) {
	p := newThinkParser(sequentialIDs())
	events := feedAll(p, "<think>a</think>", "first ", "second")

	ids := map[string]bool{}
	starts := 0
	for _, ev := range events {
		switch ev.Type {
		case EventTextStart:
			starts++
		case EventTextDelta:
			ids[ev.ID] = true
		}
	}
	if starts != 1 || len(ids) != 1 {
		t.Errorf("expected exactly one text id, got %d starts over ids %v", starts, ids)
	}
}

func TestThinkParser_ReasoningAfterTextRotatesTextID(t *testing.T) {
	p := newThinkParser(sequentialIDs())
	events := feedAll(p, "Hello ", "<think>hm</think> world")

	if got := joinedText(events, EventReasoningDelta); got != "hm" {
		t.Errorf("reasoning = %q", got)
	}
	if got := joinedText(events, EventTextDelta); got != "Hello  world" {
		t.Errorf("text = %q", got)
	}

	// The open text part is closed before the reasoning triple and a
	// fresh text id opens after it.
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []EventType{
		EventTextStart, EventTextDelta, EventTextEnd,
		EventReasoningStart, EventReasoningDelta, EventReasoningEnd,
		EventTextStart, EventTextDelta, EventTextEnd,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
	if events[0].ID == events[6].ID {
		t.Errorf("text id not rotated across the reasoning burst: %q", events[0].ID)
	}
}

func TestThinkParser_SecondBlockIsLiteral(t *testing.T) {
	p := newThinkParser(sequentialIDs())
	events := feedAll(p, "<think>a</think>done", "<think>later</think>")

	if got := joinedText(events, EventReasoningDelta); got != "a" {
		t.Errorf("reasoning = %q", got)
	}
	if got := joinedText(events, EventTextDelta); got != "done<think>later</think>" {
		t.Errorf("text = %q", got)
	}
}

func TestThinkParser_UnclosedBlockFlushedAsText(t *testing.T) {
	p := newThinkParser(sequentialIDs())
	events := feedAll(p, "<think>never closed")

	if got := joinedText(events, EventReasoningDelta); got != "" {
		t.Errorf("unexpected reasoning %q", got)
	}
	if got := joinedText(events, EventTextDelta); got != "<think>never closed" {
		t.Errorf("text = %q", got)
	}
}

func TestThinkParser_EndClosesOpenText(t *testing.T) {
	p := newThinkParser(sequentialIDs())
	events := feedAll(p, "plain")

	last := events[len(events)-1]
	if last.Type != EventTextEnd {
		t.Errorf("expected trailing text-end, got %v", last)
	}
	if !p.TextEmitted() {
		t.Errorf("TextEmitted should be true after text")
	}
}
