package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/assistant"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/budget"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/config"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/llm"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/tools"
)

type fixedProvider struct{}

func (fixedProvider) Name() string { return "fixed" }

func (fixedProvider) Stream(context.Context, llm.Request) (llm.Stream, error) {
	return llm.NewStaticStream([]llm.Event{
		{Type: llm.EventStart, MessageID: "m1"},
		{Type: llm.EventTextStart, ID: "t1"},
		{Type: llm.EventTextDelta, ID: "t1", Delta: "hello"},
		{Type: llm.EventTextEnd, ID: "t1"},
		{Type: llm.EventFinish, Reason: llm.FinishStop},
		{Type: llm.EventEnd},
	}), nil
}

func newChatHandler() http.HandlerFunc {
	engine := budget.NewEngine(budget.DefaultLimits(), nil)
	svc := assistant.New(fixedProvider{}, engine, nil, tools.Catalog(), nil)
	return handleChat(svc, slog.Default())
}

func TestHandleChat_StreamsSSE(t *testing.T) {
	handler := newChatHandler()

	body := `{"messages":[{"role":"user","parts":[{"type":"text","text":"hi"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("x-vercel-ai-ui-message-stream"); got != "v1" {
		t.Errorf("protocol version header = %q", got)
	}
	out := rec.Body.String()
	if !strings.Contains(out, `"type":"text-delta"`) || !strings.Contains(out, "hello") {
		t.Errorf("body = %q", out)
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("missing terminal marker: %q", out)
	}
}

func TestHandleChat_RejectsNonPost(t *testing.T) {
	handler := newChatHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleChat_RejectsBadJSON(t *testing.T) {
	handler := newChatHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestLimitsFromConfig(t *testing.T) {
	defaults := budget.DefaultLimits()

	got := limitsFromConfig(config.BudgetConfig{})
	if got != defaults {
		t.Errorf("zero config should yield defaults: %+v", got)
	}

	got = limitsFromConfig(config.BudgetConfig{
		SystemContextChars: 1000,
		MaxPromptTokens:    2000,
	})
	if got.SystemContextChars != 1000 || got.MaxPromptTokens != 2000 {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.KeepToolRounds != defaults.KeepToolRounds {
		t.Errorf("unset knob changed: %+v", got)
	}
}

func TestFileContext_MissingFileIsEmpty(t *testing.T) {
	c := fileContext{systemPath: "/nonexistent/context.md"}
	text, err := c.SystemContext(context.Background())
	if err != nil || text != "" {
		t.Errorf("got %q, %v", text, err)
	}
}
