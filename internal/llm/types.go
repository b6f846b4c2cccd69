// Package llm adapts the canonical chat model to the model backends:
// OpenAI-compatible HTTP APIs, the Anthropic Messages API, and local
// model CLIs driven as subprocesses. Every adapter produces the same
// event sequence so the outbound encoder never knows which backend
// served the request.
package llm

import (
	"context"
	"encoding/json"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

// Provider streams model output events for a request.
//
// The error return covers the request-construction step only: a
// normalized *ProviderError (for example context-too-large) is
// reported here, before any events exist, so the caller can compact
// and retry. Once a Stream is returned, failures surface as Error
// events inside the stream.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model turn.
type Request struct {
	Model           string
	Messages        []chat.Message
	Tools           []ToolSpec
	MaxOutputTokens int
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// EventType describes streaming events. The names mirror the wire
// protocol the client transport expects.
type EventType string

const (
	EventStart              EventType = "start"
	EventReasoningStart     EventType = "reasoning-start"
	EventReasoningDelta     EventType = "reasoning-delta"
	EventReasoningEnd       EventType = "reasoning-end"
	EventTextStart          EventType = "text-start"
	EventTextDelta          EventType = "text-delta"
	EventTextEnd            EventType = "text-end"
	EventToolInputStart     EventType = "tool-input-start"
	EventToolInputDelta     EventType = "tool-input-delta"
	EventToolInputAvailable EventType = "tool-input-available"
	EventError              EventType = "error"
	EventFinish             EventType = "finish"
	EventEnd                EventType = "end"
)

// FinishReason is the normalized finish reason carried by Finish.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
)

// Event represents a streamed output update.
type Event struct {
	Type      EventType
	MessageID string          // EventStart
	ID        string          // reasoning/text part id
	Delta     string          // text for delta events
	CallID    string          // tool-input events
	ToolName  string          // tool-input-start/available
	Input     json.RawMessage // tool-input-available: parsed argument object
	Reason    FinishReason    // EventFinish
	Err       error           // EventError
}
