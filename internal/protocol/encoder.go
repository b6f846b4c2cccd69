// Package protocol encodes llm events as the SSE wire format the
// chat UI transport consumes.
package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/llm"
)

// StreamVersion is the protocol version marker the client transport
// checks before parsing the stream.
const StreamVersion = "v1"

// SetHeaders prepares an SSE response. X-Accel-Buffering disables
// proxy buffering so deltas reach the client as they are produced.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("x-vercel-ai-ui-message-stream", StreamVersion)
}

// WriteEvent encodes one event as a single `data:` line. Events the
// wire format has no shape for (llm.EventEnd) are skipped; callers
// finish the stream with WriteDone.
func WriteEvent(w io.Writer, ev llm.Event) error {
	payload, ok := eventPayload(ev)
	if !ok {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// WriteDone emits the literal terminal marker.
func WriteDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}

// eventPayload is a pure map from event to wire object. Ordering is
// the producer's job; the encoder never reorders or buffers.
func eventPayload(ev llm.Event) (map[string]any, bool) {
	switch ev.Type {
	case llm.EventStart:
		return map[string]any{"type": "start", "messageId": ev.MessageID}, true
	case llm.EventReasoningStart:
		return map[string]any{"type": "reasoning-start", "id": ev.ID}, true
	case llm.EventReasoningDelta:
		return map[string]any{"type": "reasoning-delta", "id": ev.ID, "delta": ev.Delta}, true
	case llm.EventReasoningEnd:
		return map[string]any{"type": "reasoning-end", "id": ev.ID}, true
	case llm.EventTextStart:
		return map[string]any{"type": "text-start", "id": ev.ID}, true
	case llm.EventTextDelta:
		return map[string]any{"type": "text-delta", "id": ev.ID, "delta": ev.Delta}, true
	case llm.EventTextEnd:
		return map[string]any{"type": "text-end", "id": ev.ID}, true
	case llm.EventToolInputStart:
		return map[string]any{"type": "tool-input-start", "toolCallId": ev.CallID, "toolName": ev.ToolName}, true
	case llm.EventToolInputDelta:
		return map[string]any{"type": "tool-input-delta", "toolCallId": ev.CallID, "inputTextDelta": ev.Delta}, true
	case llm.EventToolInputAvailable:
		input := json.RawMessage(ev.Input)
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return map[string]any{"type": "tool-input-available", "toolCallId": ev.CallID, "toolName": ev.ToolName, "input": input}, true
	case llm.EventError:
		text := ""
		if ev.Err != nil {
			text = ev.Err.Error()
		}
		return map[string]any{"type": "error", "errorText": text}, true
	case llm.EventFinish:
		return map[string]any{"type": "finish", "finishReason": string(ev.Reason)}, true
	default:
		return nil, false
	}
}
