package chat

import (
	"encoding/json"
	"strings"
)

// UIMessage is one message from the chat panel payload. Parts carry
// interleaved text and tool-invocation activity with per-part
// lifecycle state.
type UIMessage struct {
	ID    string   `json:"id,omitempty"`
	Role  string   `json:"role"`
	Parts []UIPart `json:"parts"`
}

// UIPart is a single content part of a UI message. Tool parts use
// type "tool-<name>" or "dynamic-tool"; the older "tool-call" /
// "tool-result" shapes are accepted as an alternate encoding of the
// same semantics.
type UIPart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`

	// Legacy field spellings.
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Tool part lifecycle states.
const (
	StateInputAvailable  = "input-available"
	StateOutputAvailable = "output-available"
	StateOutputError     = "output-error"
)

// ImportUIMessages converts the UI payload into canonical messages.
// System and user text parts are concatenated into single messages;
// assistant parts are grouped into rounds so every tool result
// immediately follows the assistant message that requested it. User
// text starting with "/" is a local slash command and is excluded.
func ImportUIMessages(uiMsgs []UIMessage) []Message {
	var out []Message
	for _, msg := range uiMsgs {
		switch msg.Role {
		case "system":
			if text := collectText(msg.Parts); text != "" {
				out = append(out, SystemText(text))
			}
		case "user":
			text := collectText(msg.Parts)
			if text == "" || strings.HasPrefix(strings.TrimSpace(text), "/") {
				continue
			}
			out = append(out, UserText(text))
		case "assistant":
			out = appendAssistantRounds(out, msg.Parts)
		}
	}
	return out
}

func collectText(parts []UIPart) string {
	var texts []string
	for _, part := range parts {
		if part.Type == "text" && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// roundBuilder accumulates one round of assistant activity: text,
// deduplicated tool calls, and the results answering them.
type roundBuilder struct {
	texts   []string
	calls   []ToolCall
	seen    map[string]bool
	results []Message
}

func newRoundBuilder() *roundBuilder {
	return &roundBuilder{seen: make(map[string]bool)}
}

func (b *roundBuilder) empty() bool {
	return len(b.texts) == 0 && len(b.calls) == 0
}

func (b *roundBuilder) addCall(call ToolCall) {
	if b.seen[call.ID] {
		return
	}
	b.seen[call.ID] = true
	b.calls = append(b.calls, call)
}

func (b *roundBuilder) addResult(callID, content string) {
	if !b.seen[callID] {
		return
	}
	b.results = append(b.results, ToolResultMessage(callID, content))
}

func (b *roundBuilder) flush(out []Message) []Message {
	if b.empty() {
		return out
	}
	out = append(out, Message{
		Role:      RoleAssistant,
		Text:      strings.Join(b.texts, "\n"),
		ToolCalls: b.calls,
	})
	return append(out, b.results...)
}

// appendAssistantRounds scans assistant parts in order. A text part
// arriving after tool activity starts a new round: the assistant
// explained, later reported on tool results, then commented again.
func appendAssistantRounds(out []Message, parts []UIPart) []Message {
	round := newRoundBuilder()
	sawTool := false

	for _, part := range parts {
		if part.Type == "text" {
			if sawTool {
				out = round.flush(out)
				round = newRoundBuilder()
				sawTool = false
			}
			if part.Text != "" {
				round.texts = append(round.texts, part.Text)
			}
			continue
		}

		name, ok := toolPartName(part)
		if !ok {
			continue
		}
		if part.ToolCallID == "" {
			// A tool part without a call ID cannot be paired with a
			// result and is dropped.
			continue
		}
		sawTool = true

		if part.Type == "tool-result" {
			round.addResult(part.ToolCallID, legacyResultContent(part))
			continue
		}

		round.addCall(ToolCall{
			ID:        part.ToolCallID,
			Name:      name,
			Arguments: normalizeArguments(part),
		})

		switch part.State {
		case StateOutputAvailable:
			round.addResult(part.ToolCallID, string(part.Output))
		case StateOutputError:
			round.addResult(part.ToolCallID, errorResultContent(part.ErrorText))
		}
	}

	return round.flush(out)
}

// toolPartName resolves the tool name for any accepted part shape.
func toolPartName(part UIPart) (string, bool) {
	switch {
	case part.Type == "dynamic-tool", part.Type == "tool-call", part.Type == "tool-result":
		return part.ToolName, true
	case strings.HasPrefix(part.Type, "tool-"):
		return strings.TrimPrefix(part.Type, "tool-"), true
	}
	return "", false
}

func normalizeArguments(part UIPart) json.RawMessage {
	args := part.Input
	if len(args) == 0 {
		args = part.Args
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return args
}

func legacyResultContent(part UIPart) string {
	if len(part.Result) > 0 {
		return string(part.Result)
	}
	return string(part.Output)
}

func errorResultContent(msg string) string {
	if msg == "" {
		msg = "tool execution failed"
	}
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
