package budget

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

const (
	droppedUserRequestMax  = 3
	droppedUserRequestLen  = 120
	droppedAssistantLen    = 200
	droppedToolActionsMax  = 12
	droppedToolArgValueLen = 40
)

// TrimHistory retains at most maxNonSystem messages of the
// conversation tail. The kept suffix is adjusted so it never begins
// with an orphaned tool result, and a synthetic system message
// summarizing the dropped prefix is injected so the model keeps its
// orientation without the full token cost.
func TrimHistory(msgs []chat.Message, maxNonSystem int, m *Metrics) []chat.Message {
	if maxNonSystem < 0 {
		maxNonSystem = 0
	}

	head := 0
	for head < len(msgs) && msgs[head].Role == chat.RoleSystem {
		head++
	}
	tail := msgs[head:]
	if len(tail) <= maxNonSystem {
		return msgs
	}

	start := len(tail) - maxNonSystem
	// Never let the window open on a tool result whose call lives in
	// the dropped prefix.
	for start < len(tail) && tail[start].Role == chat.RoleTool {
		start++
	}

	dropped := tail[:start]
	kept := tail[start:]

	out := make([]chat.Message, 0, head+1+len(kept))
	out = append(out, msgs[:head]...)
	out = append(out, chat.SystemText(summarizeDropped(dropped)))
	out = append(out, kept...)

	if m != nil {
		m.SummaryInjected = true
		m.MessagesDropped += len(dropped)
	}
	return out
}

// summarizeDropped renders the dropped prefix as a short orientation
// note: the recent user requests, the tool actions taken, and the
// last assistant remark.
func summarizeDropped(dropped []chat.Message) string {
	var users []string
	var lastAssistant string
	toolActions := make(map[string]string)
	var toolOrder []string

	for _, msg := range dropped {
		switch msg.Role {
		case chat.RoleUser:
			users = append(users, truncateText(msg.Text, droppedUserRequestLen))
		case chat.RoleAssistant:
			if msg.Text != "" {
				lastAssistant = truncateText(msg.Text, droppedAssistantLen)
			}
			for _, call := range msg.ToolCalls {
				if _, seen := toolActions[call.Name]; !seen {
					toolActions[call.Name] = representativeArgument(call)
					toolOrder = append(toolOrder, call.Name)
				}
			}
		}
	}
	if len(users) > droppedUserRequestMax {
		users = users[len(users)-droppedUserRequestMax:]
	}
	if len(toolOrder) > droppedToolActionsMax {
		toolOrder = toolOrder[:droppedToolActionsMax]
	}

	var b strings.Builder
	b.WriteString("[Earlier conversation trimmed]")
	if len(users) > 0 {
		b.WriteString("\nRecent user requests:")
		for _, u := range users {
			b.WriteString("\n- ")
			b.WriteString(u)
		}
	}
	if len(toolOrder) > 0 {
		b.WriteString("\nTool actions taken:")
		for _, name := range toolOrder {
			b.WriteString("\n- ")
			b.WriteString(name)
			if arg := toolActions[name]; arg != "" {
				b.WriteString(" (")
				b.WriteString(arg)
				b.WriteString(")")
			}
		}
	}
	if lastAssistant != "" {
		b.WriteString("\nLast assistant note: ")
		b.WriteString(lastAssistant)
	}
	return b.String()
}

// representativeArgument picks one stable key=value pair out of a
// call's arguments, preferring the fields that identify what the
// action touched.
func representativeArgument(call chat.ToolCall) string {
	obj, ok := decodeObject(call.Arguments)
	if !ok || len(obj) == 0 {
		return ""
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, preferred := range []string{"nodeType", "nodeId", "name", "type", "query"} {
		if _, ok := obj[preferred]; ok {
			keys = append([]string{preferred}, keys...)
			break
		}
	}
	for _, key := range keys {
		switch val := obj[key].(type) {
		case string:
			return fmt.Sprintf("%s=%s", key, truncateText(val, droppedToolArgValueLen))
		case float64:
			return fmt.Sprintf("%s=%s", key, formatNumber(val))
		case bool:
			return fmt.Sprintf("%s=%t", key, val)
		}
	}
	return ""
}

func truncateText(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
