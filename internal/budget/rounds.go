package budget

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

// summaryListCap bounds array fields rendered into a round summary.
const summaryListCap = 8

// scalarSummaryFields are the well-known result fields worth keeping
// in a one-line summary, in render order.
var scalarSummaryFields = []string{"nodeId", "id", "name", "type", "nodeType", "count", "total"}

// SummarizeToolRounds collapses tool results of every round older
// than the last keepLast rounds to a one-line summary. The owning
// assistant message — which still shows the tool name and arguments —
// is never altered; only the paired result content shrinks.
func SummarizeToolRounds(msgs []chat.Message, keepLast int, m *Metrics) []chat.Message {
	rounds := chat.Rounds(msgs)
	if len(rounds) <= keepLast {
		return msgs
	}

	out := make([]chat.Message, len(msgs))
	copy(out, msgs)

	for _, round := range rounds[:len(rounds)-keepLast] {
		names := callNames(out[round.Assistant].ToolCalls)
		summarized := false
		for _, idx := range round.Results {
			result := out[idx].Result
			if result == nil || isSummary(result.Content) {
				continue
			}
			out[idx] = chat.ToolResultMessage(result.CallID, summarizeResult(names[result.CallID], result.Content))
			summarized = true
		}
		if summarized && m != nil {
			m.RoundsSummarized++
		}
	}
	return out
}

func callNames(calls []chat.ToolCall) map[string]string {
	names := make(map[string]string, len(calls))
	for _, call := range calls {
		names[call.ID] = call.Name
	}
	return names
}

func isSummary(content string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return false
	}
	_, ok := probe["_summary"]
	return ok && len(probe) == 1
}

// summarizeResult reduces a tool result payload to
// {"_summary":"<tool>: ok (k=v, …)"} or
// {"_summary":"<tool>: error — <msg>"}. The payload is inspected for
// a success/error flag, a small set of well-known scalar fields, and
// at most one array field rendered as a capped name list.
func summarizeResult(tool, content string) string {
	if tool == "" {
		tool = "tool"
	}

	var payload any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return encodeSummary(fmt.Sprintf("%s: ok", tool))
	}

	obj, isObject := payload.(map[string]any)
	if !isObject {
		return encodeSummary(fmt.Sprintf("%s: ok", tool))
	}

	if msg, failed := errorMessage(obj); failed {
		return encodeSummary(fmt.Sprintf("%s: error — %s", tool, msg))
	}

	details := scalarDetails(obj)
	if list := arrayDetail(obj); list != "" {
		details = append(details, list)
	}
	if len(details) == 0 {
		return encodeSummary(fmt.Sprintf("%s: ok", tool))
	}
	return encodeSummary(fmt.Sprintf("%s: ok (%s)", tool, strings.Join(details, ", ")))
}

func encodeSummary(text string) string {
	b, _ := json.Marshal(map[string]string{"_summary": text})
	return string(b)
}

// errorMessage detects the failure shapes produced by the tool layer:
// an "error" string, or ok/success flags set to false.
func errorMessage(obj map[string]any) (string, bool) {
	if msg, ok := obj["error"].(string); ok && msg != "" {
		return msg, true
	}
	for _, flag := range []string{"ok", "success"} {
		if v, ok := obj[flag].(bool); ok && !v {
			if msg, ok := obj["message"].(string); ok && msg != "" {
				return msg, true
			}
			return "failed", true
		}
	}
	return "", false
}

func scalarDetails(obj map[string]any) []string {
	var details []string
	for _, field := range scalarSummaryFields {
		v, ok := obj[field]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			details = append(details, fmt.Sprintf("%s=%s", field, val))
		case float64:
			details = append(details, fmt.Sprintf("%s=%s", field, formatNumber(val)))
		case bool:
			details = append(details, fmt.Sprintf("%s=%t", field, val))
		}
	}
	return details
}

// arrayDetail renders the first array-valued field as a name list,
// capped with an overflow marker.
func arrayDetail(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		arr, ok := obj[key].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		names := make([]string, 0, summaryListCap)
		for _, item := range arr {
			if len(names) == summaryListCap {
				break
			}
			names = append(names, itemName(item))
		}
		if extra := len(arr) - len(names); extra > 0 {
			names = append(names, fmt.Sprintf("+%d more", extra))
		}
		return fmt.Sprintf("%s=[%s]", key, strings.Join(names, ", "))
	}
	return ""
}

// itemName extracts a display name from an array element. JSON
// decoding yields a closed set of value types, matched exhaustively.
func itemName(item any) string {
	switch val := item.(type) {
	case string:
		return val
	case float64:
		return formatNumber(val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return "null"
	case map[string]any:
		for _, key := range []string{"name", "type", "title", "id"} {
			if s, ok := val[key].(string); ok && s != "" {
				return s
			}
			if n, ok := val[key].(float64); ok {
				return formatNumber(n)
			}
		}
		return "{…}"
	case []any:
		return fmt.Sprintf("[%d]", len(val))
	default:
		return "?"
	}
}

func decodeObject(raw []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
