// Package budget bounds the size of a canonical message list before
// it is handed to a provider adapter. It operates purely on the
// canonical model and knows nothing about any wire format.
package budget

import (
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

// Limits are the configured budgets for a request.
type Limits struct {
	SystemContextChars int // max characters for the merged system context
	KeepToolRounds     int // tool rounds kept verbatim at the tail
	MaxHistoryMessages int // max non-system messages retained
	MaxPromptTokens    int // estimated-token gate for first-pass trimming (0 = always trim)
}

// DefaultLimits returns the budgets used when the config is silent.
func DefaultLimits() Limits {
	return Limits{
		SystemContextChars: 24000,
		KeepToolRounds:     3,
		MaxHistoryMessages: 40,
		MaxPromptTokens:    48000,
	}
}

// Engine applies the configured limits. One engine is shared across
// requests; all methods are pure with respect to engine state.
type Engine struct {
	limits  Limits
	counter *TokenCounter
}

func NewEngine(limits Limits, counter *TokenCounter) *Engine {
	if limits.SystemContextChars <= 0 {
		limits.SystemContextChars = DefaultLimits().SystemContextChars
	}
	if limits.MaxHistoryMessages <= 0 {
		limits.MaxHistoryMessages = DefaultLimits().MaxHistoryMessages
	}
	return &Engine{limits: limits, counter: counter}
}

func (e *Engine) Limits() Limits {
	return e.limits
}

// FirstPass applies the standing budgets before the first provider
// attempt: system-context truncation always, round summarization and
// history trimming only when the estimated prompt size warrants it.
func (e *Engine) FirstPass(msgs []chat.Message, m *Metrics) []chat.Message {
	m.MessagesBefore = len(msgs)
	if e.counter != nil {
		m.PromptTokensBefore = e.counter.EstimateMessages(msgs)
	}

	out := e.truncateSystem(msgs, e.limits.SystemContextChars, m)
	if e.needsTrimming(out) {
		out = SummarizeToolRounds(out, e.limits.KeepToolRounds, m)
		out = TrimHistory(out, e.limits.MaxHistoryMessages, m)
	}

	m.MessagesAfter = len(out)
	if e.counter != nil {
		m.PromptTokensAfter = e.counter.EstimateMessages(out)
	}
	return out
}

// Compact is the retry-driven escalation, invoked only after a
// provider reports context-too-large. Tier 1 summarizes every round
// including the most recent; tier 2 additionally halves the history
// window and the system-context budget. Tiers above 2 repeat tier 2.
func (e *Engine) Compact(msgs []chat.Message, attempt int, m *Metrics) []chat.Message {
	tier := attempt
	if tier > 2 {
		tier = 2
	}
	m.CompactionTier = tier

	out := SummarizeToolRounds(msgs, 0, m)
	if tier >= 2 {
		out = TrimHistory(out, e.limits.MaxHistoryMessages/2, m)
		out = e.truncateSystem(out, e.limits.SystemContextChars/2, m)
	}

	m.MessagesAfter = len(out)
	if e.counter != nil {
		m.PromptTokensAfter = e.counter.EstimateMessages(out)
	}
	return out
}

func (e *Engine) needsTrimming(msgs []chat.Message) bool {
	if e.counter == nil || e.limits.MaxPromptTokens <= 0 {
		return true
	}
	return e.counter.EstimateMessages(msgs) > e.limits.MaxPromptTokens
}

// truncateSystem applies the system-context budget to the first
// system message; later system messages (injected history summaries)
// are short by construction and left alone.
func (e *Engine) truncateSystem(msgs []chat.Message, maxChars int, m *Metrics) []chat.Message {
	for i, msg := range msgs {
		if msg.Role != chat.RoleSystem {
			continue
		}
		truncated := TruncateSystemContext(msg.Text, maxChars)
		if truncated == msg.Text {
			return msgs
		}
		m.CharsTruncated += len(msg.Text) - len(truncated)
		out := make([]chat.Message, len(msgs))
		copy(out, msgs)
		out[i].Text = truncated
		return out
	}
	return msgs
}
