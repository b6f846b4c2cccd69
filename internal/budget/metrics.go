package budget

import "log/slog"

// Metrics are request-scoped compaction counters. They exist for
// observability only and never drive control flow; each request
// creates one and logs it at the end.
type Metrics struct {
	MessagesBefore     int
	MessagesAfter      int
	MessagesDropped    int
	CharsTruncated     int
	RoundsSummarized   int
	SummaryInjected    bool
	CompactionTier     int
	PromptTokensBefore int
	PromptTokensAfter  int
}

// LogValue renders the counters as a slog group.
func (m *Metrics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("messages_before", m.MessagesBefore),
		slog.Int("messages_after", m.MessagesAfter),
		slog.Int("messages_dropped", m.MessagesDropped),
		slog.Int("chars_truncated", m.CharsTruncated),
		slog.Int("rounds_summarized", m.RoundsSummarized),
		slog.Bool("summary_injected", m.SummaryInjected),
		slog.Int("compaction_tier", m.CompactionTier),
		slog.Int("tokens_before", m.PromptTokensBefore),
		slog.Int("tokens_after", m.PromptTokensAfter),
	)
}
