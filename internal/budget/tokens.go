package budget

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

// tokenEncoding is compatible with the OpenAI tokenizers and close
// enough for the other backends, where the estimate only gates
// trimming and feeds metrics.
const tokenEncoding = "cl100k_base"

// TokenCounter estimates prompt tokens for canonical messages.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding %s: %w", tokenEncoding, err)
	}
	return &TokenCounter{enc: enc}, nil
}

// EstimateMessages counts tokens across roles, text, tool-call names
// and arguments, and tool result content.
func (c *TokenCounter) EstimateMessages(msgs []chat.Message) int {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(string(msg.Role))
		b.WriteString("\n")
		if msg.Text != "" {
			b.WriteString(msg.Text)
			b.WriteString("\n")
		}
		for _, call := range msg.ToolCalls {
			b.WriteString(call.Name)
			b.WriteString("\n")
			b.Write(call.Arguments)
			b.WriteString("\n")
		}
		if msg.Result != nil {
			b.WriteString(msg.Result.Content)
			b.WriteString("\n")
		}
	}
	text := b.String()
	if c == nil || c.enc == nil {
		// Rough fallback when the encoding is unavailable.
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
