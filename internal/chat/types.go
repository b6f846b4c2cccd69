package chat

import "encoding/json"

// Role identifies a canonical message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the canonical pivot representation. Every inbound wire
// format is converted into it and every provider request is built
// from it. Assistant messages may carry tool calls; tool messages
// carry exactly one result.
type Message struct {
	Role      Role
	Text      string
	ToolCalls []ToolCall
	Result    *ToolResult
}

// ToolCall is a model-requested tool invocation. Arguments must be
// syntactically complete JSON once the owning message is finalized.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the recorded output of a tool call.
type ToolResult struct {
	CallID  string
	Content string
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Result: &ToolResult{CallID: callID, Content: content}}
}

// Round groups one assistant message carrying tool calls with the
// maximal run of tool results that immediately follow it. Rounds are
// the unit of context budgeting: kept whole or collapsed whole,
// never split. Indexes refer into the owning message slice.
type Round struct {
	Assistant int
	Results   []int
}

// Rounds derives the tool rounds of a canonical message list.
// Assistant messages without tool calls do not open a round.
func Rounds(msgs []Message) []Round {
	var rounds []Round
	for i := 0; i < len(msgs); i++ {
		if msgs[i].Role != RoleAssistant || len(msgs[i].ToolCalls) == 0 {
			continue
		}
		round := Round{Assistant: i}
		for j := i + 1; j < len(msgs) && msgs[j].Role == RoleTool; j++ {
			round.Results = append(round.Results, j)
		}
		rounds = append(rounds, round)
	}
	return rounds
}
