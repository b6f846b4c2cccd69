package chat

import (
	"encoding/json"
	"testing"
)

func TestImportUIMessages_TextRoles(t *testing.T) {
	msgs := ImportUIMessages([]UIMessage{
		{Role: "system", Parts: []UIPart{{Type: "text", Text: "You are a ComfyUI assistant."}}},
		{Role: "user", Parts: []UIPart{{Type: "text", Text: "Add a KSampler"}}},
	})

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem {
		t.Errorf("expected system role, got %q", msgs[0].Role)
	}
	if msgs[1].Role != RoleUser || msgs[1].Text != "Add a KSampler" {
		t.Errorf("unexpected user message: %+v", msgs[1])
	}
}

func TestImportUIMessages_SlashCommandExcluded(t *testing.T) {
	msgs := ImportUIMessages([]UIMessage{
		{Role: "user", Parts: []UIPart{{Type: "text", Text: "/clear"}}},
		{Role: "user", Parts: []UIPart{{Type: "text", Text: "hello"}}},
	})

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "hello" {
		t.Errorf("expected slash command dropped, got %q", msgs[0].Text)
	}
}

func TestImportUIMessages_RoundGrouping(t *testing.T) {
	msgs := ImportUIMessages([]UIMessage{
		{Role: "assistant", Parts: []UIPart{
			{Type: "text", Text: "Adding the sampler."},
			{Type: "tool-addNode", ToolCallID: "call-1", State: StateOutputAvailable,
				Input: json.RawMessage(`{"nodeType":"KSampler"}`), Output: json.RawMessage(`{"ok":true,"nodeId":3}`)},
			{Type: "text", Text: "Done, the sampler is wired in."},
			{Type: "tool-connectNodes", ToolCallID: "call-2", State: StateOutputAvailable,
				Input: json.RawMessage(`{"from":3,"to":4}`), Output: json.RawMessage(`{"ok":true}`)},
		}},
	})

	// Two rounds: [assistant+call-1, result-1, assistant+call-2, result-2].
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != RoleAssistant || len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].ID != "call-1" {
		t.Errorf("unexpected first round assistant: %+v", msgs[0])
	}
	if msgs[1].Role != RoleTool || msgs[1].Result.CallID != "call-1" {
		t.Errorf("expected result for call-1, got %+v", msgs[1])
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Text != "Done, the sampler is wired in." {
		t.Errorf("unexpected second round assistant: %+v", msgs[2])
	}
	if msgs[3].Role != RoleTool || msgs[3].Result.CallID != "call-2" {
		t.Errorf("expected result for call-2, got %+v", msgs[3])
	}
}

func TestImportUIMessages_NoOrphanedResults(t *testing.T) {
	msgs := ImportUIMessages([]UIMessage{
		{Role: "user", Parts: []UIPart{{Type: "text", Text: "build the graph"}}},
		{Role: "assistant", Parts: []UIPart{
			{Type: "tool-addNode", ToolCallID: "a", State: StateOutputAvailable, Output: json.RawMessage(`{"ok":true}`)},
			{Type: "tool-addNode", ToolCallID: "b", State: StateOutputError, ErrorText: "node type unknown"},
		}},
	})

	for i, msg := range msgs {
		if msg.Role != RoleTool {
			continue
		}
		if i == 0 {
			t.Fatalf("tool result at head of list")
		}
		prev := msgs[i-1]
		found := false
		for back := i - 1; back >= 0; back-- {
			if msgs[back].Role == RoleAssistant {
				prev = msgs[back]
				break
			}
		}
		for _, call := range prev.ToolCalls {
			if call.ID == msg.Result.CallID {
				found = true
			}
		}
		if !found {
			t.Errorf("tool result %q has no owning assistant call", msg.Result.CallID)
		}
	}
}

func TestImportUIMessages_ErrorStateBecomesErrorJSON(t *testing.T) {
	msgs := ImportUIMessages([]UIMessage{
		{Role: "assistant", Parts: []UIPart{
			{Type: "tool-addNode", ToolCallID: "x", State: StateOutputError, ErrorText: "boom"},
		}},
	})

	if len(msgs) != 2 {
		t.Fatalf("expected assistant + result, got %d messages", len(msgs))
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(msgs[1].Result.Content), &payload); err != nil {
		t.Fatalf("result content is not JSON: %v", err)
	}
	if payload["error"] != "boom" {
		t.Errorf("expected error field, got %v", payload)
	}
}

func TestImportUIMessages_DedupAndEmptyCallID(t *testing.T) {
	msgs := ImportUIMessages([]UIMessage{
		{Role: "assistant", Parts: []UIPart{
			{Type: "tool-addNode", ToolCallID: "dup", State: StateInputAvailable, Input: json.RawMessage(`{"nodeType":"KSampler"}`)},
			{Type: "tool-addNode", ToolCallID: "dup", State: StateOutputAvailable, Output: json.RawMessage(`{"ok":true}`)},
			{Type: "tool-addNode", ToolCallID: "", State: StateOutputAvailable, Output: json.RawMessage(`{"ok":true}`)},
		}},
	})

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(msgs), msgs)
	}
	if len(msgs[0].ToolCalls) != 1 {
		t.Errorf("expected deduplicated call list, got %d calls", len(msgs[0].ToolCalls))
	}
}

func TestImportUIMessages_LegacyShapes(t *testing.T) {
	msgs := ImportUIMessages([]UIMessage{
		{Role: "assistant", Parts: []UIPart{
			{Type: "tool-call", ToolCallID: "c1", ToolName: "removeNode", Args: json.RawMessage(`{"nodeId":9}`)},
			{Type: "tool-result", ToolCallID: "c1", ToolName: "removeNode", Result: json.RawMessage(`{"ok":true}`)},
		}},
	})

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ToolCalls[0].Name != "removeNode" {
		t.Errorf("expected legacy tool-call normalized, got %+v", msgs[0].ToolCalls)
	}
	if string(msgs[0].ToolCalls[0].Arguments) != `{"nodeId":9}` {
		t.Errorf("expected legacy args carried over, got %s", msgs[0].ToolCalls[0].Arguments)
	}
	if msgs[1].Result.Content != `{"ok":true}` {
		t.Errorf("expected legacy result carried over, got %q", msgs[1].Result.Content)
	}
}

func TestRounds(t *testing.T) {
	msgs := []Message{
		SystemText("sys"),
		UserText("hi"),
		{Role: RoleAssistant, Text: "working", ToolCalls: []ToolCall{{ID: "1", Name: "addNode"}}},
		ToolResultMessage("1", `{"ok":true}`),
		AssistantText("all done"),
	}

	rounds := Rounds(msgs)
	if len(rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(rounds))
	}
	if rounds[0].Assistant != 2 || len(rounds[0].Results) != 1 || rounds[0].Results[0] != 3 {
		t.Errorf("unexpected round: %+v", rounds[0])
	}
}
