package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/google/uuid"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements Provider using the Anthropic Messages
// API. The call is non-streaming; the single response is decomposed
// into the standard event sequence so downstream encoding cannot
// tell it apart from a streaming backend.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicProvider(apiKey, model string, maxTokens int) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string {
	return fmt.Sprintf("Anthropic (%s)", p.model)
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	system, messages := buildAnthropicMessages(req.Messages)

	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(chooseMaxTokens(req.MaxOutputTokens, chooseMaxTokens(p.maxTokens, defaultAnthropicMaxTokens))),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildAnthropicTools(req.Tools)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, normalizeAnthropicError(err)
	}
	return NewStaticStream(decomposeAnthropicMessage(msg)), nil
}

func normalizeAnthropicError(err error) *ProviderError {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return normalizeHTTPError(apierr.StatusCode, err.Error())
	}
	return &ProviderError{Kind: KindGeneric, Message: err.Error()}
}

// decomposeAnthropicMessage renders the full response as the event
// sequence a streaming call would have produced: reasoning first,
// then one text part, then the tool-use blocks.
func decomposeAnthropicMessage(msg *anthropic.Message) []Event {
	events := []Event{{Type: EventStart, MessageID: uuid.NewString()}}

	var texts []string
	var calls []chat.ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.ThinkingBlock:
			if variant.Thinking == "" {
				continue
			}
			id := uuid.NewString()
			events = append(events,
				Event{Type: EventReasoningStart, ID: id},
				Event{Type: EventReasoningDelta, ID: id, Delta: variant.Thinking},
				Event{Type: EventReasoningEnd, ID: id},
			)
		case anthropic.TextBlock:
			if variant.Text != "" {
				texts = append(texts, variant.Text)
			}
		case anthropic.ToolUseBlock:
			calls = append(calls, chat.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: toolInputToRaw(variant.Input),
			})
		}
	}

	if len(texts) > 0 {
		id := uuid.NewString()
		events = append(events, Event{Type: EventTextStart, ID: id})
		for _, text := range texts {
			events = append(events, Event{Type: EventTextDelta, ID: id, Delta: text})
		}
		events = append(events, Event{Type: EventTextEnd, ID: id})
	}

	for _, call := range calls {
		args := call.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		events = append(events,
			Event{Type: EventToolInputStart, CallID: call.ID, ToolName: call.Name},
			Event{Type: EventToolInputDelta, CallID: call.ID, Delta: string(args)},
			Event{Type: EventToolInputAvailable, CallID: call.ID, ToolName: call.Name, Input: args},
		)
	}

	events = append(events,
		Event{Type: EventFinish, Reason: mapAnthropicStop(msg.StopReason, len(calls) > 0)},
		Event{Type: EventEnd},
	)
	return events
}

func mapAnthropicStop(reason anthropic.StopReason, hasToolCalls bool) FinishReason {
	if hasToolCalls {
		return FinishToolCalls
	}
	switch reason {
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	case anthropic.StopReasonRefusal:
		return FinishContentFilter
	default:
		return FinishStop
	}
}

// buildAnthropicMessages converts the canonical list to Messages-API
// params: system texts merge into one string, tool results become
// tool_result blocks on user turns, and adjacent same-role messages
// are merged because the API rejects consecutive same-role turns.
func buildAnthropicMessages(messages []chat.Message) (string, []anthropic.MessageParam) {
	var systemParts []string
	var out []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			if msg.Text != "" {
				systemParts = append(systemParts, msg.Text)
			}
		case chat.RoleUser:
			if msg.Text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
			}
		case chat.RoleAssistant:
			blocks := buildAssistantBlocks(msg)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case chat.RoleTool:
			if msg.Result == nil {
				continue
			}
			out = append(out, anthropic.NewUserMessage(toolResultBlock(msg.Result)))
		}
	}

	return strings.Join(systemParts, "\n\n"), mergeSameRole(out)
}

func buildAssistantBlocks(msg chat.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if msg.Text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
	}
	for _, call := range msg.ToolCalls {
		blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
	}
	return blocks
}

func toolResultBlock(result *chat.ToolResult) anthropic.ContentBlockParamUnion {
	block := anthropic.ToolResultBlockParam{
		ToolUseID: result.CallID,
		Content: []anthropic.ToolResultBlockParamContentUnion{
			{OfText: &anthropic.TextBlockParam{Text: result.Content}},
		},
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

// mergeSameRole concatenates the content of adjacent messages that
// share a role.
func mergeSameRole(messages []anthropic.MessageParam) []anthropic.MessageParam {
	if len(messages) < 2 {
		return messages
	}
	out := messages[:1]
	for _, msg := range messages[1:] {
		last := &out[len(out)-1]
		if msg.Role == last.Role {
			last.Content = append(last.Content, msg.Content...)
			continue
		}
		out = append(out, msg)
	}
	return out
}

func buildAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.Schema["properties"],
			Required:   schemaRequired(spec.Schema),
		}
		tool := anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func schemaRequired(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		required := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
		return required
	default:
		return nil
	}
}

func toolInputToRaw(input any) json.RawMessage {
	switch v := input.(type) {
	case json.RawMessage:
		return v
	case []byte:
		return json.RawMessage(v)
	case string:
		return json.RawMessage(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return json.RawMessage(data)
	}
}
