package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

// httpClientTimeout is the default timeout for HTTP requests.
const httpClientTimeout = 10 * time.Minute

// defaultHTTPClient is a shared HTTP client with reasonable timeouts.
var defaultHTTPClient = &http.Client{
	Timeout: httpClientTimeout,
}

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements Provider for the OpenAI API and
// compatible servers (Ollama, LM Studio, vLLM and friends). The
// chat-completions stream is consumed directly so reasoning tags and
// tool-call deltas can be handled as they arrive; the SDK client
// serves the model listing endpoint.
type OpenAIProvider struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *openai.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string, maxTokens int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &OpenAIProvider{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		client:    &client,
	}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

// ListModels returns available models from the server.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var models []ModelInfo
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:      m.ID,
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

// ModelInfo describes a model advertised by a backend.
type ModelInfo struct {
	ID      string
	Created int64
	OwnedBy string
}

// OpenAI-compatible wire structures. Tool choice can be a string or
// an object, hence the bare any.
type oaiChatRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	Tools     []oaiTool    `json:"tools,omitempty"`
	MaxTokens *int         `json:"max_tokens,omitempty"`
	Stream    bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaiToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type oaiChatResponse struct {
	ID      string       `json:"id"`
	Choices []oaiChoice  `json:"choices"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int         `json:"index"`
	Delta        *oaiMessage `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type oaiAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	messages := buildOpenAIMessages(req.Messages)
	if len(messages) == 0 {
		return nil, &ProviderError{Kind: KindGeneric, Message: "no messages provided"}
	}

	tools, err := buildOpenAITools(req.Tools)
	if err != nil {
		return nil, &ProviderError{Kind: KindGeneric, Message: err.Error()}
	}

	chatReq := oaiChatRequest{
		Model:    p.model,
		Messages: messages,
		Tools:    tools,
		Stream:   true,
	}
	if req.Model != "" {
		chatReq.Model = req.Model
	}
	if limit := chooseMaxTokens(req.MaxOutputTokens, p.maxTokens); limit > 0 {
		chatReq.MaxTokens = &limit
	}

	resp, err := p.makeChatRequest(ctx, chatReq)
	if err != nil {
		return nil, &ProviderError{Kind: KindGeneric, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, normalizeHTTPError(resp.StatusCode, string(body))
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		defer resp.Body.Close()

		events <- Event{Type: EventStart, MessageID: uuid.NewString()}

		parser := newThinkParser(uuid.NewString)
		toolState := newToolDeltaState()
		finishReason := ""

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var chatResp oaiChatResponse
			if err := json.Unmarshal([]byte(data), &chatResp); err != nil {
				continue
			}
			if chatResp.Error != nil {
				emitTerminalError(events, parser, normalizeStreamError(chatResp.Error.Type, chatResp.Error.Message))
				return nil
			}

			for _, choice := range chatResp.Choices {
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
				if choice.Delta == nil {
					continue
				}
				for _, ev := range parser.Feed(choice.Delta.Content) {
					events <- ev
				}
				toolState.Add(choice.Delta.ToolCalls)
			}
		}
		if err := scanner.Err(); err != nil {
			emitTerminalError(events, parser, &ProviderError{Kind: KindGeneric, Message: err.Error()})
			return nil
		}

		// Text must be closed before tool parts are surfaced or the
		// client cannot commit the message.
		for _, ev := range parser.End() {
			events <- ev
		}

		calls := toolState.Calls()
		for _, call := range calls {
			emitToolCall(events, call)
		}

		events <- Event{Type: EventFinish, Reason: mapOpenAIFinish(finishReason, len(calls) > 0)}
		events <- Event{Type: EventEnd}
		return nil
	}), nil
}

func (p *OpenAIProvider) makeChatRequest(ctx context.Context, req oaiChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return defaultHTTPClient.Do(httpReq)
}

// emitTerminalError converts a mid-stream failure into the well-formed
// terminal sequence: close any open text, then Error/Finish/End. Only
// the user-facing message crosses the stream boundary; the taxonomy
// stays internal.
func emitTerminalError(events chan<- Event, parser *thinkParser, perr *ProviderError) {
	for _, ev := range parser.End() {
		events <- ev
	}
	events <- Event{Type: EventError, Err: errors.New(perr.UserMessage())}
	events <- Event{Type: EventFinish, Reason: FinishStop}
	events <- Event{Type: EventEnd}
}

// emitToolCall surfaces one completed tool call. Argument buffers
// that do not parse as JSON are skipped: incomplete arguments are
// transient, not an error.
func emitToolCall(events chan<- Event, call chat.ToolCall) {
	events <- Event{Type: EventToolInputStart, CallID: call.ID, ToolName: call.Name}
	events <- Event{Type: EventToolInputDelta, CallID: call.ID, Delta: string(call.Arguments)}
	events <- Event{Type: EventToolInputAvailable, CallID: call.ID, ToolName: call.Name, Input: call.Arguments}
}

func mapOpenAIFinish(reason string, hasToolCalls bool) FinishReason {
	if hasToolCalls {
		return FinishToolCalls
	}
	switch reason {
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func buildOpenAIMessages(messages []chat.Message) []oaiMessage {
	var result []oaiMessage
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem, chat.RoleUser:
			if msg.Text == "" {
				continue
			}
			result = append(result, oaiMessage{Role: string(msg.Role), Content: msg.Text})
		case chat.RoleAssistant:
			out := oaiMessage{Role: "assistant", Content: msg.Text}
			for _, call := range msg.ToolCalls {
				tc := oaiToolCall{ID: call.ID, Type: "function"}
				tc.Function.Name = call.Name
				tc.Function.Arguments = string(call.Arguments)
				out.ToolCalls = append(out.ToolCalls, tc)
			}
			if out.Content == "" && len(out.ToolCalls) == 0 {
				continue
			}
			result = append(result, out)
		case chat.RoleTool:
			if msg.Result == nil {
				continue
			}
			result = append(result, oaiMessage{
				Role:       "tool",
				Content:    msg.Result.Content,
				ToolCallID: msg.Result.CallID,
			})
		}
	}
	return result
}

func buildOpenAITools(specs []ToolSpec) ([]oaiTool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]oaiTool, 0, len(specs))
	for _, spec := range specs {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema %s: %w", spec.Name, err)
		}
		tools = append(tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

// toolDeltaState accumulates streamed tool-call fragments keyed by
// the provider-issued index.
type toolDeltaState struct {
	byIndex map[int]*toolCallState
	order   []int
}

type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

func newToolDeltaState() *toolDeltaState {
	return &toolDeltaState{byIndex: make(map[int]*toolCallState)}
}

func (s *toolDeltaState) Add(calls []oaiToolCall) {
	for _, call := range calls {
		state, ok := s.byIndex[call.Index]
		if !ok {
			state = &toolCallState{}
			s.byIndex[call.Index] = state
			s.order = append(s.order, call.Index)
		}
		if call.ID != "" {
			state.id = call.ID
		}
		if call.Function.Name != "" {
			state.name = call.Function.Name
		}
		if call.Function.Arguments != "" {
			state.args.WriteString(call.Function.Arguments)
		}
	}
}

// Calls returns the completed tool calls in index order. Calls whose
// argument buffer is not valid JSON are dropped; an empty buffer
// defaults to the empty object.
func (s *toolDeltaState) Calls() []chat.ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	sort.Ints(s.order)
	calls := make([]chat.ToolCall, 0, len(s.order))
	for _, idx := range s.order {
		state := s.byIndex[idx]
		if state == nil || state.name == "" {
			continue
		}
		args := state.args.String()
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			continue
		}
		calls = append(calls, chat.ToolCall{
			ID:        state.id,
			Name:      state.name,
			Arguments: json.RawMessage(args),
		})
	}
	return calls
}

func chooseMaxTokens(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}
