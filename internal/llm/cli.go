package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
)

// defaultCLITimeout bounds one subprocess invocation. It must stay
// well under typical client-side request timeouts.
const defaultCLITimeout = 120 * time.Second

// errorTailLen is how much captured output rides along on a failure.
const errorTailLen = 2000

// CLISpec describes how to drive one external model CLI. The three
// tools differ only in argument shape and where the final answer
// lands; everything else (prompt building, JSON extraction, event
// emission) is shared.
type CLISpec struct {
	Name          string
	Command       string
	BuildArgs     func(model, outputFile string) []string
	PromptOnStdin bool // prompt written to stdin; otherwise appended as a positional arg
	OutputFile    bool // final message read from outputFile instead of stdout
}

func ClaudeCLISpec() CLISpec {
	return CLISpec{
		Name:    "claude",
		Command: "claude",
		BuildArgs: func(model, _ string) []string {
			args := []string{"--print"}
			if model != "" {
				args = append(args, "--model", model)
			}
			return args
		},
		PromptOnStdin: true,
	}
}

func GeminiCLISpec() CLISpec {
	return CLISpec{
		Name:    "gemini",
		Command: "gemini",
		BuildArgs: func(model, _ string) []string {
			var args []string
			if model != "" {
				args = append(args, "--model", model)
			}
			return args
		},
		PromptOnStdin: true,
	}
}

func CodexCLISpec() CLISpec {
	return CLISpec{
		Name:    "codex",
		Command: "codex",
		BuildArgs: func(model, outputFile string) []string {
			args := []string{"exec", "--skip-git-repo-check"}
			if model != "" {
				args = append(args, "--model", model)
			}
			return append(args, "--output-last-message", outputFile)
		},
	}
}

// CLIProvider shells out to an external model CLI. The CLI has no
// function-calling API, so the tool catalogue is embedded in the
// prompt and the response is expected to be a single JSON object.
type CLIProvider struct {
	spec    CLISpec
	command string
	model   string
	timeout time.Duration
}

func NewCLIProvider(spec CLISpec, command, model string, timeout time.Duration) *CLIProvider {
	if command == "" {
		command = spec.Command
	}
	if timeout <= 0 {
		timeout = defaultCLITimeout
	}
	return &CLIProvider{spec: spec, command: command, model: model, timeout: timeout}
}

func (p *CLIProvider) Name() string {
	return fmt.Sprintf("%s CLI (%s)", p.spec.Name, p.model)
}

func (p *CLIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	prompt := buildCLIPrompt(req.Messages, req.Tools)
	known := make(map[string]bool, len(req.Tools))
	for _, tool := range req.Tools {
		known[tool.Name] = true
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		events <- Event{Type: EventStart, MessageID: uuid.NewString()}

		output, err := p.run(ctx, prompt)
		if err != nil {
			var perr *ProviderError
			if !errors.As(err, &perr) {
				perr = &ProviderError{Kind: KindGeneric, Message: err.Error()}
			}
			events <- Event{Type: EventError, Err: errors.New(perr.UserMessage())}
			events <- Event{Type: EventFinish, Reason: FinishStop}
			events <- Event{Type: EventEnd}
			return nil
		}

		text, calls := parseCLIResponse(output, known)
		if len(calls) > 0 {
			// Text is suppressed when tool calls are present: some
			// clients rely on the last part being a tool call to
			// decide whether to auto-continue the conversation.
			for _, call := range calls {
				emitToolCall(events, call)
			}
			events <- Event{Type: EventFinish, Reason: FinishToolCalls}
		} else {
			if text != "" {
				id := uuid.NewString()
				events <- Event{Type: EventTextStart, ID: id}
				events <- Event{Type: EventTextDelta, ID: id, Delta: text}
				events <- Event{Type: EventTextEnd, ID: id}
			}
			events <- Event{Type: EventFinish, Reason: FinishStop}
		}
		events <- Event{Type: EventEnd}
		return nil
	}), nil
}

// run invokes the CLI once with a bounded timeout and returns its
// final output. A timeout or non-zero exit is fatal for the request
// and carries the captured output tail.
func (p *CLIProvider) run(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var outputFile string
	if p.spec.OutputFile {
		tmp, err := os.CreateTemp("", "comfy-assistant-*.txt")
		if err != nil {
			return "", &ProviderError{Kind: KindGeneric, Message: fmt.Sprintf("create output file: %v", err)}
		}
		outputFile = tmp.Name()
		tmp.Close()
		defer os.Remove(outputFile)
	}

	args := p.spec.BuildArgs(p.model, outputFile)
	if !p.spec.PromptOnStdin {
		args = append(args, prompt)
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if p.spec.PromptOnStdin {
		cmd.Stdin = strings.NewReader(prompt)
	}

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", &ProviderError{
			Kind:    KindGeneric,
			Message: fmt.Sprintf("%s timed out after %s: %s", p.command, p.timeout, outputTail(stderr.String()+stdout.String())),
		}
	}
	if err != nil {
		return "", &ProviderError{
			Kind:    KindGeneric,
			Message: fmt.Sprintf("%s failed: %v: %s", p.command, err, outputTail(stderr.String()+stdout.String())),
		}
	}

	if p.spec.OutputFile {
		data, err := os.ReadFile(outputFile)
		if err == nil && len(bytes.TrimSpace(data)) > 0 {
			return string(data), nil
		}
	}
	return stdout.String(), nil
}

func outputTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= errorTailLen {
		return s
	}
	return "…" + s[len(s)-errorTailLen:]
}

// buildCLIPrompt flattens the conversation into labeled blocks,
// appends the tool catalogue as JSON, and instructs the model to
// answer with exactly one JSON object.
func buildCLIPrompt(messages []chat.Message, tools []ToolSpec) string {
	var b strings.Builder

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			writeBlock(&b, "SYSTEM", msg.Text)
		case chat.RoleUser:
			writeBlock(&b, "USER", msg.Text)
		case chat.RoleAssistant:
			var lines []string
			if msg.Text != "" {
				lines = append(lines, msg.Text)
			}
			for _, call := range msg.ToolCalls {
				lines = append(lines, fmt.Sprintf("[tool call] %s %s", call.Name, string(call.Arguments)))
			}
			writeBlock(&b, "ASSISTANT", strings.Join(lines, "\n"))
		case chat.RoleTool:
			if msg.Result != nil {
				writeBlock(&b, "TOOL RESULT", msg.Result.Content)
			}
		}
	}

	if len(tools) > 0 {
		catalogue := make([]map[string]any, 0, len(tools))
		for _, tool := range tools {
			catalogue = append(catalogue, map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Schema,
			})
		}
		if data, err := json.MarshalIndent(catalogue, "", "  "); err == nil {
			writeBlock(&b, "AVAILABLE TOOLS", string(data))
		}
	}

	b.WriteString("Respond with exactly one JSON object and nothing else:\n")
	b.WriteString(`{"text": "<your reply to the user>", "tool_calls": [{"name": "<tool name>", "input_json": "<JSON object with the tool arguments>"}]}` + "\n")
	b.WriteString("Use an empty tool_calls array when no tool is needed. Do not wrap the object in markdown fences.\n")
	return b.String()
}

func writeBlock(b *strings.Builder, label, text string) {
	if text == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(":\n")
	b.WriteString(text)
	b.WriteString("\n\n")
}

type cliResponse struct {
	Text      string        `json:"text"`
	ToolCalls []cliToolCall `json:"tool_calls"`
}

type cliToolCall struct {
	Name      string          `json:"name"`
	InputJSON json.RawMessage `json:"input_json"`
}

// parseCLIResponse extracts the structured reply from raw CLI output.
// Three tiers are tried in order: direct JSON, a fenced json code
// block, and the substring between the first '{' and the last '}'.
// Output that defeats all three is treated as plain text. Tool calls
// with names outside the catalogue are dropped as hallucinated.
func parseCLIResponse(output string, known map[string]bool) (string, []chat.ToolCall) {
	trimmed := strings.TrimSpace(output)

	resp, ok := decodeCLIResponse(trimmed)
	if !ok {
		if fenced := extractFencedJSON(trimmed); fenced != "" {
			resp, ok = decodeCLIResponse(fenced)
		}
	}
	if !ok {
		if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
			resp, ok = decodeCLIResponse(trimmed[start : end+1])
		}
	}
	if !ok {
		return trimmed, nil
	}

	var calls []chat.ToolCall
	for _, call := range resp.ToolCalls {
		if call.Name == "" || !known[call.Name] {
			continue
		}
		calls = append(calls, chat.ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      call.Name,
			Arguments: normalizeInputJSON(call.InputJSON),
		})
	}
	return resp.Text, calls
}

func decodeCLIResponse(s string) (cliResponse, bool) {
	var resp cliResponse
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return cliResponse{}, false
	}
	if resp.Text == "" && resp.ToolCalls == nil {
		return cliResponse{}, false
	}
	return resp, true
}

// extractFencedJSON returns the body of the first ```json fence, or
// of a bare ``` fence as a fallback.
func extractFencedJSON(s string) string {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(s, marker)
		if start < 0 {
			continue
		}
		body := s[start+len(marker):]
		end := strings.Index(body, "```")
		if end < 0 {
			continue
		}
		return strings.TrimSpace(body[:end])
	}
	return ""
}

// normalizeInputJSON accepts the argument payload either as a JSON
// object or as a string containing one, defaulting to the empty
// object when neither parses.
func normalizeInputJSON(raw json.RawMessage) json.RawMessage {
	empty := json.RawMessage("{}")
	if len(raw) == 0 {
		return empty
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
		return empty
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "{") && json.Valid(raw) {
		return raw
	}
	return empty
}
