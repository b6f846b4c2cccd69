// Package assistant orchestrates one chat request: import the UI
// payload, merge the externally loaded context, budget, stream from
// the provider and encode events for the client.
package assistant

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/budget"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/chat"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/llm"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/protocol"
)

// ContextProvider supplies the request-time context produced outside
// this core: workflow and node documentation for the system side,
// free-form user notes for the user side. Both are opaque strings
// merged into the first system message before budgeting.
type ContextProvider interface {
	SystemContext(ctx context.Context) (string, error)
	UserContext(ctx context.Context) (string, error)
}

// StaticContext is a ContextProvider over fixed strings.
type StaticContext struct {
	System string
	User   string
}

func (c StaticContext) SystemContext(context.Context) (string, error) { return c.System, nil }
func (c StaticContext) UserContext(context.Context) (string, error)   { return c.User, nil }

// Request is one inbound chat turn.
type Request struct {
	Messages []chat.UIMessage `json:"messages"`
	Model    string           `json:"model,omitempty"`
}

// Service runs the per-request pipeline. One service is shared by
// all requests; per-request state lives on the stack of Respond.
type Service struct {
	provider llm.Provider
	engine   *budget.Engine
	context  ContextProvider
	tools    []llm.ToolSpec
	logger   *slog.Logger
}

func New(provider llm.Provider, engine *budget.Engine, contextProvider ContextProvider, tools []llm.ToolSpec, logger *slog.Logger) *Service {
	if contextProvider == nil {
		contextProvider = StaticContext{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		engine:   engine,
		context:  contextProvider,
		tools:    tools,
		logger:   logger,
	}
}

// Respond streams one reply to w, flushing after every event. It
// returns an error only when the client connection fails; provider
// failures are encoded into the stream itself.
func (s *Service) Respond(ctx context.Context, req Request, w io.Writer, flush func()) error {
	started := time.Now()

	msgs, err := s.buildMessages(ctx, req.Messages)
	if err != nil {
		return err
	}

	stream, err := s.provider.Stream(ctx, llm.Request{
		Model:    req.Model,
		Messages: msgs,
		Tools:    s.tools,
	})
	if err != nil {
		// The retrier converts provider failures into terminal event
		// streams, so an error here is a programming error upstream.
		return err
	}
	defer stream.Close()

	for {
		ev, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			s.logger.Error("stream aborted", "provider", s.provider.Name(), "err", recvErr)
			break
		}
		if err := protocol.WriteEvent(w, ev); err != nil {
			// Client went away; stop pumping promptly.
			return err
		}
		if flush != nil {
			flush()
		}
	}

	if err := protocol.WriteDone(w); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}

	s.logger.Info("chat request served",
		"provider", s.provider.Name(),
		"messages", len(msgs),
		"duration", time.Since(started))
	return nil
}

// buildMessages imports the UI payload, merges the loaded context
// into the first system message and applies the standing budgets.
func (s *Service) buildMessages(ctx context.Context, uiMsgs []chat.UIMessage) ([]chat.Message, error) {
	msgs := chat.ImportUIMessages(uiMsgs)

	systemCtx, err := s.context.SystemContext(ctx)
	if err != nil {
		return nil, err
	}
	userCtx, err := s.context.UserContext(ctx)
	if err != nil {
		return nil, err
	}
	msgs = mergeContext(msgs, systemCtx, userCtx)

	m := &budget.Metrics{}
	msgs = s.engine.FirstPass(msgs, m)
	s.logger.Debug("first-pass budget applied", "budget", m)
	return msgs, nil
}

// mergeContext appends the externally supplied context blocks to the
// first system message, inserting one at the head when the
// conversation has none.
func mergeContext(msgs []chat.Message, systemCtx, userCtx string) []chat.Message {
	blocks := make([]string, 0, 3)
	if systemCtx != "" {
		blocks = append(blocks, systemCtx)
	}
	if userCtx != "" {
		blocks = append(blocks, "# User context\n"+userCtx)
	}
	if len(blocks) == 0 {
		return msgs
	}

	for i, msg := range msgs {
		if msg.Role != chat.RoleSystem {
			continue
		}
		out := make([]chat.Message, len(msgs))
		copy(out, msgs)
		if msg.Text != "" {
			blocks = append([]string{msg.Text}, blocks...)
		}
		out[i].Text = strings.Join(blocks, "\n\n")
		return out
	}

	out := make([]chat.Message, 0, len(msgs)+1)
	out = append(out, chat.SystemText(strings.Join(blocks, "\n\n")))
	return append(out, msgs...)
}
