package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/budget"
)

// defaultMaxAttempts bounds compaction retries per request.
const defaultMaxAttempts = 2

// CompactionRetrier wraps a provider with the context-too-large
// retry loop. Each retry asks the budget engine for the next
// compaction tier before calling the provider again; the tier number
// is the attempt number, so pressure escalates monotonically. All
// other failures are terminal: they become a well-formed
// Error/Finish/End stream instead of an error return, so the caller
// always has events to encode.
type CompactionRetrier struct {
	provider    Provider
	engine      *budget.Engine
	maxAttempts int
	logger      *slog.Logger
}

func NewCompactionRetrier(provider Provider, engine *budget.Engine, maxAttempts int, logger *slog.Logger) *CompactionRetrier {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompactionRetrier{
		provider:    provider,
		engine:      engine,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (r *CompactionRetrier) Name() string {
	return r.provider.Name()
}

// Stream runs the attempt loop: at most maxAttempts compactions,
// hence at most maxAttempts+1 provider invocations.
func (r *CompactionRetrier) Stream(ctx context.Context, req Request) (Stream, error) {
	msgs := req.Messages
	for attempt := 0; ; attempt++ {
		req.Messages = msgs
		stream, err := r.provider.Stream(ctx, req)
		if err == nil {
			return stream, nil
		}

		var perr *ProviderError
		if !errors.As(err, &perr) {
			perr = &ProviderError{Kind: KindGeneric, Message: err.Error()}
		}

		if perr.Kind == KindContextTooLarge && attempt < r.maxAttempts {
			m := &budget.Metrics{MessagesBefore: len(msgs)}
			msgs = r.engine.Compact(msgs, attempt+1, m)
			r.logger.Warn("context too large, compacting",
				"provider", r.provider.Name(),
				"attempt", attempt+1,
				"budget", m)
			continue
		}

		r.logger.Error("provider request failed",
			"provider", r.provider.Name(),
			"kind", string(perr.Kind),
			"status", perr.HTTPStatus,
			"err", perr.Message)
		return terminalErrorStream(perr), nil
	}
}

// terminalErrorStream is the well-formed stream a request that never
// produced events ends with.
func terminalErrorStream(perr *ProviderError) Stream {
	return NewStaticStream([]Event{
		{Type: EventStart, MessageID: uuid.NewString()},
		{Type: EventError, Err: errors.New(perr.UserMessage())},
		{Type: EventFinish, Reason: FinishStop},
		{Type: EventEnd},
	})
}
