package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream is a channel-backed Stream fed by a producer goroutine.
// The producer's return value becomes the stream's terminal error;
// a nil return yields io.EOF from Recv once the channel drains.
type eventStream struct {
	events chan Event
	result chan error
	cancel context.CancelFunc

	closeOnce sync.Once
	err       error
	finished  bool
}

// newEventStream starts produce in a goroutine and returns a Stream
// over its events. Cancelling the stream (Close) cancels the
// producer's context.
func newEventStream(ctx context.Context, produce func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 16),
		result: make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		err := produce(ctx, s.events)
		s.result <- err
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	if s.finished {
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	event, ok := <-s.events
	if !ok {
		s.finished = true
		s.err = <-s.result
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Drain so the producer goroutine can exit.
		go func() {
			for range s.events {
			}
		}()
	})
	return nil
}

// staticStream replays a fixed event sequence. Used for terminal
// error sequences and for backends that produce their full response
// before any event is emitted.
type staticStream struct {
	events []Event
	pos    int
}

// NewStaticStream returns a Stream replaying the given events. Test
// doubles and non-streaming backends build on it.
func NewStaticStream(events []Event) Stream {
	return &staticStream{events: events}
}

func (s *staticStream) Recv() (Event, error) {
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	event := s.events[s.pos]
	s.pos++
	return event, nil
}

func (s *staticStream) Close() error {
	s.pos = len(s.events)
	return nil
}
