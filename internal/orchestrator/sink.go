package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Sink receives run events in order. Implementations must be safe for
// concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Send(ctx context.Context, e Event) error { return f(ctx, e) }

// NDJSONSink writes one JSON event per line, flushing after each when the
// writer supports it.
type NDJSONSink struct {
	mu    sync.Mutex
	enc   *json.Encoder
	flush func()
}

// NewNDJSONSink creates a sink writing to w.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	s := &NDJSONSink{enc: json.NewEncoder(w)}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	return s
}

func (s *NDJSONSink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(e); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

// Collector records events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Send(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Types returns the recorded event types in order.
func (c *Collector) Types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

// ChanSink forwards events to a channel, giving up when ctx is done.
type ChanSink chan<- Event

func (c ChanSink) Send(ctx context.Context, e Event) error {
	select {
	case c <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tee sends every event to each sink in turn, stopping at the first error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Event) error {
		for _, s := range sinks {
			if err := s.Send(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}
