package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of backend lifecycle event.
type EventType string

const (
	EventLaunch EventType = "launch"
	EventReady  EventType = "ready"
	EventExit   EventType = "exit"
	EventGiveUp EventType = "giveup"
)

// Event is one backend lifecycle event to be persisted.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	Attempt    int       `json:"attempt"`
	State      string    `json:"state"`
}

// Sink is a destination for lifecycle events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Async wraps a Sink with a buffered queue so persistence never blocks the
// supervisor loop. Events are dropped (and logged) when the queue is full.
type Async struct {
	inner Sink
	ch    chan Event
	done  chan struct{}
}

// NewAsync starts the background writer. buffer <= 0 defaults to 64.
func NewAsync(inner Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{
		inner: inner,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.ch {
		if err := a.inner.Send(context.Background(), e); err != nil {
			slog.Warn("history sink write failed", "type", e.Type, "error", err)
		}
	}
}

// Send enqueues the event without blocking.
func (a *Async) Send(_ context.Context, e Event) error {
	select {
	case a.ch <- e:
	default:
		slog.Warn("history queue full, dropping event", "type", e.Type)
	}
	return nil
}

// Close drains queued events and closes the inner sink.
func (a *Async) Close() error {
	close(a.ch)
	<-a.done
	return a.inner.Close()
}
