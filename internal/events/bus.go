// Package events provides a per-session stream of interim progress
// messages. Each session owns one Bus: the orchestrator publishes while
// a turn runs, and any number of consumers (WebSocket handlers, tests)
// subscribe. The bus is nil-safe: Publish on a nil *Bus is a no-op, so
// components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Kind constants describe the type of event within a turn.
const (
	// KindTurnStart signals the beginning of a user turn.
	KindTurnStart = "turn_start"
	// KindPreprocess signals a mode pre-processing step.
	KindPreprocess = "preprocess"
	// KindCommand signals a shell command execution.
	KindCommand = "command"
	// KindContextBuilt signals context assembly completed.
	KindContextBuilt = "context_built"
	// KindModelCall signals the start of a model backend call.
	KindModelCall = "model_call"
	// KindToolCall signals execution of an embedded tool call.
	KindToolCall = "tool_call"
	// KindNoteCreated signals a note was persisted.
	KindNoteCreated = "note_created"
	// KindTurnComplete signals the end of a user turn.
	KindTurnComplete = "turn_complete"
	// KindError signals a degraded or failed step.
	KindError = "error"
)

// Event is a single interim message published during turn processing.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Kind describes the type of event.
	Kind string `json:"kind"`
	// Message is the human-readable progress line.
	Message string `json:"message"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a bounded, non-blocking broadcast stream. Recent events are
// retained in a drop-oldest ring so late subscribers can catch up;
// live subscribers receive events on buffered channels and slow ones
// miss events rather than blocking the publisher.
type Bus struct {
	mu sync.RWMutex

	// ring holds the most recent events, drop-oldest on overflow.
	ring  []Event
	head  int
	count int

	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's view of the channel.
	recvToSend map[<-chan Event]chan Event
	closed     bool
}

// NewBus creates a bus retaining up to capacity recent events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 100
	}
	return &Bus{
		ring:       make([]Event, capacity),
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish records an event and broadcasts it to all subscribers.
// Non-blocking: a full subscriber channel drops the event for that
// subscriber. Safe to call on a nil or closed receiver (no-op).
func (b *Bus) Publish(kind, message string, data map[string]any) {
	if b == nil {
		return
	}

	e := Event{
		Timestamp: time.Now(),
		Kind:      kind,
		Message:   message,
		Data:      data,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.ring[b.head] = e
	b.head = (b.head + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop the event rather than block.
		}
	}
}

// Recent returns retained events in chronological order.
func (b *Bus) Recent() []Event {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head - b.count + i + len(b.ring)) % len(b.ring)
		out = append(out, b.ring[idx])
	}
	return out
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// Close shuts the bus down, closing all subscriber channels. Further
// publishes are dropped.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan Event]struct{})
	b.recvToSend = make(map[<-chan Event]chan Event)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
