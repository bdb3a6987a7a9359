// Package bus is the single ingestion point for intercepted messages. It
// owns the bounded message ring and fans accepted messages out to the
// analyzer synchronously and to external observers over buffered channels,
// so a stalled observer can never stall ingestion.
package bus

import (
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"cogniscope/internal/protocol"
)

// Handler receives every accepted message synchronously, in arrival order.
// The analyzer is the one handler; its single-writer discipline depends on
// this serialization.
type Handler interface {
	AnalyzeMessage(msg protocol.InterceptedMessage)
}

// observerBuffer is the per-subscriber channel depth. Sends never block:
// when a subscriber's channel is full the message is dropped for that
// subscriber only.
const observerBuffer = 64

// MessageBus owns the bounded FIFO message ring and all ingestion counters.
type MessageBus struct {
	mu sync.RWMutex

	ring    []protocol.InterceptedMessage
	maxRing int

	handler   Handler
	observers []chan protocol.InterceptedMessage

	running  bool
	count    uint64
	lastSeen time.Time
	log      *zap.Logger
}

// Status is a point-in-time snapshot of bus state.
type Status struct {
	Running      bool      `json:"running"`
	MessageCount uint64    `json:"message_count"`
	RingSize     int       `json:"ring_size"`
	Observers    int       `json:"observers"`
	LastMessage  time.Time `json:"last_message"`
}

// NewMessageBus creates a bus retaining at most maxRing messages.
func NewMessageBus(maxRing int, handler Handler, log *zap.Logger) *MessageBus {
	if log == nil {
		log = zap.NewNop()
	}
	if maxRing <= 0 {
		maxRing = 1000
	}
	return &MessageBus{
		ring:    make([]protocol.InterceptedMessage, 0, maxRing),
		maxRing: maxRing,
		handler: handler,
		log:     log,
	}
}

// SetHandler installs the synchronous message handler. Wiring-time only;
// must be called before Start.
func (b *MessageBus) SetHandler(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Start marks the bus as running.
func (b *MessageBus) Start() {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
}

// Stop marks the bus as idle. Accept still records messages while idle so
// late stragglers from terminating sources are not lost, but observers and
// the handler stop receiving them.
func (b *MessageBus) Stop() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// Accept appends a message to the ring, evicting the oldest on overflow,
// then fans it out: synchronously to the handler, non-blocking to every
// observer. Messages reach both in global arrival order.
func (b *MessageBus) Accept(msg protocol.InterceptedMessage) {
	b.mu.Lock()
	if len(b.ring) >= b.maxRing {
		b.ring = b.ring[1:]
	}
	b.ring = append(b.ring, msg)
	b.count++
	b.lastSeen = msg.Timestamp
	running := b.running
	handler := b.handler
	observers := b.observers
	b.mu.Unlock()

	if !running {
		return
	}

	if handler != nil {
		handler.AnalyzeMessage(msg)
	}

	for _, obs := range observers {
		select {
		case obs <- msg:
		default: // Drop for this observer; ingestion never blocks.
		}
	}
}

// Subscribe returns a buffered channel receiving every accepted message.
func (b *MessageBus) Subscribe() <-chan protocol.InterceptedMessage {
	ch := make(chan protocol.InterceptedMessage, observerBuffer)
	b.mu.Lock()
	b.observers = append(b.observers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes an observer channel and closes it.
func (b *MessageBus) Unsubscribe(ch <-chan protocol.InterceptedMessage) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, obs := range b.observers {
		if reflect.ValueOf(obs).Pointer() == target {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			close(obs)
			return
		}
	}
}

// Recent returns a copy of the most recent limit messages, newest last.
// limit <= 0 or beyond the ring size returns everything retained.
func (b *MessageBus) Recent(limit int) []protocol.InterceptedMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.ring)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]protocol.InterceptedMessage, limit)
	copy(out, b.ring[n-limit:])
	return out
}

// Status reports the running flag, counters, and last-seen timestamp.
func (b *MessageBus) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{
		Running:      b.running,
		MessageCount: b.count,
		RingSize:     len(b.ring),
		Observers:    len(b.observers),
		LastMessage:  b.lastSeen,
	}
}
