package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"cogniscope/internal/protocol"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
}

func (h *recordingHandler) AnalyzeMessage(msg protocol.InterceptedMessage) {
	h.mu.Lock()
	h.seen = append(h.seen, msg.ID)
	h.mu.Unlock()
}

func testMessage(id string) protocol.InterceptedMessage {
	return protocol.InterceptedMessage{
		ID:        id,
		Timestamp: time.Now(),
		Host:      "cursor",
		Server:    "weather",
		Direction: protocol.DirectionOutbound,
		Payload:   &protocol.Frame{JSONRPC: "2.0", Method: "tools/list"},
	}
}

func TestBusBoundedRetention(t *testing.T) {
	b := NewMessageBus(1000, nil, nil)
	b.Start()

	for i := 0; i < 1500; i++ {
		b.Accept(testMessage(fmt.Sprintf("msg-%d", i)))
	}

	recent := b.Recent(2000)
	if len(recent) != 1000 {
		t.Fatalf("Recent(2000) returned %d messages, want 1000", len(recent))
	}
	if recent[0].ID != "msg-500" {
		t.Fatalf("oldest retained = %s, want msg-500", recent[0].ID)
	}
	if recent[999].ID != "msg-1499" {
		t.Fatalf("newest retained = %s, want msg-1499", recent[999].ID)
	}

	status := b.Status()
	if status.MessageCount != 1500 {
		t.Fatalf("MessageCount = %d, want 1500", status.MessageCount)
	}
}

func TestBusDeliversInArrivalOrder(t *testing.T) {
	h := &recordingHandler{}
	b := NewMessageBus(100, h, nil)
	b.Start()

	for i := 0; i < 50; i++ {
		b.Accept(testMessage(fmt.Sprintf("m%d", i)))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.seen) != 50 {
		t.Fatalf("handler saw %d messages, want 50", len(h.seen))
	}
	for i, id := range h.seen {
		if want := fmt.Sprintf("m%d", i); id != want {
			t.Fatalf("position %d: got %s, want %s", i, id, want)
		}
	}
}

func TestBusSlowObserverDoesNotBlockIngestion(t *testing.T) {
	b := NewMessageBus(1000, nil, nil)
	b.Start()

	// Never read from this subscription; its channel fills up.
	stalled := b.Subscribe()
	_ = stalled

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Accept(testMessage(fmt.Sprintf("m%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion blocked by a stalled observer")
	}

	if got := b.Status().MessageCount; got != 500 {
		t.Fatalf("MessageCount = %d, want 500", got)
	}
}

func TestBusObserverReceivesMessages(t *testing.T) {
	b := NewMessageBus(100, nil, nil)
	b.Start()

	ch := b.Subscribe()
	b.Accept(testMessage("only"))

	select {
	case msg := <-ch:
		if msg.ID != "only" {
			t.Fatalf("observer got %s", msg.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("observer received nothing")
	}

	b.Unsubscribe(ch)
	if b.Status().Observers != 0 {
		t.Fatal("observer not removed")
	}
}

func TestBusIdleDoesNotDispatch(t *testing.T) {
	h := &recordingHandler{}
	b := NewMessageBus(100, h, nil)

	b.Accept(testMessage("early"))

	h.mu.Lock()
	n := len(h.seen)
	h.mu.Unlock()
	if n != 0 {
		t.Fatal("handler invoked while bus idle")
	}

	// The message is still retained for later inspection.
	if len(b.Recent(10)) != 1 {
		t.Fatal("idle bus dropped the message")
	}
}

func TestBusRecentReturnsCopy(t *testing.T) {
	b := NewMessageBus(100, nil, nil)
	b.Start()
	b.Accept(testMessage("a"))

	snapshot := b.Recent(10)
	snapshot[0].ID = "mutated"

	if b.Recent(10)[0].ID != "a" {
		t.Fatal("Recent exposed internal ring state")
	}
}
