package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Direction indicates which way a message flowed. It is inferred from the
// frame shape: method-only frames are outbound requests, frames with a
// result or error are inbound responses.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// StreamKind identifies which captured stream a chunk arrived on.
type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
	StreamStdin  StreamKind = "stdin"
)

// InterceptedMessage is one captured frame wrapped with capture metadata.
// Immutable once created.
type InterceptedMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Server    string    `json:"server"`
	Direction Direction `json:"direction"`
	Payload   *Frame    `json:"payload"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
}

// NewMessage wraps a frame into an InterceptedMessage, inferring direction
// from the frame shape.
func NewMessage(host, server string, frame *Frame) InterceptedMessage {
	dir := DirectionInbound
	if frame.IsRequest() {
		dir = DirectionOutbound
	}
	return InterceptedMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Host:      host,
		Server:    server,
		Direction: dir,
		Payload:   frame,
	}
}
