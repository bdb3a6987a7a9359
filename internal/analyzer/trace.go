package analyzer

import (
	"encoding/json"
	"time"

	"cogniscope/internal/protocol"
)

// Trace types.
const (
	TraceRequest  = "request"
	TraceResponse = "response"
)

// TraceRecord is the per-message record the sliding window is built from.
type TraceRecord struct {
	Direction protocol.Direction `json:"direction"`
	Type      string             `json:"type"`
	Method    string             `json:"method,omitempty"`
	Params    json.RawMessage    `json:"params,omitempty"`
	Result    json.RawMessage    `json:"result,omitempty"`
	Error     *protocol.RPCError `json:"error,omitempty"`
	Host      string             `json:"host"`
	Server    string             `json:"server"`
	Timestamp time.Time          `json:"timestamp"`
	LatencyMs int64              `json:"latency_ms,omitempty"`
}

// newTrace builds a trace record from an intercepted message.
func newTrace(msg protocol.InterceptedMessage) TraceRecord {
	t := TraceRecord{
		Direction: msg.Direction,
		Type:      TraceResponse,
		Host:      msg.Host,
		Server:    msg.Server,
		Timestamp: msg.Timestamp,
		LatencyMs: msg.LatencyMs,
	}
	if f := msg.Payload; f != nil {
		t.Method = f.Method
		t.Params = f.Params
		t.Result = f.Result
		t.Error = f.Error
		if f.IsRequest() {
			t.Type = TraceRequest
		}
	}
	return t
}

// isError reports whether the trace carries a protocol error.
func (t TraceRecord) isError() bool {
	return t.Error != nil
}
