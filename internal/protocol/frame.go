// Package protocol defines the wire types for line-delimited JSON-RPC 2.0
// traffic exchanged between AI-agent hosts and MCP tool servers, and the
// intercepted-message envelope the rest of the pipeline operates on.
package protocol

import (
	"encoding/json"
	"strings"
)

// Frame is one validated JSON-RPC 2.0 envelope. A line of captured text is a
// Frame only if it parses as JSON, declares jsonrpc "2.0", and carries at
// least one of method, result, or error. Anything else is non-protocol noise.
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error member.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ParseFrame parses a single line of text into a Frame. The second return
// value reports whether the line was protocol-shaped; callers must treat a
// false return as expected noise, not an error.
func ParseFrame(line string) (*Frame, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "{") {
		return nil, false
	}

	var f Frame
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		return nil, false
	}
	if !f.Valid() {
		return nil, false
	}
	return &f, true
}

// Valid reports whether the frame satisfies the envelope shape invariant.
func (f *Frame) Valid() bool {
	if f == nil || f.JSONRPC != "2.0" {
		return false
	}
	return f.Method != "" || len(f.Result) > 0 || f.Error != nil
}

// IsRequest reports whether the frame looks like an outbound request: a
// method with no result or error. Direction is inferred, not authoritative.
func (f *Frame) IsRequest() bool {
	return f.Method != "" && len(f.Result) == 0 && f.Error == nil
}

// IsResponse reports whether the frame carries a result or error member.
func (f *Frame) IsResponse() bool {
	return len(f.Result) > 0 || f.Error != nil
}

// ParamCount returns the number of top-level parameters, or 0 when params is
// absent or not an object.
func (f *Frame) ParamCount() int {
	if len(f.Params) == 0 {
		return 0
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(f.Params, &obj); err != nil {
		return 0
	}
	return len(obj)
}

// ParamDepth returns the maximum nesting depth of the params member. A flat
// object has depth 1.
func (f *Frame) ParamDepth() int {
	if len(f.Params) == 0 {
		return 0
	}
	var v interface{}
	if err := json.Unmarshal(f.Params, &v); err != nil {
		return 0
	}
	return nestingDepth(v)
}

func nestingDepth(v interface{}) int {
	switch t := v.(type) {
	case map[string]interface{}:
		max := 0
		for _, child := range t {
			if d := nestingDepth(child); d > max {
				max = d
			}
		}
		return max + 1
	case []interface{}:
		max := 0
		for _, child := range t {
			if d := nestingDepth(child); d > max {
				max = d
			}
		}
		return max + 1
	default:
		return 0
	}
}
