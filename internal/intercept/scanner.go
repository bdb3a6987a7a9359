package intercept

import (
	"encoding/json"
	"strings"

	"cogniscope/internal/protocol"
)

// ActivityScanner is the fallback capture path for text that mixes protocol
// frames with arbitrary console output. It extracts any JSON-RPC-shaped
// substrings that validate, and separately synthesizes at most one
// best-effort tool-call message per blob when a known tool name or
// well-known method literal appears. A scan never fails; no matches means
// no output.
type ActivityScanner struct {
	registry *ToolRegistry
	methods  []string
}

// NewActivityScanner creates a scanner. registry may be nil, in which case
// only method literals are matched.
func NewActivityScanner(registry *ToolRegistry, wellKnownMethods []string) *ActivityScanner {
	return &ActivityScanner{
		registry: registry,
		methods:  wellKnownMethods,
	}
}

// Scan extracts protocol frames from an unstructured text blob.
func (s *ActivityScanner) Scan(host, server, blob string) []*protocol.Frame {
	if blob == "" {
		return nil
	}

	frames := s.extractFrames(blob)

	if synth := s.synthesize(host, server, blob); synth != nil {
		frames = append(frames, synth)
	}
	return frames
}

// extractFrames finds balanced JSON objects in the blob and keeps the ones
// that validate as frames.
func (s *ActivityScanner) extractFrames(blob string) []*protocol.Frame {
	var frames []*protocol.Frame

	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(blob); i++ {
		c := blob[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidate := blob[start : i+1]
					if strings.Contains(candidate, `"jsonrpc"`) {
						if frame, ok := protocol.ParseFrame(candidate); ok {
							frames = append(frames, frame)
						}
					}
					start = -1
				}
			}
		}
	}
	return frames
}

// synthesize builds one best-effort tool-call frame when the blob mentions
// a known tool or method. At most one per blob, to bound duplicate
// detections from chatty output.
func (s *ActivityScanner) synthesize(host, server, blob string) *protocol.Frame {
	if s.registry != nil {
		for _, tool := range s.registry.Lookup(host, server) {
			if tool != "" && strings.Contains(blob, tool) {
				params, _ := json.Marshal(map[string]interface{}{
					"name": tool,
				})
				return &protocol.Frame{
					JSONRPC: "2.0",
					Method:  "tools/call",
					Params:  params,
				}
			}
		}
	}

	for _, method := range s.methods {
		if method != "" && strings.Contains(blob, method) {
			return &protocol.Frame{
				JSONRPC: "2.0",
				Method:  method,
			}
		}
	}
	return nil
}
