package intercept

import (
	"encoding/json"
	"sync"

	"cogniscope/internal/protocol"
)

// ToolRegistry tracks the most recently advertised tool names per server.
// It is purely advisory: the fallback scanner uses it as a heuristic hint,
// and it never validates or routes real traffic.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string][]string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string][]string)}
}

// Update replaces the tool list for (host, server) wholesale. Lists are
// never merged or trimmed incrementally.
func (r *ToolRegistry) Update(host, server string, tools []string) {
	names := make([]string, len(tools))
	copy(names, tools)

	r.mu.Lock()
	r.tools[host+"/"+server] = names
	r.mu.Unlock()
}

// Lookup returns the advertised tool names for (host, server), or an empty
// slice when none are known.
func (r *ToolRegistry) Lookup(host, server string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.tools[host+"/"+server]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// UpdateFromFrame inspects a frame and, when it is a tools/list result,
// replaces the registry entry from it. Frames of any other shape are
// ignored.
func (r *ToolRegistry) UpdateFromFrame(host, server string, frame *protocol.Frame) {
	if frame == nil || len(frame.Result) == 0 {
		return
	}

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(frame.Result, &result); err != nil || len(result.Tools) == 0 {
		return
	}

	names := make([]string, 0, len(result.Tools))
	for _, t := range result.Tools {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	if len(names) > 0 {
		r.Update(host, server, names)
	}
}
