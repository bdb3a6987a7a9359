package analyzer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"cogniscope/internal/config"
)

// Interaction is a derived, best-effort request/response pairing. There is
// no reliable identifier correlation across all capture paths, so a
// response is attributed to the most recent request trace seen for the same
// (host, server); under concurrent in-flight calls this can mis-attribute.
type Interaction struct {
	ID            string        `json:"id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	DurationMs    int64         `json:"duration_ms"`
	SuccessRate   float64       `json:"success_rate"`
	CognitiveLoad float64       `json:"cognitive_load"`
	Method        string        `json:"method,omitempty"`
	Host          string        `json:"host"`
	Server        string        `json:"server"`
	Messages      []TraceRecord `json:"messages"`
}

// synthesizeInteraction pairs a response trace with the given originating
// request trace (may be nil) and computes the interaction-local load.
func synthesizeInteraction(resp TraceRecord, req *TraceRecord, rules *config.RulesConfig) Interaction {
	inter := Interaction{
		ID:        uuid.NewString(),
		StartTime: resp.Timestamp,
		EndTime:   resp.Timestamp,
		Host:      resp.Host,
		Server:    resp.Server,
		Method:    resp.Method,
	}

	if req != nil {
		inter.StartTime = req.Timestamp
		if inter.Method == "" {
			inter.Method = req.Method
		}
		inter.Messages = append(inter.Messages, *req)
	}
	inter.Messages = append(inter.Messages, resp)

	// Capture paths rarely carry an authoritative latency; infer it from
	// the request/response timestamp gap when absent.
	if resp.LatencyMs == 0 && req != nil {
		resp.LatencyMs = resp.Timestamp.Sub(req.Timestamp).Milliseconds()
	}
	inter.DurationMs = resp.LatencyMs

	if resp.isError() {
		inter.SuccessRate = 0
	} else {
		inter.SuccessRate = 1
	}

	inter.CognitiveLoad = interactionLoad(resp, req, inter.Method, rules)
	return inter
}

// interactionLoad is the deterministic per-exchange load score in [10,100].
func interactionLoad(resp TraceRecord, req *TraceRecord, method string, rules *config.RulesConfig) float64 {
	load := 30.0

	// Method complexity, table-driven with a fixed default for unknowns.
	if c, ok := rules.MethodComplexity[method]; ok {
		load += c
	} else {
		load += rules.DefaultMethodComplexity
	}

	// Parameter shape of the originating request, capped.
	if req != nil {
		count := paramCountOf(*req)
		depth := paramDepthOf(*req)
		heur := float64(count)*3 + float64(max(0, depth-1))*4
		if heur > 25 {
			heur = 25
		}
		load += heur
	}

	// Error severity tiers.
	if resp.Error != nil {
		switch {
		case resp.Error.Code >= 500:
			load += 40
		case resp.Error.Code >= 400:
			load += 25
		default:
			load += 15
		}
		text := strings.ToLower(resp.Error.Message + string(resp.Error.Data))
		for _, kw := range rules.AuthKeywords {
			if strings.Contains(text, kw) {
				load += 20
				break
			}
		}
	}

	// Response size tiers plus a structure bonus for array-heavy results.
	if n := len(resp.Result); n > 5000 {
		load += 15
	} else if n > 1000 {
		load += 8
	}
	if strings.Count(string(resp.Result), "[") > 3 {
		load += 10
	}

	// Latency tiers.
	switch {
	case resp.LatencyMs > 2000:
		load += 20
	case resp.LatencyMs > 1000:
		load += 10
	case resp.LatencyMs > 500:
		load += 5
	}

	return clamp(load, 10, 100)
}

func paramCountOf(t TraceRecord) int {
	f := frameFromTrace(t)
	return f.ParamCount()
}

func paramDepthOf(t TraceRecord) int {
	f := frameFromTrace(t)
	return f.ParamDepth()
}
