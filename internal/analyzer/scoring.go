package analyzer

import (
	"strings"

	"cogniscope/internal/config"
	"cogniscope/internal/protocol"
)

// ScoreComponents holds the five rule-based sub-scores, each clamped to
// [0,100], the weighted overall score in [10,100], and its letter grade.
// Recomputed wholesale on every accepted message, never patched.
type ScoreComponents struct {
	PromptComplexity      float64 `json:"prompt_complexity"`
	ContextSwitching      float64 `json:"context_switching"`
	RetryFrustration      float64 `json:"retry_frustration"`
	ConfigurationFriction float64 `json:"configuration_friction"`
	IntegrationCognition  float64 `json:"integration_cognition"`
	Overall               float64 `json:"overall"`
	Grade                 string  `json:"grade"`
}

// computeScores derives the full score set from the sliding window. The
// arithmetic is fixed: identical windows always produce identical scores.
// The overall score is the weighted sum of the raw (pre-clamp) sub-scores,
// so an extreme window can drive it to its maximum even when individual
// sub-scores saturate at 100.
func computeScores(window []TraceRecord, rules *config.RulesConfig) ScoreComponents {
	pc := promptComplexity(window, rules)
	cs := contextSwitching(window)
	rf := retryFrustration(window, rules)
	cf := configurationFriction(window, rules)
	ic := integrationCognition(window, rules)

	w := rules.Weights
	overall := pc*w.PromptComplexity +
		cs*w.ContextSwitching +
		rf*w.RetryFrustration +
		cf*w.ConfigurationFriction +
		ic*w.IntegrationCognition
	overall = clamp(overall, 10, 100)

	return ScoreComponents{
		PromptComplexity:      clamp(pc, 0, 100),
		ContextSwitching:      clamp(cs, 0, 100),
		RetryFrustration:      clamp(rf, 5, 100),
		ConfigurationFriction: clamp(cf, 0, 100),
		IntegrationCognition:  clamp(ic, 20, 100),
		Overall:               overall,
		Grade:                 gradeFor(overall),
	}
}

// promptComplexity averages the per-method base complexity over the window
// and penalizes method diversity.
func promptComplexity(window []TraceRecord, rules *config.RulesConfig) float64 {
	if len(window) == 0 {
		return rules.DefaultMethodComplexity
	}

	total := 0.0
	methods := make(map[string]struct{})
	for _, t := range window {
		if c, ok := rules.MethodComplexity[t.Method]; ok {
			total += c
		} else {
			total += rules.DefaultMethodComplexity
		}
		if t.Method != "" {
			methods[t.Method] = struct{}{}
		}
	}

	score := total / float64(len(window))
	if len(methods) > 4 {
		score += 15
	} else if len(methods) > 2 {
		score += 8
	}
	return score
}

// contextSwitching measures host/server/method churn between adjacent
// window entries.
func contextSwitching(window []TraceRecord) float64 {
	score := 40.0
	n := len(window)
	if n < 2 {
		return score
	}

	switchWeight := 0.0
	hostSwitches := 0
	methodSwitches := 0
	for i := 1; i < n; i++ {
		prev, cur := window[i-1], window[i]
		if prev.Host != cur.Host {
			switchWeight += 3
			hostSwitches++
		}
		if prev.Server != cur.Server {
			switchWeight += 2
		}
		if prev.Method != cur.Method {
			switchWeight += 1
			methodSwitches++
		}
	}

	pairs := float64(n - 1)
	score += 30 * (switchWeight / pairs)
	score += 20 * (float64(methodSwitches) / pairs)
	if hostSwitches > n/3 {
		score += 25
	}
	return score
}

// retryFrustration measures error density, streaks, and rapid same-method
// repetition.
func retryFrustration(window []TraceRecord, rules *config.RulesConfig) float64 {
	n := len(window)
	if n == 0 {
		return 5
	}

	errorCount := 0
	longestRun := 0
	run := 0
	for _, t := range window {
		if t.isError() {
			errorCount++
			run++
			if run > longestRun {
				longestRun = run
			}
		} else {
			run = 0
		}
	}

	// Repeats beyond the first occurrence, averaged over distinct methods.
	methodCounts := make(map[string]int)
	for _, t := range window {
		if t.Method != "" {
			methodCounts[t.Method]++
		}
	}
	avgRepetition := 0.0
	if len(methodCounts) > 0 {
		repeats := 0
		for _, c := range methodCounts {
			repeats += c - 1
		}
		avgRepetition = float64(repeats) / float64(len(methodCounts))
	}

	// Same-method pairs landing within the retry proximity window.
	rapidPairs := 0
	for i := 1; i < n; i++ {
		prev, cur := window[i-1], window[i]
		if cur.Method != "" && cur.Method == prev.Method &&
			cur.Timestamp.Sub(prev.Timestamp) <= rules.RetryWindow {
			rapidPairs++
		}
	}

	score := 60*(float64(errorCount)/float64(n)) +
		15*float64(longestRun) +
		10*maxf(0, avgRepetition-3) +
		12*float64(rapidPairs)
	if score < 5 {
		score = 5
	}
	return score
}

// configurationFriction detects setup and credential trouble from error
// text, gateway-style error codes, and pathological latency.
func configurationFriction(window []TraceRecord, rules *config.RulesConfig) float64 {
	score := 25.0
	for _, t := range window {
		if t.Error != nil {
			text := strings.ToLower(t.Error.Message + string(t.Error.Data))
			for _, kw := range rules.ConfigKeywords {
				if strings.Contains(text, kw) {
					score += 20
					break
				}
			}
			if t.Error.Code == 502 || t.Error.Code == 503 {
				score += 25
			}
		}
		if t.LatencyMs > rules.HighLatencyMs {
			score += 15
		}
	}
	return score
}

// integrationCognition grows with the breadth of hosts, servers, and
// methods in play, with a discount for narrow single-server usage.
func integrationCognition(window []TraceRecord, rules *config.RulesConfig) float64 {
	score := 30.0
	if len(window) == 0 {
		return score
	}

	hosts := make(map[string]struct{})
	servers := make(map[string]struct{})
	methods := make(map[string]struct{})
	advanced := 0
	for _, t := range window {
		hosts[t.Host] = struct{}{}
		servers[t.Server] = struct{}{}
		if t.Method != "" {
			methods[t.Method] = struct{}{}
		}
		for _, m := range rules.AdvancedMethods {
			if t.Method == m {
				advanced++
				break
			}
		}
	}

	score += 10 * float64(len(hosts))
	score += 8 * float64(len(servers))
	score += 3 * float64(len(methods))
	score += 8 * float64(advanced)
	if len(methods) <= 3 && len(servers) == 1 {
		score -= 15
	}
	return score
}

// gradeFor converts an overall score to its letter grade.
func gradeFor(overall float64) string {
	switch {
	case overall < 25:
		return "A"
	case overall < 40:
		return "B"
	case overall < 55:
		return "C"
	case overall < 70:
		return "D"
	default:
		return "F"
	}
}

func frameFromTrace(t TraceRecord) *protocol.Frame {
	return &protocol.Frame{
		JSONRPC: "2.0",
		Method:  t.Method,
		Params:  t.Params,
		Result:  t.Result,
		Error:   t.Error,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
