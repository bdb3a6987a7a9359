package analyzer

import (
	"encoding/json"
	"testing"
	"time"

	"cogniscope/internal/config"
	"cogniscope/internal/protocol"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func requestTrace(host, server, method string, at time.Time) TraceRecord {
	return TraceRecord{
		Direction: protocol.DirectionOutbound,
		Type:      TraceRequest,
		Method:    method,
		Host:      host,
		Server:    server,
		Timestamp: at,
	}
}

func errorTrace(host, server, method string, code int, msg string, at time.Time) TraceRecord {
	return TraceRecord{
		Direction: protocol.DirectionInbound,
		Type:      TraceResponse,
		Method:    method,
		Error:     &protocol.RPCError{Code: code, Message: msg},
		Host:      host,
		Server:    server,
		Timestamp: at,
	}
}

func TestEmptyWindowDefaultsToBases(t *testing.T) {
	rules := &config.DefaultConfig().Rules
	s := computeScores(nil, rules)

	if s.PromptComplexity != rules.DefaultMethodComplexity {
		t.Fatalf("PromptComplexity = %v", s.PromptComplexity)
	}
	if s.ContextSwitching != 40 {
		t.Fatalf("ContextSwitching = %v, want base 40", s.ContextSwitching)
	}
	if s.RetryFrustration != 5 {
		t.Fatalf("RetryFrustration = %v, want floor 5", s.RetryFrustration)
	}
	if s.ConfigurationFriction != 25 {
		t.Fatalf("ConfigurationFriction = %v, want base 25", s.ConfigurationFriction)
	}
	if s.IntegrationCognition != 30 {
		t.Fatalf("IntegrationCognition = %v, want base 30", s.IntegrationCognition)
	}
	if s.Overall < 10 || s.Overall > 100 {
		t.Fatalf("Overall = %v out of range", s.Overall)
	}
}

func TestClampLaws(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	windows := [][]TraceRecord{
		nil,
		{requestTrace("a", "b", "tools/call", t0)},
	}

	// A hostile window: every message an auth error on a different host.
	var hostile []TraceRecord
	for i := 0; i < 20; i++ {
		tr := errorTrace(
			string(rune('a'+i%5)), string(rune('k'+i%7)),
			"tools/call", 503, "unauthorized", t0.Add(time.Duration(i)*time.Second))
		hostile = append(hostile, tr)
	}
	windows = append(windows, hostile)

	for i, w := range windows {
		s := computeScores(w, rules)
		for name, v := range map[string]float64{
			"PromptComplexity":      s.PromptComplexity,
			"ContextSwitching":      s.ContextSwitching,
			"RetryFrustration":      s.RetryFrustration,
			"ConfigurationFriction": s.ConfigurationFriction,
			"IntegrationCognition":  s.IntegrationCognition,
		} {
			if v < 0 || v > 100 {
				t.Fatalf("window %d: %s = %v out of [0,100]", i, name, v)
			}
		}
		if s.Overall < 10 || s.Overall > 100 {
			t.Fatalf("window %d: Overall = %v out of [10,100]", i, s.Overall)
		}
	}
}

func TestAllErrorWindowSaturates(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	var window []TraceRecord
	for i := 0; i < 20; i++ {
		window = append(window, errorTrace("cursor", "weather", "tools/call",
			503, "unauthorized retry", t0.Add(time.Duration(i)*time.Second)))
	}

	s := computeScores(window, rules)
	if s.RetryFrustration != 100 {
		t.Fatalf("RetryFrustration = %v, want 100", s.RetryFrustration)
	}
	if s.Overall != 100 {
		t.Fatalf("Overall = %v, want 100", s.Overall)
	}
	if s.Grade != "F" {
		t.Fatalf("Grade = %q, want F", s.Grade)
	}
}

func TestRetryFrustrationQuietWindow(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	// Five identical calls spaced beyond the retry proximity window, no
	// errors: only the repetition term contributes.
	var window []TraceRecord
	for i := 0; i < 5; i++ {
		window = append(window, requestTrace("cursor", "weather", "tools/call",
			t0.Add(time.Duration(i)*6*time.Second)))
	}

	s := computeScores(window, rules)
	if s.RetryFrustration != 10 {
		t.Fatalf("RetryFrustration = %v, want 10", s.RetryFrustration)
	}
}

func TestConfigurationFrictionKeywordAndGatewayCode(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	window := []TraceRecord{
		errorTrace("cursor", "weather", "tools/call", 503, "unauthorized", t0),
	}
	s := computeScores(window, rules)

	// Base 25, +20 for the auth keyword, +25 for the 503.
	if s.ConfigurationFriction != 70 {
		t.Fatalf("ConfigurationFriction = %v, want 70", s.ConfigurationFriction)
	}
}

func TestContextSwitchingChurn(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	steady := []TraceRecord{
		requestTrace("cursor", "weather", "tools/call", t0),
		requestTrace("cursor", "weather", "tools/call", t0.Add(time.Second)),
		requestTrace("cursor", "weather", "tools/call", t0.Add(2*time.Second)),
	}
	churny := []TraceRecord{
		requestTrace("cursor", "weather", "tools/call", t0),
		requestTrace("claude-desktop", "files", "resources/read", t0.Add(time.Second)),
		requestTrace("cursor", "github", "tools/list", t0.Add(2*time.Second)),
	}

	low := computeScores(steady, rules).ContextSwitching
	high := computeScores(churny, rules).ContextSwitching
	if low != 40 {
		t.Fatalf("steady window ContextSwitching = %v, want 40", low)
	}
	if high <= low {
		t.Fatalf("churny window (%v) not above steady (%v)", high, low)
	}
}

func TestIntegrationCognitionNarrowUsageDiscount(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	narrow := []TraceRecord{
		requestTrace("cursor", "weather", "tools/call", t0),
		requestTrace("cursor", "weather", "tools/list", t0.Add(time.Second)),
	}
	s := computeScores(narrow, rules)

	// 30 + 10 (1 host) + 8 (1 server) + 6 (2 methods) - 15 narrow discount.
	if s.IntegrationCognition != 39 {
		t.Fatalf("IntegrationCognition = %v, want 39", s.IntegrationCognition)
	}
}

func TestScoringDeterminism(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	var window []TraceRecord
	methods := []string{"tools/call", "tools/list", "resources/read", "tools/call", "ping"}
	for i := 0; i < 20; i++ {
		tr := requestTrace("cursor", "weather", methods[i%len(methods)],
			t0.Add(time.Duration(i)*3*time.Second))
		if i%4 == 0 {
			tr = errorTrace("cursor", "weather", methods[i%len(methods)],
				400, "invalid params", tr.Timestamp)
		}
		window = append(window, tr)
	}

	first := computeScores(window, rules)
	for i := 0; i < 10; i++ {
		if got := computeScores(window, rules); got != first {
			t.Fatalf("replay %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestInteractionLoadTiers(t *testing.T) {
	rules := &config.DefaultConfig().Rules

	params, _ := json.Marshal(map[string]interface{}{
		"name": "getCurrentWeather",
		"arguments": map[string]interface{}{
			"city": "Berlin",
		},
	})
	req := TraceRecord{
		Type: TraceRequest, Method: "tools/call",
		Params: params, Host: "cursor", Server: "weather", Timestamp: t0,
	}

	ok := TraceRecord{
		Type: TraceResponse, Method: "tools/call",
		Result: json.RawMessage(`{"temp":21}`),
		Host:   "cursor", Server: "weather",
		Timestamp: t0.Add(250 * time.Millisecond), LatencyMs: 250,
	}
	low := interactionLoad(ok, &req, "tools/call", rules)

	authErr := ok
	authErr.Result = nil
	authErr.Error = &protocol.RPCError{Code: 503, Message: "unauthorized"}
	authErr.LatencyMs = 2500
	high := interactionLoad(authErr, &req, "tools/call", rules)

	if low < 10 || low > 100 || high < 10 || high > 100 {
		t.Fatalf("loads out of range: %v, %v", low, high)
	}
	if high <= low {
		t.Fatalf("auth error load (%v) not above success load (%v)", high, low)
	}
	if high != 100 {
		// base 30 + method 40 + params 10 + error 40+20 + latency 20 clamps.
		t.Fatalf("hostile load = %v, want clamp at 100", high)
	}
}
