// Package config holds cogniscope configuration: retention bounds for the
// in-memory pipeline and the scoring rule tables. Every table the analyzer
// consults lives here rather than in code so deployments can tune them; the
// defaults are the documented scoring behavior.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "COGNISCOPE_CONFIG"

// Config holds all cogniscope configuration.
type Config struct {
	// Retention bounds for in-memory state.
	Retention RetentionConfig `yaml:"retention"`

	// Scoring rule tables.
	Rules RulesConfig `yaml:"rules"`

	// Report/insight persistence.
	Storage StorageConfig `yaml:"storage"`
}

// RetentionConfig bounds the pipeline's in-memory state.
type RetentionConfig struct {
	// MessageHistory caps the message ring; oldest evicted on overflow.
	MessageHistory int `yaml:"message_history"`

	// InteractionHistory caps the derived interaction history.
	InteractionHistory int `yaml:"interaction_history"`

	// WindowSize is the number of trace records in the rolling score window.
	WindowSize int `yaml:"window_size"`

	// PatternLookback is how many trailing messages the retry detector
	// inspects.
	PatternLookback int `yaml:"pattern_lookback"`

	// ReassemblyBufferMax caps a per-stream reassembly buffer in bytes.
	// On overflow the stream buffer is reset and the partial line dropped.
	ReassemblyBufferMax int `yaml:"reassembly_buffer_max"`
}

// StorageConfig configures report and insight persistence.
type StorageConfig struct {
	// Path to the SQLite database file. Empty disables persistence.
	Path string `yaml:"path"`
}

// RulesConfig is the deterministic scoring rulebook. All values here are
// fixed arithmetic inputs; identical input traffic plus identical rules
// always produces identical scores.
type RulesConfig struct {
	// MethodComplexity maps protocol methods to base complexity points.
	// Methods absent from the table score DefaultMethodComplexity.
	MethodComplexity map[string]float64 `yaml:"method_complexity"`

	// DefaultMethodComplexity applies to unknown or absent methods.
	DefaultMethodComplexity float64 `yaml:"default_method_complexity"`

	// AdvancedMethods add integration-cognition weight when seen.
	AdvancedMethods []string `yaml:"advanced_methods"`

	// WellKnownMethods are the literals the fallback scanner looks for in
	// unstructured text.
	WellKnownMethods []string `yaml:"well_known_methods"`

	// ConfigKeywords mark an error as configuration friction when any of
	// them appears in its serialized text.
	ConfigKeywords []string `yaml:"config_keywords"`

	// AuthKeywords mark an error as auth-related for the interaction-load
	// severity bonus.
	AuthKeywords []string `yaml:"auth_keywords"`

	// Weights combine the five sub-scores into the overall score. They
	// should sum to 1.0.
	Weights ScoreWeights `yaml:"weights"`

	// RetryWindow is the proximity window for the rapid-repeat term of
	// retry frustration.
	RetryWindow time.Duration `yaml:"retry_window"`

	// FrictionErrorRate is the per-method error rate above which a method
	// is reported as a friction point.
	FrictionErrorRate float64 `yaml:"friction_error_rate"`

	// HighLatencyMs marks a response as configuration friction.
	HighLatencyMs int64 `yaml:"high_latency_ms"`
}

// ScoreWeights holds the sub-score weighting of the overall score.
type ScoreWeights struct {
	PromptComplexity      float64 `yaml:"prompt_complexity"`
	ContextSwitching      float64 `yaml:"context_switching"`
	RetryFrustration      float64 `yaml:"retry_frustration"`
	ConfigurationFriction float64 `yaml:"configuration_friction"`
	IntegrationCognition  float64 `yaml:"integration_cognition"`
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() *Config {
	return &Config{
		Retention: RetentionConfig{
			MessageHistory:      1000,
			InteractionHistory:  1000,
			WindowSize:          20,
			PatternLookback:     5,
			ReassemblyBufferMax: 1 << 20,
		},
		Rules: RulesConfig{
			MethodComplexity: map[string]float64{
				"tools/call":             40,
				"sampling/createMessage": 38,
				"completion/complete":    35,
				"resources/read":         28,
				"prompts/get":            25,
				"tools/list":             18,
				"resources/list":         15,
				"prompts/list":           15,
				"initialize":             12,
				"notifications/message":  8,
				"ping":                   5,
			},
			DefaultMethodComplexity: 25,
			AdvancedMethods: []string{
				"sampling/createMessage",
				"completion/complete",
				"resources/subscribe",
				"elicitation/create",
				"roots/list",
			},
			WellKnownMethods: []string{
				"initialize",
				"tools/list",
				"tools/call",
				"resources/list",
				"resources/read",
				"prompts/list",
				"prompts/get",
				"ping",
			},
			ConfigKeywords: []string{
				"config", "configuration", "env", "environment",
				"auth", "token", "key", "credential", "permission",
				"unauthorized", "forbidden", "missing", "invalid",
			},
			AuthKeywords: []string{"auth", "permission", "unauthorized"},
			Weights: ScoreWeights{
				PromptComplexity:      0.25,
				ContextSwitching:      0.20,
				RetryFrustration:      0.25,
				ConfigurationFriction: 0.15,
				IntegrationCognition:  0.15,
			},
			RetryWindow:       5 * time.Second,
			FrictionErrorRate: 0.30,
			HighLatencyMs:     10000,
		},
		Storage: StorageConfig{},
	}
}

// Load reads configuration from path, merging the file over the defaults.
// A missing file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize repairs values a partial config file may have zeroed out.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Retention.MessageHistory <= 0 {
		c.Retention.MessageHistory = def.Retention.MessageHistory
	}
	if c.Retention.InteractionHistory <= 0 {
		c.Retention.InteractionHistory = def.Retention.InteractionHistory
	}
	if c.Retention.WindowSize <= 0 {
		c.Retention.WindowSize = def.Retention.WindowSize
	}
	if c.Retention.PatternLookback <= 0 {
		c.Retention.PatternLookback = def.Retention.PatternLookback
	}
	if c.Retention.ReassemblyBufferMax <= 0 {
		c.Retention.ReassemblyBufferMax = def.Retention.ReassemblyBufferMax
	}
	if len(c.Rules.MethodComplexity) == 0 {
		c.Rules.MethodComplexity = def.Rules.MethodComplexity
	}
	if c.Rules.DefaultMethodComplexity <= 0 {
		c.Rules.DefaultMethodComplexity = def.Rules.DefaultMethodComplexity
	}
	if c.Rules.RetryWindow <= 0 {
		c.Rules.RetryWindow = def.Rules.RetryWindow
	}
	if c.Rules.FrictionErrorRate <= 0 {
		c.Rules.FrictionErrorRate = def.Rules.FrictionErrorRate
	}
	if c.Rules.HighLatencyMs <= 0 {
		c.Rules.HighLatencyMs = def.Rules.HighLatencyMs
	}
	w := &c.Rules.Weights
	if w.PromptComplexity+w.ContextSwitching+w.RetryFrustration+
		w.ConfigurationFriction+w.IntegrationCognition == 0 {
		*w = def.Rules.Weights
	}
}
