package protocol

// Insight is a transient friction observation emitted by the analyzer.
// The core never stores insights; sinks decide what to do with them.
type Insight struct {
	Type           string                 `json:"type"`
	Severity       string                 `json:"severity"`
	Message        string                 `json:"message"`
	Details        map[string]interface{} `json:"details,omitempty"`
	Recommendation string                 `json:"recommendation,omitempty"`
}

// Insight types.
const (
	InsightRetryPattern = "retry_pattern"
	InsightErrorPattern = "error_pattern"
)

// Severities, lowest to highest.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AlertData is the payload for out-of-band alerts forwarded to integration
// sinks. Best-effort, fire-and-forget.
type AlertData struct {
	Title    string                 `json:"title"`
	Severity string                 `json:"severity"`
	Host     string                 `json:"host"`
	Server   string                 `json:"server,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}
