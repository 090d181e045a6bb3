package metrics

// Metrics holds language-model usage for a time period.
type Metrics struct {
	requests         int64
	promptTokens     int64
	completionTokens int64
}

// New creates a Metrics snapshot.
func New(requests, promptTokens, completionTokens int64) Metrics {
	return Metrics{requests: requests, promptTokens: promptTokens, completionTokens: completionTokens}
}

// Requests returns the number of completion calls.
func (m Metrics) Requests() int64 { return m.requests }

// PromptTokens returns input tokens consumed.
func (m Metrics) PromptTokens() int64 { return m.promptTokens }

// CompletionTokens returns output tokens produced.
func (m Metrics) CompletionTokens() int64 { return m.completionTokens }

// Tokens returns prompt plus completion tokens.
func (m Metrics) Tokens() int64 { return m.promptTokens + m.completionTokens }
