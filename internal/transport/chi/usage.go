package chi

import (
	"net/http"
	"time"

	domusage "github.com/kailas-cloud/trialfit/internal/domain/usage"
)

// UsageMetrics is the token usage part of UsageResponse.
type UsageMetrics struct {
	Requests         int64 `json:"requests"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	Tokens           int64 `json:"tokens"`
}

// BudgetStatus is the budget part of UsageResponse. A zero limit means unlimited.
type BudgetStatus struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Period        string       `json:"period"`
	Provider      string       `json:"provider"`
	PeriodStartAt time.Time    `json:"period_start_at"`
	PeriodEndAt   time.Time    `json:"period_end_at"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// GetUsage handles GET /v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "period must be \"day\" or \"month\"")
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	m, b := report.Metrics(), report.Budget()

	resp := UsageResponse{
		Period:        string(report.Period()),
		Provider:      report.Provider(),
		PeriodStartAt: time.UnixMilli(report.PeriodStart()).UTC(),
		PeriodEndAt:   time.UnixMilli(report.PeriodEnd()).UTC(),
		Usage: UsageMetrics{
			Requests:         m.Requests(),
			PromptTokens:     m.PromptTokens(),
			CompletionTokens: m.CompletionTokens(),
			Tokens:           m.Tokens(),
		},
		Budget: BudgetStatus{
			TokensLimit:     b.TokensLimit(),
			TokensRemaining: b.TokensRemaining(),
			IsExhausted:     b.IsExhausted(),
		},
	}
	if !b.Unlimited() && b.ResetsAt() > 0 {
		resetsAt := time.UnixMilli(b.ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}
