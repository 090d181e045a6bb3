package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/trialfit/internal/domain/usage"
	"github.com/kailas-cloud/trialfit/internal/domain/usage/budget"
	"github.com/kailas-cloud/trialfit/internal/domain/usage/metrics"
)

// Service handles usage reporting.
type Service struct {
	br       BudgetReader
	provider string
	now      func() time.Time
}

// New creates a Service. br can be nil (unlimited mode, nothing tracked).
func New(br BudgetReader, provider string) *Service {
	return &Service{br: br, provider: provider, now: time.Now}
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now().UTC()
	var (
		start, end time.Time
		limit      int64
		used       metrics.Metrics
	)

	switch period {
	case domusage.PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			limit, used = s.br.MonthlyLimit(), s.br.MonthlyUsage()
		}
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		if s.br != nil {
			limit, used = s.br.DailyLimit(), s.br.DailyUsage()
		}
	}

	var remaining int64
	if limit > 0 {
		remaining = max(limit-used.Tokens(), 0)
	}
	b := budget.New(limit, remaining, limit > 0 && remaining == 0, end.UnixMilli())

	return domusage.NewReport(period, start.UnixMilli(), end.UnixMilli(), s.provider, used, b)
}
