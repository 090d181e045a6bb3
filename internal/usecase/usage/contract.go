package usage

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain/usage/metrics"
)

// BudgetStore is the persistence interface for budget counters.
// Implementations must be idempotent (IncrBy can be called repeatedly).
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsage() metrics.Metrics
	MonthlyUsage() metrics.Metrics
}
