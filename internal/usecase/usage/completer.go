package usage

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

// Budgeted refuses completions once the tracker's budget is spent and
// records the token usage of every successful call.
type Budgeted struct {
	inner   domain.Completer
	tracker *BudgetTracker
}

// NewBudgetedCompleter wraps inner with tracker.
func NewBudgetedCompleter(inner domain.Completer, tracker *BudgetTracker) *Budgeted {
	return &Budgeted{inner: inner, tracker: tracker}
}

// Complete checks the budget, then delegates.
func (c *Budgeted) Complete(ctx context.Context, prompt, schemaHint string) (domain.CompletionResult, error) {
	if err := c.tracker.Check(ctx); err != nil {
		return domain.CompletionResult{}, err
	}
	res, err := c.inner.Complete(ctx, prompt, schemaHint)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	c.tracker.Record(int64(res.PromptTokens), int64(res.CompletionTokens))
	return res, nil
}

// HealthCheck passes through to the wrapped provider.
func (c *Budgeted) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
