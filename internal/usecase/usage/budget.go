package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/usage/metrics"
	promMetrics "github.com/kailas-cloud/trialfit/internal/metrics"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

const keyPrefix = "trialfit:budget:"

// Persisted counter names, one key per period and counter.
const (
	counterRequests   = "requests"
	counterPrompt     = "prompt_tokens"
	counterCompletion = "completion_tokens"
)

type counters struct {
	requests   int64
	prompt     int64
	completion int64
}

func (c counters) tokens() int64 { return c.prompt + c.completion }

func (c *counters) add(o counters) {
	c.requests += o.requests
	c.prompt += o.prompt
	c.completion += o.completion
}

func (c counters) metrics() metrics.Metrics {
	return metrics.New(c.requests, c.prompt, c.completion)
}

// BudgetTracker is an in-memory token budget for one language-model provider
// with optional persistence. Check never leaves the process; Record updates
// memory first, then writes behind to the store.
type BudgetTracker struct {
	mu           sync.Mutex
	day          counters
	month        counters
	dailyLimit   int64
	monthlyLimit int64
	action       BudgetAction
	provider     string
	dayStart     time.Time
	monthStart   time.Time
	store        BudgetStore
	logger       *zap.Logger
	now          func() time.Time
}

// NewBudgetTracker creates a tracker. A zero limit disables that period's cap.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	b := &BudgetTracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		provider:     provider,
		logger:       logger,
		now:          time.Now,
	}
	now := b.now().UTC()
	b.dayStart, b.monthStart = truncateToDay(now), truncateToMonth(now)
	return b
}

// WithStore attaches a persistence store and loads current counters.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.store = store
	b.loadFromStore(ctx)
	return b
}

func (b *BudgetTracker) loadFromStore(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	b.day = b.load(ctx, b.dailyKey(now))
	b.month = b.load(ctx, b.monthlyKey(now))

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_tokens", b.day.tokens()),
		zap.Int64("monthly_tokens", b.month.tokens()),
	)
}

func (b *BudgetTracker) load(ctx context.Context, prefix string) counters {
	var c counters
	for name, dst := range map[string]*int64{
		counterRequests:   &c.requests,
		counterPrompt:     &c.prompt,
		counterCompletion: &c.completion,
	} {
		val, err := b.store.Get(ctx, prefix+name)
		if err != nil {
			b.logger.Warn("Failed to load budget counter", zap.String("key", prefix+name), zap.Error(err))
			continue
		}
		*dst = val
	}
	return c
}

func (b *BudgetTracker) dailyKey(t time.Time) string {
	return fmt.Sprintf("%s%s:daily:%s:", keyPrefix, b.provider, t.Format("2006-01-02"))
}

func (b *BudgetTracker) monthlyKey(t time.Time) string {
	return fmt.Sprintf("%s%s:monthly:%s:", keyPrefix, b.provider, t.Format("2006-01"))
}

// Check verifies the budget allows a new request.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()

	period := ""
	switch {
	case b.dailyLimit > 0 && b.day.tokens() >= b.dailyLimit:
		period = "day"
	case b.monthlyLimit > 0 && b.month.tokens() >= b.monthlyLimit:
		period = "month"
	default:
		return nil
	}

	if b.action == BudgetActionReject {
		promMetrics.LLMBudgetRejectionsTotal.WithLabelValues(b.provider, period).Inc()
		return domain.ErrLLMBudgetExceeded
	}

	// action=warn: log but allow the request through
	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.String("period", period),
		zap.Int64("daily_tokens", b.day.tokens()),
		zap.Int64("daily_limit", b.dailyLimit),
		zap.Int64("monthly_tokens", b.month.tokens()),
		zap.Int64("monthly_limit", b.monthlyLimit),
	)
	return nil
}

// Record registers one completed request and its token usage.
func (b *BudgetTracker) Record(promptTokens, completionTokens int64) {
	delta := counters{requests: 1, prompt: promptTokens, completion: completionTokens}

	b.mu.Lock()
	b.resetIfNeeded()
	b.day.add(delta)
	b.month.add(delta)
	store := b.store
	now := b.now().UTC()
	dailyKey := b.dailyKey(now)
	monthlyKey := b.monthlyKey(now)
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Write-behind with its own deadline so a slow store never fails the caller.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, prefix := range []string{dailyKey, monthlyKey} {
		for name, val := range map[string]int64{
			counterRequests:   delta.requests,
			counterPrompt:     delta.prompt,
			counterCompletion: delta.completion,
		} {
			if val == 0 {
				continue
			}
			if err := store.IncrBy(ctx, prefix+name, val); err != nil {
				b.logger.Warn("Failed to persist budget counter", zap.String("key", prefix+name), zap.Error(err))
			}
		}
	}
}

// DailyLimit returns the daily token cap.
func (b *BudgetTracker) DailyLimit() int64 { return b.dailyLimit }

// MonthlyLimit returns the monthly token cap.
func (b *BudgetTracker) MonthlyLimit() int64 { return b.monthlyLimit }

// DailyUsage returns today's counters.
func (b *BudgetTracker) DailyUsage() metrics.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return b.day.metrics()
}

// MonthlyUsage returns this month's counters.
func (b *BudgetTracker) MonthlyUsage() metrics.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return b.month.metrics()
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (b *BudgetTracker) resetIfNeeded() {
	now := b.now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(b.dayStart) {
		b.day = counters{}
		b.dayStart = today
	}
	if thisMonth.After(b.monthStart) {
		b.month = counters{}
		b.monthStart = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
