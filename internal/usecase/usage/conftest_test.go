package usage

import (
	"context"
	"errors"
	"sync"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/usage/metrics"
)

// --- Mock BudgetStore ---

type mockBudgetStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMockBudgetStore() *mockBudgetStore {
	return &mockBudgetStore{data: make(map[string]int64)}
}

func (m *mockBudgetStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *mockBudgetStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func (m *mockBudgetStore) value(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// --- Mock Completer ---

type mockCompleter struct {
	calls  int
	result domain.CompletionResult
	err    error
	health error
}

func (m *mockCompleter) Complete(context.Context, string, string) (domain.CompletionResult, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockCompleter) HealthCheck(context.Context) error { return m.health }

var errProvider = errors.New("provider down")

// --- Mock BudgetReader ---

type mockBudgetReader struct {
	dailyLimit   int64
	monthlyLimit int64
	daily        metrics.Metrics
	monthly      metrics.Metrics
}

func (m *mockBudgetReader) DailyLimit() int64             { return m.dailyLimit }
func (m *mockBudgetReader) MonthlyLimit() int64           { return m.monthlyLimit }
func (m *mockBudgetReader) DailyUsage() metrics.Metrics   { return m.daily }
func (m *mockBudgetReader) MonthlyUsage() metrics.Metrics { return m.monthly }
