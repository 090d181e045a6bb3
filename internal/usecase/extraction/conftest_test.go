package extraction

import (
	"context"
	"strings"
	"sync"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

// mockCompleter answers by the first matching rule; unmatched prompts get fallback.
type mockCompleter struct {
	mu       sync.Mutex
	prompts  []string
	rules    []rule
	fallback string
	err      error
	block    bool
}

type rule struct {
	contains string
	reply    string
	delay    chan struct{}
}

func (m *mockCompleter) Complete(ctx context.Context, prompt, _ string) (domain.CompletionResult, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return domain.CompletionResult{}, ctx.Err()
	}
	if m.err != nil {
		return domain.CompletionResult{}, m.err
	}
	for _, r := range m.rules {
		if strings.Contains(prompt, r.contains) {
			if r.delay != nil {
				<-r.delay
			}
			return domain.CompletionResult{Text: r.reply}, nil
		}
	}
	return domain.CompletionResult{Text: m.fallback}, nil
}

func (m *mockCompleter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
