package resilience

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

// Completer guards a language-model provider with a policy.
type Completer struct {
	inner  domain.Completer
	policy *Policy
}

// NewCompleter wraps inner.
func NewCompleter(inner domain.Completer, policy *Policy) *Completer {
	return &Completer{inner: inner, policy: policy}
}

// Complete delegates under the policy.
func (c *Completer) Complete(ctx context.Context, prompt, schemaHint string) (domain.CompletionResult, error) {
	return Do(ctx, c.policy, func(ctx context.Context) (domain.CompletionResult, error) {
		return c.inner.Complete(ctx, prompt, schemaHint)
	})
}

// Embedder guards an embedding provider with a policy. It sits directly on
// the transport so that cache hits never consume rate-limit tokens.
type Embedder struct {
	inner  domain.Embedder
	policy *Policy
}

// NewEmbedder wraps inner.
func NewEmbedder(inner domain.Embedder, policy *Policy) *Embedder {
	return &Embedder{inner: inner, policy: policy}
}

// Embed delegates under the policy.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return Do(ctx, e.policy, func(ctx context.Context) (domain.EmbeddingResult, error) {
		return e.inner.Embed(ctx, text)
	})
}

// BatchEmbed delegates one whole batch under the policy.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return Do(ctx, e.policy, func(ctx context.Context) (domain.BatchEmbeddingResult, error) {
		return domain.BatchEmbed(ctx, e.inner, texts)
	})
}

// HealthCheck passes through without the policy.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
