package domain

import "context"

// Completer is the language-model contract: a prompt plus a schema hint in,
// raw model text out. Providers are swappable; output is validated downstream.
type Completer interface {
	Complete(ctx context.Context, prompt, schemaHint string) (CompletionResult, error)
}

// CompletionResult carries the model text and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
