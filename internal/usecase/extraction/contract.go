package extraction

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

// Completer sends a prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, prompt, schemaHint string) (domain.CompletionResult, error)
}
