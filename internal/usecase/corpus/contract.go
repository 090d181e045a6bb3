package corpus

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

// Source loads historical trials.
type Source interface {
	Load(ctx context.Context) ([]trial.Historical, error)
}

// Saver persists trials added at runtime. Sources that can't store trials
// don't implement it.
type Saver interface {
	Save(ctx context.Context, t trial.Historical) error
}

// Embedder vectorizes trial records.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
