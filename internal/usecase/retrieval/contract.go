package retrieval

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	"github.com/kailas-cloud/trialfit/internal/index"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index answers nearest-neighbour queries over trial vectors.
type Index interface {
	Len() int
	Query(vec []float32, k int) ([]index.Hit, error)
	Vector(id string) ([]float32, bool)
}

// TrialStore holds the record and outcome snapshots of indexed trials.
type TrialStore interface {
	Get(id string) (trial.Historical, bool)
}
