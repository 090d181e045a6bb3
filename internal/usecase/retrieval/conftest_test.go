package retrieval

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

type mockEmbedder struct {
	vec   []float32
	err   error
	block bool
	texts []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.texts = append(m.texts, text)
	if m.block {
		<-ctx.Done()
		return domain.EmbeddingResult{}, ctx.Err()
	}
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mapStore map[string]trial.Historical

func (s mapStore) Get(id string) (trial.Historical, bool) {
	t, ok := s[id]
	return t, ok
}
