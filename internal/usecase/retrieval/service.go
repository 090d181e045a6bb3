// Package retrieval finds historical trials similar to a feature record.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	"github.com/kailas-cloud/trialfit/internal/index"
)

// Defaults.
const (
	DefaultOversampleFactor = 2
	DefaultMinSimilarity    = 0.2
)

// Config tunes candidate selection.
type Config struct {
	OversampleFactor int
	// MinSimilarity drops weaker candidates. Nil takes DefaultMinSimilarity,
	// zero or a negative value keeps every candidate.
	MinSimilarity *float64
}

// Service retrieves comparator trials.
type Service struct {
	embed  Embedder
	trials TrialStore
	cfg    Config
	floor  float64
	logger *zap.Logger
}

// New creates a retrieval service.
func New(embed Embedder, trials TrialStore, cfg Config, logger *zap.Logger) *Service {
	if cfg.OversampleFactor <= 0 {
		cfg.OversampleFactor = DefaultOversampleFactor
	}
	floor := DefaultMinSimilarity
	if cfg.MinSimilarity != nil {
		floor = *cfg.MinSimilarity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embed: embed, trials: trials, cfg: cfg, floor: floor, logger: logger}
}

// Retrieve returns up to k comparators for rec, most similar first.
// An empty index, an all-unknown record or no candidate above the floor
// yield an empty slice.
func (s *Service) Retrieve(
	ctx context.Context, rec feature.Record, idx Index, k int,
) ([]trial.Comparator, error) {
	if k <= 0 || idx.Len() == 0 {
		return []trial.Comparator{}, nil
	}
	text := rec.Text()
	if text == "" {
		s.logger.Debug("Record has no known fields, skipping retrieval")
		return []trial.Comparator{}, nil
	}

	emb, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return s.collect(idx, emb.Embedding, k, "")
}

// Similar returns up to k comparators for an indexed trial, excluding itself.
func (s *Service) Similar(idx Index, trialID string, k int) ([]trial.Comparator, error) {
	vec, ok := idx.Vector(trialID)
	if !ok {
		return nil, fmt.Errorf("trial %q: %w", trialID, domain.ErrNotFound)
	}
	if k <= 0 {
		return []trial.Comparator{}, nil
	}
	return s.collect(idx, vec, k, trialID)
}

func (s *Service) collect(idx Index, vec []float32, k int, exclude string) ([]trial.Comparator, error) {
	want := max(k, k*s.cfg.OversampleFactor)
	if exclude != "" {
		want++
	}
	hits, err := idx.Query(vec, want)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	out := make([]trial.Comparator, 0, k)
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if len(out) == k {
			break
		}
		if seen[h.ID] || h.ID == exclude {
			continue
		}
		seen[h.ID] = true
		if h.Similarity < s.floor {
			// hits are sorted, nothing further can pass
			break
		}
		t, ok := s.trials.Get(h.ID)
		if !ok {
			s.logger.Warn("Indexed trial has no stored snapshot", zap.String("trial_id", h.ID))
			continue
		}
		out = append(out, comparator(h, t))
	}
	return out, nil
}

func comparator(h index.Hit, t trial.Historical) trial.Comparator {
	return trial.Comparator{
		TrialID:    h.ID,
		Similarity: h.Similarity,
		Record:     t.Record,
		Outcomes:   t.Outcomes.Clone(),
	}
}

// classify maps an embedding failure to the retrieval error kinds.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.TimeoutError{Stage: domain.StageRetrieval, Err: err}
	}
	return &domain.RetrievalError{Err: err}
}
