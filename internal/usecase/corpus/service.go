// Package corpus builds and maintains the corpus index from historical trials.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	"github.com/kailas-cloud/trialfit/internal/index"
	"github.com/kailas-cloud/trialfit/internal/metrics"
)

// ErrEmptyRecord is returned for a trial without any known feature.
var ErrEmptyRecord = errors.New("trial record has no known fields")

// Stats describes the loaded corpus.
type Stats struct {
	Trials    int                  `json:"trials"`
	Dimension int                  `json:"dimension"`
	Skipped   int                  `json:"skipped"`
	Coverage  map[trial.Metric]int `json:"coverage"`
	LoadedAt  time.Time            `json:"loaded_at,omitzero"`
}

// Service owns the process-wide index and the trial catalog next to it.
type Service struct {
	embed   Embedder
	idx     *index.Index
	catalog *Catalog
	saver   Saver
	logger  *zap.Logger

	// writeMu serializes Add and Rebuild so catalog and index change together.
	writeMu sync.Mutex

	mu       sync.RWMutex
	loadedAt time.Time
	skipped  int
}

// New creates a service with an empty index of dimension dim. saver may be nil.
func New(embed Embedder, dim int, saver Saver, logger *zap.Logger) (*Service, error) {
	idx, err := index.NewEmpty(dim)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embed:   embed,
		idx:     idx,
		catalog: NewCatalog(),
		saver:   saver,
		logger:  logger,
	}, nil
}

// Index returns the corpus index.
func (s *Service) Index() *index.Index { return s.idx }

// Catalog returns the trial snapshots.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Trial returns the snapshot of an indexed trial.
func (s *Service) Trial(id string) (trial.Historical, bool) {
	if !s.idx.Contains(id) {
		return trial.Historical{}, false
	}
	return s.catalog.Get(id)
}

// Load replaces the corpus with the trials of src.
func (s *Service) Load(ctx context.Context, src Source) (Stats, error) {
	trials, err := src.Load(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("load corpus: %w", err)
	}
	if err := s.Rebuild(ctx, trials); err != nil {
		return Stats{}, err
	}
	return s.Stats(), nil
}

// Rebuild embeds every trial and atomically swaps index and catalog. Trials
// without known features are skipped; a repeated ID keeps the later trial.
// On error the previous corpus stays in place.
func (s *Service) Rebuild(ctx context.Context, trials []trial.Historical) error {
	start := time.Now()

	byID := make(map[string]trial.Historical, len(trials))
	var order []string
	skipped := 0
	for _, t := range trials {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return &domain.IndexError{Reason: "trial without id"}
		}
		if t.Record.Text() == "" {
			s.logger.Warn("Skipping trial without known fields", zap.String("trial_id", t.ID))
			skipped++
			continue
		}
		if _, ok := byID[t.ID]; !ok {
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}

	texts := make([]string, len(order))
	for i, id := range order {
		texts[i] = byID[id].Record.Text()
	}
	var vectors [][]float32
	if len(texts) > 0 {
		res, err := domain.BatchEmbed(ctx, s.embed, texts)
		if err != nil {
			return fmt.Errorf("embed corpus: %w", err)
		}
		if len(res.Embeddings) != len(texts) {
			return fmt.Errorf("embed corpus: expected %d vectors, got %d", len(texts), len(res.Embeddings))
		}
		vectors = res.Embeddings
	}

	records := make([]index.Record, len(order))
	for i, id := range order {
		records[i] = index.Record{ID: id, Vector: vectors[i]}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// the catalog is a superset of the index while the swap is in flight
	prev := s.catalog.Merge(byID)
	if err := s.idx.Rebuild(records); err != nil {
		s.catalog.Replace(prev)
		return fmt.Errorf("rebuild index: %w", err)
	}
	s.catalog.Replace(byID)
	s.mu.Lock()
	s.loadedAt = time.Now()
	s.skipped = skipped
	s.mu.Unlock()
	metrics.IndexTrials.Set(float64(s.idx.Len()))

	s.logger.Info("Corpus index rebuilt",
		zap.Int("trials", len(order)),
		zap.Int("skipped", skipped),
		zap.Int("dimension", s.idx.Dim()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Add embeds one trial and inserts it, replacing an existing ID. When a
// saver is configured the trial is persisted first.
func (s *Service) Add(ctx context.Context, t trial.Historical) error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return &domain.IndexError{Reason: "trial without id"}
	}
	text := t.Record.Text()
	if text == "" {
		return ErrEmptyRecord
	}

	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed trial %s: %w", t.ID, err)
	}
	if len(res.Embedding) != s.idx.Dim() {
		return &domain.IndexError{
			Reason: fmt.Sprintf("trial %s: vector has %d dimensions, want %d", t.ID, len(res.Embedding), s.idx.Dim()),
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.saver != nil {
		if err := s.saver.Save(ctx, t); err != nil {
			return fmt.Errorf("save trial %s: %w", t.ID, err)
		}
	}

	prev, had := s.catalog.Get(t.ID)
	s.catalog.Put(t)
	if err := s.idx.Add(t.ID, res.Embedding); err != nil {
		if had {
			s.catalog.Put(prev)
		} else {
			s.catalog.Delete(t.ID)
		}
		return fmt.Errorf("index trial %s: %w", t.ID, err)
	}
	metrics.IndexTrials.Set(float64(s.idx.Len()))
	return nil
}

// Stats summarizes the current corpus.
func (s *Service) Stats() Stats {
	cov := make(map[trial.Metric]int, len(trial.Metrics()))
	for _, m := range trial.Metrics() {
		cov[m] = 0
	}
	for _, id := range s.idx.IDs() {
		t, ok := s.catalog.Get(id)
		if !ok {
			continue
		}
		for m := range t.Outcomes {
			cov[m]++
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Trials:    s.idx.Len(),
		Dimension: s.idx.Dim(),
		Skipped:   s.skipped,
		Coverage:  cov,
		LoadedAt:  s.loadedAt,
	}
}
