// Package extraction turns protocol text into a validated feature record.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/protocol"
	"github.com/kailas-cloud/trialfit/internal/domain/schema"
	"github.com/kailas-cloud/trialfit/internal/metrics"
)

// DefaultConcurrency bounds parallel window extraction.
const DefaultConcurrency = 4

// Config tunes windowing.
type Config struct {
	ChunkChars   int
	ChunkOverlap int
	Concurrency  int
}

// Violation is a schema violation found in one window's output.
type Violation struct {
	Window int    `json:"window"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Result is an extraction with its diagnostics.
type Result struct {
	Record     feature.Record `json:"record"`
	Windows    int            `json:"windows"`
	Repairs    int            `json:"repairs"`
	Unparsed   int            `json:"unparsed"`
	Violations []Violation    `json:"violations"`
}

// Service extracts feature records with a language model.
type Service struct {
	llm      Completer
	registry *schema.Registry
	cfg      Config
	logger   *zap.Logger

	schemaJSON string
	vocabulary []string
}

// New creates an extraction service.
func New(llm Completer, registry *schema.Registry, cfg Config, logger *zap.Logger) *Service {
	if registry == nil {
		registry = schema.Default()
	}
	if cfg.ChunkChars == 0 {
		cfg.ChunkChars = protocol.DefaultChunkChars
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = protocol.DefaultChunkOverlap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		llm:        llm,
		registry:   registry,
		cfg:        cfg,
		logger:     logger,
		schemaJSON: registry.PromptSchema(),
		vocabulary: registry.SortedVocabulary(),
	}
}

// Extract returns the merged feature record of doc.
func (s *Service) Extract(ctx context.Context, doc domain.ProtocolDocument) (feature.Record, error) {
	res, err := s.ExtractDetailed(ctx, doc)
	if err != nil {
		return feature.Record{}, err
	}
	return res.Record, nil
}

// ExtractDetailed extracts every window, concurrently when there are
// several, and merges them in window order: a later window only fills fields
// the earlier ones left unknown. Unparseable output costs one repair call and
// then degrades to an all-unknown window. Completer failures abort the whole
// extraction.
func (s *Service) ExtractDetailed(ctx context.Context, doc domain.ProtocolDocument) (Result, error) {
	if doc.IsEmpty() {
		return Result{}, &domain.ExtractionError{Err: domain.ErrEmptyDocument}
	}

	start := time.Now()
	windows := protocol.Split(doc.Text, s.cfg.ChunkChars, s.cfg.ChunkOverlap)
	parts := make([]windowResult, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, w := range windows {
		g.Go(func() error {
			wr, err := s.extractWindow(gctx, w)
			if err != nil {
				return fmt.Errorf("window %d: %w", w.Index, err)
			}
			parts[w.Index] = wr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, classify(ctx, err)
	}

	res := Result{Record: feature.NewUnknown(), Windows: len(windows), Violations: []Violation{}}
	for i, p := range parts {
		res.Record = res.Record.FillUnknown(p.record)
		if p.repaired {
			res.Repairs++
		}
		if p.unparsed {
			res.Unparsed++
		}
		for _, v := range p.violations {
			res.Violations = append(res.Violations, Violation{Window: i, Field: v.Field, Reason: v.Reason})
		}
	}

	s.logger.Debug("Extraction completed",
		zap.String("trial_id", doc.TrialID),
		zap.Int("windows", res.Windows),
		zap.Int("repairs", res.Repairs),
		zap.Int("unparsed", res.Unparsed),
		zap.Int("violations", len(res.Violations)),
		zap.Strings("unknown_fields", res.Record.UnknownFields()),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

type windowResult struct {
	record     feature.Record
	violations []schema.Violation
	repaired   bool
	unparsed   bool
}

func (s *Service) extractWindow(ctx context.Context, w protocol.Window) (windowResult, error) {
	out, err := s.llm.Complete(ctx, buildPrompt(s.schemaJSON, s.vocabulary, w.Text), s.schemaJSON)
	if err != nil {
		return windowResult{}, err
	}

	raw, perr := parseObject(out.Text)
	repaired := false
	if perr != nil {
		raw, err = s.repair(ctx, w, out.Text, perr)
		if err != nil {
			return windowResult{}, err
		}
		if raw == nil {
			return windowResult{record: feature.NewUnknown(), unparsed: true}, nil
		}
		repaired = true
	}

	rec, violations := s.registry.Validate(raw)
	if len(violations) > 0 {
		s.logger.Debug("Window output violates schema",
			zap.Int("window", w.Index),
			zap.String("section", w.Section),
			zap.Stringers("violations", violations),
		)
	}
	return windowResult{record: rec, violations: violations, repaired: repaired}, nil
}

// repair asks the model once to fix its own output. A nil map with a nil
// error means the second answer was unparseable too.
func (s *Service) repair(ctx context.Context, w protocol.Window, invalid string, cause error) (map[string]any, error) {
	s.logger.Warn("Model output is not valid JSON, requesting repair",
		zap.Int("window", w.Index),
		zap.String("section", w.Section),
		zap.Error(cause),
	)

	out, err := s.llm.Complete(ctx, buildRepairPrompt(s.schemaJSON, invalid, cause), s.schemaJSON)
	if err != nil {
		return nil, err
	}
	raw, perr := parseObject(out.Text)
	if perr != nil {
		metrics.ExtractionRepairsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Repair output is not valid JSON, window treated as unknown",
			zap.Int("window", w.Index),
			zap.Error(perr),
		)
		return nil, nil
	}
	metrics.ExtractionRepairsTotal.WithLabelValues("fixed").Inc()
	return raw, nil
}

// classify maps a failed completer call to the extraction error kinds.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.TimeoutError{Stage: domain.StageExtraction, Err: err}
	}
	return &domain.ExtractionError{Err: err}
}
