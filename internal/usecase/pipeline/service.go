// Package pipeline runs extraction, retrieval and estimation for one protocol.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
	domfeas "github.com/kailas-cloud/trialfit/internal/domain/feasibility"
	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	logpkg "github.com/kailas-cloud/trialfit/internal/logger"
	"github.com/kailas-cloud/trialfit/internal/metrics"
	"github.com/kailas-cloud/trialfit/internal/usecase/retrieval"
)

// ReasonRetrievalDegraded marks a report built without comparators because
// retrieval failed.
const ReasonRetrievalDegraded = "retrieval degraded"

// DefaultK is the comparator count when the caller passes k <= 0.
const DefaultK = 10

// Config sets per-stage budgets. Zero disables a stage timeout.
type Config struct {
	ExtractTimeout  time.Duration
	RetrieveTimeout time.Duration
	DefaultK        int
}

// Service sequences the pipeline stages.
type Service struct {
	extract  Extractor
	retrieve Retriever
	estimate Estimator
	idx      retrieval.Index
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates the orchestrator over the process-wide index.
func New(
	extract Extractor, retrieve Retriever, estimate Estimator,
	idx retrieval.Index, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		extract:  extract,
		retrieve: retrieve,
		estimate: estimate,
		idx:      idx,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run produces the feasibility report of doc from up to k comparators.
// Extraction failures and hard retrieval failures abort the run with a
// *domain.StageError. Soft retrieval failures (provider errors, timeouts)
// degrade to zero comparators and a low tier.
func (s *Service) Run(ctx context.Context, doc domain.ProtocolDocument, k int) (domfeas.Report, error) {
	start := s.now()
	runID := uuid.NewString()
	log := logpkg.FromContextOr(ctx, s.logger).With(zap.String("run_id", runID), zap.String("trial_id", doc.TrialID))
	if k <= 0 {
		k = s.cfg.DefaultK
	}

	rec, err := timed(ctx, domain.StageExtraction, s.cfg.ExtractTimeout, func(ctx context.Context) (feature.Record, error) {
		return s.extract.Extract(ctx, doc)
	})
	if err != nil {
		return s.fail(log, start, domain.StageExtraction, err)
	}

	degraded := false
	comps, err := timed(ctx, domain.StageRetrieval, s.cfg.RetrieveTimeout, func(ctx context.Context) ([]trial.Comparator, error) {
		return s.retrieve.Retrieve(ctx, rec, s.idx, k)
	})
	if err != nil {
		if hardRetrievalFailure(ctx, err) {
			return s.fail(log, start, domain.StageRetrieval, err)
		}
		log.Warn("Retrieval failed, continuing without comparators", zap.Error(err))
		comps = []trial.Comparator{}
		degraded = true
	}

	report, err := timed(ctx, domain.StageEstimation, 0, func(context.Context) (domfeas.Report, error) {
		return s.estimate.Estimate(rec, comps)
	})
	if err != nil {
		return s.fail(log, start, domain.StageEstimation, err)
	}

	if degraded {
		report.Tier = domfeas.TierLow
		report.TierReasons = append(report.TierReasons, ReasonRetrievalDegraded)
	}
	report.RunID = runID
	report.GeneratedAt = s.now().UTC()

	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	metrics.PipelineRunsTotal.WithLabelValues(outcome, report.Tier.String()).Inc()
	log.Info("Pipeline run completed",
		zap.String("outcome", outcome),
		zap.Stringer("tier", report.Tier),
		zap.Strings("tier_reasons", report.TierReasons),
		zap.Int("comparators", len(report.Comparators)),
		zap.Strings("unknown_fields", rec.UnknownFields()),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return report, nil
}

func (s *Service) fail(log *zap.Logger, start time.Time, stage domain.Stage, err error) (domfeas.Report, error) {
	metrics.PipelineRunsTotal.WithLabelValues("failed", "none").Inc()
	log.Error("Pipeline run failed",
		zap.String("stage", string(stage)),
		zap.Duration("duration", s.now().Sub(start)),
		zap.Error(err),
	)
	return domfeas.Report{}, &domain.StageError{Stage: stage, Err: err}
}

// hardRetrievalFailure separates misconfiguration and caller cancellation
// from provider trouble. Only the latter degrades.
func hardRetrievalFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var dm *domain.DimensionMismatchError
	if errors.As(err, &dm) {
		return true
	}
	return !errors.Is(err, domain.ErrRetrieval)
}

// timed runs one stage under its own timeout and records its duration.
func timed[T any](
	ctx context.Context, stage domain.Stage, timeout time.Duration, fn func(context.Context) (T, error),
) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PipelineStageDuration.WithLabelValues(string(stage), outcome).Observe(time.Since(start).Seconds())
	return res, err
}
