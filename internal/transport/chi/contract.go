package chi

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
	domfeas "github.com/kailas-cloud/trialfit/internal/domain/feasibility"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	domusage "github.com/kailas-cloud/trialfit/internal/domain/usage"
	corpusuc "github.com/kailas-cloud/trialfit/internal/usecase/corpus"
	"github.com/kailas-cloud/trialfit/internal/usecase/extraction"
	healthuc "github.com/kailas-cloud/trialfit/internal/usecase/health"
)

// Pipeline runs a full feasibility assessment.
type Pipeline interface {
	Run(ctx context.Context, doc domain.ProtocolDocument, k int) (domfeas.Report, error)
}

// Extractor runs extraction alone, with diagnostics.
type Extractor interface {
	ExtractDetailed(ctx context.Context, doc domain.ProtocolDocument) (extraction.Result, error)
}

// Corpus exposes the historical corpus.
type Corpus interface {
	Stats() corpusuc.Stats
	Trial(id string) (trial.Historical, bool)
	Add(ctx context.Context, t trial.Historical) error
}

// SimilarFinder returns the nearest indexed neighbours of a trial.
type SimilarFinder interface {
	SimilarTo(trialID string, k int) ([]trial.Comparator, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter reports language-model token usage.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}
