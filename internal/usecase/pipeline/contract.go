package pipeline

import (
	"context"

	"github.com/kailas-cloud/trialfit/internal/domain"
	domfeas "github.com/kailas-cloud/trialfit/internal/domain/feasibility"
	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	"github.com/kailas-cloud/trialfit/internal/usecase/retrieval"
)

// Extractor turns a protocol into a feature record.
type Extractor interface {
	Extract(ctx context.Context, doc domain.ProtocolDocument) (feature.Record, error)
}

// Retriever finds comparator trials in the index.
type Retriever interface {
	Retrieve(ctx context.Context, rec feature.Record, idx retrieval.Index, k int) ([]trial.Comparator, error)
}

// Estimator computes the feasibility report.
type Estimator interface {
	Estimate(rec feature.Record, comparators []trial.Comparator) (domfeas.Report, error)
}
