package pipeline

import (
	"context"
	"math"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	"github.com/kailas-cloud/trialfit/internal/usecase/retrieval"
)

type stubExtractor struct {
	rec   feature.Record
	err   error
	block bool
}

func (s *stubExtractor) Extract(ctx context.Context, _ domain.ProtocolDocument) (feature.Record, error) {
	if s.block {
		<-ctx.Done()
		return feature.Record{}, &domain.TimeoutError{Stage: domain.StageExtraction, Err: ctx.Err()}
	}
	return s.rec, s.err
}

type stubRetriever struct {
	comps []trial.Comparator
	err   error
	gotK  int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ feature.Record, _ retrieval.Index, k int) ([]trial.Comparator, error) {
	s.gotK = k
	return s.comps, s.err
}

// completer answers every prompt with the same JSON.
type completer struct {
	reply string
	calls int
}

func (c *completer) Complete(context.Context, string, string) (domain.CompletionResult, error) {
	c.calls++
	return domain.CompletionResult{Text: c.reply}, nil
}

func knownRecord() feature.Record {
	rec := feature.NewUnknown()
	rec.Disease = feature.Disease{Term: "NSCLC", Normalized: true, Confidence: feature.ConfidenceHigh}
	rec.Drug = feature.Drug{Name: "Pembrolizumab", Dosage: "200 mg Q3W"}
	rec.Endpoints = feature.EndpointList{Items: []feature.Endpoint{{Name: "Overall survival", Type: feature.Primary}}}
	return rec
}

func strongComparators(n int) []trial.Comparator {
	out := make([]trial.Comparator, n)
	for i := range out {
		out[i] = trial.Comparator{
			TrialID:    "NCT" + string(rune('A'+i)),
			Similarity: 0.9,
			Record:     knownRecord(),
			Outcomes:   trial.Outcomes{trial.EnrollmentRate: 0.6},
		}
	}
	return out
}

func brokenComparators() []trial.Comparator {
	return []trial.Comparator{{TrialID: "NCTX", Similarity: math.NaN()}}
}
