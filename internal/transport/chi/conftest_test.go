package chi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/trialfit/internal/domain"
	domfeas "github.com/kailas-cloud/trialfit/internal/domain/feasibility"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	domusage "github.com/kailas-cloud/trialfit/internal/domain/usage"
	corpusuc "github.com/kailas-cloud/trialfit/internal/usecase/corpus"
	"github.com/kailas-cloud/trialfit/internal/usecase/extraction"
	healthuc "github.com/kailas-cloud/trialfit/internal/usecase/health"
)

type stubPipeline struct {
	report domfeas.Report
	err    error
	gotDoc domain.ProtocolDocument
	gotK   int
}

func (s *stubPipeline) Run(_ context.Context, doc domain.ProtocolDocument, k int) (domfeas.Report, error) {
	s.gotDoc = doc
	s.gotK = k
	return s.report, s.err
}

type stubExtractor struct {
	res extraction.Result
	err error
}

func (s *stubExtractor) ExtractDetailed(context.Context, domain.ProtocolDocument) (extraction.Result, error) {
	return s.res, s.err
}

type stubCorpus struct {
	stats  corpusuc.Stats
	trials map[string]trial.Historical
	addErr error
	added  []trial.Historical
}

func (s *stubCorpus) Stats() corpusuc.Stats { return s.stats }

func (s *stubCorpus) Trial(id string) (trial.Historical, bool) {
	t, ok := s.trials[id]
	return t, ok
}

func (s *stubCorpus) Add(_ context.Context, t trial.Historical) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, t)
	return nil
}

type stubSimilar struct {
	comps []trial.Comparator
	err   error
	gotID string
	gotK  int
}

func (s *stubSimilar) SimilarTo(id string, k int) ([]trial.Comparator, error) {
	s.gotID = id
	s.gotK = k
	return s.comps, s.err
}

type stubHealth struct {
	report healthuc.Report
}

func (s *stubHealth) Check(context.Context) healthuc.Report { return s.report }

type stubUsage struct {
	report    domusage.Report
	gotPeriod domusage.Period
}

func (s *stubUsage) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	s.gotPeriod = period
	return s.report
}

type fixture struct {
	pipeline  *stubPipeline
	extractor *stubExtractor
	corpus    *stubCorpus
	similar   *stubSimilar
	health    *stubHealth
	usage     *stubUsage
	handler   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		pipeline:  &stubPipeline{},
		extractor: &stubExtractor{},
		corpus:    &stubCorpus{trials: map[string]trial.Historical{}},
		similar:   &stubSimilar{},
		health:    &stubHealth{report: healthuc.Report{Status: healthuc.Healthy}},
		usage:     &stubUsage{},
	}
	srv := NewServer(f.pipeline, f.extractor, f.corpus, f.similar, nil, f.health, f.usage, nil)
	r := chi.NewRouter()
	srv.Mount(r)
	f.handler = r
	return f
}
