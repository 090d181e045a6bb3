package corpus

import (
	"context"
	"errors"

	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

type sliceSource struct {
	trials []trial.Historical
	err    error
}

func (s *sliceSource) Load(context.Context) ([]trial.Historical, error) {
	return s.trials, s.err
}

type memSaver struct {
	saved []trial.Historical
	err   error
}

func (m *memSaver) Save(_ context.Context, t trial.Historical) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, t)
	return nil
}

var errEmbed = errors.New("embedding provider down")

func historical(id, disease, drug string, enrollment float64) trial.Historical {
	rec := feature.NewUnknown()
	rec.Disease = feature.Disease{Term: disease, Normalized: true, Confidence: feature.ConfidenceHigh}
	rec.Drug = feature.Drug{Name: drug, Dosage: feature.Unknown}
	return trial.Historical{
		ID:       id,
		Record:   rec,
		Outcomes: trial.Outcomes{trial.EnrollmentRate: enrollment},
	}
}
