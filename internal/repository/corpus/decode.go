// Package corpus loads historical trials from JSON Lines files and SQLite.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain/schema"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

var errMissingID = errors.New("trial without id")

// line is the stored shape of one trial. Record uses the extraction schema,
// so corpus terms are normalized exactly like extracted ones.
type line struct {
	ID       string             `json:"id"`
	Record   map[string]any     `json:"record"`
	Outcomes map[string]float64 `json:"outcomes"`
}

func decode(reg *schema.Registry, l line, logger *zap.Logger) (trial.Historical, error) {
	if l.ID == "" {
		return trial.Historical{}, errMissingID
	}
	rec, violations := reg.Validate(l.Record)
	if len(violations) > 0 {
		logger.Debug("Corpus record violates schema",
			zap.String("trial_id", l.ID),
			zap.Stringers("violations", violations),
		)
	}
	outcomes := make(trial.Outcomes, len(l.Outcomes))
	for k, v := range l.Outcomes {
		m, err := trial.ParseMetric(k)
		if err != nil {
			return trial.Historical{}, fmt.Errorf("trial %s: %w", l.ID, err)
		}
		outcomes[m] = v
	}
	return trial.Historical{ID: l.ID, Record: rec, Outcomes: outcomes}, nil
}

func encode(t trial.Historical) line {
	outcomes := make(map[string]float64, len(t.Outcomes))
	for m, v := range t.Outcomes {
		outcomes[string(m)] = v
	}
	return line{ID: t.ID, Record: schema.Encode(t.Record), Outcomes: outcomes}
}

func marshalRecord(t trial.Historical) (string, error) {
	b, err := json.Marshal(schema.Encode(t.Record))
	if err != nil {
		return "", fmt.Errorf("marshal record %s: %w", t.ID, err)
	}
	return string(b), nil
}
