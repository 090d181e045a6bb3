// Package trial holds historical trials and the comparators retrieved for a query.
package trial

import (
	"fmt"

	"github.com/kailas-cloud/trialfit/internal/domain/feature"
)

// Metric names an operational outcome of a trial.
type Metric string

const (
	// EnrollmentRate is patients enrolled per site per month.
	EnrollmentRate Metric = "enrollment_rate"
	// ScreenFailureRate is the fraction of screened patients not enrolled.
	ScreenFailureRate Metric = "screen_failure_rate"
	// DurationRisk is the probability of missing the planned enrollment window.
	DurationRisk Metric = "duration_risk"
)

// Metrics lists every known metric in report order.
func Metrics() []Metric {
	return []Metric{EnrollmentRate, ScreenFailureRate, DurationRisk}
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Outcomes maps metric to observed value. Missing keys mean not reported.
type Outcomes map[Metric]float64

// Clone returns an independent copy.
func (o Outcomes) Clone() Outcomes {
	out := make(Outcomes, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Historical is a completed trial from the corpus.
type Historical struct {
	ID       string         `json:"id"`
	Record   feature.Record `json:"record"`
	Outcomes Outcomes       `json:"outcomes"`
}

// Comparator is a historical trial retrieved for a query, with its similarity.
type Comparator struct {
	TrialID    string         `json:"trial_id"`
	Similarity float64        `json:"similarity"`
	Record     feature.Record `json:"record"`
	Outcomes   Outcomes       `json:"outcomes"`
}
