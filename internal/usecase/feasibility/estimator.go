// Package feasibility turns comparator trials into metric estimates and a
// confidence tier.
package feasibility

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/trialfit/internal/domain"
	domfeas "github.com/kailas-cloud/trialfit/internal/domain/feasibility"
	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

const weightTolerance = 1e-9

// Reasons recorded in Report.TierReasons.
const (
	ReasonNoComparators = "no comparators"
	ReasonNoOutcomes    = "no comparator outcomes"
)

// Estimator is pure and safe for concurrent use.
type Estimator struct {
	cfg Config
}

// New creates an estimator. Zero config fields take defaults.
func New(cfg Config) *Estimator {
	cfg.ApplyDefaults()
	return &Estimator{cfg: cfg}
}

// Estimate computes every metric from the comparators that report it and
// assigns the confidence tier. Zero comparators give prior points with
// full-range intervals and the low tier; only broken invariants error.
func (e *Estimator) Estimate(rec feature.Record, comparators []trial.Comparator) (domfeas.Report, error) {
	for _, c := range comparators {
		if math.IsNaN(c.Similarity) || math.IsInf(c.Similarity, 0) || c.Similarity < 0 || c.Similarity > 1 {
			return domfeas.Report{}, &domain.EstimationError{
				Reason: fmt.Sprintf("comparator %s has similarity %v outside [0, 1]", c.TrialID, c.Similarity),
			}
		}
		for m, v := range c.Outcomes {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return domfeas.Report{}, &domain.EstimationError{
					Reason: fmt.Sprintf("comparator %s has non-finite %s", c.TrialID, m),
				}
			}
		}
	}

	report := domfeas.Report{
		Metrics:     make(map[trial.Metric]domfeas.Estimate, len(e.cfg.Priors)),
		TierReasons: []string{},
		Record:      rec,
		Comparators: comparators,
	}
	if report.Comparators == nil {
		report.Comparators = []trial.Comparator{}
	}

	for _, m := range trial.Metrics() {
		prior, ok := e.cfg.Priors[m]
		if !ok {
			continue
		}
		est, err := e.estimateMetric(m, prior, comparators)
		if err != nil {
			return domfeas.Report{}, err
		}
		report.Metrics[m] = est
	}

	report.Tier, report.TierReasons = e.tier(rec, comparators)
	return report, nil
}

func (e *Estimator) estimateMetric(m trial.Metric, prior Prior, comparators []trial.Comparator) (domfeas.Estimate, error) {
	var values, sims []float64
	for _, c := range comparators {
		if v, ok := c.Outcomes[m]; ok {
			values = append(values, v)
			sims = append(sims, c.Similarity)
		}
	}
	if len(values) == 0 {
		return domfeas.Estimate{
			Point:    prior.Point,
			Interval: domfeas.Interval{Low: prior.Min, High: prior.Max},
		}, nil
	}

	weights := normalizeWeights(sims)
	var sum, sumSq, mean float64
	for i, w := range weights {
		sum += w
		sumSq += w * w
		mean += w * values[i]
	}
	if math.Abs(sum-1) > weightTolerance {
		return domfeas.Estimate{}, &domain.EstimationError{
			Reason: fmt.Sprintf("%s: weights sum to %v", m, sum),
		}
	}

	var variance float64
	for i, w := range weights {
		d := values[i] - mean
		variance += w * d * d
	}
	span := prior.Max - prior.Min
	tau2 := e.cfg.PriorVarianceFraction * span * span
	nEff := 1 / sumSq
	half := min(e.cfg.Z*math.Sqrt((variance+tau2)/nEff), span/2)

	point := clamp(mean, prior.Min, prior.Max)
	return domfeas.Estimate{
		Point: point,
		Interval: domfeas.Interval{
			Low:  clamp(point-half, prior.Min, prior.Max),
			High: clamp(point+half, prior.Min, prior.Max),
		},
		Contributors: len(values),
	}, nil
}

// normalizeWeights scales similarities to sum to 1, uniform when all are zero.
func normalizeWeights(sims []float64) []float64 {
	var total float64
	for _, s := range sims {
		total += s
	}
	out := make([]float64, len(sims))
	for i, s := range sims {
		if total == 0 {
			out[i] = 1 / float64(len(sims))
		} else {
			out[i] = s / total
		}
	}
	return out
}

// tier counts qualifying comparators, then drops one step per missing
// critical field. Only comparators that report an estimated metric qualify.
func (e *Estimator) tier(rec feature.Record, comparators []trial.Comparator) (domfeas.Tier, []string) {
	var high, medium, informative int
	for _, c := range comparators {
		if !e.informative(c) {
			continue
		}
		informative++
		if c.Similarity >= e.cfg.HighSimilarityFloor {
			high++
		}
		if c.Similarity >= e.cfg.MediumSimilarityFloor {
			medium++
		}
	}

	reasons := []string{}
	t := domfeas.TierLow
	switch {
	case len(comparators) == 0:
		reasons = append(reasons, ReasonNoComparators)
	case informative == 0:
		reasons = append(reasons, ReasonNoOutcomes)
	case high >= e.cfg.HighMinComparators:
		t = domfeas.TierHigh
	case medium >= e.cfg.MediumMinComparators:
		t = domfeas.TierMedium
	}

	for _, field := range rec.CriticalUnknowns() {
		t = t.Lower()
		reasons = append(reasons, field+" unknown")
	}
	return t, reasons
}

func (e *Estimator) informative(c trial.Comparator) bool {
	for m := range c.Outcomes {
		if _, ok := e.cfg.Priors[m]; ok {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
