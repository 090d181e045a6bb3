package feasibility

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

// Prior is the fallback estimate and the valid range of one metric.
type Prior struct {
	Point float64 `yaml:"point"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// Config tunes the estimator.
type Config struct {
	Priors map[trial.Metric]Prior
	// Z is the interval multiplier (1.96 for ~95%).
	Z float64
	// PriorVarianceFraction sets the variance floor as a fraction of range².
	PriorVarianceFraction float64

	HighMinComparators    int
	HighSimilarityFloor   float64
	MediumMinComparators  int
	MediumSimilarityFloor float64
}

// DefaultPriors returns the built-in metric priors.
func DefaultPriors() map[trial.Metric]Prior {
	return map[trial.Metric]Prior{
		trial.EnrollmentRate:    {Point: 1.0, Min: 0, Max: 50},
		trial.ScreenFailureRate: {Point: 0.35, Min: 0, Max: 1},
		trial.DurationRisk:      {Point: 0.5, Min: 0, Max: 1},
	}
}

// DefaultConfig returns the built-in estimator settings.
func DefaultConfig() Config {
	return Config{
		Priors:                DefaultPriors(),
		Z:                     1.96,
		PriorVarianceFraction: 0.0025,
		HighMinComparators:    5,
		HighSimilarityFloor:   0.75,
		MediumMinComparators:  2,
		MediumSimilarityFloor: 0.5,
	}
}

// ApplyDefaults fills zero fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Priors == nil {
		c.Priors = make(map[trial.Metric]Prior)
	}
	for m, p := range d.Priors {
		if _, ok := c.Priors[m]; !ok {
			c.Priors[m] = p
		}
	}
	if c.Z == 0 {
		c.Z = d.Z
	}
	if c.PriorVarianceFraction == 0 {
		c.PriorVarianceFraction = d.PriorVarianceFraction
	}
	if c.HighMinComparators == 0 {
		c.HighMinComparators = d.HighMinComparators
	}
	if c.HighSimilarityFloor == 0 {
		c.HighSimilarityFloor = d.HighSimilarityFloor
	}
	if c.MediumMinComparators == 0 {
		c.MediumMinComparators = d.MediumMinComparators
	}
	if c.MediumSimilarityFloor == 0 {
		c.MediumSimilarityFloor = d.MediumSimilarityFloor
	}
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	var errs []error
	for m, p := range c.Priors {
		if _, err := trial.ParseMetric(string(m)); err != nil {
			errs = append(errs, err)
			continue
		}
		if !(p.Min < p.Max) {
			errs = append(errs, fmt.Errorf("%s: min %v must be below max %v", m, p.Min, p.Max))
		}
		if p.Point < p.Min || p.Point > p.Max {
			errs = append(errs, fmt.Errorf("%s: prior point %v outside [%v, %v]", m, p.Point, p.Min, p.Max))
		}
	}
	if c.Z <= 0 {
		errs = append(errs, fmt.Errorf("z must be positive, got %v", c.Z))
	}
	if c.PriorVarianceFraction <= 0 {
		errs = append(errs, fmt.Errorf("prior_variance_fraction must be positive, got %v", c.PriorVarianceFraction))
	}
	if c.MediumMinComparators < 1 || c.HighMinComparators < c.MediumMinComparators {
		errs = append(errs, fmt.Errorf("need 1 <= medium_min_comparators (%d) <= high_min_comparators (%d)",
			c.MediumMinComparators, c.HighMinComparators))
	}
	if c.MediumSimilarityFloor < 0 || c.HighSimilarityFloor > 1 || c.HighSimilarityFloor < c.MediumSimilarityFloor {
		errs = append(errs, fmt.Errorf("need 0 <= medium_similarity_floor (%v) <= high_similarity_floor (%v) <= 1",
			c.MediumSimilarityFloor, c.HighSimilarityFloor))
	}
	return errors.Join(errs...)
}
