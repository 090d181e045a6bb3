// Package feasibility holds the feasibility report types.
package feasibility

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

// Tier is the confidence tier of a report. Higher is better.
type Tier int

const (
	// TierLow is the floor.
	TierLow Tier = iota
	// TierMedium is the middle tier.
	TierMedium
	// TierHigh is the top tier.
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// Lower returns the next tier down, floored at low.
func (t Tier) Lower() Tier {
	if t <= TierLow {
		return TierLow
	}
	return t - 1
}

// MarshalText encodes the tier as its name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "high":
		*t = TierHigh
	case "medium":
		*t = TierMedium
	case "low":
		*t = TierLow
	default:
		return fmt.Errorf("unknown tier %q", string(b))
	}
	return nil
}

// Interval is a closed range.
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Width returns High - Low.
func (i Interval) Width() float64 { return i.High - i.Low }

// Contains reports whether v lies in the interval.
func (i Interval) Contains(v float64) bool { return v >= i.Low && v <= i.High }

// Estimate is a point estimate with its uncertainty interval.
type Estimate struct {
	Point        float64  `json:"point"`
	Interval     Interval `json:"interval"`
	Contributors int      `json:"contributors"`
}

// Report is the feasibility assessment of one protocol.
type Report struct {
	RunID       string                    `json:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Metrics     map[trial.Metric]Estimate `json:"metrics"`
	Tier        Tier                      `json:"tier"`
	TierReasons []string                  `json:"tier_reasons"`
	Record      feature.Record            `json:"record"`
	Comparators []trial.Comparator        `json:"comparators"`
}
