package models

import "sort"

// AttainmentLevel is the discrete classification of an attainment percentage.
type AttainmentLevel string

const (
	LevelExcellent AttainmentLevel = "excellent"
	LevelHigh      AttainmentLevel = "high"
	LevelMedium    AttainmentLevel = "medium"
	LevelLow       AttainmentLevel = "low"
	LevelVeryLow   AttainmentLevel = "very-low"
	// LevelUnknown is the classification of an Undefined attainment. It is
	// never conflated with very-low.
	LevelUnknown AttainmentLevel = "unknown"
)

// ThresholdBand pairs an inclusive lower bound with its level.
type ThresholdBand struct {
	Min   float64         `json:"min"`
	Level AttainmentLevel `json:"level"`
}

// ThresholdConfig holds the active classification bands for an outcome.
// OutcomeID is empty for the scheme-wide default.
type ThresholdConfig struct {
	OutcomeID string          `json:"outcome_id,omitempty"`
	Bands     []ThresholdBand `json:"bands"`
}

// DefaultThresholds returns the standard five-band scheme.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		Bands: []ThresholdBand{
			{Min: 80, Level: LevelExcellent},
			{Min: 70, Level: LevelHigh},
			{Min: 60, Level: LevelMedium},
			{Min: 50, Level: LevelLow},
		},
	}
}

// Classify maps an attainment onto a level using the provided bands. Bounds
// are inclusive on the higher band, so exactly 80.0 is excellent. Undefined
// always classifies as unknown.
func Classify(a Attainment, cfg ThresholdConfig) AttainmentLevel {
	if !a.Defined {
		return LevelUnknown
	}
	bands := make([]ThresholdBand, len(cfg.Bands))
	copy(bands, cfg.Bands)
	sort.Slice(bands, func(i, j int) bool { return bands[i].Min > bands[j].Min })
	for _, band := range bands {
		if a.Percent >= band.Min {
			return band.Level
		}
	}
	return LevelVeryLow
}
