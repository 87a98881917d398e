package config

import (
	"fmt"
	"sort"

	"github.com/banshee-data/validation.report/internal/vru/criteria"
)

// Named validation profiles. Loaded once at process start into a read-only
// map; sessions reference a profile by name and never mutate it.
var profiles = map[string]criteria.Criteria{
	"default": {
		Name:                 "default",
		PrecisionMin:         0.80,
		RecallMin:            0.85,
		F1Min:                0.80,
		AccuracyMin:          0.70,
		LatencyMaxMs:         250,
		ConfidenceMin:        0.50,
		FalsePositiveRateMax: 0.20,
		Weights: criteria.Weights{
			Precision: 1.0, Recall: 2.0, F1: 1.0, Accuracy: 1.0,
			Latency: 2.0, Confidence: 0.5, FalsePositiveRate: 1.5,
		},
		RequiredPassFraction: 0.9,
	},
	"strict": {
		Name:                 "strict",
		PrecisionMin:         0.90,
		RecallMin:            0.92,
		F1Min:                0.90,
		AccuracyMin:          0.85,
		LatencyMaxMs:         150,
		ConfidenceMin:        0.60,
		FalsePositiveRateMax: 0.10,
		Weights: criteria.Weights{
			Precision: 1.0, Recall: 2.0, F1: 1.0, Accuracy: 1.0,
			Latency: 2.0, Confidence: 0.5, FalsePositiveRate: 1.5,
		},
		RequiredPassFraction: 0.95,
	},
	// Missed VRUs are the costliest failure mode: recall and latency dominate
	// the weighting and every threshold tightens.
	"safety-critical": {
		Name:                 "safety-critical",
		PrecisionMin:         0.90,
		RecallMin:            0.97,
		F1Min:                0.93,
		AccuracyMin:          0.90,
		LatencyMaxMs:         100,
		ConfidenceMin:        0.70,
		FalsePositiveRateMax: 0.05,
		Weights: criteria.Weights{
			Precision: 1.0, Recall: 4.0, F1: 1.5, Accuracy: 1.0,
			Latency: 3.0, Confidence: 1.0, FalsePositiveRate: 2.0,
		},
		RequiredPassFraction: 1.0,
	},
}

// Profile returns the named validation criteria preset by value, so callers
// cannot mutate the shared definition.
func Profile(name string) (criteria.Criteria, error) {
	c, ok := profiles[name]
	if !ok {
		return criteria.Criteria{}, fmt.Errorf("unknown validation profile %q (have %v)", name, ProfileNames())
	}
	return c, nil
}

// ProfileNames lists the available profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
