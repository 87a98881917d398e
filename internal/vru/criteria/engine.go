package criteria

import (
	"fmt"

	"github.com/banshee-data/validation.report/internal/vru"
)

// Criterion names used in results and recommendations.
const (
	CriterionPrecision         = "precision"
	CriterionRecall            = "recall"
	CriterionF1                = "f1"
	CriterionAccuracy          = "accuracy"
	CriterionLatency           = "latency_ms"
	CriterionConfidence        = "confidence"
	CriterionFalsePositiveRate = "false_positive_rate"
)

// DefaultRequiredPassFraction is the weighted pass fraction required for an
// overall PASS.
const DefaultRequiredPassFraction = 0.9

// Weights assigns each criterion's contribution to the overall score. Missed
// detections and timing carry safety priority: recall, latency and fp-rate
// default heavier than precision.
type Weights struct {
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1                float64 `json:"f1"`
	Accuracy          float64 `json:"accuracy"`
	Latency           float64 `json:"latency"`
	Confidence        float64 `json:"confidence"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Precision + w.Recall + w.F1 + w.Accuracy + w.Latency + w.Confidence + w.FalsePositiveRate
}

// Criteria is an immutable named set of validation thresholds. Sessions
// reference presets by name and never mutate them.
type Criteria struct {
	Name string `json:"name"`

	PrecisionMin         float64 `json:"precision_min"`
	RecallMin            float64 `json:"recall_min"`
	F1Min                float64 `json:"f1_min"`
	AccuracyMin          float64 `json:"accuracy_min"`
	LatencyMaxMs         float64 `json:"latency_max_ms"`
	ConfidenceMin        float64 `json:"confidence_min"`
	FalsePositiveRateMax float64 `json:"false_positive_rate_max"`

	Weights              Weights `json:"weights"`
	RequiredPassFraction float64 `json:"required_pass_fraction"`
}

// Validate rejects criteria whose weights sum to zero; such a configuration
// can never produce a score.
func (c Criteria) Validate() error {
	if c.Weights.Sum() <= 0 {
		return &vru.ConfigurationError{
			Field:  "criteria.weights",
			Reason: "criterion weights must sum to a positive value",
		}
	}
	if c.RequiredPassFraction < 0 || c.RequiredPassFraction > 1 {
		return &vru.ConfigurationError{
			Field:  "criteria.required_pass_fraction",
			Reason: fmt.Sprintf("must be in [0, 1], got %g", c.RequiredPassFraction),
		}
	}
	return nil
}

func (c Criteria) requiredPassFraction() float64 {
	if c.RequiredPassFraction == 0 {
		return DefaultRequiredPassFraction
	}
	return c.RequiredPassFraction
}

// Result is the verdict produced by Evaluate.
type Result struct {
	OverallStatus   vru.OverallStatus
	OverallScore    float64
	Criteria        []vru.CriterionResult
	Recommendations []string
	NoData          bool
}

// Evaluate scores the aggregate metrics against the criteria. latencyMs is
// the session's aggregate latency value (95th percentile of TP latencies).
// Latency and false-positive rate are hard-fail criteria: failing either
// forces FAIL regardless of the weighted score. A session with no events at
// all passes with a no_data flag instead of a numeric verdict.
func Evaluate(c Criteria, overall vru.ClassMetrics, latencyMs float64) (Result, error) {
	if err := c.Validate(); err != nil {
		return Result{}, err
	}

	if overall.NoData {
		return Result{
			OverallStatus: vru.StatusPass,
			NoData:        true,
			Recommendations: []string{
				"no ground truth or detections in session: verdict is no_data PASS, not a measured result",
			},
		}, nil
	}

	results := []vru.CriterionResult{
		atLeast(CriterionPrecision, overall.Precision, c.PrecisionMin, c.Weights.Precision, false),
		atLeast(CriterionRecall, overall.Recall, c.RecallMin, c.Weights.Recall, false),
		atLeast(CriterionF1, overall.F1, c.F1Min, c.Weights.F1, false),
		atLeast(CriterionAccuracy, overall.Accuracy, c.AccuracyMin, c.Weights.Accuracy, false),
		atMost(CriterionLatency, latencyMs, c.LatencyMaxMs, c.Weights.Latency, true),
		atLeast(CriterionConfidence, overall.MeanConfidence, c.ConfidenceMin, c.Weights.Confidence, false),
		atMost(CriterionFalsePositiveRate, overall.FalsePositiveRate, c.FalsePositiveRateMax, c.Weights.FalsePositiveRate, true),
	}

	var score, weightSum float64
	hardFailed := false
	var recs []string
	for _, r := range results {
		weightSum += r.Weight
		if r.Passed {
			score += r.Weight
		} else {
			if r.HardFail && r.Weight > 0 {
				hardFailed = true
			}
			if r.Weight > 0 {
				recs = append(recs, recommendation(r))
			}
		}
	}
	if weightSum <= 0 {
		// Validate guards this; reaching here is a logic defect.
		return Result{}, &vru.ComputationError{Stage: "criteria", Reason: "zero weight sum after validation"}
	}

	res := Result{
		OverallScore:    score / weightSum,
		Criteria:        results,
		Recommendations: recs,
	}
	if res.OverallScore >= c.requiredPassFraction() && !hardFailed {
		res.OverallStatus = vru.StatusPass
	} else {
		res.OverallStatus = vru.StatusFail
	}
	return res, nil
}

// atLeast builds a criterion that passes when value >= threshold. Criteria
// with zero weight are recorded but do not contribute to the score.
func atLeast(name string, value, threshold, weight float64, hardFail bool) vru.CriterionResult {
	return vru.CriterionResult{
		Name:      name,
		Value:     value,
		Threshold: threshold,
		Weight:    weight,
		Passed:    value >= threshold,
		HardFail:  hardFail,
	}
}

// atMost builds a criterion that passes when value <= threshold.
func atMost(name string, value, threshold, weight float64, hardFail bool) vru.CriterionResult {
	return vru.CriterionResult{
		Name:      name,
		Value:     value,
		Threshold: threshold,
		Weight:    weight,
		Passed:    value <= threshold,
		HardFail:  hardFail,
	}
}

func recommendation(r vru.CriterionResult) string {
	direction := "below minimum"
	if r.HardFail || r.Name == CriterionLatency || r.Name == CriterionFalsePositiveRate {
		direction = "above maximum"
	}
	msg := fmt.Sprintf("%s %.4f is %s %.4f", r.Name, r.Value, direction, r.Threshold)
	if r.HardFail {
		msg += " (hard-fail criterion)"
	}
	return msg
}
