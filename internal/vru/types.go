// Package vru holds the shared domain types for VRU detection validation:
// ground truth and detection events, alignment results, latency samples and
// the final per-session validation report.
package vru

import (
	"context"
	"time"
)

// BoundingBox is an axis-aligned box in image coordinates.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// GroundTruthObject is a manually verified object occurrence used as the
// reference for scoring detector output. Immutable once loaded for a session.
type GroundTruthObject struct {
	ID         string      `json:"id"`
	Timestamp  float64     `json:"timestamp"` // seconds since session start
	ClassLabel string      `json:"class_label"`
	Box        BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"` // fixed at 1.0 by convention
}

// DetectionEvent is a single detector output occurrence. Produced externally;
// read-only within this module.
type DetectionEvent struct {
	ID         string      `json:"id"`
	Timestamp  float64     `json:"timestamp"` // seconds since session start
	ClassLabel string      `json:"class_label"`
	Confidence float64     `json:"confidence"` // [0, 1]
	Box        BoundingBox `json:"bounding_box"`
}

// Classification tags an alignment pair as true positive, false positive or
// false negative. There is no true-negative concept in detection matching.
type Classification string

const (
	TruePositive  Classification = "true_positive"
	FalsePositive Classification = "false_positive"
	FalseNegative Classification = "false_negative"
)

// AlignmentPair is one matching outcome produced by the alignment engine.
// Exactly one of GroundTruthID/DetectionID may be empty: a false negative has
// no detection, a false positive has no ground truth. Never mutated after
// creation.
type AlignmentPair struct {
	GroundTruthID  string         `json:"ground_truth_id,omitempty"`
	DetectionID    string         `json:"detection_id,omitempty"`
	ClassLabel     string         `json:"class_label"`
	TimeDeltaMs    float64        `json:"time_delta_ms"` // signed: detection minus ground truth
	DistanceScore  float64        `json:"distance_score"`
	MethodUsed     string         `json:"method_used"`
	Classification Classification `json:"classification"`
}

// LatencySample is one measured detection latency attributed to a class.
type LatencySample struct {
	ClassLabel string    `json:"class_label"`
	LatencyMs  float64   `json:"latency_ms"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// LatencyCategory buckets a latency relative to its threshold.
type LatencyCategory string

const (
	LatencyExcellent  LatencyCategory = "excellent"  // [0%, 30%)
	LatencyGood       LatencyCategory = "good"       // [30%, 60%)
	LatencyAcceptable LatencyCategory = "acceptable" // [60%, 100%)
	LatencyPoor       LatencyCategory = "poor"       // [100%, 150%)
	LatencyCritical   LatencyCategory = "critical"   // [150%, inf)
)

// LatencyCategories lists all categories in ascending severity order.
var LatencyCategories = []LatencyCategory{
	LatencyExcellent, LatencyGood, LatencyAcceptable, LatencyPoor, LatencyCritical,
}

// ClassMetrics holds per-class (or aggregate) detection quality counts and
// derived rates. NoData marks a class with neither ground truth nor detections
// so zero rates are not mistaken for measured ones.
type ClassMetrics struct {
	ClassLabel        string  `json:"class_label"`
	TruePositives     int     `json:"true_positives"`
	FalsePositives    int     `json:"false_positives"`
	FalseNegatives    int     `json:"false_negatives"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1                float64 `json:"f1"`
	Accuracy          float64 `json:"accuracy"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	MeanConfidence    float64 `json:"mean_confidence"` // mean TP detection confidence
	NoData            bool    `json:"no_data,omitempty"`
	RecallNoData      bool    `json:"recall_no_data,omitempty"` // detections but zero ground truth
}

// SessionState is the lifecycle state of a validation session.
type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
	SessionCancelled SessionState = "cancelled"
)

// SessionStatus is the pollable progress view of a session.
type SessionStatus struct {
	SessionID          string       `json:"session_id"`
	State              SessionState `json:"state"`
	ProgressPercentage float64      `json:"progress_percentage"`
}

// OverallStatus is the verdict of a completed validation session.
type OverallStatus string

const (
	StatusPass OverallStatus = "PASS"
	StatusFail OverallStatus = "FAIL"
)

// CriterionResult records the evaluation of one scoring criterion.
type CriterionResult struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Weight    float64 `json:"weight"`
	Passed    bool    `json:"passed"`
	HardFail  bool    `json:"hard_fail"` // failing this criterion alone forces FAIL
}

// LatencySummary holds descriptive statistics over a latency buffer snapshot.
type LatencySummary struct {
	ClassLabel  string  `json:"class_label"`
	Count       int     `json:"count"`
	MeanMs      float64 `json:"mean_ms"`
	MedianMs    float64 `json:"median_ms"`
	StdDevMs    float64 `json:"std_dev_ms"` // population formula
	MinMs       float64 `json:"min_ms"`
	MaxMs       float64 `json:"max_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
	ThresholdMs float64 `json:"threshold_ms"` // adaptive threshold in force
}

// ValidationReport is the single output of a validation session. Created once
// at terminal state and immutable afterwards.
type ValidationReport struct {
	SessionID        string                  `json:"session_id"`
	CreatedAt        time.Time               `json:"created_at"`
	Method           string                  `json:"method"`
	ToleranceMs      float64                 `json:"tolerance_ms"`
	PerClass         map[string]ClassMetrics `json:"per_class"`
	Overall          ClassMetrics            `json:"overall"`
	OverallStatus    OverallStatus           `json:"overall_status"`
	OverallScore     float64                 `json:"overall_score"` // [0, 1]
	Criteria         []CriterionResult       `json:"criteria"`
	LatencyHistogram map[LatencyCategory]int `json:"latency_histogram"`
	LatencySummaries map[string]LatencySummary `json:"latency_summaries"`
	Recommendations  []string                `json:"recommendations"`
	NoData           bool                    `json:"no_data,omitempty"`
}

// EventStore supplies the two ordered event streams for a session. Both
// sequences must be sorted by timestamp ascending; the core verifies order but
// never re-sorts. Implementations own any I/O timeouts via ctx.
type EventStore interface {
	GroundTruth(ctx context.Context, sessionID string) ([]GroundTruthObject, error)
	Detections(ctx context.Context, sessionID string) ([]DetectionEvent, error)
}
