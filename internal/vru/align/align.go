// Package align implements temporal alignment of ground-truth and detection
// event streams. Five interchangeable strategies produce a set of alignment
// pairs classifying every input event as TP, FP or FN exactly once.
package align

import (
	"fmt"

	"github.com/banshee-data/validation.report/internal/vru"
)

// Method selects the alignment strategy.
type Method string

const (
	MethodNearestNeighbor  Method = "nearest_neighbor"
	MethodWeightedDistance Method = "weighted_distance"
	MethodInterpolation    Method = "interpolation"
	MethodClustering       Method = "clustering"
	MethodAdaptive         Method = "adaptive"
)

// Methods lists all valid alignment methods.
var Methods = []Method{
	MethodNearestNeighbor,
	MethodWeightedDistance,
	MethodInterpolation,
	MethodClustering,
	MethodAdaptive,
}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", &vru.ConfigurationError{Field: "method", Reason: fmt.Sprintf("unknown alignment method %q", s)}
}

// Default tuning values.
const (
	DefaultClusterWindowMs        = 50.0
	DefaultBurstDensityPerSec     = 10.0
	DefaultConfidenceVarianceHigh = 0.05
)

// Params configures one alignment run.
type Params struct {
	ToleranceMs         float64 // max |time delta| considered a candidate match; must be > 0
	Method              Method
	StrictClassMatching bool // if true only same-label pairs are candidates

	// Clustering: detections of one class within this window of the cluster
	// start collapse into a single cluster.
	ClusterWindowMs float64

	// Adaptive: detection density above this triggers clustering; confidence
	// variance above ConfidenceVarianceHigh triggers weighted distance.
	BurstDensityPerSec     float64
	ConfidenceVarianceHigh float64
}

func (p Params) withDefaults() Params {
	if p.ClusterWindowMs <= 0 {
		p.ClusterWindowMs = DefaultClusterWindowMs
	}
	if p.BurstDensityPerSec <= 0 {
		p.BurstDensityPerSec = DefaultBurstDensityPerSec
	}
	if p.ConfidenceVarianceHigh <= 0 {
		p.ConfidenceVarianceHigh = DefaultConfidenceVarianceHigh
	}
	return p
}

// Validate checks the parameters. A non-positive tolerance is a configuration
// error, not a recoverable condition.
func (p Params) Validate() error {
	if p.ToleranceMs <= 0 {
		return &vru.ConfigurationError{
			Field:  "tolerance_ms",
			Reason: fmt.Sprintf("must be positive, got %g", p.ToleranceMs),
		}
	}
	if _, err := ParseMethod(string(p.Method)); err != nil {
		return err
	}
	return nil
}

// match associates a ground-truth index with a detection index.
type match struct {
	gtIdx  int
	detIdx int
	score  float64 // method-specific distance score
	method Method  // method that produced the match (adaptive records its delegate)
}

// Align matches the two streams and returns the full classified pair set.
// Every ground-truth object yields exactly one TP or FN pair; every detection
// not consumed by a match yields exactly one FP pair. Empty inputs degrade to
// all-FN or all-FP without error.
func Align(gt []vru.GroundTruthObject, det []vru.DetectionEvent, p Params) ([]vru.AlignmentPair, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults()

	method := p.Method
	if method == MethodAdaptive {
		method = chooseAdaptive(det, p)
	}

	var matches []match
	switch method {
	case MethodNearestNeighbor:
		matches = nearestNeighbor(gt, det, p)
	case MethodWeightedDistance:
		matches = weightedDistance(gt, det, p)
	case MethodInterpolation:
		matches = interpolation(gt, det, p)
	case MethodClustering:
		matches = clustering(gt, det, p)
	}

	return buildPairs(gt, det, matches, method), nil
}

// buildPairs turns matches into the classified pair set. Matching consumed
// each detection at most once, so the TP/FP/FN partition is exact.
func buildPairs(gt []vru.GroundTruthObject, det []vru.DetectionEvent, matches []match, method Method) []vru.AlignmentPair {
	matchByGT := make(map[int]match, len(matches))
	consumed := make(map[int]bool, len(matches))
	for _, m := range matches {
		matchByGT[m.gtIdx] = m
		consumed[m.detIdx] = true
	}

	pairs := make([]vru.AlignmentPair, 0, len(gt)+len(det)-len(matches))
	for i, g := range gt {
		m, ok := matchByGT[i]
		if !ok {
			pairs = append(pairs, vru.AlignmentPair{
				GroundTruthID:  g.ID,
				ClassLabel:     g.ClassLabel,
				MethodUsed:     string(method),
				Classification: vru.FalseNegative,
			})
			continue
		}
		d := det[m.detIdx]
		pairs = append(pairs, vru.AlignmentPair{
			GroundTruthID:  g.ID,
			DetectionID:    d.ID,
			ClassLabel:     g.ClassLabel,
			TimeDeltaMs:    deltaMs(g, d),
			DistanceScore:  m.score,
			MethodUsed:     string(m.method),
			Classification: vru.TruePositive,
		})
	}

	for j, d := range det {
		if consumed[j] {
			continue
		}
		pairs = append(pairs, vru.AlignmentPair{
			DetectionID:    d.ID,
			ClassLabel:     d.ClassLabel,
			MethodUsed:     string(method),
			Classification: vru.FalsePositive,
		})
	}

	return pairs
}

// deltaMs is the signed time delta in milliseconds, detection minus ground truth.
func deltaMs(g vru.GroundTruthObject, d vru.DetectionEvent) float64 {
	return (d.Timestamp - g.Timestamp) * 1000.0
}

func absDeltaMs(g vru.GroundTruthObject, d vru.DetectionEvent) float64 {
	dt := deltaMs(g, d)
	if dt < 0 {
		return -dt
	}
	return dt
}

// candidateOK applies the class gate shared by all strategies.
func candidateOK(g vru.GroundTruthObject, d vru.DetectionEvent, p Params) bool {
	return !p.StrictClassMatching || g.ClassLabel == d.ClassLabel
}
