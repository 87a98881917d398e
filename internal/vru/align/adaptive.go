package align

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/validation.report/internal/vru"
)

// chooseAdaptive inspects the detection stream and delegates to one of the
// concrete strategies: clustering under burst density, weighted distance under
// high confidence variance, nearest neighbor otherwise.
func chooseAdaptive(det []vru.DetectionEvent, p Params) Method {
	if detectionDensity(det) > p.BurstDensityPerSec {
		return MethodClustering
	}
	if confidenceVariance(det) > p.ConfidenceVarianceHigh {
		return MethodWeightedDistance
	}
	return MethodNearestNeighbor
}

// detectionDensity is detections per second over the observed span. A span of
// zero with multiple detections is treated as a burst.
func detectionDensity(det []vru.DetectionEvent) float64 {
	if len(det) < 2 {
		return 0
	}
	span := det[len(det)-1].Timestamp - det[0].Timestamp
	if span <= 0 {
		return float64(len(det)) * 1000.0 // degenerate burst: everything at one instant
	}
	return float64(len(det)) / span
}

// confidenceVariance is the population variance of detection confidences.
func confidenceVariance(det []vru.DetectionEvent) float64 {
	if len(det) < 2 {
		return 0
	}
	conf := make([]float64, len(det))
	for i, d := range det {
		conf[i] = d.Confidence
	}
	mean := stat.Mean(conf, nil)
	return stat.MomentAbout(2, conf, mean, nil)
}
