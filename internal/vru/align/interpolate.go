package align

import (
	"github.com/banshee-data/validation.report/internal/vru"
)

// interpolation runs nearest-neighbor first, then rescues ground-truth objects
// with no detection inside tolerance when two unconsumed detections of the
// same class bracket the ground-truth timestamp. The implied detection's
// confidence is linearly interpolated between the brackets and tested with the
// weighted-distance rule against tolerance: the nearer bracket is accepted
// when nearGap/tolerance * (1 - impliedConfidence) <= 1. Otherwise the object
// falls back to FN.
func interpolation(gt []vru.GroundTruthObject, det []vru.DetectionEvent, p Params) []match {
	matches := nearestNeighbor(gt, det, p)
	for i := range matches {
		matches[i].method = MethodInterpolation
	}

	matchedGT := make(map[int]bool, len(matches))
	consumed := make([]bool, len(det))
	for _, m := range matches {
		matchedGT[m.gtIdx] = true
		consumed[m.detIdx] = true
	}

	for i, g := range gt {
		if matchedGT[i] {
			continue
		}
		before, after := bracket(g, det, consumed)
		if before < 0 || after < 0 {
			continue
		}
		b0, b1 := det[before], det[after]

		span := b1.Timestamp - b0.Timestamp
		frac := 0.0
		if span > 0 {
			frac = (g.Timestamp - b0.Timestamp) / span
		}
		implied := b0.Confidence + (b1.Confidence-b0.Confidence)*frac

		nearest := before
		if absDeltaMs(g, b1) < absDeltaMs(g, b0) {
			nearest = after
		}
		score := absDeltaMs(g, det[nearest]) / p.ToleranceMs * (1.0 - implied)
		if score > 1.0 {
			continue
		}

		consumed[nearest] = true
		matches = append(matches, match{
			gtIdx:  i,
			detIdx: nearest,
			score:  score,
			method: MethodInterpolation,
		})
	}
	return matches
}

// bracket finds the latest unconsumed same-class detection at or before g and
// the earliest at or after g. Returns -1 indices when no bracket exists.
func bracket(g vru.GroundTruthObject, det []vru.DetectionEvent, consumed []bool) (before, after int) {
	before, after = -1, -1
	for j, d := range det {
		if consumed[j] || d.ClassLabel != g.ClassLabel {
			continue
		}
		if d.Timestamp <= g.Timestamp {
			if before < 0 || d.Timestamp > det[before].Timestamp {
				before = j
			}
		}
		if d.Timestamp >= g.Timestamp {
			if after < 0 || d.Timestamp < det[after].Timestamp {
				after = j
			}
		}
	}
	if before == after {
		// A single detection exactly at the ground-truth timestamp is not a
		// bracket; nearest-neighbor already had its chance at it.
		return -1, -1
	}
	return before, after
}
