package align

import (
	"github.com/banshee-data/validation.report/internal/vru"
)

// nearestNeighbor matches each ground-truth object, in timestamp order, to the
// unmatched detection minimising |time delta| within tolerance. Ties break by
// higher detection confidence, then by earlier detection timestamp. A consumed
// detection is unavailable to later ground-truth objects.
func nearestNeighbor(gt []vru.GroundTruthObject, det []vru.DetectionEvent, p Params) []match {
	consumed := make([]bool, len(det))
	var matches []match

	for i, g := range gt {
		best := -1
		for j, d := range det {
			if consumed[j] || !candidateOK(g, d, p) {
				continue
			}
			if absDeltaMs(g, d) > p.ToleranceMs {
				continue
			}
			if best < 0 || nearerDetection(g, d, det[best]) {
				best = j
			}
		}
		if best >= 0 {
			consumed[best] = true
			matches = append(matches, match{
				gtIdx:  i,
				detIdx: best,
				score:  absDeltaMs(g, det[best]),
				method: MethodNearestNeighbor,
			})
		}
	}
	return matches
}

// nearerDetection reports whether candidate d beats the current best b for
// ground truth g under nearest-neighbor tie-break rules.
func nearerDetection(g vru.GroundTruthObject, d, b vru.DetectionEvent) bool {
	dd, db := absDeltaMs(g, d), absDeltaMs(g, b)
	if dd != db {
		return dd < db
	}
	if d.Confidence != b.Confidence {
		return d.Confidence > b.Confidence
	}
	return d.Timestamp < b.Timestamp
}
