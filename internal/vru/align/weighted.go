package align

import (
	"github.com/banshee-data/validation.report/internal/vru"
)

// weightedDistance matches by the combined time/confidence score
// |Δt|/tolerance * (1 - confidence), minimum score wins. Candidates must
// still lie within tolerance. Equal scores break by higher confidence, then
// earliest detection timestamp (canonical tie-break; see DESIGN.md).
func weightedDistance(gt []vru.GroundTruthObject, det []vru.DetectionEvent, p Params) []match {
	consumed := make([]bool, len(det))
	var matches []match

	for i, g := range gt {
		best := -1
		bestScore := 0.0
		for j, d := range det {
			if consumed[j] || !candidateOK(g, d, p) {
				continue
			}
			if absDeltaMs(g, d) > p.ToleranceMs {
				continue
			}
			score := weightedScore(g, d, p.ToleranceMs)
			if best < 0 || score < bestScore ||
				(score == bestScore && betterWeightedTie(d, det[best])) {
				best = j
				bestScore = score
			}
		}
		if best >= 0 {
			consumed[best] = true
			matches = append(matches, match{
				gtIdx:  i,
				detIdx: best,
				score:  bestScore,
				method: MethodWeightedDistance,
			})
		}
	}
	return matches
}

func weightedScore(g vru.GroundTruthObject, d vru.DetectionEvent, toleranceMs float64) float64 {
	return absDeltaMs(g, d) / toleranceMs * (1.0 - d.Confidence)
}

func betterWeightedTie(d, b vru.DetectionEvent) bool {
	if d.Confidence != b.Confidence {
		return d.Confidence > b.Confidence
	}
	return d.Timestamp < b.Timestamp
}
