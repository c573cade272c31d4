package liveness

import "math"

type QualityEvaluator struct {
	minBox          float64
	minFace         float64
	requireInBounds bool
}

func NewQualityEvaluator(cfg Config) *QualityEvaluator {
	return &QualityEvaluator{
		minBox:          cfg.MinBoxScore,
		minFace:         cfg.MinFaceScore,
		requireInBounds: cfg.RequireFullFaceInBounds,
	}
}

// Evaluate folds the detector confidences into one quality value. The weakest
// signal wins, and each must clear its own floor for the frame to pass.
func (e *QualityEvaluator) Evaluate(boxScore, faceScore float64, inBounds bool) (float64, bool) {
	if e.requireInBounds && !inBounds {
		return 0, false
	}
	box := clamp01(boxScore)
	face := clamp01(faceScore)
	return math.Min(box, face), box >= e.minBox && face >= e.minFace
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
