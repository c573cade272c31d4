package liveness

import "math"

type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

type FrontalityEvaluator struct {
	yaw, pitch, roll float64
	penaltyRange     float64
}

func NewFrontalityEvaluator(cfg Config) *FrontalityEvaluator {
	r := cfg.PosePenaltyRange
	if r <= 0 {
		r = 30
	}
	return &FrontalityEvaluator{
		yaw:          cfg.YawThreshold,
		pitch:        cfg.PitchThreshold,
		roll:         cfg.RollThreshold,
		penaltyRange: r,
	}
}

// Score returns 1 for a face looking straight at the camera. Each axis past
// its threshold subtracts up to 1 linearly over penaltyRange degrees.
func (e *FrontalityEvaluator) Score(p Pose) float64 {
	score := 1.0 - e.penalty(p.Yaw, e.yaw) - e.penalty(p.Pitch, e.pitch) - e.penalty(p.Roll, e.roll)
	if score < 0 {
		return 0
	}
	return score
}

func (e *FrontalityEvaluator) penalty(angle, threshold float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 1
	}
	over := math.Abs(angle) - threshold
	if over <= 0 {
		return 0
	}
	return math.Min(over/e.penaltyRange, 1)
}
