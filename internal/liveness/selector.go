package liveness

import "math/rand/v2"

// ActionSelector picks the next challenge from the actions not yet issued in
// this session. remaining is never empty.
type ActionSelector interface {
	Select(remaining []Action) Action
}

type SequentialSelector struct{}

func (SequentialSelector) Select(remaining []Action) Action {
	return remaining[0]
}

type RandomSelector struct {
	rng *rand.Rand
}

func NewRandomSelector(seed uint64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *RandomSelector) Select(remaining []Action) Action {
	return remaining[s.rng.IntN(len(remaining))]
}

// NewSelector returns the strategy implied by cfg.ActionRandom.
func NewSelector(cfg Config, seed uint64) ActionSelector {
	if cfg.ActionRandom {
		return NewRandomSelector(seed)
	}
	return SequentialSelector{}
}
