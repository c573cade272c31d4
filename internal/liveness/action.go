package liveness

import (
	"math"
	"slices"
	"time"
)

type ActionChallenge struct {
	Action    Action       `json:"action"`
	Status    ActionStatus `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	Deadline  time.Time    `json:"deadline"`
	EndedAt   time.Time    `json:"ended_at,omitzero"`
}

// ActionController issues challenges one at a time until the required count
// has been completed. It is not safe for concurrent use; the session owns it.
type ActionController struct {
	cfg       Config
	selector  ActionSelector
	remaining []Action
	required  int

	current *ActionChallenge
	history []ActionChallenge
	passed  int

	sawClosed          bool
	minPitch, maxPitch float64
	pitchSeen          bool
}

func NewActionController(cfg Config, selector ActionSelector) *ActionController {
	if selector == nil {
		selector = SequentialSelector{}
	}
	remaining := make([]Action, 0, len(cfg.ActionList))
	for _, a := range cfg.ActionList {
		if !slices.Contains(remaining, a) {
			remaining = append(remaining, a)
		}
	}
	return &ActionController{
		cfg:       cfg,
		selector:  selector,
		remaining: remaining,
		required:  min(cfg.RequiredActions(), len(remaining)),
	}
}

// Next starts a new challenge. It returns false once the required count is
// reached or while a challenge is still pending.
func (c *ActionController) Next(now time.Time) (ActionChallenge, bool) {
	if c.Done() || len(c.remaining) == 0 {
		return ActionChallenge{}, false
	}
	if c.current != nil && c.current.Status == ActionStarted {
		return *c.current, false
	}

	action := c.selector.Select(slices.Clone(c.remaining))
	c.remaining = slices.DeleteFunc(c.remaining, func(a Action) bool { return a == action })

	c.current = &ActionChallenge{
		Action:    action,
		Status:    ActionStarted,
		StartedAt: now,
		Deadline:  now.Add(c.cfg.ActionTimeout),
	}
	c.sawClosed = false
	c.pitchSeen = false
	return *c.current, true
}

// Observe feeds one detected face to the pending challenge. The bool result
// reports a status change.
func (c *ActionController) Observe(face Face, now time.Time) (ActionChallenge, bool) {
	if ch, expired := c.Tick(now); expired {
		return ch, true
	}
	if c.current == nil || c.current.Status != ActionStarted {
		return ActionChallenge{}, false
	}
	if !c.detect(face) {
		return *c.current, false
	}
	c.close(ActionCompleted, now)
	c.passed++
	return *c.current, true
}

// Tick times out the pending challenge once its deadline has passed.
func (c *ActionController) Tick(now time.Time) (ActionChallenge, bool) {
	if c.current == nil || c.current.Status != ActionStarted {
		return ActionChallenge{}, false
	}
	if !now.After(c.current.Deadline) {
		return *c.current, false
	}
	c.close(ActionTimedOut, now)
	return *c.current, true
}

func (c *ActionController) close(status ActionStatus, now time.Time) {
	c.current.Status = status
	c.current.EndedAt = now
	c.history = append(c.history, *c.current)
}

func (c *ActionController) detect(face Face) bool {
	switch c.current.Action {
	case ActionBlink:
		open := (face.LeftEyeOpen + face.RightEyeOpen) / 2
		if math.IsNaN(open) {
			return false
		}
		if open < c.cfg.BlinkClosedThreshold {
			c.sawClosed = true
			return false
		}
		return c.sawClosed && open >= c.cfg.BlinkOpenThreshold
	case ActionMouthOpen:
		return !math.IsNaN(face.MouthOpen) && face.MouthOpen >= c.cfg.MinMouthOpenPercent
	case ActionNod:
		pitch := face.Pose.Pitch
		if math.IsNaN(pitch) || math.IsInf(pitch, 0) {
			return false
		}
		if !c.pitchSeen {
			c.minPitch, c.maxPitch, c.pitchSeen = pitch, pitch, true
		}
		c.minPitch = math.Min(c.minPitch, pitch)
		c.maxPitch = math.Max(c.maxPitch, pitch)
		return c.maxPitch-c.minPitch >= c.cfg.NodThreshold
	}
	return false
}

func (c *ActionController) Current() (ActionChallenge, bool) {
	if c.current == nil {
		return ActionChallenge{}, false
	}
	return *c.current, true
}

func (c *ActionController) Passed() int   { return c.passed }
func (c *ActionController) Required() int { return c.required }
func (c *ActionController) Done() bool    { return c.passed >= c.required }

// History returns every closed challenge in the order they ended.
func (c *ActionController) History() []ActionChallenge {
	return slices.Clone(c.history)
}
