package liveness

import (
	"testing"
	"time"
)

func actionConfig(actions ...Action) Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeLiveness
	cfg.ActionList = actions
	cfg.ActionCount = len(actions)
	cfg.ActionTimeout = time.Second
	cfg.ActionRandom = false
	return cfg
}

func eyes(open float64) Face {
	f := goodFace()
	f.LeftEyeOpen = open
	f.RightEyeOpen = open
	return f
}

func TestActionController_Next(t *testing.T) {
	c := NewActionController(actionConfig(ActionBlink, ActionMouthOpen), SequentialSelector{})
	ch, ok := c.Next(t0)
	if !ok {
		t.Fatal("expected a challenge")
	}
	if ch.Action != ActionBlink || ch.Status != ActionStarted {
		t.Errorf("expected blink STARTED, got %s %s", ch.Action, ch.Status)
	}
	if !ch.Deadline.Equal(t0.Add(time.Second)) {
		t.Errorf("unexpected deadline %v", ch.Deadline)
	}
	if _, ok := c.Next(t0); ok {
		t.Error("Next should not start a second challenge while one is pending")
	}
}

func TestActionController_Blink(t *testing.T) {
	c := NewActionController(actionConfig(ActionBlink), SequentialSelector{})
	c.Next(t0)

	if _, changed := c.Observe(eyes(0.9), t0.Add(100*time.Millisecond)); changed {
		t.Fatal("open eyes alone should not complete a blink")
	}
	if _, changed := c.Observe(eyes(0.05), t0.Add(200*time.Millisecond)); changed {
		t.Fatal("closed eyes alone should not complete a blink")
	}
	ch, changed := c.Observe(eyes(0.8), t0.Add(300*time.Millisecond))
	if !changed || ch.Status != ActionCompleted {
		t.Fatalf("expected blink completed, got %s changed=%v", ch.Status, changed)
	}
	if c.Passed() != 1 || !c.Done() {
		t.Errorf("expected done with 1 passed, got %d", c.Passed())
	}
	if _, ok := c.Next(t0.Add(time.Second)); ok {
		t.Error("no challenge should be issued after the required count")
	}
}

func TestActionController_MouthOpen(t *testing.T) {
	c := NewActionController(actionConfig(ActionMouthOpen), SequentialSelector{})
	c.Next(t0)

	f := goodFace()
	f.MouthOpen = 0.1
	if _, changed := c.Observe(f, t0.Add(100*time.Millisecond)); changed {
		t.Fatal("small aperture should not complete")
	}
	f.MouthOpen = 0.45
	ch, changed := c.Observe(f, t0.Add(200*time.Millisecond))
	if !changed || ch.Status != ActionCompleted {
		t.Fatalf("expected mouth_open completed, got %s", ch.Status)
	}
}

func TestActionController_Nod(t *testing.T) {
	c := NewActionController(actionConfig(ActionNod), SequentialSelector{})
	c.Next(t0)

	f := goodFace()
	for i, pitch := range []float64{0, -3, 4} {
		f.Pose.Pitch = pitch
		if _, changed := c.Observe(f, t0.Add(time.Duration(i+1)*50*time.Millisecond)); changed {
			t.Fatalf("pitch range below threshold completed at %v", pitch)
		}
	}
	f.Pose.Pitch = 8
	ch, changed := c.Observe(f, t0.Add(300*time.Millisecond))
	if !changed || ch.Status != ActionCompleted {
		t.Fatalf("expected nod completed, got %s", ch.Status)
	}
}

func TestActionController_Timeout(t *testing.T) {
	c := NewActionController(actionConfig(ActionMouthOpen), SequentialSelector{})
	c.Next(t0)

	if _, changed := c.Tick(t0.Add(time.Second)); changed {
		t.Fatal("deadline itself should not time out")
	}
	ch, changed := c.Tick(t0.Add(time.Second + time.Millisecond))
	if !changed || ch.Status != ActionTimedOut {
		t.Fatalf("expected TIMEOUT, got %s", ch.Status)
	}
	if c.Done() {
		t.Error("timed out controller should not be done")
	}
	if len(c.History()) != 1 {
		t.Errorf("expected 1 closed challenge, got %d", len(c.History()))
	}
}

func TestActionController_ObserveAfterDeadline(t *testing.T) {
	c := NewActionController(actionConfig(ActionMouthOpen), SequentialSelector{})
	c.Next(t0)

	f := goodFace()
	f.MouthOpen = 0.9
	ch, changed := c.Observe(f, t0.Add(2*time.Second))
	if !changed || ch.Status != ActionTimedOut {
		t.Fatalf("late detection should time out, got %s", ch.Status)
	}
	if c.Passed() != 0 {
		t.Error("late detection should not count")
	}
}

func TestActionController_DistinctActions(t *testing.T) {
	cfg := actionConfig(ActionBlink, ActionBlink, ActionNod)
	cfg.ActionCount = 2
	c := NewActionController(cfg, SequentialSelector{})

	first, _ := c.Next(t0)
	f := goodFace()
	c.Observe(eyes(0.05), t0)
	c.Observe(f, t0.Add(10*time.Millisecond))
	second, ok := c.Next(t0.Add(20 * time.Millisecond))
	if !ok {
		t.Fatal("expected second challenge")
	}
	if first.Action == second.Action {
		t.Errorf("actions should be distinct, got %s twice", first.Action)
	}
}
