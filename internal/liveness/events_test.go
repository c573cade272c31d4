package liveness

import (
	"slices"
	"testing"
)

func TestBus_Order(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(EventStatus, func(Event) { got = append(got, "status-1") })
	bus.SubscribeAll(func(Event) { got = append(got, "all") })
	bus.Subscribe(EventStatus, func(Event) { got = append(got, "status-2") })
	bus.Subscribe(EventFinish, func(Event) { got = append(got, "finish") })

	bus.Emit(StatusEvent{Code: StatusNoFace})
	want := []string{"status-1", "all", "status-2"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.Subscribe(EventDebug, func(Event) { calls++ })
	other := bus.SubscribeAll(func(Event) {})

	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Emit(DebugEvent{Message: "x"})

	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
	if bus.Len() != 1 {
		t.Errorf("expected 1 remaining subscriber, got %d", bus.Len())
	}
	other.Unsubscribe()
	if bus.Len() != 0 {
		t.Errorf("expected no subscribers, got %d", bus.Len())
	}
}

func TestEventKinds(t *testing.T) {
	tests := []struct {
		ev   Event
		want EventKind
	}{
		{LoadedEvent{}, "detector-loaded"},
		{StatusEvent{}, "status-prompt"},
		{ActionEvent{}, "action-prompt"},
		{FinishEvent{}, "detector-finish"},
		{ErrorEvent{}, "detector-error"},
		{DebugEvent{}, "detector-debug"},
	}
	for _, tt := range tests {
		if tt.ev.Kind() != tt.want {
			t.Errorf("%T.Kind() = %s, want %s", tt.ev, tt.ev.Kind(), tt.want)
		}
	}
}
