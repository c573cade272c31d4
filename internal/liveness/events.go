package liveness

import (
	"sync"
	"time"
)

type EventKind string

const (
	EventLoaded EventKind = "detector-loaded"
	EventStatus EventKind = "status-prompt"
	EventAction EventKind = "action-prompt"
	EventFinish EventKind = "detector-finish"
	EventError  EventKind = "detector-error"
	EventDebug  EventKind = "detector-debug"
)

type Event interface {
	Kind() EventKind
	event()
}

type LoadedEvent struct {
	Success bool       `json:"success"`
	Info    EngineInfo `json:"info"`
	Message string     `json:"message,omitempty"`
}

type StatusEvent struct {
	SessionID    string     `json:"session_id"`
	Code         StatusCode `json:"code"`
	State        State      `json:"state"`
	Timestamp    time.Time  `json:"timestamp"`
	SizeRatio    float64    `json:"size_ratio"`
	Frontality   float64    `json:"frontality"`
	Quality      float64    `json:"quality"`
	Real         float64    `json:"real"`
	Live         float64    `json:"live"`
	SilentPassed int        `json:"silent_passed"`
}

type ActionEvent struct {
	SessionID string          `json:"session_id"`
	Challenge ActionChallenge `json:"challenge"`
	Passed    int             `json:"passed"`
	Required  int             `json:"required"`
}

type FinishEvent struct {
	Result Result `json:"result"`
}

type ErrorEvent struct {
	SessionID string    `json:"session_id"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
}

type DebugEvent struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (LoadedEvent) Kind() EventKind { return EventLoaded }
func (StatusEvent) Kind() EventKind { return EventStatus }
func (ActionEvent) Kind() EventKind { return EventAction }
func (FinishEvent) Kind() EventKind { return EventFinish }
func (ErrorEvent) Kind() EventKind  { return EventError }
func (DebugEvent) Kind() EventKind  { return EventDebug }

func (LoadedEvent) event() {}
func (StatusEvent) event() {}
func (ActionEvent) event() {}
func (FinishEvent) event() {}
func (ErrorEvent) event()  {}
func (DebugEvent) event()  {}

type Handler func(Event)

type subscriber struct {
	id      uint64
	kind    EventKind
	handler Handler
}

// Bus fans events out to subscribers synchronously, in the order they
// subscribed.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
}

func NewBus() *Bus {
	return &Bus{}
}

type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Subscribe registers handler for one event kind. An empty kind matches all.
func (b *Bus) Subscribe(kind EventKind, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, kind: kind, handler: handler})
	return &Subscription{bus: b, id: b.nextID}
}

func (b *Bus) SubscribeAll(handler Handler) *Subscription {
	return b.Subscribe("", handler)
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for i, sub := range s.bus.subs {
			if sub.id == s.id {
				s.bus.subs = append(s.bus.subs[:i:i], s.bus.subs[i+1:]...)
				return
			}
		}
	})
}

func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kind == "" || sub.kind == ev.Kind() {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
