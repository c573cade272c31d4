package liveness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockDetector struct {
	mu         sync.Mutex
	detectFunc func(frame Frame) ([]Face, error)
	calls      int
}

func (m *mockDetector) Detect(_ context.Context, frame Frame) ([]Face, error) {
	m.mu.Lock()
	m.calls++
	fn := m.detectFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(frame)
	}
	return []Face{goodFace()}, nil
}

func (m *mockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockClassifier struct {
	scores SpoofScores
	err    error
	calls  int
}

func (m *mockClassifier) Classify(_ context.Context, _ Frame, _ Face) (SpoofScores, error) {
	m.calls++
	if m.err != nil {
		return SpoofScores{}, m.err
	}
	return m.scores, nil
}

type mockCropper struct {
	calls int
}

func (m *mockCropper) Crop(_ Frame, _ Box) ([]byte, error) {
	m.calls++
	return []byte("crop"), nil
}

type mockLoader struct {
	info  EngineInfo
	errs  []error
	calls int
}

func (m *mockLoader) Load(_ context.Context) (EngineInfo, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return EngineInfo{}, err
		}
	}
	return m.info, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func goodFace() Face {
	return Face{
		Box:          Box{X: 10, Y: 10, Width: 70, Height: 70},
		BoxScore:     0.9,
		FaceScore:    0.9,
		LeftEyeOpen:  0.9,
		RightEyeOpen: 0.9,
	}
}

func frameAt(seq uint64, at time.Time) Frame {
	return Frame{Seq: seq, Timestamp: at, Width: 100, Height: 100}
}

type harness struct {
	session    *Session
	detector   *mockDetector
	classifier *mockClassifier
	cropper    *mockCropper
	events     *recorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		detector:   &mockDetector{},
		classifier: &mockClassifier{scores: SpoofScores{Real: 0.9, Live: 0.9}},
		cropper:    &mockCropper{},
		events:     &recorder{},
	}
	engine := NewEngine(EngineConfig{
		Detector:   h.detector,
		Classifier: h.classifier,
		Cropper:    h.cropper,
		Logger:     discardLogger(),
	})
	bus := NewBus()
	bus.SubscribeAll(h.events.handle)

	s, err := NewSession(SessionConfig{
		ID:       "sess-1",
		Config:   cfg,
		Engine:   engine,
		Bus:      bus,
		Selector: SequentialSelector{},
		Logger:   discardLogger(),
		Now:      func() time.Time { return t0 },
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	h.session = s
	return h
}

// start initializes the session and moves it to COLLECTING at t0.
func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.session.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := h.session.Start(t0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.session.VideoReady(100, 100, t0); err != nil {
		t.Fatalf("VideoReady failed: %v", err)
	}
	if h.session.State() != StateCollecting {
		t.Fatalf("expected collecting, got %s", h.session.State())
	}
}

func (h *harness) frame(t *testing.T, seq uint64, at time.Time) error {
	t.Helper()
	err := h.session.ProcessFrame(context.Background(), frameAt(seq, at))
	if err != nil && !errors.Is(err, ErrFrameSkipped) && !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("ProcessFrame(%d) unexpected error: %v", seq, err)
	}
	return err
}

func (h *harness) result(t *testing.T) Result {
	t.Helper()
	r, ok := h.session.Result()
	if !ok {
		t.Fatalf("expected result, session state %s", h.session.State())
	}
	return r
}
