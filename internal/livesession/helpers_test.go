package livesession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/eleven-am/liveness-backend/internal/verification"
	"github.com/eleven-am/liveness-backend/internal/vision"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	messages chan transport.ClientEnvelope
	frames   chan liveness.Frame
	done     chan struct{}
	sent     chan transport.ServerEvent

	mu        sync.Mutex
	closed    bool
	events    []transport.ServerEvent
	onDropped transport.BackpressureCallback
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		messages: make(chan transport.ClientEnvelope, 8),
		frames:   make(chan liveness.Frame, 8),
		done:     make(chan struct{}),
		sent:     make(chan transport.ServerEvent, 256),
	}
}

func (c *fakeConn) Send(_ context.Context, ev transport.ServerEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.events = append(c.events, ev)
	select {
	case c.sent <- ev:
	default:
	}
	return nil
}

func (c *fakeConn) Messages() <-chan transport.ClientEnvelope { return c.messages }
func (c *fakeConn) Frames() <-chan liveness.Frame             { return c.frames }
func (c *fakeConn) Done() <-chan struct{}                     { return c.done }

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) SetBackpressureCallback(cb transport.BackpressureCallback) {
	c.mu.Lock()
	c.onDropped = cb
	c.mu.Unlock()
}

func (c *fakeConn) command(t *testing.T, raw string) {
	t.Helper()
	env, err := transport.DecodeEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeEnvelope(%s) failed: %v", raw, err)
	}
	c.messages <- env
}

// waitEvent returns the next sent event of the given type.
func (c *fakeConn) waitEvent(t *testing.T, eventType string) transport.ServerEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.sent:
			if ev.Type == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", eventType)
			return transport.ServerEvent{}
		}
	}
}

func (c *fakeConn) eventTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(3 * time.Second):
		t.Fatal("connection was not closed")
	}
}

type fakeDetector struct {
	mu    sync.Mutex
	faces []liveness.Face
	err   error
}

func (d *fakeDetector) Detect(_ context.Context, _ liveness.Frame) ([]liveness.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.faces, d.err
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(_ context.Context, _ liveness.Frame, _ liveness.Face) (liveness.SpoofScores, error) {
	return liveness.SpoofScores{Real: 0.9, Live: 0.9}, nil
}

type fakeCropper struct{}

func (fakeCropper) Crop(_ liveness.Frame, _ liveness.Box) ([]byte, error) {
	return []byte("crop"), nil
}

type failingLoader struct{}

func (failingLoader) Load(_ context.Context) (liveness.EngineInfo, error) {
	return liveness.EngineInfo{}, errors.New("weights missing")
}

func goodFace() liveness.Face {
	return liveness.Face{
		Box:          liveness.Box{X: 10, Y: 10, Width: 70, Height: 70},
		BoxScore:     0.9,
		FaceScore:    0.9,
		LeftEyeOpen:  0.9,
		RightEyeOpen: 0.9,
	}
}

func newTestEngine(detector *fakeDetector) *liveness.Engine {
	return liveness.NewEngine(liveness.EngineConfig{
		Detector:   detector,
		Classifier: fakeClassifier{},
		Cropper:    fakeCropper{},
		Logger:     discardLogger(),
	})
}

func testFrame(seq uint64) liveness.Frame {
	return liveness.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     100,
		Height:    100,
		Data:      []byte("jpeg-bytes"),
	}
}

type mockPublisher struct {
	mu     sync.Mutex
	claims map[string]string
	events []transport.ServerEvent
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{claims: make(map[string]string)}
}

func (p *mockPublisher) Claim(_ context.Context, sessionID, clientID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims[sessionID] = clientID
	return nil
}

func (p *mockPublisher) Publish(_ context.Context, ev transport.ServerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type mockRecords struct {
	mu      sync.Mutex
	records []*verification.Record
}

func (r *mockRecords) Save(_ context.Context, rec *verification.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *mockRecords) all() []*verification.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*verification.Record(nil), r.records...)
}

type mockMetrics struct {
	mu      sync.Mutex
	results map[string][]liveness.Result
}

func (m *mockMetrics) Record(_ context.Context, clientID string, r liveness.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string][]liveness.Result)
	}
	m.results[clientID] = append(m.results[clientID], r)
	return nil
}

func (m *mockMetrics) count(clientID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results[clientID])
}

type mockCaptures struct {
	mu       sync.Mutex
	captures []*vision.Capture
}

func (c *mockCaptures) SaveCapture(_ context.Context, capture *vision.Capture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures = append(c.captures, capture)
	return nil
}

func (c *mockCaptures) kinds() map[vision.CaptureKind]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[vision.CaptureKind]string, len(c.captures))
	for _, capture := range c.captures {
		out[capture.Kind] = string(capture.Data)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
