package livesession

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
)

const (
	forwardQueueSize = 256
	publishTimeout   = 2 * time.Second
)

// forwarder delivers session events to the capture client and the event
// publisher in emission order, off the evaluation goroutine.
type forwarder struct {
	sessionID string
	conn      transport.Connection
	publisher EventPublisher
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan transport.ServerEvent
	done   chan struct{}
}

func newForwarder(sessionID string, conn transport.Connection, publisher EventPublisher, logger *slog.Logger) *forwarder {
	f := &forwarder{
		sessionID: sessionID,
		conn:      conn,
		publisher: publisher,
		logger:    logger,
		queue:     make(chan transport.ServerEvent, forwardQueueSize),
		done:      make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *forwarder) handle(ev liveness.Event) {
	f.push(transport.ServerEvent{
		Type:      string(ev.Kind()),
		SessionID: f.sessionID,
		Payload:   ev,
	})
}

func (f *forwarder) push(ev transport.ServerEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	f.queue <- ev
}

// close flushes queued events and waits for delivery to finish.
func (f *forwarder) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()
	<-f.done
}

func (f *forwarder) loop() {
	defer close(f.done)
	for ev := range f.queue {
		if f.conn.IsConnected() {
			if err := f.conn.Send(context.Background(), ev); err != nil {
				f.logger.Debug("failed to send event", "type", ev.Type, "error", err)
			}
		}
		if f.publisher == nil || ev.Type == string(liveness.EventDebug) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := f.publisher.Publish(ctx, ev); err != nil {
			f.logger.Warn("failed to publish event", "type", ev.Type, "error", err)
		}
		cancel()
	}
}
