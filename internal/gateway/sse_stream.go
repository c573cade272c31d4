package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const sseKeepAliveInterval = 30 * time.Second

type sseStream struct {
	writer    http.ResponseWriter
	flusher   http.Flusher
	keepAlive time.Duration
}

func newSSEStream(w http.ResponseWriter) (*sseStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, http.ErrNotSupported
	}
	return &sseStream{writer: w, flusher: flusher, keepAlive: sseKeepAliveInterval}, nil
}

func (s *sseStream) open() {
	h := s.writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.writer.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// run streams events until a terminal event was written, the channel closes,
// or ctx ends.
func (s *sseStream) run(ctx context.Context, events <-chan PublishedEvent) error {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.writeEvent(ev); err != nil {
				return err
			}
			if ev.Terminal() {
				return nil
			}
		case <-ticker.C:
			if err := s.writeKeepAlive(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *sseStream) writeEvent(ev PublishedEvent) error {
	if _, err := fmt.Fprintf(s.writer, "event: %s\ndata: %s\n\n", ev.Type, ev.Data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) writeKeepAlive() error {
	if _, err := s.writer.Write([]byte(":keepalive\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
