package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/eleven-am/liveness-backend/internal/vision"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2 * 1024 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var ErrSendTimeout = errors.New("send buffer full")

type WSConfig struct {
	CaptureRate time.Duration
	FrameBuffer int
	EventBuffer int
	// TerminalWait bounds how long a finish or error event waits for room
	// in a full send buffer. Other events are dropped right away.
	TerminalWait time.Duration
}

// WSConn is the websocket capture surface. Binary messages carry JPEG
// frames, text messages carry client commands, events go out as JSON text.
type WSConn struct {
	ws           *websocket.Conn
	terminalWait time.Duration
	logger       *slog.Logger
	capturer     *vision.FrameCapturer

	send     chan transport.ServerEvent
	messages chan transport.ClientEnvelope
	frames   chan liveness.Frame

	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	connected bool
	bpCb      transport.BackpressureCallback
}

func NewWSConn(ws *websocket.Conn, sessionID string, cfg WSConfig, logger *slog.Logger) *WSConn {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 4
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 128
	}
	if cfg.TerminalWait <= 0 {
		cfg.TerminalWait = 5 * time.Second
	}

	c := &WSConn{
		ws:           ws,
		terminalWait: cfg.TerminalWait,
		logger:       logger.With("component", "ws-conn", "session_id", sessionID),
		send:         make(chan transport.ServerEvent, cfg.EventBuffer),
		messages:     make(chan transport.ClientEnvelope, cfg.EventBuffer),
		frames:       make(chan liveness.Frame, cfg.FrameBuffer),
		done:         make(chan struct{}),
		connected:    true,
	}

	c.capturer = vision.NewFrameCapturer(vision.CapturerConfig{
		SessionID:   sessionID,
		Sink:        c.pushFrame,
		CaptureRate: cfg.CaptureRate,
		Logger:      logger,
	})

	return c
}

func (c *WSConn) Send(ctx context.Context, event transport.ServerEvent) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return nil
	default:
	}

	if !(PublishedEvent{Type: event.Type}).Terminal() {
		c.logger.Warn("send buffer full, dropping event", "type", event.Type)
		return nil
	}

	timer := time.NewTimer(c.terminalWait)
	defer timer.Stop()
	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.logger.Warn("send buffer full, dropping terminal event", "type", event.Type)
		return ErrSendTimeout
	}
}

func (c *WSConn) Messages() <-chan transport.ClientEnvelope {
	return c.messages
}

func (c *WSConn) Frames() <-chan liveness.Frame {
	return c.frames
}

func (c *WSConn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

func (c *WSConn) SetBackpressureCallback(cb transport.BackpressureCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bpCb = cb
}

// Close stops capture and closes the socket. The frame and message channels
// are never closed; readers select on Done.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		close(c.done)
		c.capturer.Stop()
		c.logger.Debug("capture stopped", "frames", c.capturer.Captured())
		err = c.ws.Close()
	})
	return err
}

// Run pumps the socket until it closes.
func (c *WSConn) Run(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *WSConn) pushFrame(frame liveness.Frame) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.frames <- frame:
	default:
		c.mu.RLock()
		cb := c.bpCb
		c.mu.RUnlock()
		if cb != nil {
			cb(1)
		}
	}
}

func (c *WSConn) handleText(data []byte) {
	env, err := transport.DecodeEnvelope(data)
	if err != nil {
		c.logger.Debug("invalid client message", "error", err)
		return
	}

	select {
	case c.messages <- env:
	case <-c.done:
	}
}

func (c *WSConn) readPump(ctx context.Context) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := c.capturer.HandleJPEG(data); err != nil {
				c.logger.Debug("dropping invalid frame", "error", err)
			}
		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

func (c *WSConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case event := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(event)
			if err != nil {
				c.logger.Error("failed to marshal event", "error", err)
				continue
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
