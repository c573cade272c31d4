package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/eleven-am/liveness-backend/internal/vision"
	"github.com/pion/webrtc/v4"
)

// Conn is the WebRTC capture surface: camera video arrives as RTP and is
// captured into frames, commands and events travel over the data channel.
type Conn struct {
	cfg         Config
	peer        *Peer
	dataChannel *webrtc.DataChannel
	capturer    *vision.FrameCapturer
	log         *slog.Logger

	messages  chan transport.ClientEnvelope
	frames    chan liveness.Frame
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	connected bool
	bpCb      transport.BackpressureCallback
}

func NewConn(peer *Peer, sessionID string, cfg Config, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}

	buffers := cfg.BufferSizes.withDefaults()

	c := &Conn{
		cfg:      cfg,
		peer:     peer,
		log:      log.With("component", "rtc-conn", "session_id", sessionID),
		messages: make(chan transport.ClientEnvelope, buffers.Events),
		frames:   make(chan liveness.Frame, buffers.Frames),
		done:     make(chan struct{}),
	}

	c.capturer = vision.NewFrameCapturer(vision.CapturerConfig{
		SessionID:       sessionID,
		Decoder:         vision.NewVPXDecoder(),
		Sink:            c.pushFrame,
		CaptureRate:     cfg.CaptureRate,
		KeyFrameRequest: peer.RequestKeyFrame,
		Logger:          log,
	})

	peer.OnVideo(c.capturer.HandleRTPPacket)

	peer.OnConnected(func() {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	})

	peer.OnFailed(func() {
		c.Close()
	})

	return c
}

// pushFrame queues a captured frame. When the queue is full the oldest frame
// is discarded so the session always sees the most recent picture.
func (c *Conn) pushFrame(frame liveness.Frame) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.frames <- frame:
		return
	default:
	}

	dropped := 0
	select {
	case <-c.frames:
		dropped++
	default:
	}
	select {
	case c.frames <- frame:
	default:
		dropped++
	}
	c.reportDropped(dropped)
}

func (c *Conn) reportDropped(n int) {
	if n == 0 {
		return
	}
	c.mu.RLock()
	cb := c.bpCb
	c.mu.RUnlock()
	if cb != nil {
		cb(n)
	}
}

func (c *Conn) SetupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dataChannel = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			c.handleMessage(msg.Data)
		}
	})

	dc.OnClose(func() {
		c.Close()
	})
}

func (c *Conn) handleMessage(data []byte) {
	env, err := transport.DecodeEnvelope(data)
	if err != nil {
		c.log.Debug("invalid client message", "error", err)
		return
	}

	if env.Type == transport.MessageTypeICECandidate {
		c.handleICECandidate(env)
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.messages <- env:
	case <-c.done:
	}
}

func (c *Conn) handleICECandidate(env transport.ClientEnvelope) {
	var msg struct {
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := env.Decode(&msg); err != nil {
		return
	}
	if err := c.peer.AddICECandidate(msg.Candidate); err != nil {
		c.log.Debug("failed to add ICE candidate", "error", err)
	}
}

func (c *Conn) SendICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.sendJSON(map[string]any{
		"type":      transport.MessageTypeICECandidate,
		"candidate": candidate,
	})
}

func (c *Conn) Send(ctx context.Context, event transport.ServerEvent) error {
	return c.sendJSON(event)
}

func (c *Conn) sendJSON(v any) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return nil
	}
	dc := c.dataChannel
	c.mu.RUnlock()

	if dc == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return dc.SendText(string(data))
}

func (c *Conn) Messages() <-chan transport.ClientEnvelope {
	return c.messages
}

func (c *Conn) Frames() <-chan liveness.Frame {
	return c.frames
}

func (c *Conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close stops capture and tears down the peer connection. The frame and
// message channels are never closed; readers select on session shutdown.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		close(c.done)
		c.capturer.Stop()
		c.log.Debug("capture stopped",
			"frames", c.capturer.Captured(),
			"decode_failures", c.capturer.DecodeFailures(),
		)

		if c.peer != nil {
			err = c.peer.Close()
		}
	})
	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) SetBackpressureCallback(cb transport.BackpressureCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bpCb = cb
}
