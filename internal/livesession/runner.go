package livesession

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
)

const defaultTickInterval = 200 * time.Millisecond

type RunnerConfig struct {
	Session      *liveness.Session
	Conn         transport.Connection
	TickInterval time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Runner pumps one connection into a started liveness session. Frames go
// through a single-slot mailbox so the evaluator always sees the newest
// frame; a frame replaced before it was picked up counts as dropped.
type Runner struct {
	session *liveness.Session
	conn    transport.Connection
	tick    time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mailbox    chan liveness.Frame
	terminated chan struct{}
	termOnce   sync.Once
	sub        *liveness.Subscription

	processed atomic.Uint64
	skipped   atomic.Uint64
	dropped   atomic.Uint64
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Runner{
		session:    cfg.Session,
		conn:       cfg.Conn,
		tick:       cfg.TickInterval,
		logger:     cfg.Logger.With("component", "livesession-runner", "session_id", cfg.Session.ID()),
		now:        cfg.Now,
		mailbox:    make(chan liveness.Frame, 1),
		terminated: make(chan struct{}),
	}
	r.sub = cfg.Session.Bus().SubscribeAll(func(ev liveness.Event) {
		switch ev.Kind() {
		case liveness.EventFinish, liveness.EventError:
			r.markTerminated()
		}
	})
	if cfg.Session.State().Terminal() {
		r.markTerminated()
	}
	return r
}

// Run blocks until the session reaches a terminal state. A closed connection
// or a cancelled context stops the session.
func (r *Runner) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.sub.Unsubscribe()

	r.conn.SetBackpressureCallback(func(n int) {
		r.dropped.Add(uint64(n))
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.processLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		r.tickLoop(ctx)
	}()

	r.inputLoop(ctx)
	cancel()
	wg.Wait()

	r.logger.Debug("runner stopped",
		"processed", r.processed.Load(),
		"skipped", r.skipped.Load(),
		"dropped", r.dropped.Load())
}

func (r *Runner) Processed() uint64 { return r.processed.Load() }
func (r *Runner) Skipped() uint64   { return r.skipped.Load() }
func (r *Runner) Dropped() uint64   { return r.dropped.Load() }

func (r *Runner) markTerminated() {
	r.termOnce.Do(func() { close(r.terminated) })
}

func (r *Runner) inputLoop(ctx context.Context) {
	frames := r.conn.Frames()
	messages := r.conn.Messages()
	for {
		select {
		case <-r.terminated:
			return
		case <-ctx.Done():
			r.stop()
			return
		case <-r.conn.Done():
			r.logger.Info("client disconnected")
			r.stop()
			return
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			r.offer(frame)
		case env, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			r.handleCommand(env)
		}
	}
}

func (r *Runner) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.terminated:
			return
		case frame := <-r.mailbox:
			err := r.session.ProcessFrame(ctx, frame)
			switch {
			case err == nil:
				r.processed.Add(1)
			case errors.Is(err, liveness.ErrFrameSkipped):
				r.skipped.Add(1)
			case liveness.IsTerminated(err):
				return
			case ctx.Err() != nil:
				return
			default:
				r.logger.Debug("frame processing failed", "seq", frame.Seq, "error", err)
			}
		}
	}
}

func (r *Runner) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.terminated:
			return
		case <-ticker.C:
			r.session.Tick(r.now())
		}
	}
}

func (r *Runner) offer(frame liveness.Frame) {
	for {
		select {
		case r.mailbox <- frame:
			return
		default:
		}
		select {
		case <-r.mailbox:
			r.dropped.Add(1)
		default:
		}
	}
}

// stop cancels the session and settles it immediately instead of waiting
// for the next tick.
func (r *Runner) stop() {
	r.session.Stop()
	r.session.Tick(r.now())
}

func (r *Runner) handleCommand(env transport.ClientEnvelope) {
	switch env.Type {
	case transport.MessageTypeSessionStop:
		r.stop()

	case transport.MessageTypeVideoReady:
		var p transport.VideoReadyPayload
		if err := env.Decode(&p); err != nil {
			r.sendError("invalid video.ready payload")
			return
		}
		if err := r.session.VideoReady(p.Width, p.Height, r.now()); err != nil && !liveness.IsTerminated(err) {
			r.sendError(err.Error())
		}

	case transport.MessageTypeVideoError:
		var p transport.VideoErrorPayload
		if err := env.Decode(&p); err != nil {
			r.sendError("invalid video.error payload")
			return
		}
		msg := p.Message
		if msg == "" {
			msg = "video capture failed"
		}
		r.session.Fail(videoErrorCode(p.Code), msg)

	case transport.MessageTypeSessionStart:
		r.sendError("session already started")

	case transport.MessageTypeICECandidate:
		// negotiated by the transport

	default:
		r.sendError("unsupported message type: " + string(env.Type))
	}
}

func (r *Runner) sendError(message string) {
	err := r.conn.Send(context.Background(), transport.ServerEvent{
		Type:      transport.EventTypeError,
		SessionID: r.session.ID(),
		Payload:   transport.ErrorPayload{Message: message},
	})
	if err != nil {
		r.logger.Debug("failed to send error", "error", err)
	}
}

// videoErrorCode maps the capture surface's error name. Browsers report a
// denied camera prompt as NotAllowedError.
func videoErrorCode(code string) liveness.ErrorCode {
	switch strings.ToLower(code) {
	case "camera_permission_denied", "permission_denied", "notallowederror":
		return liveness.ErrorCameraPermissionDenied
	}
	return liveness.ErrorCaptureFailed
}
