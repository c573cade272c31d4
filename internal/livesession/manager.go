package livesession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/eleven-am/liveness-backend/internal/verification"
	"github.com/eleven-am/liveness-backend/internal/vision"
)

var (
	ErrManagerClosed = errors.New("session manager closed")
	ErrSessionExists = errors.New("session already exists")
	ErrNoConnection  = errors.New("connection is required")
)

const (
	defaultStartTimeout = 30 * time.Second
	defaultCloseGrace   = 5 * time.Second
	persistTimeout      = 10 * time.Second
	claimTimeout        = 2 * time.Second
)

type EventPublisher interface {
	Claim(ctx context.Context, sessionID, clientID string) error
	Publish(ctx context.Context, event transport.ServerEvent) error
}

type RecordStore interface {
	Save(ctx context.Context, rec *verification.Record) error
}

type MetricsRecorder interface {
	Record(ctx context.Context, clientID string, r liveness.Result) error
}

type CaptureStore interface {
	SaveCapture(ctx context.Context, c *vision.Capture) error
}

// Config wires the manager. Publisher, Records, Metrics and Captures are
// optional.
type Config struct {
	Engine    *liveness.Engine
	Defaults  liveness.Config
	Publisher EventPublisher
	Records   RecordStore
	Metrics   MetricsRecorder
	Captures  CaptureStore

	TickInterval time.Duration
	StartTimeout time.Duration
	CloseGrace   time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

type SessionInfo struct {
	SessionID string    `json:"session_id"`
	ClientID  string    `json:"client_id"`
	State     string    `json:"state"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Processed uint64    `json:"frames_processed"`
	Skipped   uint64    `json:"frames_skipped"`
	Dropped   uint64    `json:"frames_dropped"`
}

type entry struct {
	id        string
	clientID  string
	conn      transport.Connection
	createdAt time.Time

	mu      sync.Mutex
	session *liveness.Session
	runner  *Runner
}

func (e *entry) attach(s *liveness.Session, r *Runner) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s != nil {
		e.session = s
	}
	if r != nil {
		e.runner = r
	}
}

func (e *entry) info() SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := SessionInfo{
		SessionID: e.id,
		ClientID:  e.clientID,
		State:     "pending",
		CreatedAt: e.createdAt,
	}
	if e.session != nil {
		info.State = e.session.State().String()
		info.Mode = e.session.Config().Mode.String()
	}
	if e.runner != nil {
		info.Processed = e.runner.Processed()
		info.Skipped = e.runner.Skipped()
		info.Dropped = e.runner.Dropped()
	}
	return info
}

func (e *entry) stop() {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Manager owns the live verification sessions of this process. Each accepted
// connection gets one liveness session, started either from the options in
// the start request or from the first session.start message.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = defaultCloseGrace
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "livesession-manager"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}
}

// Start accepts a connection. Invalid options are rejected synchronously;
// everything after that is reported to the client as events.
func (m *Manager) Start(req transport.StartRequest) error {
	if req.Conn == nil {
		return ErrNoConnection
	}
	if m.cfg.Engine == nil {
		return fmt.Errorf("%w: engine is required", liveness.ErrInvalidConfig)
	}

	var cfg *liveness.Config
	if req.Options != nil {
		parsed, err := liveness.ParseOptions(m.cfg.Defaults, req.Options)
		if err != nil {
			return err
		}
		cfg = &parsed
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	e := &entry{
		id:        id,
		conn:      req.Conn,
		createdAt: m.cfg.Now(),
	}
	if req.Client != nil {
		e.clientID = req.Client.ClientID
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return ErrSessionExists
	}
	m.sessions[id] = e
	m.wg.Add(1)
	m.mu.Unlock()

	if m.cfg.Publisher != nil && e.clientID != "" {
		ctx, cancel := context.WithTimeout(m.ctx, claimTimeout)
		if err := m.cfg.Publisher.Claim(ctx, id, e.clientID); err != nil {
			m.logger.Warn("failed to claim session", "session_id", id, "error", err)
		}
		cancel()
	}

	m.logger.Info("live session accepted", "session_id", id, "client_id", e.clientID, "immediate", cfg != nil)
	go m.run(e, cfg, req.Options)
	return nil
}

func (m *Manager) run(e *entry, cfg *liveness.Config, opts map[string]any) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	if cfg == nil {
		parsed, startOpts, ok := m.awaitStart(ctx, e)
		if !ok {
			m.remove(e.id)
			_ = e.conn.Close()
			return
		}
		cfg, opts = &parsed, startOpts
	}

	session, err := liveness.NewSession(liveness.SessionConfig{
		ID:     e.id,
		Config: *cfg,
		Engine: m.cfg.Engine,
		Logger: m.cfg.Logger,
		Now:    m.cfg.Now,
	})
	if err != nil {
		m.sendError(e, err.Error())
		m.remove(e.id)
		_ = e.conn.Close()
		return
	}
	e.attach(session, nil)

	fwd := newForwarder(e.id, e.conn, m.cfg.Publisher, m.logger.With("session_id", e.id))
	sub := session.Bus().SubscribeAll(fwd.handle)
	fwd.push(transport.ServerEvent{
		Type:      transport.EventTypeSessionCreated,
		SessionID: e.id,
		Payload:   transport.SessionCreatedPayload{Options: opts},
	})

	if err := session.Init(ctx); err == nil {
		if err := session.Start(m.cfg.Now()); err == nil {
			runner := NewRunner(RunnerConfig{
				Session:      session,
				Conn:         e.conn,
				TickInterval: m.cfg.TickInterval,
				Logger:       m.cfg.Logger,
				Now:          m.cfg.Now,
			})
			e.attach(nil, runner)
			runner.Run(ctx)
		}
	}

	sub.Unsubscribe()
	fwd.close()

	m.finalize(e, session)
	m.remove(e.id)
	m.linger(e.conn)
}

// awaitStart reads client messages until a valid session.start arrives.
// Frames received before it are discarded.
func (m *Manager) awaitStart(ctx context.Context, e *entry) (liveness.Config, map[string]any, bool) {
	timer := time.NewTimer(m.cfg.StartTimeout)
	defer timer.Stop()

	messages := e.conn.Messages()
	frames := e.conn.Frames()
	for {
		select {
		case <-ctx.Done():
			return liveness.Config{}, nil, false
		case <-e.conn.Done():
			return liveness.Config{}, nil, false
		case <-timer.C:
			m.sendError(e, "session.start not received")
			return liveness.Config{}, nil, false
		case _, ok := <-frames:
			if !ok {
				frames = nil
			}
		case env, ok := <-messages:
			if !ok {
				return liveness.Config{}, nil, false
			}
			switch env.Type {
			case transport.MessageTypeSessionStart:
				var p transport.SessionStartPayload
				if err := env.Decode(&p); err != nil {
					m.sendError(e, "invalid session.start payload")
					continue
				}
				cfg, err := liveness.ParseOptions(m.cfg.Defaults, p.Options)
				if err != nil {
					m.sendError(e, err.Error())
					continue
				}
				return cfg, p.Options, true
			case transport.MessageTypeSessionStop:
				return liveness.Config{}, nil, false
			case transport.MessageTypeICECandidate:
			default:
				m.sendError(e, "session not started")
			}
		}
	}
}

func (m *Manager) finalize(e *entry, session *liveness.Session) {
	res, ok := session.Result()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if m.cfg.Records != nil {
		if err := m.cfg.Records.Save(ctx, verification.NewRecord(e.clientID, res)); err != nil {
			m.logger.Error("failed to save verification record", "session_id", e.id, "error", err)
		}
	}
	if m.cfg.Metrics != nil && e.clientID != "" {
		if err := m.cfg.Metrics.Record(ctx, e.clientID, res); err != nil {
			m.logger.Warn("failed to record metrics", "session_id", e.id, "error", err)
		}
	}
	if m.cfg.Captures != nil && res.Success {
		m.saveCaptures(ctx, res)
	}

	m.logger.Info("live session completed",
		"session_id", e.id,
		"client_id", e.clientID,
		"state", res.State,
		"success", res.Success,
		"error_code", res.ErrorCode,
		"elapsed", res.Elapsed)
}

func (m *Manager) saveCaptures(ctx context.Context, res liveness.Result) {
	if len(res.BestFaceCrop) > 0 {
		err := m.cfg.Captures.SaveCapture(ctx, &vision.Capture{
			SessionID: res.SessionID,
			Kind:      vision.CaptureFace,
			Score:     res.BestQuality,
			Data:      res.BestFaceCrop,
		})
		if err != nil {
			m.logger.Warn("failed to save face capture", "session_id", res.SessionID, "error", err)
		}
	}
	if res.BestFrame == nil {
		return
	}
	data, err := vision.EncodeFrame(*res.BestFrame)
	if err != nil {
		m.logger.Warn("failed to encode best frame", "session_id", res.SessionID, "error", err)
		return
	}
	err = m.cfg.Captures.SaveCapture(ctx, &vision.Capture{
		SessionID: res.SessionID,
		Kind:      vision.CaptureFrame,
		Score:     res.BestQuality,
		Data:      data,
	})
	if err != nil {
		m.logger.Warn("failed to save frame capture", "session_id", res.SessionID, "error", err)
	}
}

// linger keeps the connection open briefly so the terminal event reaches
// the client before the transport is torn down.
func (m *Manager) linger(conn transport.Connection) {
	timer := time.NewTimer(m.cfg.CloseGrace)
	defer timer.Stop()
	select {
	case <-conn.Done():
	case <-timer.C:
	case <-m.ctx.Done():
	}
	_ = conn.Close()
}

func (m *Manager) sendError(e *entry, message string) {
	err := e.conn.Send(context.Background(), transport.ServerEvent{
		Type:      transport.EventTypeError,
		SessionID: e.id,
		Payload:   transport.ErrorPayload{Message: message},
	})
	if err != nil {
		m.logger.Debug("failed to send error", "session_id", e.id, "error", err)
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) GetSession(sessionID string) (SessionInfo, bool) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return SessionInfo{}, false
	}
	return e.info(), true
}

// StopSession requests cancellation of a running session.
func (m *Manager) StopSession(sessionID string) bool {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		e.stop()
	}
	return ok
}

func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) ListSessions() []SessionInfo {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sessions := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		sessions = append(sessions, e.info())
	}
	return sessions
}

// Close cancels every session and waits for their results to be persisted.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}
