package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Result struct {
	SessionID         string            `json:"session_id"`
	Success           bool              `json:"success"`
	Mode              Mode              `json:"mode"`
	State             State             `json:"state"`
	ErrorCode         ErrorCode         `json:"error_code,omitempty"`
	Message           string            `json:"message,omitempty"`
	SilentPassedCount int               `json:"silent_passed_count"`
	ActionPassedCount int               `json:"action_passed_count"`
	Actions           []ActionChallenge `json:"actions,omitempty"`
	Elapsed           time.Duration     `json:"elapsed"`
	BestQuality       float64           `json:"best_quality"`
	CompletedAt       time.Time         `json:"completed_at"`

	BestFrame    *Frame `json:"-"`
	BestFaceCrop []byte `json:"-"`
}

type SessionConfig struct {
	ID       string
	Config   Config
	Engine   *Engine
	Bus      *Bus
	Selector ActionSelector
	Logger   *slog.Logger
	Now      func() time.Time
}

// Session drives one liveness check from start to a terminal state. Frames
// are evaluated one at a time; a frame arriving while another is in flight
// is dropped. Events are emitted after the internal lock is released.
type Session struct {
	id      string
	cfg     Config
	engine  *Engine
	bus     *Bus
	logger  *slog.Logger
	now     func() time.Time
	scorer  *FrameScorer
	actions *ActionController

	busy          atomic.Bool
	stopRequested atomic.Bool

	mu           sync.Mutex
	state        State
	initialized  bool
	startedAt    time.Time
	phaseStarted time.Time
	lastFrame    time.Time

	silent       *RetentionBuffer[*FrameSample]
	best         *RetentionBuffer[*FrameSample]
	silentPassed int

	multiFaceSince time.Time
	spoofStrikes   int
	errorStreak    int

	result  *Result
	pending []Event
}

func NewSession(sc SessionConfig) (*Session, error) {
	if sc.Engine == nil {
		return nil, fmt.Errorf("%w: engine is required", ErrInvalidConfig)
	}
	cfg := sc.Config.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.Bus == nil {
		sc.Bus = NewBus()
	}
	if sc.Now == nil {
		sc.Now = time.Now
	}
	if sc.Logger == nil {
		sc.Logger = slog.Default()
	}
	if sc.Selector == nil {
		sc.Selector = NewSelector(cfg, uint64(sc.Now().UnixNano()))
	}

	return &Session{
		id:      sc.ID,
		cfg:     cfg,
		engine:  sc.Engine,
		bus:     sc.Bus,
		logger:  sc.Logger.With("component", "liveness-session", "session_id", sc.ID),
		now:     sc.Now,
		scorer:  NewFrameScorer(cfg, sc.Engine.Detector(), sc.Engine.Classifier()),
		actions: NewActionController(cfg, sc.Selector),
		state:   StateInit,
		silent:  NewRetentionBuffer[*FrameSample](cfg.RetentionCapacity),
		best:    NewRetentionBuffer[*FrameSample](1),
	}, nil
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Bus() *Bus      { return s.bus }
func (s *Session) Config() Config { return s.cfg.Clone() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns a copy of the terminal record once the session has ended.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Init loads the engine. It must succeed before Start.
func (s *Session) Init(ctx context.Context) error {
	info, loadErr := s.engine.Load(ctx)

	var out error
	s.step(func() {
		if s.state.Terminal() {
			out = ErrSessionTerminated
			return
		}
		if loadErr != nil {
			s.emit(LoadedEvent{Success: false, Message: loadErr.Error()})
			s.fail(ErrorModelLoadFailed, loadErr.Error(), s.now())
			out = NewError(ErrorModelLoadFailed, "engine load failed").Wrap(loadErr)
			return
		}
		s.initialized = true
		s.emit(LoadedEvent{Success: true, Info: info})
	})
	return out
}

func (s *Session) Start(now time.Time) error {
	var out error
	s.step(func() {
		switch {
		case !s.initialized:
			out = s.notInitialized("start")
		case s.state.Terminal():
			out = ErrSessionTerminated
		case s.state != StateInit:
			out = ErrAlreadyStarted
		default:
			s.startedAt = now
			s.enter(StateAwaitingVideo, now)
		}
	})
	return out
}

// notInitialized reports a command issued before Init succeeded. The state
// is left unchanged.
func (s *Session) notInitialized(op string) error {
	msg := op + " called before init"
	s.emit(ErrorEvent{SessionID: s.id, Code: ErrorNotInitialized, Message: msg})
	return NewError(ErrorNotInitialized, msg).Wrap(ErrNotInitialized)
}

// VideoReady confirms the capture surface is delivering frames of the given
// size. Calls outside AWAITING_VIDEO are ignored.
func (s *Session) VideoReady(width, height int, now time.Time) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid video dimensions %dx%d", width, height)
	}
	var out error
	s.step(func() {
		if !s.initialized {
			out = s.notInitialized("video ready")
			return
		}
		if s.honorStop(now) || s.state.Terminal() {
			out = ErrSessionTerminated
			return
		}
		if s.state != StateAwaitingVideo {
			return
		}
		s.videoReady(now)
	})
	return out
}

// Fail moves the session to ERROR, for failures reported by the capture
// surface such as a denied camera permission.
func (s *Session) Fail(code ErrorCode, message string) {
	s.step(func() {
		if s.state.Terminal() {
			return
		}
		s.fail(code, message, s.now())
	})
}

// Stop requests cancellation. It takes effect at the next frame or tick.
func (s *Session) Stop() {
	s.stopRequested.Store(true)
}

// Tick evaluates deadlines without a frame.
func (s *Session) Tick(now time.Time) {
	s.step(func() {
		if s.honorStop(now) || s.state.Terminal() {
			return
		}
		s.checkTimeouts(now)
	})
}

func (s *Session) ProcessFrame(ctx context.Context, frame Frame) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrFrameSkipped
	}
	defer s.busy.Store(false)

	if frame.Timestamp.IsZero() {
		frame.Timestamp = s.now()
	}
	now := frame.Timestamp

	var out error
	proceed := false
	s.step(func() {
		if !s.initialized {
			out = s.notInitialized("process frame")
			return
		}
		if s.honorStop(now) || s.state.Terminal() {
			out = ErrSessionTerminated
			return
		}
		if s.state == StateAwaitingVideo && frame.Width > 0 && frame.Height > 0 {
			s.videoReady(now)
		}
		s.checkTimeouts(now)

		switch {
		case s.state.Terminal():
			out = ErrSessionTerminated
		case s.state != StateCollecting && s.state != StateChallenging:
			out = ErrFrameSkipped
		case !s.lastFrame.IsZero() && now.Sub(s.lastFrame) < s.cfg.FrameDelay:
			out = ErrFrameSkipped
		default:
			s.lastFrame = now
			proceed = true
		}
	})
	if !proceed {
		return out
	}

	sample, status, err := s.scorer.Score(ctx, frame)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	s.step(func() {
		if s.honorStop(now) || s.state.Terminal() {
			out = ErrSessionTerminated
			return
		}
		s.apply(now, sample, status, err)
	})
	return out
}

func (s *Session) apply(now time.Time, sample *FrameSample, status StatusCode, err error) {
	if status == StatusDetectionError {
		s.errorStreak++
		s.logger.Debug("detection error", "error", err, "streak", s.errorStreak)
		s.emit(DebugEvent{
			SessionID: s.id,
			Message:   "detection error",
			Fields:    map[string]any{"error": errString(err), "streak": s.errorStreak},
		})
		s.emitStatus(now, status, nil)
		if s.errorStreak > s.cfg.ErrorTolerance {
			s.fail(ErrorDetectionFailed, errString(err), now)
		}
		return
	}
	s.errorStreak = 0

	if status == StatusMultipleFace {
		if s.multiFaceSince.IsZero() {
			s.multiFaceSince = now
		}
		s.emitStatus(now, status, nil)
		if now.Sub(s.multiFaceSince) > s.cfg.MultipleFaceGrace {
			s.finish(StateFinishedFailure, ErrorFraudMultipleFace, "multiple faces in frame", now)
		}
		return
	}
	s.multiFaceSince = time.Time{}

	if sample == nil {
		s.emitStatus(now, status, nil)
		return
	}

	if sample.Real < s.cfg.MinRealScore {
		s.spoofStrikes++
	} else {
		s.spoofStrikes = 0
	}

	switch s.state {
	case StateCollecting:
		if sample.Passed {
			s.silent.Offer(sample, sample.Quality)
			s.best.Offer(sample, sample.Quality)
			s.silentPassed++
		}
	case StateChallenging:
		if sample.Passed {
			s.best.Offer(sample, sample.Quality)
		}
	}
	s.emitStatus(now, status, sample)

	if s.spoofStrikes >= s.cfg.SpoofStrikeLimit {
		s.finish(StateFinishedFailure, ErrorFraudSpoof, "anti-spoof score persistently below threshold", now)
		return
	}

	switch s.state {
	case StateCollecting:
		if s.silentPassed >= s.cfg.SilentDetectCount {
			s.completeSilent(now)
		}
	case StateChallenging:
		if ch, changed := s.actions.Observe(sample.Face, now); changed {
			s.onChallenge(ch, now)
		}
	}
}

func (s *Session) completeSilent(now time.Time) {
	switch {
	case s.cfg.Mode == ModeCollection:
		s.finish(StateFinishedSuccess, ErrorNone, "", now)
	case s.actions.Required() > 0:
		s.enter(StateChallenging, now)
		s.nextAction(now)
	default:
		for _, sample := range s.silent.All() {
			if !sample.Passed {
				s.finish(StateFinishedFailure, ErrorNotLive, "retained frame failed liveness", now)
				return
			}
		}
		s.finish(StateFinishedSuccess, ErrorNone, "", now)
	}
}

func (s *Session) nextAction(now time.Time) {
	ch, ok := s.actions.Next(now)
	if !ok {
		if s.actions.Done() {
			s.finish(StateFinishedSuccess, ErrorNone, "", now)
		}
		return
	}
	s.emitAction(ch)
}

func (s *Session) onChallenge(ch ActionChallenge, now time.Time) {
	s.emitAction(ch)
	switch ch.Status {
	case ActionCompleted:
		if s.actions.Done() {
			s.finish(StateFinishedSuccess, ErrorNone, "", now)
			return
		}
		s.nextAction(now)
	case ActionTimedOut:
		s.finish(StateFinishedFailure, ErrorActionTimeout, ch.Action.String()+" not detected in time", now)
	}
}

func (s *Session) checkTimeouts(now time.Time) {
	switch s.state {
	case StateAwaitingVideo:
		if now.Sub(s.phaseStarted) > s.cfg.VideoLoadTimeout {
			s.fail(ErrorVideoLoadTimeout, "video stream not ready", now)
		}
	case StateCollecting:
		if now.Sub(s.phaseStarted) > s.cfg.IdleTimeout {
			s.finish(StateFinishedFailure, ErrorDetectionIdleTimeout,
				fmt.Sprintf("%d of %d frames passed", s.silentPassed, s.cfg.SilentDetectCount), now)
		}
	case StateChallenging:
		if ch, changed := s.actions.Tick(now); changed {
			s.onChallenge(ch, now)
		}
	}
}

func (s *Session) videoReady(now time.Time) {
	if now.Sub(s.phaseStarted) > s.cfg.VideoLoadTimeout {
		s.fail(ErrorVideoLoadTimeout, "video stream not ready", now)
		return
	}
	s.enter(StateCollecting, now)
}

func (s *Session) honorStop(now time.Time) bool {
	if !s.stopRequested.Load() || s.state.Terminal() {
		return false
	}
	s.finish(StateCancelled, ErrorCancelled, "stopped by caller", now)
	return true
}

func (s *Session) enter(state State, now time.Time) {
	from := s.state
	s.state = state
	s.phaseStarted = now
	s.logger.Debug("state change", "from", from, "to", state)
	s.emit(DebugEvent{
		SessionID: s.id,
		Message:   "state change",
		Fields:    map[string]any{"from": from.String(), "to": state.String()},
	})
}

func (s *Session) finish(state State, code ErrorCode, message string, now time.Time) {
	s.state = state
	s.result = s.buildResult(now, code, message)
	s.release()
	s.logger.Info("session finished",
		"state", state,
		"error_code", code,
		"silent_passed", s.result.SilentPassedCount,
		"actions_passed", s.result.ActionPassedCount,
		"elapsed", s.result.Elapsed)
	s.emit(FinishEvent{Result: *s.result})
}

func (s *Session) fail(code ErrorCode, message string, now time.Time) {
	s.state = StateError
	s.result = s.buildResult(now, code, message)
	s.release()
	s.logger.Warn("session error", "error_code", code, "message", message)
	s.emit(ErrorEvent{SessionID: s.id, Code: code, Message: message})
}

func (s *Session) release() {
	s.silent.Clear()
	s.best.Clear()
}

func (s *Session) buildResult(now time.Time, code ErrorCode, message string) *Result {
	r := &Result{
		SessionID:         s.id,
		Success:           s.state == StateFinishedSuccess,
		Mode:              s.cfg.Mode,
		State:             s.state,
		ErrorCode:         code,
		Message:           message,
		SilentPassedCount: s.silentPassed,
		ActionPassedCount: s.actions.Passed(),
		Actions:           s.actions.History(),
		CompletedAt:       now,
	}
	if ch, ok := s.actions.Current(); ok && ch.Status == ActionStarted {
		r.Actions = append(r.Actions, ch)
	}
	if !s.startedAt.IsZero() {
		r.Elapsed = now.Sub(s.startedAt)
	}

	best, score, ok := s.best.Best()
	if !ok {
		return r
	}
	r.BestQuality = score
	if !r.Success {
		return r
	}

	frame := best.Frame
	r.BestFrame = &frame
	if cropper := s.engine.Cropper(); cropper != nil {
		crop, err := cropper.Crop(best.Frame, best.Face.Box)
		if err != nil {
			s.logger.Warn("face crop failed", "error", err)
		} else {
			r.BestFaceCrop = crop
		}
	}
	return r
}

func (s *Session) emitStatus(now time.Time, code StatusCode, sample *FrameSample) {
	ev := StatusEvent{
		SessionID:    s.id,
		Code:         code,
		State:        s.state,
		Timestamp:    now,
		SilentPassed: s.silentPassed,
	}
	if sample != nil {
		ev.SizeRatio = sample.SizeRatio
		ev.Frontality = sample.Frontality
		ev.Quality = sample.Quality
		ev.Real = sample.Real
		ev.Live = sample.Live
	}
	s.emit(ev)
}

func (s *Session) emitAction(ch ActionChallenge) {
	s.emit(ActionEvent{
		SessionID: s.id,
		Challenge: ch,
		Passed:    s.actions.Passed(),
		Required:  s.actions.Required(),
	})
}

func (s *Session) emit(ev Event) {
	s.pending = append(s.pending, ev)
}

// step runs fn under the session lock and then delivers the events it
// queued, in order, with the lock released.
func (s *Session) step(fn func()) {
	s.mu.Lock()
	fn()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, ev := range events {
		s.bus.Emit(ev)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsTerminated reports whether err means the session no longer accepts input.
func IsTerminated(err error) bool {
	return errors.Is(err, ErrSessionTerminated)
}
