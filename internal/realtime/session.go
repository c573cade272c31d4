package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Session tracks the signalling state of one WebRTC capture connection. Its
// ID is shared with the liveness session it carries.
type Session struct {
	ID        string
	clientID  string
	conn      *Conn
	iceCh     chan webrtc.ICECandidateInit
	done      chan struct{}
	createdAt time.Time
	closeOnce sync.Once
	log       *slog.Logger
}

func NewSession(id string, clientID string, iceBufSize int, log *slog.Logger) *Session {
	if iceBufSize <= 0 {
		iceBufSize = BufferSizes{}.withDefaults().ICECandidates
	}
	if log == nil {
		log = slog.Default()
	}
	if id == "" {
		id = uuid.NewString()
	}

	return &Session{
		ID:        id,
		clientID:  clientID,
		iceCh:     make(chan webrtc.ICECandidateInit, iceBufSize),
		done:      make(chan struct{}),
		createdAt: time.Now(),
		log:       log,
	}
}

func (s *Session) ClientID() string {
	return s.clientID
}

func (s *Session) Conn() *Conn {
	return s.conn
}

func (s *Session) attach(conn *Conn) {
	s.conn = conn
}

func (s *Session) SendICE(candidate webrtc.ICECandidateInit) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.iceCh <- candidate:
	default:
		s.log.Warn("ICE candidate dropped, buffer full", "session_id", s.ID)
	}
}

func (s *Session) ICECandidates() <-chan webrtc.ICECandidateInit {
	return s.iceCh
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}
