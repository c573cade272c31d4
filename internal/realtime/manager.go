package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

var ErrSessionLimit = errors.New("capture session limit reached")

// Manager owns the WebRTC API shared by every capture peer and the table of
// live signalling sessions.
type Manager struct {
	cfg Config
	api *webrtc.API
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}

	api, err := newCaptureAPI(cfg)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:      cfg,
		api:      api,
		log:      log.With("component", "rtc-manager"),
		sessions: make(map[string]*Session),
	}, nil
}

// newCaptureAPI builds a receive-only API that negotiates VP8 video, the
// only codec the frame decoder understands.
func newCaptureAPI(cfg Config) (*webrtc.API, error) {
	me := &webrtc.MediaEngine{}
	err := me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "goog-remb"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
			},
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo)
	if err != nil {
		return nil, fmt.Errorf("register vp8: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.PortRange.valid() {
		if err := se.SetEphemeralUDPPortRange(uint16(cfg.PortRange.Min), uint16(cfg.PortRange.Max)); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}
	if len(cfg.PublicIPs) > 0 {
		se.SetNAT1To1IPs(cfg.PublicIPs, webrtc.ICECandidateTypeHost)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

func (m *Manager) NewPeer() (*Peer, error) {
	pc, err := m.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: m.iceServers(),
	})
	if err != nil {
		return nil, err
	}

	peer, err := NewPeer(pc, m.log)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return peer, nil
}

func (m *Manager) iceServers() []webrtc.ICEServer {
	if len(m.cfg.ICEServers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{fallbackSTUN}}}
	}

	servers := make([]webrtc.ICEServer, len(m.cfg.ICEServers))
	for i, s := range m.cfg.ICEServers {
		servers[i] = webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			servers[i].Username = s.Username
			servers[i].Credential = s.Credential
			servers[i].CredentialType = webrtc.ICECredentialTypePassword
		}
	}
	return servers
}

// CreateSession registers a signalling session and builds its capture
// connection on peer. The session is dropped from the table once its
// connection closes.
func (m *Manager) CreateSession(peer *Peer, clientID string) (*Session, error) {
	session := NewSession("", clientID, m.cfg.BufferSizes.ICECandidates, m.log)

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrSessionLimit
	}
	session.attach(NewConn(peer, session.ID, m.cfg, m.log))
	m.sessions[session.ID] = session
	m.mu.Unlock()

	go func() {
		<-session.conn.Done()
		m.RemoveSession(session.ID)
	}()

	return session, nil
}

func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) RemoveSession(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		m.log.Info("closed capture sessions", "count", len(sessions))
	}
}

func (m *Manager) ICEServers() []ICEServerConfig {
	return m.cfg.ICEServers
}

func (m *Manager) Config() Config {
	return m.cfg
}
