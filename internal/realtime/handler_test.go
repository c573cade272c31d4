package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"
)

type fakeStarter struct {
	mu   sync.Mutex
	reqs []transport.StartRequest
	err  error
}

func (f *fakeStarter) Start(req transport.StartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.err
}

func allowClient(id string) transport.AuthFunc {
	return func(r *http.Request) (*transport.ClientProfile, error) {
		return &transport.ClientProfile{ClientID: id}, nil
	}
}

func denyAll(r *http.Request) (*transport.ClientProfile, error) {
	return nil, errors.New("no key")
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	mgr, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

func newContext(method, target, body, contentType string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(err error) int {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return 0
}

func browserOffer(t *testing.T) string {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("client peer: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "camera")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		t.Fatalf("add track: %v", err)
	}
	if _, err := pc.CreateDataChannel("events", nil); err != nil {
		t.Fatalf("data channel: %v", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local: %v", err)
	}
	return offer.SDP
}

func TestNewHandler(t *testing.T) {
	mgr := newTestManager(t, Config{})
	h := NewHandler(mgr, nil, nil, nil)
	if h.manager != mgr {
		t.Error("handler should use provided manager")
	}
	if h.log == nil {
		t.Error("handler should have default logger")
	}
}

func TestHandler_bodyLimit(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)
	if h.bodyLimit() != 64*1024 {
		t.Errorf("expected default max SDP size 64KB, got %d", h.bodyLimit())
	}

	h = NewHandler(newTestManager(t, Config{MaxSDPSize: 128 * 1024}), nil, nil, nil)
	if h.bodyLimit() != 128*1024 {
		t.Errorf("expected custom max SDP size 128KB, got %d", h.bodyLimit())
	}
}

func TestHandler_publicICEServers(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)
	servers := h.publicICEServers()
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("expected default STUN server, got %+v", servers)
	}

	h = NewHandler(newTestManager(t, Config{
		ICEServers: []ICEServerConfig{
			{URLs: []string{"stun:stun.example.com"}},
			{URLs: []string{"turn:turn.example.com"}, Username: "user", Credential: "pass"},
		},
	}), nil, nil, nil)
	servers = h.publicICEServers()
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[1].Username != "user" {
		t.Errorf("expected username 'user', got %s", servers[1].Username)
	}
}

func TestHandler_HandleICEServers(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{
		ICEServers: []ICEServerConfig{{URLs: []string{"stun:stun.example.com"}}},
	}), nil, nil, nil)

	c, rec := newContext(http.MethodGet, "/ice-servers", "", "")
	if err := h.HandleICEServers(c); err != nil {
		t.Fatalf("HandleICEServers should not error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp ICEServersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.ICEServers) != 1 {
		t.Errorf("expected 1 server in response, got %d", len(resp.ICEServers))
	}
}

func TestHandler_decodeOffer_JSON(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)

	c, _ := newContext(http.MethodPost, "/calls", `{"sdp":"v=0","options":{"mode":"liveness"}}`, "application/json")
	offer, err := h.decodeOffer(c.Request())
	if err != nil {
		t.Fatalf("decodeOffer should not error: %v", err)
	}
	sdp, options := offer.SDP, offer.Options
	if sdp != "v=0" {
		t.Errorf("expected SDP 'v=0', got %s", sdp)
	}
	if options["mode"] != "liveness" {
		t.Errorf("expected options to be parsed, got %v", options)
	}
}

func TestHandler_decodeOffer_EmptyContentType(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)

	c, _ := newContext(http.MethodPost, "/calls", `{"sdp":"test-sdp"}`, "")
	offer, err := h.decodeOffer(c.Request())
	if err != nil {
		t.Fatalf("decodeOffer should not error: %v", err)
	}
	sdp, options := offer.SDP, offer.Options
	if sdp != "test-sdp" || options != nil {
		t.Errorf("unexpected result %q %v", sdp, options)
	}
}

func TestHandler_decodeOffer_ApplicationSDP(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)

	body := "v=0\r\no=- 123 456 IN IP4 127.0.0.1\r\n"
	c, _ := newContext(http.MethodPost, "/calls", body, "application/sdp")
	offer, err := h.decodeOffer(c.Request())
	if err != nil {
		t.Fatalf("decodeOffer should not error: %v", err)
	}
	sdp := offer.SDP
	if sdp != body {
		t.Errorf("expected raw SDP body, got %s", sdp)
	}
}

func TestHandler_decodeOffer_Multipart(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormField("sdp")
	part.Write([]byte("multipart-sdp-content"))
	part, _ = writer.CreateFormField("options")
	part.Write([]byte(`{"silent_detect_count":2}`))
	writer.Close()

	c, _ := newContext(http.MethodPost, "/calls", buf.String(), writer.FormDataContentType())
	offer, err := h.decodeOffer(c.Request())
	if err != nil {
		t.Fatalf("decodeOffer should not error: %v", err)
	}
	sdp, options := offer.SDP, offer.Options
	if sdp != "multipart-sdp-content" {
		t.Errorf("expected multipart SDP, got %s", sdp)
	}
	if options["silent_detect_count"] != float64(2) {
		t.Errorf("expected options from multipart, got %v", options)
	}
}

func TestHandler_decodeOffer_Errors(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormField("other")
	part.Write([]byte("not-sdp"))
	writer.Close()

	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{"multipart without sdp", buf.String(), writer.FormDataContentType()},
		{"unsupported content type", "data", "text/plain"},
		{"invalid json", "{invalid}", "application/json"},
		{"oversized sdp", strings.Repeat("a", 64*1024+1), "application/sdp"},
	}

	for _, tt := range tests {
		c, _ := newContext(http.MethodPost, "/calls", tt.body, tt.contentType)
		if _, err := h.decodeOffer(c.Request()); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestHandler_HandleOffer_Unauthorized(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), &fakeStarter{}, denyAll, nil)

	c, _ := newContext(http.MethodPost, "/calls", `{"sdp":"test"}`, "application/json")
	if code := httpCode(h.HandleOffer(c)); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}

func TestHandler_HandleOffer_MissingSDP(t *testing.T) {
	h := NewHandler(newTestManager(t, Config{}), &fakeStarter{}, allowClient("app-1"), nil)

	c, _ := newContext(http.MethodPost, "/calls", `{"sdp":""}`, "application/json")
	if code := httpCode(h.HandleOffer(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_HandleOffer_InvalidSDP(t *testing.T) {
	mgr := newTestManager(t, Config{})
	h := NewHandler(mgr, &fakeStarter{}, allowClient("app-1"), nil)

	c, _ := newContext(http.MethodPost, "/calls", "garbage", "application/sdp")
	if code := httpCode(h.HandleOffer(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
	if mgr.SessionCount() != 0 {
		t.Errorf("expected no session after failed offer, got %d", mgr.SessionCount())
	}
}

func TestHandler_HandleOffer_Success(t *testing.T) {
	mgr := newTestManager(t, Config{})
	starter := &fakeStarter{}
	h := NewHandler(mgr, starter, allowClient("app-1"), nil)

	body, _ := json.Marshal(OfferRequest{SDP: browserOffer(t), Options: map[string]any{"mode": "collection"}})
	c, rec := newContext(http.MethodPost, "/calls", string(body), "application/json")

	if err := h.HandleOffer(c); err != nil {
		t.Fatalf("HandleOffer failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/sdp" {
		t.Errorf("expected application/sdp answer, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "v=0") {
		t.Error("expected SDP answer in body")
	}

	sessionID := rec.Header().Get("X-Session-Id")
	if sessionID == "" {
		t.Fatal("expected X-Session-Id header")
	}
	session, ok := mgr.GetSession(sessionID)
	if !ok {
		t.Fatal("expected session to be registered")
	}
	if session.ClientID() != "app-1" {
		t.Errorf("expected client app-1, got %s", session.ClientID())
	}

	if len(starter.reqs) != 1 {
		t.Fatalf("expected 1 start request, got %d", len(starter.reqs))
	}
	req := starter.reqs[0]
	if req.SessionID != sessionID {
		t.Errorf("expected start for %s, got %s", sessionID, req.SessionID)
	}
	if req.Conn != session.Conn() {
		t.Error("expected the session connection to be started")
	}
	if req.Options["mode"] != "collection" {
		t.Errorf("expected options to be forwarded, got %v", req.Options)
	}
}

func TestHandler_HandleOffer_JSONAnswer(t *testing.T) {
	mgr := newTestManager(t, Config{})
	h := NewHandler(mgr, &fakeStarter{}, allowClient("app-1"), nil)

	c, rec := newContext(http.MethodPost, "/v1/liveness/calls", browserOffer(t), "application/sdp")
	c.Request().Header.Set("Accept", "application/json")

	if err := h.HandleOffer(c); err != nil {
		t.Fatalf("HandleOffer failed: %v", err)
	}

	var resp OfferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON answer: %v", err)
	}
	if resp.SessionID == "" || !strings.Contains(resp.SDP, "v=0") {
		t.Errorf("unexpected answer: %+v", resp)
	}
	if len(resp.ICEServers) == 0 {
		t.Error("expected ICE servers in the answer")
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/liveness/calls/"+resp.SessionID {
		t.Errorf("unexpected Location %q", loc)
	}
}

func TestHandler_HandleOffer_StartFails(t *testing.T) {
	mgr := newTestManager(t, Config{})
	starter := &fakeStarter{err: fmt.Errorf("%w: bad option", liveness.ErrInvalidConfig)}
	h := NewHandler(mgr, starter, allowClient("app-1"), nil)

	c, _ := newContext(http.MethodPost, "/calls", browserOffer(t), "application/sdp")
	if code := httpCode(h.HandleOffer(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid options, got %d", code)
	}
	if mgr.SessionCount() != 0 {
		t.Errorf("expected session removed, got %d", mgr.SessionCount())
	}
}

func TestHandler_SessionAccess(t *testing.T) {
	mgr := newTestManager(t, Config{})
	peer, err := mgr.NewPeer()
	if err != nil {
		t.Fatalf("NewPeer failed: %v", err)
	}
	session, _ := mgr.CreateSession(peer, "owner")

	tests := []struct {
		name string
		auth transport.AuthFunc
		id   string
		want int
	}{
		{"unauthorized", denyAll, session.ID, http.StatusUnauthorized},
		{"missing id", allowClient("owner"), "", http.StatusBadRequest},
		{"unknown session", allowClient("owner"), "nonexistent", http.StatusNotFound},
		{"other client", allowClient("intruder"), session.ID, http.StatusForbidden},
	}

	for _, tt := range tests {
		h := NewHandler(mgr, nil, tt.auth, nil)
		for _, handle := range []echo.HandlerFunc{h.HandleICECandidate, h.HandleICEStream, h.HandleHangup} {
			c, _ := newContext(http.MethodPost, "/calls/x", "{}", "application/json")
			if tt.id != "" {
				c.SetParamNames("session_id")
				c.SetParamValues(tt.id)
			}
			if code := httpCode(handle(c)); code != tt.want {
				t.Errorf("%s: expected %d, got %d", tt.name, tt.want, code)
			}
		}
	}
}

func TestHandler_HandleHangup(t *testing.T) {
	mgr := newTestManager(t, Config{})
	peer, _ := mgr.NewPeer()
	session, _ := mgr.CreateSession(peer, "owner")
	h := NewHandler(mgr, nil, allowClient("owner"), nil)

	c, rec := newContext(http.MethodDelete, "/calls/"+session.ID, "", "")
	c.SetParamNames("session_id")
	c.SetParamValues(session.ID)

	if err := h.HandleHangup(c); err != nil {
		t.Fatalf("HandleHangup failed: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if _, ok := mgr.GetSession(session.ID); ok {
		t.Error("expected session removed")
	}
	select {
	case <-session.Done():
	default:
		t.Error("expected session closed")
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	h := NewHandler(newTestManager(t, Config{}), nil, nil, nil)
	h.RegisterRoutes(e.Group("/v1/liveness"))

	expectedPaths := map[string]bool{
		"/v1/liveness/calls":             false,
		"/v1/liveness/calls/:session_id": false,
		"/v1/liveness/ice-servers":       false,
	}

	for _, r := range e.Routes() {
		if _, exists := expectedPaths[r.Path]; exists {
			expectedPaths[r.Path] = true
		}
	}

	for path, found := range expectedPaths {
		if !found {
			t.Errorf("route %s not registered", path)
		}
	}
}
