package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"
)

const (
	defaultBodyLimit   = 64 * 1024
	iceStreamKeepAlive = 15 * time.Second
	fallbackSTUN       = "stun:stun.l.google.com:19302"
)

// Handler exposes WHIP-style signalling for browser capture sessions: one
// POST carries the SDP offer and returns the answer, trickle ICE flows over
// the session sub-resource.
type Handler struct {
	manager *Manager
	starter transport.SessionStarter
	auth    transport.AuthFunc
	log     *slog.Logger
}

func NewHandler(mgr *Manager, starter transport.SessionStarter, auth transport.AuthFunc, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		manager: mgr,
		starter: starter,
		auth:    auth,
		log:     log.With("component", "rtc-handler"),
	}
}

type OfferRequest struct {
	SDP     string         `json:"sdp"`
	Options map[string]any `json:"options,omitempty"`
}

type OfferResponse struct {
	SessionID  string      `json:"session_id"`
	SDP        string      `json:"sdp"`
	ICEServers []ICEServer `json:"ice_servers,omitempty"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type ICECandidateRequest struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type ICEServersResponse struct {
	ICEServers []ICEServer `json:"ice_servers"`
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/calls", h.HandleOffer)
	g.POST("/calls/:session_id", h.HandleICECandidate)
	g.GET("/calls/:session_id", h.HandleICEStream)
	g.DELETE("/calls/:session_id", h.HandleHangup)
	g.GET("/ice-servers", h.HandleICEServers)
}

// @Summary     Start a WebRTC liveness session
// @Description Accepts an SDP offer as application/sdp, JSON or multipart and answers with SDP. The session ID is returned in X-Session-Id.
// @Tags        realtime
// @Accept      json
// @Produce     json
// @Param       request  body  realtime.OfferRequest  true  "SDP offer and session options"
// @Success     201  {object}  realtime.OfferResponse
// @Failure     400  {object}  shared.APIError
// @Failure     401  {object}  shared.APIError
// @Failure     503  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/calls [post]
func (h *Handler) HandleOffer(c echo.Context) error {
	profile, err := h.auth(c.Request())
	if err != nil {
		return shared.Unauthorized("unauthorized", "valid api key required")
	}
	client := *profile
	if client.IP == "" {
		client.IP = c.RealIP()
	}

	offer, err := h.decodeOffer(c.Request())
	if err != nil {
		h.log.Warn("rejecting offer", "error", err)
		return shared.BadRequest("invalid_offer", err.Error())
	}
	if offer.SDP == "" {
		return shared.BadRequest("invalid_offer", "missing sdp")
	}

	peer, err := h.manager.NewPeer()
	if err != nil {
		h.log.Error("failed to create peer", "error", err)
		return shared.InternalError("peer_failed", "failed to create peer connection")
	}
	if err := peer.SetOffer(offer.SDP); err != nil {
		peer.Close()
		h.log.Warn("failed to apply offer", "error", err)
		return shared.BadRequest("invalid_offer", "failed to process offer")
	}

	session, err := h.manager.CreateSession(peer, client.ClientID)
	if errors.Is(err, ErrSessionLimit) {
		peer.Close()
		return shared.Unavailable("capacity_exceeded", err.Error())
	}
	h.bindPeer(session)

	answer, err := peer.CreateAnswer()
	if err != nil {
		h.manager.RemoveSession(session.ID)
		h.log.Error("failed to create answer", "session_id", session.ID, "error", err)
		return shared.InternalError("answer_failed", "failed to create answer")
	}

	err = h.starter.Start(transport.StartRequest{
		SessionID: session.ID,
		Conn:      session.Conn(),
		Client:    &client,
		Options:   offer.Options,
	})
	if err != nil {
		h.manager.RemoveSession(session.ID)
		h.log.Warn("session start failed", "session_id", session.ID, "error", err)
		if errors.Is(err, liveness.ErrInvalidConfig) {
			return shared.BadRequest("invalid_options", err.Error())
		}
		return shared.InternalError("start_failed", "failed to start session")
	}

	c.Response().Header().Set("X-Session-Id", session.ID)
	c.Response().Header().Set(echo.HeaderLocation, c.Request().URL.Path+"/"+session.ID)

	if wantsJSON(c.Request()) {
		return c.JSON(http.StatusCreated, OfferResponse{
			SessionID:  session.ID,
			SDP:        answer,
			ICEServers: h.publicICEServers(),
		})
	}
	return c.Blob(http.StatusCreated, "application/sdp", []byte(answer))
}

// bindPeer routes the peer's data channel and local ICE candidates into the
// session's connection.
func (h *Handler) bindPeer(session *Session) {
	conn := session.Conn()
	conn.peer.OnDataChannel(conn.SetupDataChannel)
	conn.peer.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		session.SendICE(init)
		conn.SendICECandidate(init)
	})
}

// @Summary     Add remote ICE candidate
// @Tags        realtime
// @Accept      json
// @Param       session_id  path  string                        true  "Session ID"
// @Param       request     body  realtime.ICECandidateRequest  true  "Candidate"
// @Success     204
// @Failure     404  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/calls/{session_id} [post]
func (h *Handler) HandleICECandidate(c echo.Context) error {
	session, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	var req ICECandidateRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	err = session.Conn().peer.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     req.Candidate,
		SDPMid:        req.SDPMid,
		SDPMLineIndex: req.SDPMLineIndex,
	})
	if err != nil {
		h.log.Warn("failed to add ICE candidate", "session_id", session.ID, "error", err)
		return shared.BadRequest("invalid_candidate", "failed to add candidate")
	}
	return c.NoContent(http.StatusNoContent)
}

// @Summary     Stream local ICE candidates
// @Description Server-sent events carrying local candidates until gathering completes
// @Tags        realtime
// @Produce     text/event-stream
// @Param       session_id  path  string  true  "Session ID"
// @Success     200
// @Failure     404  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/calls/{session_id} [get]
func (h *Handler) HandleICEStream(c echo.Context) error {
	session, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	keepAlive := time.NewTicker(iceStreamKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			fmt.Fprint(w, "event: closed\ndata: {}\n\n")
			w.Flush()
			return nil
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			w.Flush()
		case candidate := <-session.ICECandidates():
			data, err := json.Marshal(candidate)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: ice-candidate\ndata: %s\n\n", data)
			w.Flush()
		}
	}
}

// @Summary     End a WebRTC session
// @Tags        realtime
// @Param       session_id  path  string  true  "Session ID"
// @Success     204
// @Failure     404  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/calls/{session_id} [delete]
func (h *Handler) HandleHangup(c echo.Context) error {
	session, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	h.manager.RemoveSession(session.ID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary     List ICE servers
// @Tags        realtime
// @Produce     json
// @Success     200  {object}  realtime.ICEServersResponse
// @Router      /v1/liveness/ice-servers [get]
func (h *Handler) HandleICEServers(c echo.Context) error {
	return c.JSON(http.StatusOK, ICEServersResponse{ICEServers: h.publicICEServers()})
}

// ownedSession resolves :session_id and checks it belongs to the caller.
func (h *Handler) ownedSession(c echo.Context) (*Session, error) {
	profile, err := h.auth(c.Request())
	if err != nil {
		return nil, shared.Unauthorized("unauthorized", "valid api key required")
	}

	id := c.Param("session_id")
	if id == "" {
		return nil, shared.BadRequest("missing_session_id", "missing session id")
	}

	session, ok := h.manager.GetSession(id)
	if !ok {
		return nil, shared.NotFound("session_not_found", "session not found")
	}
	if session.ClientID() != profile.ClientID {
		return nil, shared.Forbidden("session_forbidden", "session belongs to another client")
	}
	return session, nil
}

func (h *Handler) bodyLimit() int64 {
	if n := h.manager.Config().MaxSDPSize; n > 0 {
		return int64(n)
	}
	return defaultBodyLimit
}

func (h *Handler) publicICEServers() []ICEServer {
	configured := h.manager.ICEServers()
	if len(configured) == 0 {
		return []ICEServer{{URLs: []string{fallbackSTUN}}}
	}
	servers := make([]ICEServer, len(configured))
	for i, s := range configured {
		servers[i] = ICEServer(s)
	}
	return servers
}

// decodeOffer accepts a raw SDP body, a JSON OfferRequest, or a multipart
// form with "sdp" and optional JSON "options" parts.
func (h *Handler) decodeOffer(r *http.Request) (OfferRequest, error) {
	contentType := r.Header.Get(echo.HeaderContentType)
	mediaType, params, _ := mime.ParseMediaType(contentType)
	limit := h.bodyLimit()

	switch mediaType {
	case "application/sdp":
		sdp, err := readLimited(r.Body, limit)
		return OfferRequest{SDP: sdp}, err
	case "multipart/form-data":
		return decodeMultipartOffer(r.Body, params["boundary"], limit)
	case "application/json", "":
		body, err := readLimited(r.Body, limit)
		if err != nil {
			return OfferRequest{}, err
		}
		var req OfferRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return OfferRequest{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		return req, nil
	}
	return OfferRequest{}, fmt.Errorf("unsupported content type: %s", contentType)
}

func decodeMultipartOffer(body io.Reader, boundary string, limit int64) (OfferRequest, error) {
	if boundary == "" {
		return OfferRequest{}, errors.New("missing multipart boundary")
	}

	var req OfferRequest
	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return OfferRequest{}, fmt.Errorf("read multipart: %w", err)
		}

		value, err := readLimited(part, limit)
		if err != nil {
			return OfferRequest{}, fmt.Errorf("read %s part: %w", part.FormName(), err)
		}
		switch part.FormName() {
		case "sdp":
			req.SDP = value
		case "options":
			if err := json.Unmarshal([]byte(value), &req.Options); err != nil {
				return OfferRequest{}, fmt.Errorf("invalid options: %w", err)
			}
		}
	}

	if req.SDP == "" {
		return OfferRequest{}, errors.New("sdp field not found in multipart")
	}
	return req, nil
}

func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("body exceeds %d bytes", limit)
	}
	return string(data), nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
