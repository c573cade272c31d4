package gateway

import (
	"log/slog"
	"time"

	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type WSServer struct {
	starter transport.SessionStarter
	cfg     WSConfig
	logger  *slog.Logger
}

func NewWSServer(starter transport.SessionStarter, cfg WSConfig, logger *slog.Logger) *WSServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSServer{
		starter: starter,
		cfg:     cfg,
		logger:  logger.With("component", "ws-server"),
	}
}

func (s *WSServer) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", s.HandleConnection)
}

// @Summary     Websocket capture session
// @Description Upgrades to a websocket carrying JSON commands and events, and binary JPEG frames
// @Tags        sessions
// @Success     101
// @Failure     401  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/ws [get]
func (s *WSServer) HandleConnection(c echo.Context) error {
	profile := ClientProfile(c)
	if profile == nil {
		return shared.Unauthorized("auth_required", "authentication required")
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	sessionID := uuid.NewString()
	conn := NewWSConn(ws, sessionID, s.cfg, s.logger)

	err = s.starter.Start(transport.StartRequest{
		SessionID: sessionID,
		Conn:      conn,
		Client:    profile,
	})
	if err != nil {
		s.logger.Error("failed to start session", "error", err, "session_id", sessionID)
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteJSON(transport.ServerEvent{
			Type:      transport.EventTypeError,
			SessionID: sessionID,
			Payload:   transport.ErrorPayload{Message: err.Error()},
		})
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session start failed"))
		return conn.Close()
	}

	s.logger.Info("capture client connected", "session_id", sessionID, "client_id", profile.ClientID)

	conn.Run(c.Request().Context())

	s.logger.Info("capture client disconnected", "session_id", sessionID)
	return nil
}
