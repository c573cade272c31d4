package gateway

import (
	"errors"
	"log/slog"

	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

// EventsHandler streams a session's published events to its owning client
// as server-sent events.
type EventsHandler struct {
	publisher *Publisher
	logger    *slog.Logger
}

func NewEventsHandler(publisher *Publisher, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		publisher: publisher,
		logger:    logger.With("component", "events-handler"),
	}
}

func (h *EventsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions/:id/events", h.HandleStream)
}

// @Summary     Follow session events
// @Description Server-sent events for a session, replaying the terminal event of a finished session
// @Tags        sessions
// @Produce     text/event-stream
// @Param       id  path  string  true  "Session ID"
// @Success     200
// @Failure     403  {object}  shared.APIError
// @Failure     404  {object}  shared.APIError
// @Failure     503  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/sessions/{id}/events [get]
func (h *EventsHandler) HandleStream(c echo.Context) error {
	key := GetAPIKey(c)
	if key == nil {
		return shared.Unauthorized("auth_required", "authentication required")
	}

	sessionID := c.Param("id")
	if sessionID == "" {
		return shared.BadRequest("missing_session_id", "session id is required")
	}

	ctx := c.Request().Context()

	owner, err := h.publisher.Owner(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return shared.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		h.logger.Error("failed to look up session owner", "error", err, "session_id", sessionID)
		return shared.InternalError("lookup_failed", "failed to look up session")
	}
	if owner != key.ClientID {
		return shared.Forbidden("not_owner", "session belongs to another client")
	}

	stream, err := newSSEStream(c.Response())
	if err != nil {
		return shared.InternalError("streaming_unsupported", "streaming not supported")
	}

	sub, err := h.publisher.Subscribe(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrTooManySubs) {
			return shared.Unavailable("too_many_streams", err.Error())
		}
		h.logger.Error("failed to subscribe", "error", err, "session_id", sessionID)
		return shared.InternalError("subscribe_failed", "failed to subscribe to session")
	}
	defer sub.Close()

	last, err := h.publisher.Last(ctx, sessionID)
	if err != nil {
		h.logger.Warn("failed to read last event", "error", err, "session_id", sessionID)
	}

	stream.open()

	if last != nil {
		return stream.writeEvent(*last)
	}

	h.logger.Debug("event stream opened", "session_id", sessionID, "client_id", key.ClientID)
	if err := stream.run(ctx, sub.Events()); err != nil && ctx.Err() == nil {
		h.logger.Debug("event stream closed", "error", err, "session_id", sessionID)
	}
	return nil
}
