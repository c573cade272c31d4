package verification

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/liveness-backend/internal/apikey"
	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/eleven-am/liveness-backend/internal/vision"
	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CaptureStore interface {
	BestCapture(ctx context.Context, sessionID string, kind vision.CaptureKind) (*vision.Capture, error)
	DeleteCaptures(ctx context.Context, sessionID string) error
}

// Handler serves verification results to the client that ran the session.
// Routes must be mounted behind API key authentication.
type Handler struct {
	store    *Store
	metrics  *MetricsStore
	captures CaptureStore
	logger   *slog.Logger
}

func NewHandler(store *Store, metrics *MetricsStore, captures CaptureStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    store,
		metrics:  metrics,
		captures: captures,
		logger:   logger.With("component", "verification-handler"),
	}
}

type RecordListResponse struct {
	Records []*Record `json:"records"`
	Total   int64     `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
}

type MetricsListResponse struct {
	ClientID string     `json:"client_id"`
	Hours    int        `json:"hours"`
	Metrics  []*Metrics `json:"metrics"`
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions", h.List)
	g.GET("/sessions/:id", h.Get)
	g.GET("/sessions/:id/capture", h.GetCapture)
	g.DELETE("/sessions/:id/capture", h.DeleteCapture)
	g.GET("/metrics", h.GetMetrics)
	g.GET("/metrics/summary", h.GetSummary)
}

func requireClient(c echo.Context) (string, error) {
	key := apikey.FromContext(c)
	if key == nil {
		return "", shared.Unauthorized("auth_required", "authentication required")
	}
	return key.ClientID, nil
}

func (h *Handler) ownedRecord(c echo.Context) (*Record, error) {
	clientID, err := requireClient(c)
	if err != nil {
		return nil, err
	}

	id := c.Param("id")
	rec, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("session_not_found", "verification not found")
		}
		h.logger.Error("failed to get verification", "error", err, "session_id", id)
		return nil, shared.InternalError("get_failed", "failed to get verification")
	}

	if rec.ClientID != clientID {
		return nil, shared.Forbidden("not_owner", "verification belongs to another client")
	}
	return rec, nil
}

// @Summary     List verifications
// @Description Returns the calling client's verification records, newest first
// @Tags        verifications
// @Produce     json
// @Param       limit   query  int  false  "Page size (max 100)"
// @Param       offset  query  int  false  "Offset"
// @Success     200  {object}  verification.RecordListResponse
// @Failure     401  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/sessions [get]
func (h *Handler) List(c echo.Context) error {
	clientID, err := requireClient(c)
	if err != nil {
		return err
	}

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.store.ListByClient(c.Request().Context(), clientID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list verifications", "error", err, "client_id", clientID)
		return shared.InternalError("list_failed", "failed to list verifications")
	}

	return c.JSON(http.StatusOK, RecordListResponse{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// @Summary     Get verification
// @Tags        verifications
// @Produce     json
// @Param       id  path  string  true  "Session ID"
// @Success     200  {object}  verification.Record
// @Failure     403  {object}  shared.APIError
// @Failure     404  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/sessions/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	rec, err := h.ownedRecord(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// @Summary     Get best capture
// @Description Returns the best face crop, or the full frame with kind=frame, as JPEG
// @Tags        verifications
// @Produce     jpeg
// @Param       id    path   string  true   "Session ID"
// @Param       kind  query  string  false  "face or frame"
// @Success     200  {file}    binary
// @Failure     400  {object}  shared.APIError
// @Failure     404  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/sessions/{id}/capture [get]
func (h *Handler) GetCapture(c echo.Context) error {
	rec, err := h.ownedRecord(c)
	if err != nil {
		return err
	}

	kind := vision.CaptureFace
	switch c.QueryParam("kind") {
	case "", string(vision.CaptureFace):
	case string(vision.CaptureFrame):
		kind = vision.CaptureFrame
	default:
		return shared.BadRequest("invalid_kind", "kind must be face or frame")
	}

	capture, err := h.captures.BestCapture(c.Request().Context(), rec.ID, kind)
	if err != nil {
		if errors.Is(err, vision.ErrCaptureNotFound) {
			return shared.NotFound("capture_not_found", "no capture available for this session")
		}
		h.logger.Error("failed to get capture", "error", err, "session_id", rec.ID)
		return shared.InternalError("capture_failed", "failed to get capture")
	}

	c.Response().Header().Set("X-Capture-Score", strconv.FormatFloat(capture.Score, 'f', 4, 64))
	return c.Blob(http.StatusOK, "image/jpeg", capture.Data)
}

// @Summary     Delete captures
// @Description Drops the stored images of a session before they expire
// @Tags        verifications
// @Param       id  path  string  true  "Session ID"
// @Success     204
// @Failure     403  {object}  shared.APIError
// @Failure     404  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/sessions/{id}/capture [delete]
func (h *Handler) DeleteCapture(c echo.Context) error {
	rec, err := h.ownedRecord(c)
	if err != nil {
		return err
	}
	if err := h.captures.DeleteCaptures(c.Request().Context(), rec.ID); err != nil {
		h.logger.Error("failed to delete captures", "error", err, "session_id", rec.ID)
		return shared.InternalError("capture_delete_failed", "failed to delete captures")
	}
	return c.NoContent(http.StatusNoContent)
}

// @Summary     Hourly metrics
// @Tags        metrics
// @Produce     json
// @Param       hours  query  int  false  "Hours to return (default 24, max 168)"
// @Success     200  {object}  verification.MetricsListResponse
// @Failure     401  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/metrics [get]
func (h *Handler) GetMetrics(c echo.Context) error {
	clientID, err := requireClient(c)
	if err != nil {
		return err
	}

	hours := queryInt(c, "hours", defaultMetricHour)
	if hours <= 0 || hours > maxMetricsHours {
		hours = defaultMetricHour
	}

	metrics, err := h.metrics.GetMetrics(c.Request().Context(), clientID, hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err, "client_id", clientID)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}

	return c.JSON(http.StatusOK, MetricsListResponse{
		ClientID: clientID,
		Hours:    hours,
		Metrics:  metrics,
	})
}

// @Summary     Metrics summary
// @Tags        metrics
// @Produce     json
// @Success     200  {object}  verification.Summary
// @Failure     401  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/liveness/metrics/summary [get]
func (h *Handler) GetSummary(c echo.Context) error {
	clientID, err := requireClient(c)
	if err != nil {
		return err
	}

	summary, err := h.metrics.GetSummary(c.Request().Context(), clientID)
	if err != nil {
		h.logger.Error("failed to get metrics summary", "error", err, "client_id", clientID)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}
	return c.JSON(http.StatusOK, summary)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
