package apikey

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

// Handler lets an authenticated client manage its own keys. Routes must be
// mounted behind API key authentication.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		logger: logger.With("component", "apikey-handler"),
	}
}

type KeyResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Prefix    string  `json:"prefix"`
	CreatedAt string  `json:"created_at"`
	ExpiresAt *string `json:"expires_at,omitempty"`
	LastUsed  *string `json:"last_used,omitempty"`
}

type KeyListResponse struct {
	Keys []KeyResponse `json:"keys"`
}

type CreateKeyRequest struct {
	Name      string `json:"name"`
	ExpiresIn *int   `json:"expires_in_days,omitempty"`
}

type CreateKeyResponse struct {
	KeyResponse
	Secret string `json:"secret"`
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.DELETE("/:id", h.Delete)
}

func requireClient(c echo.Context) (string, error) {
	key := FromContext(c)
	if key == nil {
		return "", shared.Unauthorized("auth_required", "authentication required")
	}
	return key.ClientID, nil
}

func keyToResponse(k *APIKey) KeyResponse {
	resp := KeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		Prefix:    k.Hint(),
		CreatedAt: k.CreatedAt.Format(time.RFC3339),
	}

	if k.ExpiresAt != nil {
		expiresAt := k.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &expiresAt
	}

	if k.LastUsedAt != nil {
		lastUsed := k.LastUsedAt.Format(time.RFC3339)
		resp.LastUsed = &lastUsed
	}

	return resp
}

// @Summary     List API keys
// @Tags        keys
// @Produce     json
// @Success     200  {object}  apikey.KeyListResponse
// @Failure     401  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/keys [get]
func (h *Handler) List(c echo.Context) error {
	clientID, err := requireClient(c)
	if err != nil {
		return err
	}

	keys, err := h.store.ListByClient(c.Request().Context(), clientID)
	if err != nil {
		h.logger.Error("failed to list API keys", "error", err, "client_id", clientID)
		return shared.InternalError("list_failed", "failed to list API keys")
	}

	response := make([]KeyResponse, len(keys))
	for i, k := range keys {
		response[i] = keyToResponse(k)
	}

	return c.JSON(http.StatusOK, KeyListResponse{Keys: response})
}

// @Summary     Create API key
// @Description The secret is only returned once
// @Tags        keys
// @Accept      json
// @Produce     json
// @Param       request  body  apikey.CreateKeyRequest  true  "Key details"
// @Success     201  {object}  apikey.CreateKeyResponse
// @Failure     400  {object}  shared.APIError
// @Failure     401  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/keys [post]
func (h *Handler) Create(c echo.Context) error {
	clientID, err := requireClient(c)
	if err != nil {
		return err
	}

	var req CreateKeyRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	if req.Name == "" {
		return shared.BadRequest("missing_name", "name is required")
	}

	key := &APIKey{
		ClientID: clientID,
		Name:     req.Name,
	}

	if req.ExpiresIn != nil && *req.ExpiresIn > 0 {
		expiresAt := time.Now().AddDate(0, 0, *req.ExpiresIn)
		key.ExpiresAt = &expiresAt
	}

	secret, err := h.store.Create(c.Request().Context(), key)
	if err != nil {
		h.logger.Error("failed to create API key", "error", err, "client_id", clientID)
		return shared.InternalError("create_failed", "failed to create API key")
	}

	return c.JSON(http.StatusCreated, CreateKeyResponse{
		KeyResponse: keyToResponse(key),
		Secret:      secret,
	})
}

// @Summary     Delete API key
// @Tags        keys
// @Param       id  path  string  true  "Key ID"
// @Success     204
// @Failure     404  {object}  shared.APIError
// @Security    APIKeyAuth
// @Router      /v1/keys/{id} [delete]
func (h *Handler) Delete(c echo.Context) error {
	clientID, err := requireClient(c)
	if err != nil {
		return err
	}

	keyID := c.Param("id")

	key, err := h.store.GetByID(c.Request().Context(), keyID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("key_not_found", "API key not found")
		}
		return shared.InternalError("get_failed", "failed to get API key")
	}

	if key.ClientID != clientID {
		return shared.Forbidden("not_owner", "you don't own this API key")
	}

	if err := h.store.Delete(c.Request().Context(), keyID); err != nil {
		h.logger.Error("failed to delete API key", "error", err, "key_id", keyID)
		return shared.InternalError("delete_failed", "failed to delete API key")
	}

	return c.NoContent(http.StatusNoContent)
}
