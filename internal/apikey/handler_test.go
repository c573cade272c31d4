package apikey

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *Store) {
	store := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(store, logger), store
}

func newContext(method, target, body string, key *APIKey) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if key != nil {
		SetContext(c, key)
	}
	return c, rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return httpErr.Code
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()
	h.RegisterRoutes(e.Group("/v1/keys"))

	paths := make(map[string]bool)
	for _, r := range e.Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{"GET /v1/keys", "POST /v1/keys", "DELETE /v1/keys/:id"} {
		if !paths[want] {
			t.Errorf("expected route %s to be registered", want)
		}
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	h, _ := newTestHandler(t)

	handlers := map[string]echo.HandlerFunc{
		"list":   h.List,
		"create": h.Create,
		"delete": h.Delete,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			c, _ := newContext(http.MethodGet, "/v1/keys", "", nil)
			if code := httpCode(t, fn(c)); code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", code)
			}
		})
	}
}

func TestHandler_CreateAndList(t *testing.T) {
	h, _ := newTestHandler(t)
	caller := &APIKey{ID: "key_caller", ClientID: "client_1"}

	c, rec := newContext(http.MethodPost, "/v1/keys", `{"name":"kiosk","expires_in_days":30}`, caller)
	if err := h.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var created CreateKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(created.Secret, secretPrefix) {
		t.Errorf("unexpected secret %q", created.Secret)
	}
	if created.ExpiresAt == nil {
		t.Error("expected expires_at to be set")
	}

	c, rec = newContext(http.MethodGet, "/v1/keys", "", caller)
	if err := h.List(c); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	var list KeyListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Keys) != 1 || list.Keys[0].Name != "kiosk" {
		t.Errorf("unexpected list: %+v", list.Keys)
	}
}

func TestHandler_Create_MissingName(t *testing.T) {
	h, _ := newTestHandler(t)
	c, _ := newContext(http.MethodPost, "/v1/keys", `{}`, &APIKey{ClientID: "client_1"})

	if code := httpCode(t, h.Create(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Delete(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()

	owned := &APIKey{ClientID: "client_1", Name: "mine"}
	if _, err := store.Create(ctx, owned); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	foreign := &APIKey{ClientID: "client_2", Name: "theirs"}
	if _, err := store.Create(ctx, foreign); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	caller := &APIKey{ClientID: "client_1"}

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"foreign key", foreign.ID, http.StatusForbidden},
		{"missing key", "key_missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(http.MethodDelete, "/v1/keys/"+tt.id, "", caller)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			if code := httpCode(t, h.Delete(c)); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}

	c, rec := newContext(http.MethodDelete, "/v1/keys/"+owned.ID, "", caller)
	c.SetParamNames("id")
	c.SetParamValues(owned.ID)
	if err := h.Delete(c); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestContext(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/", "", nil)
	if FromContext(c) != nil {
		t.Error("expected no key on fresh context")
	}

	key := &APIKey{ID: "key_1"}
	SetContext(c, key)
	if FromContext(c) != key {
		t.Error("expected key from context")
	}
}
