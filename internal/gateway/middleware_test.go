package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eleven-am/liveness-backend/internal/apikey"
	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func apiErrorCode(t *testing.T, err error) (int, string) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	body, ok := he.Message.(*shared.APIError)
	if !ok {
		t.Fatalf("expected *shared.APIError message, got %T", he.Message)
	}
	return he.Code, body.Code
}

func TestAPIKeyAuth(t *testing.T) {
	valid := &apikey.APIKey{ID: "key_123", ClientID: "client_456"}

	tests := []struct {
		name     string
		header   string
		key      *apikey.APIKey
		err      error
		wantCode string
	}{
		{name: "missing api key", wantCode: "missing_api_key"},
		{name: "unknown key", header: "Bearer sk-live-x", err: shared.ErrNotFound, wantCode: "invalid_api_key"},
		{name: "expired key", header: "Bearer sk-live-x", err: shared.ErrUnauthorized, wantCode: "expired_api_key"},
		{name: "valid key", header: "Bearer sk-live-x", key: valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/liveness/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			auth := NewAuthenticator(&mockAPIKeyValidator{
				validateFunc: func(context.Context, string) (*apikey.APIKey, error) {
					return tt.key, tt.err
				},
			})

			err := APIKeyAuth(auth)(okHandler)(c)
			if tt.wantCode != "" {
				status, code := apiErrorCode(t, err)
				if status != http.StatusUnauthorized || code != tt.wantCode {
					t.Errorf("got %d %q, want 401 %q", status, code, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if GetAPIKey(c) != valid {
				t.Error("expected authenticated key on the context")
			}
		})
	}
}

func TestClientLimiter_Reserve(t *testing.T) {
	l := NewClientLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 2})
	defer l.Stop()

	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Reserve("client:a"); !ok {
			t.Fatalf("request %d should fit in the burst", i+1)
		}
	}

	ok, wait := l.Reserve("client:a")
	if ok {
		t.Fatal("third request should be limited")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("retry delay = %v, want within (0, 1s]", wait)
	}

	if ok, _ := l.Reserve("client:b"); !ok {
		t.Error("other callers have their own bucket")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Reserve("client:a"); !ok {
		t.Error("bucket should refill after a second")
	}
}

func TestClientLimiter_ZeroBurstAlwaysLimits(t *testing.T) {
	l := NewClientLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 0})
	defer l.Stop()

	if ok, wait := l.Reserve("client:a"); ok || wait != time.Second {
		t.Errorf("Reserve() = %v, %v; want false, 1s", ok, wait)
	}
}

func TestClientLimiter_Evict(t *testing.T) {
	l := NewClientLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	defer l.Stop()

	base := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return base }
	l.Reserve("ip:1.1.1.1")
	l.now = func() time.Time { return base.Add(50 * time.Second) }
	l.Reserve("ip:2.2.2.2")

	l.evict(base.Add(70 * time.Second))
	if l.Len() != 1 {
		t.Fatalf("expected 1 caller after eviction, got %d", l.Len())
	}
	l.evict(base.Add(2 * time.Minute))
	if l.Len() != 0 {
		t.Errorf("expected all callers evicted, got %d", l.Len())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	l := NewClientLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1})
	defer l.Stop()
	handler := RateLimiter(l)(okHandler)
	e := echo.New()

	call := func(clientID string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodGet, "/v1/liveness/verifications", nil)
		req.Header.Set("X-Real-Ip", "10.0.0.1")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if clientID != "" {
			apikey.SetContext(c, &apikey.APIKey{ClientID: clientID})
		}
		return rec, handler(c)
	}

	if _, err := call("client1"); err != nil {
		t.Fatalf("first request for client1: %v", err)
	}
	rec, err := call("client1")
	status, code := apiErrorCode(t, err)
	if status != http.StatusTooManyRequests || code != "rate_limit_exceeded" {
		t.Errorf("got %d %q, want 429 rate_limit_exceeded", status, code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if _, err := call("client2"); err != nil {
		t.Errorf("client2 should not share client1's bucket: %v", err)
	}
	if _, err := call(""); err != nil {
		t.Errorf("anonymous caller is keyed by address: %v", err)
	}
}

func TestClientProfile(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Real-Ip", "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())

	if ClientProfile(c) != nil {
		t.Error("expected nil profile without api key")
	}

	apikey.SetContext(c, &apikey.APIKey{ID: "key_1", ClientID: "client_1"})

	p := ClientProfile(c)
	if p == nil {
		t.Fatal("expected profile")
	}
	if p.ClientID != "client_1" || p.KeyID != "key_1" || p.IP != "10.0.0.7" {
		t.Errorf("unexpected profile: %+v", p)
	}
}
