package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/eleven-am/liveness-backend/internal/apikey"
	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/eleven-am/liveness-backend/internal/transport"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrExpiredAPIKey = errors.New("api key expired")
)

type APIKeyValidator interface {
	Validate(ctx context.Context, secret string) (*apikey.APIKey, error)
}

type Authenticator struct {
	apiKeyStore APIKeyValidator
}

func NewAuthenticator(store APIKeyValidator) *Authenticator {
	return &Authenticator{apiKeyStore: store}
}

func (a *Authenticator) ValidateAPIKey(ctx context.Context, secret string) (*apikey.APIKey, error) {
	key, err := a.apiKeyStore.Validate(ctx, secret)
	if errors.Is(err, shared.ErrUnauthorized) {
		return nil, ErrExpiredAPIKey
	}
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	return key, nil
}

// Profile authenticates a raw request and describes the calling client. It
// satisfies transport.AuthFunc for surfaces outside the echo middleware chain.
func (a *Authenticator) Profile(r *http.Request) (*transport.ClientProfile, error) {
	secret := extractAPIKey(r)
	if secret == "" {
		return nil, ErrUnauthorized
	}

	key, err := a.ValidateAPIKey(r.Context(), secret)
	if err != nil {
		return nil, err
	}
	return profileFor(key, realIP(r)), nil
}

func profileFor(key *apikey.APIKey, ip string) *transport.ClientProfile {
	return &transport.ClientProfile{
		ClientID: key.ClientID,
		KeyID:    key.ID,
		IP:       ip,
	}
}

func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}

	return r.URL.Query().Get("api_key")
}

func realIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, found := strings.Cut(r.RemoteAddr, ":")
	if !found {
		return r.RemoteAddr
	}
	return host
}
