package gateway

import (
	"log/slog"

	"github.com/eleven-am/liveness-backend/internal/apikey"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvidePublisher(redisClient *redis.Client, logger *slog.Logger) *Publisher {
	return NewPublisher(redisClient, logger)
}

func ProvideAuthenticator(store *apikey.Store) *Authenticator {
	return NewAuthenticator(store)
}

func ProvideAuthFunc(auth *Authenticator) transport.AuthFunc {
	return auth.Profile
}

func ProvideWSServer(starter transport.SessionStarter, cfg WSConfig, logger *slog.Logger) *WSServer {
	return NewWSServer(starter, cfg, logger)
}

func ProvideEventsHandler(publisher *Publisher, logger *slog.Logger) *EventsHandler {
	return NewEventsHandler(publisher, logger)
}

var Module = fx.Options(
	fx.Provide(
		ProvidePublisher,
		ProvideAuthenticator,
		ProvideAuthFunc,
		ProvideWSServer,
		ProvideEventsHandler,
	),
)
