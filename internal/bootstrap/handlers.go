package bootstrap

import (
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"

	"github.com/eleven-am/liveness-backend/docs"
	"github.com/eleven-am/liveness-backend/internal/apikey"
	"github.com/eleven-am/liveness-backend/internal/gateway"
	"github.com/eleven-am/liveness-backend/internal/verification"
	"github.com/eleven-am/liveness-backend/internal/vision"
)

type HandlerParams struct {
	fx.In

	APIKeyHandler *apikey.Handler
	Authenticator *gateway.Authenticator
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/v1")

	keysGroup := api.Group("/keys")
	keysGroup.Use(gateway.APIKeyAuth(params.Authenticator))
	params.APIKeyHandler.RegisterRoutes(keysGroup)

	docs.SwaggerInfo.Version = version
	e.GET("/swagger/*", echoSwagger.EchoWrapHandler())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return logger
}

func ProvideAPIKeyHandler(store *apikey.Store, logger *slog.Logger) *apikey.Handler {
	return apikey.NewHandler(store, logger.With("handler", "apikey"))
}

func ProvideVerificationHandler(
	store *verification.Store,
	metrics *verification.MetricsStore,
	captures *vision.Store,
	logger *slog.Logger,
) *verification.Handler {
	return verification.NewHandler(store, metrics, captures, logger.With("handler", "verification"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideAPIKeyHandler,
		ProvideVerificationHandler,
	),
	fx.Invoke(RegisterRoutes),
)
