package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/eleven-am/liveness-backend/internal/gateway"
	"github.com/eleven-am/liveness-backend/internal/health"
	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/livesession"
	"github.com/eleven-am/liveness-backend/internal/vision"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redis *redis.Client,
	detector *vision.Client,
	engine *liveness.Engine,
	sessions *livesession.Manager,
	publisher *gateway.Publisher,
) *health.Handler {
	return health.NewHandler(health.Params{
		DB:          db,
		Redis:       redis,
		Detector:    detector,
		Engine:      engine,
		Sessions:    sessions,
		Subscribers: publisher,
		Version:     version,
	})
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
