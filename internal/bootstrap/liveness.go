package bootstrap

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/eleven-am/liveness-backend/internal/gateway"
	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/livesession"
	"github.com/eleven-am/liveness-backend/internal/realtime"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/eleven-am/liveness-backend/internal/verification"
	"github.com/eleven-am/liveness-backend/internal/vision"
)

func ProvideVisionConfig(cfg *Config) vision.Config {
	return vision.Config{
		DetectorURL: cfg.DetectorURL,
		Token:       cfg.DetectorToken,
		Timeout:     cfg.DetectorTimeout,
		CaptureTTL:  cfg.CaptureTTL,
	}
}

func ProvideDetectorClient(cfg vision.Config, logger *slog.Logger) *vision.Client {
	return vision.NewClient(cfg, logger)
}

func ProvideEngine(client *vision.Client, logger *slog.Logger) *liveness.Engine {
	return liveness.NewEngine(liveness.EngineConfig{
		Loader:     client,
		Detector:   client,
		Classifier: client,
		Cropper:    vision.NewCropper(vision.CropperConfig{}),
		Logger:     logger,
	})
}

func ProvideSessionManager(
	lc fx.Lifecycle,
	cfg *Config,
	engine *liveness.Engine,
	publisher *gateway.Publisher,
	records *verification.Store,
	metrics *verification.MetricsStore,
	captures *vision.Store,
	logger *slog.Logger,
) (*livesession.Manager, error) {
	defaults, err := cfg.SessionDefaults()
	if err != nil {
		return nil, err
	}

	mgr := livesession.NewManager(livesession.Config{
		Engine:       engine,
		Defaults:     defaults,
		Publisher:    publisher,
		Records:      records,
		Metrics:      metrics,
		Captures:     captures,
		StartTimeout: cfg.SessionStartTimeout,
		Logger:       logger,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := mgr.Close(); err != nil {
				return err
			}
			return publisher.Close()
		},
	})
	return mgr, nil
}

func ProvideSessionStarter(mgr *livesession.Manager) transport.SessionStarter {
	return mgr
}

func ProvideRTCConfig(cfg *Config) realtime.Config {
	iceServers := make([]realtime.ICEServerConfig, 0, len(cfg.RTCICEServers))
	for _, s := range cfg.RTCICEServers {
		iceServers = append(iceServers, realtime.ICEServerConfig{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return realtime.Config{
		ICEServers: iceServers,
		PortRange: realtime.PortRange{
			Min: cfg.RTCPortMin,
			Max: cfg.RTCPortMax,
		},
		PublicIPs:   cfg.RTCPublicIPs,
		MaxSessions: cfg.RTCMaxSession,
		CaptureRate: cfg.CaptureRate,
	}
}

func ProvideRTCManager(lc fx.Lifecycle, cfg realtime.Config, logger *slog.Logger) (*realtime.Manager, error) {
	mgr, err := realtime.NewManager(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			mgr.Close()
			return nil
		},
	})
	return mgr, nil
}

func ProvideRTCHandler(
	mgr *realtime.Manager,
	starter transport.SessionStarter,
	auth transport.AuthFunc,
	logger *slog.Logger,
) *realtime.Handler {
	return realtime.NewHandler(mgr, starter, auth, logger)
}

func ProvideClientLimiter(lc fx.Lifecycle, cfg *Config) *gateway.ClientLimiter {
	limits := gateway.DefaultRateLimiterConfig()
	limits.RequestsPerSecond = cfg.RateLimitRPS
	limits.Burst = cfg.RateLimitBurst

	limiter := gateway.NewClientLimiter(limits)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			limiter.Stop()
			return nil
		},
	})
	return limiter
}

func ProvideWSConfig(cfg *Config) gateway.WSConfig {
	return gateway.WSConfig{CaptureRate: cfg.CaptureRate}
}

type LivenessRouteParams struct {
	fx.In

	RTCHandler    *realtime.Handler
	WSServer      *gateway.WSServer
	EventsHandler *gateway.EventsHandler
	Verification  *verification.Handler
	Authenticator *gateway.Authenticator
	Limiter       *gateway.ClientLimiter
}

func RegisterLivenessRoutes(e *echo.Echo, params LivenessRouteParams) {
	limiter := gateway.RateLimiter(params.Limiter)

	api := e.Group("/v1/liveness")
	api.Use(gateway.APIKeyAuth(params.Authenticator), limiter)
	params.Verification.RegisterRoutes(api)
	params.EventsHandler.RegisterRoutes(api)
	params.WSServer.RegisterRoutes(api)

	calls := e.Group("/v1/liveness", limiter)
	params.RTCHandler.RegisterRoutes(calls)
}

var LivenessModule = fx.Options(
	fx.Provide(
		ProvideVisionConfig,
		ProvideDetectorClient,
		ProvideEngine,
		ProvideSessionManager,
		ProvideSessionStarter,
		ProvideRTCConfig,
		ProvideRTCManager,
		ProvideRTCHandler,
		ProvideClientLimiter,
		ProvideWSConfig,
	),
	fx.Invoke(RegisterLivenessRoutes),
)
