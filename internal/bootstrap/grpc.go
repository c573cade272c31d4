package bootstrap

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/eleven-am/liveness-backend/internal/liveness"
)

// livenessService is the gRPC health service name reported for the engine.
const livenessService = "liveness.v1.Liveness"

const engineRetryInterval = 10 * time.Second

func NewGRPCServer() *grpc.Server {
	return grpc.NewServer()
}

func ProvideHealthServer() *health.Server {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(livenessService, healthpb.HealthCheckResponse_NOT_SERVING)
	return srv
}

func RegisterHealthService(server *grpc.Server, healthServer *health.Server) {
	healthpb.RegisterHealthServer(server, healthServer)
}

// WarmEngine loads the models in the background and flips the gRPC health
// status to SERVING once they are ready, retrying until the app stops.
func WarmEngine(lc fx.Lifecycle, engine *liveness.Engine, healthServer *health.Server, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				warmEngine(ctx, engine, healthServer, logger)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			healthServer.Shutdown()
			return nil
		},
	})
}

func warmEngine(ctx context.Context, engine *liveness.Engine, healthServer *health.Server, logger *slog.Logger) {
	for {
		_, err := engine.Load(ctx)
		if err == nil {
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			healthServer.SetServingStatus(livenessService, healthpb.HealthCheckResponse_SERVING)
			return
		}
		logger.Warn("engine warm-up failed, retrying", "error", err, "retry_in", engineRetryInterval)

		select {
		case <-ctx.Done():
			return
		case <-time.After(engineRetryInterval):
		}
	}
}

func StartGRPCServer(lc fx.Lifecycle, server *grpc.Server, cfg *Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("gRPC server starting", "addr", cfg.GRPCAddr)
				if err := server.Serve(lis); err != nil {
					logger.Error("gRPC server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.GracefulStop()
			return nil
		},
	})
}

var GRPCModule = fx.Options(
	fx.Provide(NewGRPCServer, ProvideHealthServer),
	fx.Invoke(RegisterHealthService),
	fx.Invoke(WarmEngine),
	fx.Invoke(StartGRPCServer),
)
