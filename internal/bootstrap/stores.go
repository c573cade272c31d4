package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/eleven-am/liveness-backend/internal/apikey"
	"github.com/eleven-am/liveness-backend/internal/verification"
	"github.com/eleven-am/liveness-backend/internal/vision"
)

func ProvideAPIKeyStore(db *gorm.DB) *apikey.Store {
	return apikey.NewStore(db)
}

func ProvideVerificationStore(db *gorm.DB) *verification.Store {
	return verification.NewStore(db)
}

func ProvideMetricsStore(redisClient *redis.Client) *verification.MetricsStore {
	return verification.NewMetricsStore(redisClient)
}

func ProvideCaptureStore(redisClient *redis.Client, cfg *Config) *vision.Store {
	return vision.NewStore(redisClient, cfg.CaptureTTL)
}

func RunMigrations(apiKeyStore *apikey.Store, verificationStore *verification.Store) error {
	if err := apiKeyStore.Migrate(); err != nil {
		return err
	}
	return verificationStore.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideAPIKeyStore,
		ProvideVerificationStore,
		ProvideMetricsStore,
		ProvideCaptureStore,
	),
	fx.Invoke(RunMigrations),
)
