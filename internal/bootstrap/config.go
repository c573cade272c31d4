package bootstrap

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/eleven-am/liveness-backend/internal/liveness"
)

type Config struct {
	ServerAddr string
	GRPCAddr   string
	LogLevel   string

	RTCICEServers []ICEServerConfig
	RTCPortMin    int
	RTCPortMax    int
	RTCPublicIPs  []string
	RTCMaxSession int
	CaptureRate   time.Duration

	DetectorURL     string
	DetectorToken   string
	DetectorTimeout time.Duration

	DatabaseDSN       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CaptureTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	SessionStartTimeout time.Duration
	LivenessDefaults    map[string]any
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

// LoadConfig reads the environment, after loading an optional .env file.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		GRPCAddr:   getEnv("GRPC_ADDR", ":50051"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		RTCICEServers: parseICEServers(getEnv("RTC_ICE_SERVERS", "stun:stun.l.google.com:19302")),
		RTCPortMin:    getEnvInt("RTC_PORT_MIN", 10000),
		RTCPortMax:    getEnvInt("RTC_PORT_MAX", 20000),
		RTCPublicIPs:  splitList(getEnv("RTC_PUBLIC_IPS", "")),
		RTCMaxSession: getEnvInt("RTC_MAX_SESSIONS", 0),
		CaptureRate:   getEnvDuration("CAPTURE_RATE", 100*time.Millisecond),

		DetectorURL:     getEnv("DETECTOR_URL", "http://localhost:8090"),
		DetectorToken:   getEnv("DETECTOR_TOKEN", ""),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 5*time.Second),

		DatabaseDSN:       getEnv("DATABASE_DSN", ""),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CaptureTTL: getEnvDuration("CAPTURE_TTL", time.Hour),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		SessionStartTimeout: getEnvDuration("SESSION_START_TIMEOUT", 30*time.Second),
		LivenessDefaults:    parseDefaults(getEnv("LIVENESS_DEFAULTS", "")),
	}
}

// SessionDefaults applies LIVENESS_DEFAULTS over the built-in session
// configuration.
func (c *Config) SessionDefaults() (liveness.Config, error) {
	return liveness.ParseOptions(liveness.DefaultConfig(), c.LivenessDefaults)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseDefaults(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("ignoring invalid LIVENESS_DEFAULTS", "error", err)
		return nil
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseICEServers(envValue string) []ICEServerConfig {
	if envValue == "" {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	var servers []ICEServerConfig
	for _, url := range splitList(envValue) {
		servers = append(servers, ICEServerConfig{URLs: []string{url}})
	}

	if len(servers) == 0 {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	return servers
}
