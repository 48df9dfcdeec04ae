package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// TopTierBreachPolicy selects what happens when a level-2 SLA breaches.
type TopTierBreachPolicy string

const (
	TopTierAuditOnly TopTierBreachPolicy = "audit_only"
	TopTierExtendSLA TopTierBreachPolicy = "extend_sla"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Engine   EngineConfig
	Webhook  WebhookConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines control-plane authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	AdminEmail            string
	AdminPasswordHash     string
	AdminOperatorID       int64
}

// EngineConfig tunes the SLA sweep loop.
type EngineConfig struct {
	TickIntervalSeconds    int
	AtRiskThresholdMinutes int
	ShutdownJoinSeconds    int
	TopTierBreachPolicy    TopTierBreachPolicy
	SweepLockKey           string
}

// WebhookConfig tunes partner webhook delivery.
type WebhookConfig struct {
	TimeoutSeconds int
	MaxAttempts    int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	policy := TopTierBreachPolicy(getEnv("ENGINE_TOP_TIER_BREACH_POLICY", string(TopTierAuditOnly)))
	if policy != TopTierAuditOnly && policy != TopTierExtendSLA {
		return nil, fmt.Errorf("invalid ENGINE_TOP_TIER_BREACH_POLICY: %q", policy)
	}

	adminID := int64(getEnvAsInt("AUTH_ADMIN_OPERATOR_ID", 1))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			AdminEmail:            getEnv("AUTH_ADMIN_EMAIL", "admin@youcloud.com"),
			AdminPasswordHash:     os.Getenv("AUTH_ADMIN_PASSWORD_HASH"),
			AdminOperatorID:       adminID,
		},
		Engine: EngineConfig{
			TickIntervalSeconds:    getEnvAsInt("ENGINE_TICK_INTERVAL_SECONDS", 300),
			AtRiskThresholdMinutes: getEnvAsInt("ENGINE_AT_RISK_THRESHOLD_MINUTES", 30),
			ShutdownJoinSeconds:    getEnvAsInt("ENGINE_SHUTDOWN_JOIN_SECONDS", 10),
			TopTierBreachPolicy:    policy,
			SweepLockKey:           getEnv("ENGINE_SWEEP_LOCK_KEY", "sla-engine:sweep-lock"),
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: getEnvAsInt("WEBHOOK_TIMEOUT_SECONDS", 30),
			MaxAttempts:    getEnvAsInt("WEBHOOK_MAX_ATTEMPTS", 3),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TickInterval returns the sweep period.
func (e EngineConfig) TickInterval() time.Duration {
	if e.TickIntervalSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(e.TickIntervalSeconds) * time.Second
}

// AtRiskThreshold returns the warning window before a deadline.
func (e EngineConfig) AtRiskThreshold() time.Duration {
	if e.AtRiskThresholdMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(e.AtRiskThresholdMinutes) * time.Minute
}

// ShutdownJoin returns how long Stop waits for an in-flight tick.
func (e EngineConfig) ShutdownJoin() time.Duration {
	if e.ShutdownJoinSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(e.ShutdownJoinSeconds) * time.Second
}

// Timeout returns the per-attempt webhook timeout.
func (w WebhookConfig) Timeout() time.Duration {
	if w.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
