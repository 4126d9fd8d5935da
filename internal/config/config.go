package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingSigningSecret is returned when AUTH_JWT_SECRET is absent or blank.
var ErrMissingSigningSecret = errors.New("AUTH_JWT_SECRET is required")

// Session store backends.
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// Config aggregates runtime configuration for the gateway.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Session  SessionConfig
	Audit    AuditConfig
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
	Level       string
	Development bool
}

// AuthConfig defines bearer token validation parameters.
type AuthConfig struct {
	JWTSecret        string
	ValidateIssuer   bool
	ValidIssuer      string
	ValidateAudience bool
	ValidAudience    string
	ClockSkewSeconds int
	DecryptionKey    string
}

// SessionConfig defines the cookie scheme.
type SessionConfig struct {
	CookieName      string
	LifetimeMinutes int
	LoginPath       string
	LogoutPath      string
	SessionPath     string
	SecureCookies   bool
	Store           string
}

// AuditConfig sizes the asynchronous audit queue.
type AuditConfig struct {
	QueueSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
// The result is validated; a missing signing secret or collaborator connection
// setting is reported as an error so the process can refuse to start.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "auth-gateway"),
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
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			JWTSecret:        strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
			ValidateIssuer:   getEnvAsBool("AUTH_VALIDATE_ISSUER", false),
			ValidIssuer:      os.Getenv("AUTH_VALID_ISSUER"),
			ValidateAudience: getEnvAsBool("AUTH_VALIDATE_AUDIENCE", false),
			ValidAudience:    os.Getenv("AUTH_VALID_AUDIENCE"),
			ClockSkewSeconds: getEnvAsInt("AUTH_CLOCK_SKEW_SECONDS", 0),
			DecryptionKey:    os.Getenv("AUTH_TOKEN_DECRYPTION_KEY"),
		},
		Session: SessionConfig{
			CookieName:      getEnv("SESSION_COOKIE_NAME", "gateway_session"),
			LifetimeMinutes: getEnvAsInt("SESSION_LIFETIME_MINUTES", 60),
			LoginPath:       getEnv("SESSION_LOGIN_PATH", "/account/login"),
			LogoutPath:      getEnv("SESSION_LOGOUT_PATH", "/account/logout"),
			SessionPath:     getEnv("SESSION_PATH", "/account/session"),
			SecureCookies:   getEnvAsBool("SESSION_SECURE_COOKIES", false),
			Store:           strings.ToLower(getEnv("SESSION_STORE", SessionStoreRedis)),
		},
		Audit: AuditConfig{
			QueueSize: getEnvAsInt("AUDIT_QUEUE_SIZE", 256),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem that must prevent startup.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingSigningSecret
	}
	if c.Auth.ValidateIssuer && c.Auth.ValidIssuer == "" {
		return errors.New("AUTH_VALID_ISSUER is required when AUTH_VALIDATE_ISSUER is enabled")
	}
	if c.Auth.ValidateAudience && c.Auth.ValidAudience == "" {
		return errors.New("AUTH_VALID_AUDIENCE is required when AUTH_VALIDATE_AUDIENCE is enabled")
	}
	if c.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("invalid AUTH_CLOCK_SKEW_SECONDS: %d", c.Auth.ClockSkewSeconds)
	}
	if key := c.Auth.DecryptionKey; key != "" {
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("AUTH_TOKEN_DECRYPTION_KEY must be 16, 24 or 32 bytes, got %d", len(key))
		}
	}

	if c.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}

	switch c.Session.Store {
	case SessionStoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required when SESSION_STORE=redis")
		}
	case SessionStoreMemory:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.Session.Store)
	}
	if c.Session.LifetimeMinutes <= 0 {
		return fmt.Errorf("invalid SESSION_LIFETIME_MINUTES: %d", c.Session.LifetimeMinutes)
	}

	paths := map[string]string{
		"SESSION_LOGIN_PATH":  c.Session.LoginPath,
		"SESSION_LOGOUT_PATH": c.Session.LogoutPath,
		"SESSION_PATH":        c.Session.SessionPath,
	}
	seen := make(map[string]string, len(paths))
	for key, path := range paths {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with '/', got %q", key, path)
		}
		if other, dup := seen[path]; dup {
			return fmt.Errorf("%s and %s must differ", other, key)
		}
		seen[path] = key
	}
	if c.Session.CookiePath() == "/" {
		return errors.New("SESSION_LOGIN_PATH, SESSION_LOGOUT_PATH and SESSION_PATH must share a path prefix below '/'")
	}
	return nil
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

// ClockSkew returns the leeway applied to time based claims.
func (a AuthConfig) ClockSkew() time.Duration {
	return time.Duration(a.ClockSkewSeconds) * time.Second
}

// Lifetime returns the absolute session lifetime.
func (s SessionConfig) Lifetime() time.Duration {
	return time.Duration(s.LifetimeMinutes) * time.Minute
}

// CookiePath is the longest segment-aligned prefix shared by the login,
// logout and session paths. The session cookie is scoped to it.
func (s SessionConfig) CookiePath() string {
	var common []string
	for i, path := range []string{s.LoginPath, s.LogoutPath, s.SessionPath} {
		segments := strings.Split(strings.Trim(path, "/"), "/")
		if i == 0 {
			common = segments
			continue
		}
		n := 0
		for n < len(common) && n < len(segments) && common[n] == segments[n] {
			n++
		}
		common = common[:n]
	}
	if len(common) == 0 || common[0] == "" {
		return "/"
	}
	return "/" + strings.Join(common, "/")
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
