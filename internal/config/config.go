package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/AnshRaj112/bugtracker-backend/pkg/utils"
)

const (
	DefaultJWTSecret   = "your-secret-key-change-in-production"
	minProdSecretBytes = 32
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// StoreDriver selects the user/settings backend: "mongo" or "memory".
	StoreDriver    string   `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI       string   `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/bugtracker"`
	MongoDatabase  string   `env:"MONGODB_DATABASE"`
	RedisURI       string   `env:"REDIS_URI"`
	PostgresURI    string   `env:"POSTGRES_URI"`
	Host           string   `env:"HOST" envDefault:"http://localhost:8080"`
	AllowedHostEnv string   `env:"ALLOWED_HOST"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	FrontendURL    string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	JWTSecret        string         `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	JWTRefreshSecret string         `env:"JWT_REFRESH_SECRET"`
	JWTExpire        utils.Duration `env:"JWT_EXPIRE" envDefault:"7d"`
	JWTRefreshExpire utils.Duration `env:"JWT_REFRESH_EXPIRE" envDefault:"30d"`
	BcryptRounds     int            `env:"BCRYPT_ROUNDS" envDefault:"12"`

	// First admin, created at startup when no active admin exists.
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@bugtracker.com"`
	AdminName     string `env:"ADMIN_NAME" envDefault:"System Admin"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	LoginMaxAttempts  int            `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockDuration utils.Duration `env:"LOGIN_LOCK_DURATION" envDefault:"2h"`

	AuditRetention       utils.Duration `env:"AUDIT_RETENTION" envDefault:"90d"`
	AuditCleanupSchedule string         `env:"AUDIT_CLEANUP_SCHEDULE" envDefault:"@every 1h"`
	SettingsCacheTTL     utils.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"10m"`

	// Redis fixed-window limit, per client IP, applied when REDIS_URI is set.
	RateLimitMax    int            `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow utils.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"2m"`
}

// Load reads the environment into a Config and fills derived fields.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins, cfg.FrontendURL)
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = databaseFromURI(cfg.MongoURI, "bugtracker")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would leave the service insecure or unusable.
func (c *Config) Validate() error {
	if c.StoreDriver != "mongo" && c.StoreDriver != "memory" {
		return fmt.Errorf("STORE_DRIVER must be mongo or memory, got %q", c.StoreDriver)
	}
	if c.JWTExpire.Std() <= 0 || c.JWTRefreshExpire.Std() <= 0 {
		return errors.New("JWT_EXPIRE and JWT_REFRESH_EXPIRE must be positive")
	}
	if c.LoginMaxAttempts < 1 {
		return errors.New("LOGIN_MAX_ATTEMPTS must be at least 1")
	}
	if c.LoginLockDuration.Std() <= 0 {
		return errors.New("LOGIN_LOCK_DURATION must be positive")
	}
	if c.AdminPassword != "" && (len(c.AdminPassword) < 8 || len(c.AdminPassword) > 72) {
		return errors.New("ADMIN_PASSWORD must be between 8 and 72 bytes")
	}
	if c.IsProduction() {
		if c.JWTSecret == DefaultJWTSecret || len(c.JWTSecret) < minProdSecretBytes {
			return fmt.Errorf("JWT_SECRET must be set to at least %d characters in production", minProdSecretBytes)
		}
		if c.JWTRefreshSecret != "" && len(c.JWTRefreshSecret) < minProdSecretBytes {
			return fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters in production", minProdSecretBytes)
		}
	}
	return nil
}

// RefreshSecret returns the refresh signing secret. The second result is true
// when JWT_REFRESH_SECRET is unset and the legacy derived secret is used.
func (c *Config) RefreshSecret() (string, bool) {
	if c.JWTRefreshSecret != "" {
		return c.JWTRefreshSecret, false
	}
	return c.JWTSecret + "_refresh", true
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedHost is the hostname enforced by the host check. It is empty outside
// production, which disables the check.
func (c *Config) AllowedHost() string {
	if !c.IsProduction() {
		return ""
	}
	if c.AllowedHostEnv != "" {
		return hostname(c.AllowedHostEnv)
	}
	return hostname(c.Host)
}

func (c *Config) AccessTTL() time.Duration  { return c.JWTExpire.Std() }
func (c *Config) RefreshTTL() time.Duration { return c.JWTRefreshExpire.Std() }

func hostname(raw string) string {
	h := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://"} {
		h = strings.TrimPrefix(h, prefix)
	}
	if idx := strings.Index(h, "/"); idx != -1 {
		h = h[:idx]
	}
	if idx := strings.Index(h, ":"); idx != -1 {
		h = h[:idx]
	}
	return strings.TrimSpace(h)
}

func normalizeOrigins(origins []string, frontendURL string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" && !containsOrigin(out, o) {
			out = append(out, o)
		}
	}
	if len(out) == 0 && strings.TrimSpace(frontendURL) != "" {
		out = append(out, strings.TrimSpace(frontendURL))
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

// databaseFromURI extracts the path component of a mongodb:// URI.
func databaseFromURI(uri, fallback string) string {
	rest := uri
	if idx := strings.Index(rest, "://"); idx != -1 {
		rest = rest[idx+3:]
	}
	idx := strings.Index(rest, "/")
	if idx == -1 {
		return fallback
	}
	name := strings.Split(rest[idx+1:], "?")[0]
	if name == "" {
		return fallback
	}
	return name
}
