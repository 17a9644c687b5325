package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide settings read once at startup. All durations are
// parsed at this boundary; the rest of the codebase works with time.Duration.
type Config struct {
	Addr string

	PGDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret string
	Issuer     string

	// AdminRole bypasses permission resolution at the authorization check.
	AdminRole string

	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	ResetTTL           time.Duration
	VerificationTTL    time.Duration
	PermissionCacheTTL time.Duration
	StoreTimeout       time.Duration

	RateBurst  int
	RatePerSec int
}

const envPrefix = "SCHOOLHUB_"

var errMissingSecret = errors.New("config: auth secret is not configured")

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Addr:          getEnv("ADDR", ":8080"),
		PGDSN:         getEnv("PG_DSN", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		AuthSecret:    getEnv("AUTH_SECRET", ""),
		Issuer:        getEnv("ISSUER", "schoolhub"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),
	}
	if cfg.AuthSecret == "" {
		return Config{}, errMissingSecret
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.AccessTTL, err = getEnvTTL("ACCESS_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = getEnvTTL("REFRESH_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ResetTTL, err = getEnvTTL("RESET_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.VerificationTTL, err = getEnvTTL("VERIFICATION_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.PermissionCacheTTL, err = getEnvTTL("PERMISSION_CACHE_TTL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = getEnvTTL("STORE_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = getEnvInt("RATE_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSec, err = getEnvInt("RATE_PER_SEC", 10); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseTTL parses a human-readable lifetime such as "7d", "12h", "15m" or
// "30s". Values without a day suffix fall through to Go duration syntax, so
// compound forms like "1h30m" also work.
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, errors.New("config: empty ttl")
	}
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil {
			return 0, fmt.Errorf("config: invalid ttl %q", raw)
		}
		if days <= 0 {
			return 0, fmt.Errorf("config: ttl %q must be positive", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid ttl %q", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: ttl %q must be positive", raw)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s%s: %q", envPrefix, key, raw)
	}
	return v, nil
}

func getEnvTTL(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback, nil
	}
	d, err := ParseTTL(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s%s: %w", envPrefix, key, err)
	}
	return d, nil
}
