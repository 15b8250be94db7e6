package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/passport/pkg/httpx"
)

type Config struct {
	Issuer   string   // Optional: issuer claim for session tokens (default: passport-dev)
	Audience []string // Optional: audience claim, comma separated in IDENTITY_AUDIENCE
	KeyID    string   // Optional: kid header of the generated signing key (default: passport-dev-key)
	SeedFile string   // Optional: YAML seed with users and applications
	Pepper   string   // Optional: password hashing pepper

	SessionTTL        time.Duration // Optional: session token lifetime (default: 5m)
	RefreshTTL        time.Duration // Optional: refresh token lifetime (default: 30 days)
	SignInTTL         time.Duration // Optional: pending sign-in lifetime (default: 15m)
	MagicCodeTTL      time.Duration // Optional: magic code lifetime (default: 5m)
	MagicCodeCooldown time.Duration // Optional: resend cooldown (default: 30s)

	ExposeOutbox        bool          // Optional: serve GET /dev/outbox (default: true when ENV is dev or test)
	Env                 string        // Environment (dev, test, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	RateLimits httpx.RateLimits // Per-route tiers, overridden by RATELIMIT_<TIER>_* (default: httpx.DefaultRateLimits)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:              getEnvOrDefault("IDENTITY_ISSUER", "passport-dev"),
		KeyID:               getEnvOrDefault("IDENTITY_KEY_ID", "passport-dev-key"),
		SeedFile:            os.Getenv("IDENTITY_SEED_FILE"),
		Pepper:              os.Getenv("IDENTITY_PEPPER"),
		SessionTTL:          getEnvDurationOrDefault("IDENTITY_SESSION_TTL", 0),
		RefreshTTL:          getEnvDurationOrDefault("IDENTITY_REFRESH_TTL", 0),
		SignInTTL:           getEnvDurationOrDefault("IDENTITY_SIGN_IN_TTL", 0),
		MagicCodeTTL:        getEnvDurationOrDefault("IDENTITY_MAGIC_CODE_TTL", 0),
		MagicCodeCooldown:   getEnvDurationOrDefault("IDENTITY_MAGIC_CODE_COOLDOWN", 0),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		RateLimits:          httpx.DefaultRateLimits().FromEnv(os.Getenv),
	}

	if aud := os.Getenv("IDENTITY_AUDIENCE"); aud != "" {
		for _, a := range strings.Split(aud, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Audience = append(cfg.Audience, a)
			}
		}
	}

	cfg.ExposeOutbox = getEnvBoolOrDefault("IDENTITY_EXPOSE_OUTBOX", cfg.Env == "dev" || cfg.Env == "test")
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
