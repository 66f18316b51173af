// Package config reads service settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
)

type Config struct {
	Auth      auth.Config
	JWTSecret string
	APIKeys   []auth.APIKey

	SlackWebhookURL string
	HTTPAddr        string
	// MemoryStore keeps users and credentials in process instead of Postgres.
	MemoryStore bool
	// RedisAddr selects the device token store; empty keeps device tokens in process.
	RedisAddr string
}

// Load reads .env (best-effort) and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Auth:            auth.DefaultConfig(),
		JWTSecret:       getenv("AUTH_JWT_SECRET"),
		SlackWebhookURL: getenv("SLACK_WEBHOOK_URL"),
		HTTPAddr:        getenv("HTTP_ADDR"),
		MemoryStore:     getenv("AUTH_STORE") == "memory",
		RedisAddr:       getenv("REDIS_ADDR"),
	}
	if cfg.JWTSecret == "" {
		return Config{}, oops.Code("CONFIG_INVALID").Errorf("AUTH_JWT_SECRET is required")
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "0.0.0.0:8431"
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"AUTH_ACCESS_TOKEN_TTL", &cfg.Auth.AccessTokenTTL},
		{"AUTH_REFRESH_TOKEN_TTL", &cfg.Auth.RefreshTokenTTL},
		{"AUTH_RESET_TOKEN_TTL", &cfg.Auth.PasswordResetTokenTTL},
		{"AUTH_VERIFICATION_TOKEN_TTL", &cfg.Auth.VerificationTokenTTL},
		{"AUTH_CODE_TTL", &cfg.Auth.CodeTTL},
		{"AUTH_DEVICE_TOKEN_MAX_AGE", &cfg.Auth.DeviceTokenMaxAge},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("key", d.key).Wrap(err)
		}
		*d.dst = parsed
	}

	if v := getenv("AUTH_CODE_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("key", "AUTH_CODE_LENGTH").Wrap(err)
		}
		cfg.Auth.CodeLength = n
	}
	if v := getenv("AUTH_EMAIL_VERIFICATION_TEMPLATE"); v != "" {
		cfg.Auth.EmailVerificationTemplate = v
	}
	if v := getenv("AUTH_PASSWORD_RESET_TEMPLATE"); v != "" {
		cfg.Auth.PasswordResetTemplate = v
	}

	keys, err := ParseAPIKeys(getenv("AUTH_API_KEYS"))
	if err != nil {
		return Config{}, err
	}
	cfg.APIKeys = keys
	return cfg, nil
}

// ParseAPIKeys parses "app:key:user_id" entries separated by commas.
func ParseAPIKeys(s string) ([]auth.APIKey, error) {
	var keys []auth.APIKey
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, oops.Code("CONFIG_INVALID").With("key", "AUTH_API_KEYS").Errorf("api key entry must be app:key:user_id")
		}
		keys = append(keys, auth.APIKey{AppID: parts[0], Key: parts[1], UserID: parts[2]})
	}
	return keys, nil
}
