// Package config loads runtime configuration from environment variables.
// A .env file in the working directory is honored if present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the market watch pipeline.
type Config struct {
	DatabasePath string

	// ESI application credentials used to refresh user access tokens.
	ClientID     string
	ClientSecret string

	// Outbound mail account. Mails are sent in-game from this character.
	MailCharacterID  int32
	MailRefreshToken string
	MailClientID     string
	MailClientSecret string

	// Scheduler intervals (cron specs understood by robfig/cron).
	ParseSpec     string
	MailSpec      string
	ReconcileSpec string
}

// Load reads the environment (and .env, if any) and returns a validated Config.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	clientID := os.Getenv("ESI_CLIENT_ID")
	if clientID == "" {
		return nil, fmt.Errorf("ESI_CLIENT_ID is required")
	}
	clientSecret := os.Getenv("ESI_CLIENT_SECRET")
	if clientSecret == "" {
		return nil, fmt.Errorf("ESI_CLIENT_SECRET is required")
	}

	mailCharacterID := int32(0)
	if s := os.Getenv("MAIL_CHARACTER_ID"); s != "" {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("MAIL_CHARACTER_ID must be a positive integer, got %q", s)
		}
		mailCharacterID = int32(v)
	}

	cfg := &Config{
		DatabasePath:     envOrDefault("DB_PATH", "marketwatch.db"),
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		MailCharacterID:  mailCharacterID,
		MailRefreshToken: os.Getenv("MAIL_REFRESH_TOKEN"),
		MailClientID:     envOrDefault("MAIL_CLIENT_ID", clientID),
		MailClientSecret: envOrDefault("MAIL_CLIENT_SECRET", clientSecret),
		ParseSpec:        envOrDefault("PARSE_SPEC", "@every 5m"),
		MailSpec:         envOrDefault("MAIL_SPEC", "@every 1m"),
		ReconcileSpec:    envOrDefault("RECONCILE_SPEC", "@every 6h"),
	}
	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
