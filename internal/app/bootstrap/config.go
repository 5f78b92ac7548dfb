package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int

	DatabaseURL string
	// RedisURL is optional; an empty value selects the in-process rate
	// counter store.
	RedisURL string

	MaxDBConns int32
	BcryptCost int

	SessionTTL    time.Duration
	ExportMaxRows int

	BootstrapUsername string
	BootstrapPassword string

	TautulliTimeout time.Duration
	SecureCookies   bool
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Auth struct {
		SessionTTLHours   int    `yaml:"session_ttl_hours"`
		BcryptCost        int    `yaml:"bcrypt_cost"`
		BootstrapUsername string `yaml:"bootstrap_username"`
	} `yaml:"auth"`
	Export struct {
		MaxRows int `yaml:"max_rows"`
	} `yaml:"export"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:         "tautulli-exporter",
		HTTPPort:          8080,
		MaxDBConns:        20,
		BcryptCost:        12,
		SessionTTL:        8 * time.Hour,
		ExportMaxRows:     10000,
		BootstrapUsername: "admin",
		BootstrapPassword: "admin",
		TautulliTimeout:   30 * time.Second,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Auth.SessionTTLHours > 0 {
			cfg.SessionTTL = time.Duration(f.Auth.SessionTTLHours) * time.Hour
		}
		if f.Auth.BcryptCost > 0 {
			cfg.BcryptCost = f.Auth.BcryptCost
		}
		if f.Auth.BootstrapUsername != "" {
			cfg.BootstrapUsername = f.Auth.BootstrapUsername
		}
		if f.Export.MaxRows > 0 {
			cfg.ExportMaxRows = f.Export.MaxRows
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.ExportMaxRows = envInt("EXPORT_MAX_ROWS", cfg.ExportMaxRows)
	cfg.BootstrapUsername = envOrDefault("BOOTSTRAP_USERNAME", cfg.BootstrapUsername)
	cfg.BootstrapPassword = envOrDefault("BOOTSTRAP_PASSWORD", cfg.BootstrapPassword)
	cfg.SecureCookies = envBool("SECURE_COOKIES", cfg.SecureCookies)

	cfg.SessionTTL = time.Duration(envInt("SESSION_TTL_HOURS", int(cfg.SessionTTL.Hours()))) * time.Hour
	cfg.TautulliTimeout = time.Duration(envInt("TAUTULLI_TIMEOUT_SECONDS", int(cfg.TautulliTimeout.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
