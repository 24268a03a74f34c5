// Package config loads mailroom-core's process configuration from the
// environment, following spec §6's flat APP_*/DATABASE_*/ARGON2_* variable
// names. Grounded on tomtom215-cartographus's internal/config/koanf.go
// (koanf.New(".") layered defaults -> env, struct-tag unmarshal, a
// Validate() pass collecting every problem instead of stopping at the
// first), adapted from its nested YAML-file-plus-env layering to a single
// flat env-only layer since spec §6 names no config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config captures every environment-driven tunable spec §6 names.
type Config struct {
	AppEnv  string `koanf:"app_env"`
	Host    string `koanf:"app_host"`
	Port    int    `koanf:"app_port"`
	SecretKey string `koanf:"secret_key"`

	DatabasePath               string        `koanf:"database_path"`
	DatabaseCheckpointInterval time.Duration `koanf:"database_checkpoint_interval"`

	UploadDir         string `koanf:"upload_dir"`
	MaxUploadSize     int64  `koanf:"max_upload_size"`
	AllowedImageTypes string `koanf:"allowed_image_types"`

	SessionTimeout      time.Duration `koanf:"session_timeout"`
	MaxConcurrentSessions int         `koanf:"max_concurrent_sessions"`
	MaxFailedLogins     int           `koanf:"max_failed_logins"`
	AccountLockoutDuration time.Duration `koanf:"account_lockout_duration"`

	PasswordMinLength  int `koanf:"password_min_length"`
	PasswordHistoryCount int `koanf:"password_history_count"`

	Argon2TimeCost    int `koanf:"argon2_time_cost"`
	Argon2MemoryCost  int `koanf:"argon2_memory_cost"`
	Argon2Parallelism int `koanf:"argon2_parallelism"`

	RateLimitLogin int `koanf:"rate_limit_login"`
	RateLimitAPI   int `koanf:"rate_limit_api"`

	LogLevel         string `koanf:"log_level"`
	LogFile          string `koanf:"log_file"`
	LogRotation      string `koanf:"log_rotation"`
	LogRetentionDays int    `koanf:"log_retention_days"`
}

func defaultConfig() *Config {
	return &Config{
		AppEnv: "development",
		Host:   "0.0.0.0",
		Port:   8000,

		DatabasePath:               "mailroom.db",
		DatabaseCheckpointInterval: 300 * time.Second,

		UploadDir:         "uploads",
		MaxUploadSize:     5 * 1024 * 1024,
		AllowedImageTypes: "image/jpeg,image/png,image/webp",

		SessionTimeout:        30 * time.Minute,
		MaxConcurrentSessions: 3,
		MaxFailedLogins:       5,
		AccountLockoutDuration: 30 * time.Minute,

		PasswordMinLength:    12,
		PasswordHistoryCount: 3,

		Argon2TimeCost:    3,
		Argon2MemoryCost:  19456,
		Argon2Parallelism: 1,

		RateLimitLogin: 10,
		RateLimitAPI:   100,

		LogLevel:         "info",
		LogRotation:      "daily",
		LogRetentionDays: 14,
	}
}

// Load builds a Config from defaults overridden by environment variables
// (spec §6's names, upper-cased). There is no config file layer: spec §6
// enumerates environment variables exclusively.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	envProvider := env.Provider("", ".", func(key string) string {
		return strings.ToLower(key)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate collects every configuration problem rather than stopping at the
// first, so an operator fixes a bad .env in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.AppEnv == "production" && len(c.SecretKey) < 32 {
		problems = append(problems, "SECRET_KEY must be at least 32 characters in production")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, "APP_PORT must be between 1 and 65535")
	}
	if c.DatabasePath == "" {
		problems = append(problems, "DATABASE_PATH is required")
	}
	if c.MaxUploadSize <= 0 {
		problems = append(problems, "MAX_UPLOAD_SIZE must be positive")
	}
	if c.SessionTimeout <= 0 {
		problems = append(problems, "SESSION_TIMEOUT must be positive")
	}
	if c.MaxConcurrentSessions <= 0 {
		problems = append(problems, "MAX_CONCURRENT_SESSIONS must be positive")
	}
	if c.MaxFailedLogins <= 0 {
		problems = append(problems, "MAX_FAILED_LOGINS must be positive")
	}
	if c.PasswordMinLength < 8 {
		problems = append(problems, "PASSWORD_MIN_LENGTH must be at least 8")
	}
	if c.Argon2TimeCost <= 0 || c.Argon2MemoryCost <= 0 || c.Argon2Parallelism <= 0 {
		problems = append(problems, "ARGON2_TIME_COST, ARGON2_MEMORY_COST and ARGON2_PARALLELISM must be positive")
	}
	if c.RateLimitLogin <= 0 || c.RateLimitAPI <= 0 {
		problems = append(problems, "RATE_LIMIT_LOGIN and RATE_LIMIT_API must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AllowedImageTypeList splits the comma-separated AllowedImageTypes value.
func (c *Config) AllowedImageTypeList() []string {
	var types []string
	for _, t := range strings.Split(c.AllowedImageTypes, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			types = append(types, t)
		}
	}
	return types
}
