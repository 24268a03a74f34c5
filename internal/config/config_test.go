package config

import (
	"os"
	"testing"
)

func clearMailroomEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "APP_HOST", "APP_PORT", "SECRET_KEY", "DATABASE_PATH",
		"DATABASE_CHECKPOINT_INTERVAL", "UPLOAD_DIR", "MAX_UPLOAD_SIZE",
		"ALLOWED_IMAGE_TYPES", "SESSION_TIMEOUT", "MAX_CONCURRENT_SESSIONS",
		"MAX_FAILED_LOGINS", "ACCOUNT_LOCKOUT_DURATION", "PASSWORD_MIN_LENGTH",
		"PASSWORD_HISTORY_COUNT", "ARGON2_TIME_COST", "ARGON2_MEMORY_COST",
		"ARGON2_PARALLELISM", "RATE_LIMIT_LOGIN", "RATE_LIMIT_API",
		"LOG_LEVEL", "LOG_FILE", "LOG_ROTATION", "LOG_RETENTION_DAYS",
	} {
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoad_AppliesDefaultsWhenVariablesAreMissing(t *testing.T) {
	clearMailroomEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "mailroom.db" {
		t.Fatalf("unexpected default database path: %q", cfg.DatabasePath)
	}
	if cfg.Argon2MemoryCost != 19456 || cfg.Argon2TimeCost != 3 || cfg.Argon2Parallelism != 1 {
		t.Fatalf("unexpected default argon2 params: %+v", cfg)
	}
	if cfg.MaxConcurrentSessions != 3 {
		t.Fatalf("expected default max concurrent sessions 3, got %d", cfg.MaxConcurrentSessions)
	}
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	clearMailroomEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/mailroom.db")
	t.Setenv("PASSWORD_MIN_LENGTH", "16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected overridden port 9090, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "/tmp/mailroom.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.PasswordMinLength != 16 {
		t.Fatalf("expected overridden password min length 16, got %d", cfg.PasswordMinLength)
	}
}

func TestLoad_RequiresLongSecretKeyInProduction(t *testing.T) {
	clearMailroomEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "too-short")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for short secret key in production")
	}
}

func TestConfig_AllowedImageTypeList(t *testing.T) {
	cfg := &Config{AllowedImageTypes: "image/jpeg, image/png,image/webp"}
	got := cfg.AllowedImageTypeList()
	want := []string{"image/jpeg", "image/png", "image/webp"}
	if len(got) != len(want) {
		t.Fatalf("expected %d types, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %q at index %d, got %q", want[i], i, got[i])
		}
	}
}
