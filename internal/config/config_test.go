package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("GRADEHALL_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("GRADEHALL_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("GRADEHALL_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.LunchStart != "11:40" || cfg.LunchEnd != "12:20" {
		t.Fatalf("unexpected lunch window: %s..%s", cfg.LunchStart, cfg.LunchEnd)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("GRADEHALL_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("GRADEHALL_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("JWT_SIGNING_KEY", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadRejectsMalformedLunchWindow(t *testing.T) {
	t.Setenv("GRADEHALL_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("GRADEHALL_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("GRADEHALL_LUNCH_START", "1140")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail for malformed lunch start")
	}
}

func TestLoadProductionRejectsDefaultSecrets(t *testing.T) {
	t.Setenv("GRADEHALL_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("GRADEHALL_ENV", "production")
	t.Setenv("GRADEHALL_JWT_SIGNING_KEY", "changeme")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail with default signing key")
	}

	t.Setenv("GRADEHALL_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("GRADEHALL_ADMIN_PASSWORD", "admin123")
	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail with default admin password")
	}

	t.Setenv("GRADEHALL_ADMIN_PASSWORD", "s3cure-pass")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load to succeed: %v", err)
	}
}
