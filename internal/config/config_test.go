package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.PrimaryIntervalMS != 8000 {
		t.Fatalf("expected default primary interval")
	}
	if cfg.StaleThresholdMS != 60000 {
		t.Fatalf("expected default stale threshold")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BACKEND_URL", "https://tracker.example.com")
	t.Setenv("PRIMARY_INTERVAL_MS", "5000")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.BackendURL != "https://tracker.example.com" {
		t.Fatalf("expected override backend url")
	}
	if cfg.PrimaryIntervalMS != 5000 {
		t.Fatalf("expected override primary interval")
	}
}
