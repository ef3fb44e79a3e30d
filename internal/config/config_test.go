package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "")
	t.Setenv("EXPIRY_ALERT_DAYS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("Address = %q, want :8080", cfg.Address())
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
	if cfg.StockCacheTTLSeconds != 30 {
		t.Fatalf("StockCacheTTLSeconds = %d, want 30", cfg.StockCacheTTLSeconds)
	}
	if cfg.ExpiryAlertDays != 30 {
		t.Fatalf("ExpiryAlertDays = %d, want 30", cfg.ExpiryAlertDays)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "120")
	t.Setenv("EXPIRY_ALERT_DAYS", "14")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("Port = %q, want 9000", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[0] != "https://a.example" || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.StockCacheTTLSeconds != 120 {
		t.Fatalf("StockCacheTTLSeconds = %d, want 120", cfg.StockCacheTTLSeconds)
	}
	if cfg.ExpiryAlertDays != 14 {
		t.Fatalf("ExpiryAlertDays = %d, want 14", cfg.ExpiryAlertDays)
	}
}

func TestLoadIgnoresBadNumbers(t *testing.T) {
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "nope")
	t.Setenv("EXPIRY_ALERT_DAYS", "-3")

	cfg := Load()
	if cfg.StockCacheTTLSeconds != 30 {
		t.Fatalf("StockCacheTTLSeconds = %d, want fallback 30", cfg.StockCacheTTLSeconds)
	}
	if cfg.ExpiryAlertDays != 30 {
		t.Fatalf("ExpiryAlertDays = %d, want fallback 30", cfg.ExpiryAlertDays)
	}
}
