package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MINIMAX_API_KEY", "mm-key")
	t.Setenv("SHOPIFY_WEBHOOK_SECRET", "whsec")
	t.Setenv("DROPBOX_ACCESS_TOKEN", "token")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5050 {
		t.Errorf("default port = %d, want 5050", cfg.Server.Port)
	}
	if cfg.Dropbox.Root != "/GG-Generator" {
		t.Errorf("default root = %q", cfg.Dropbox.Root)
	}
	if cfg.Generator.BaseURL != "https://api.minimax.io" {
		t.Errorf("default generator base url = %q", cfg.Generator.BaseURL)
	}
	if cfg.RateLimit.RequestsPerSecond != 5 || cfg.RateLimit.Burst != 10 {
		t.Errorf("default rate limit = %d/%d", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("default cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadReportsAllMissing(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MINIMAX_API_KEY", "")
	t.Setenv("SHOPIFY_WEBHOOK_SECRET", "")
	t.Setenv("DROPBOX_ACCESS_TOKEN", "")
	t.Setenv("DROPBOX_REFRESH_TOKEN", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing configuration")
	}
	for _, want := range []string{"DATABASE_URL", "MINIMAX_API_KEY", "SHOPIFY_WEBHOOK_SECRET", "DROPBOX_ACCESS_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadRefreshTokenRequiresAppCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DROPBOX_ACCESS_TOKEN", "")
	t.Setenv("DROPBOX_REFRESH_TOKEN", "refresh")
	t.Setenv("DROPBOX_APP_KEY", "")
	t.Setenv("DROPBOX_APP_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when refresh token lacks app credentials")
	}

	t.Setenv("DROPBOX_APP_KEY", "key")
	t.Setenv("DROPBOX_APP_SECRET", "secret")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with app credentials: %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestShopifyEnabled(t *testing.T) {
	cfg := ShopifyConfig{}
	if cfg.Enabled() {
		t.Error("empty config should be disabled")
	}
	cfg = ShopifyConfig{ShopDomain: "x.myshopify.com", AccessToken: "tok", WebhookAddress: "https://api.example/webhooks/orders-create"}
	if !cfg.Enabled() {
		t.Error("full config should be enabled")
	}
}
