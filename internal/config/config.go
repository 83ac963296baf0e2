// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// DropboxConfig holds storage provider credentials. Either AccessToken alone
// (static, never refreshed) or the AppKey/AppSecret/RefreshToken trio must be
// present.
type DropboxConfig struct {
	AppKey       string
	AppSecret    string
	AccessToken  string
	RefreshToken string
	Root         string
}

// GeneratorConfig holds image generation API settings.
type GeneratorConfig struct {
	APIKey  string
	BaseURL string
}

// WebhookConfig holds inbound webhook trust settings.
type WebhookConfig struct {
	SharedSecret string
}

// ShopifyConfig holds the optional admin API credentials used to register
// the orders webhook at startup. All three values must be set for
// registration to run.
type ShopifyConfig struct {
	ShopDomain  string
	AccessToken string
	// WebhookAddress is the public URL of this service's webhook endpoint.
	WebhookAddress string
}

// Enabled reports whether startup webhook registration is configured.
func (c ShopifyConfig) Enabled() bool {
	return c.ShopDomain != "" && c.AccessToken != "" && c.WebhookAddress != ""
}

// AdminConfig holds admin endpoint protection settings. An empty JWTSecret
// leaves the admin routes unauthenticated.
type AdminConfig struct {
	JWTSecret string
	// AuditPath, when set, persists admin actions as JSONL.
	AuditPath string
}

// RateLimitConfig bounds request rates on the generation endpoints.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string
	Format string
}

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Dropbox   DropboxConfig
	Generator GeneratorConfig
	Webhook   WebhookConfig
	Shopify   ShopifyConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// Load reads configuration from the environment and validates that every
// required secret is present. Missing required values are fatal at startup,
// so the error lists all of them at once.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getenv("HOST", ""),
			Port:        getenvInt("PORT", 5050),
			CORSOrigins: getenvList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 300),
		},
		Dropbox: DropboxConfig{
			AppKey:       os.Getenv("DROPBOX_APP_KEY"),
			AppSecret:    os.Getenv("DROPBOX_APP_SECRET"),
			AccessToken:  os.Getenv("DROPBOX_ACCESS_TOKEN"),
			RefreshToken: os.Getenv("DROPBOX_REFRESH_TOKEN"),
			Root:         getenv("DROPBOX_ROOT", "/GG-Generator"),
		},
		Generator: GeneratorConfig{
			APIKey:  os.Getenv("MINIMAX_API_KEY"),
			BaseURL: getenv("MINIMAX_BASE_URL", "https://api.minimax.io"),
		},
		Webhook: WebhookConfig{
			SharedSecret: os.Getenv("SHOPIFY_WEBHOOK_SECRET"),
		},
		Shopify: ShopifyConfig{
			ShopDomain:     os.Getenv("SHOPIFY_SHOP_DOMAIN"),
			AccessToken:    os.Getenv("SHOPIFY_ACCESS_TOKEN"),
			WebhookAddress: os.Getenv("SHOPIFY_WEBHOOK_ADDRESS"),
		},
		Admin: AdminConfig{
			JWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
			AuditPath: os.Getenv("ADMIN_AUDIT_PATH"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getenvInt("RATE_LIMIT_RPS", 5),
			Burst:             getenvInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
	}

	var missing []string
	if cfg.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.Generator.APIKey == "" {
		missing = append(missing, "MINIMAX_API_KEY")
	}
	if cfg.Webhook.SharedSecret == "" {
		missing = append(missing, "SHOPIFY_WEBHOOK_SECRET")
	}
	if cfg.Dropbox.AccessToken == "" && cfg.Dropbox.RefreshToken == "" {
		missing = append(missing, "DROPBOX_ACCESS_TOKEN or DROPBOX_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if cfg.Dropbox.RefreshToken != "" && (cfg.Dropbox.AppKey == "" || cfg.Dropbox.AppSecret == "") {
		return nil, fmt.Errorf("DROPBOX_REFRESH_TOKEN requires DROPBOX_APP_KEY and DROPBOX_APP_SECRET")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
