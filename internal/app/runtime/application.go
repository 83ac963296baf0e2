// Package runtime wires configuration, external clients, and the HTTP
// server into a runnable process.
package runtime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mockupforge/mockupforge/internal/app"
	"github.com/mockupforge/mockupforge/internal/app/httpapi"
	"github.com/mockupforge/mockupforge/internal/app/metrics"
	"github.com/mockupforge/mockupforge/internal/app/storage/postgres"
	"github.com/mockupforge/mockupforge/internal/config"
	"github.com/mockupforge/mockupforge/internal/dropbox"
	"github.com/mockupforge/mockupforge/internal/generator"
	"github.com/mockupforge/mockupforge/internal/middleware"
	"github.com/mockupforge/mockupforge/internal/mirror"
	"github.com/mockupforge/mockupforge/internal/shopify"
	"github.com/mockupforge/mockupforge/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server
	db         *sqlx.DB
	app        *app.Application
}

// NewApplication constructs a new application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: "mockupforge",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	store := postgres.New(db)

	broker := dropbox.NewTokenBroker(dropbox.TokenBrokerConfig{
		AppKey:       cfg.Dropbox.AppKey,
		AppSecret:    cfg.Dropbox.AppSecret,
		AccessToken:  cfg.Dropbox.AccessToken,
		RefreshToken: cfg.Dropbox.RefreshToken,
		OnRefresh:    metrics.RecordTokenRefresh,
	}, nil, log.WithField("component", "dropbox-token"))
	storageClient := dropbox.New(dropbox.Config{Root: cfg.Dropbox.Root}, broker, nil, log.WithField("component", "dropbox"))

	assetMirror := mirror.New(storageClient, nil, log.WithField("component", "mirror"))
	imageGen := generator.New(generator.Config{
		APIKey:  cfg.Generator.APIKey,
		BaseURL: cfg.Generator.BaseURL,
	}, nil, log.WithField("component", "generator"))

	application := app.New(
		app.Stores{Assets: store, Subscriptions: store},
		app.Backends{
			Generator: imageGen,
			Mirrorer:  assetMirror,
			Deleter:   storageClient,
			Subfolder: "generated",
		},
		log,
	)

	adminAuth := middleware.NewAdminAuth(cfg.Admin.JWTSecret, log.WithField("component", "auth"))
	limiter := middleware.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst, log.WithField("component", "ratelimit"))
	limiter.StartCleanup(10 * time.Minute)
	apiHandler := httpapi.NewHandler(httpapi.Services{
		Generation:    application.Generation,
		Assets:        application.Assets,
		Subscriptions: application.Subscriptions,
		Storer:        assetMirror,
		Linker:        storageClient,
	}, httpapi.Options{
		WebhookSecret:   cfg.Webhook.SharedSecret,
		AdminMiddleware: adminAuth.Handler,
		RateLimit:       limiter.Handler,
		AuditPath:       cfg.Admin.AuditPath,
	}, log.WithField("component", "httpapi"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", apiHandler)

	cors := middleware.NewCORSMiddleware(cfg.Server.CORSOrigins)
	requestLog := middleware.NewRequestLogger(log.WithField("component", "http"))

	var handler http.Handler = mux
	handler = cors.Handler(handler)
	handler = metrics.InstrumentHandler(handler)
	handler = requestLog.Handler(handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		httpServer: srv,
		db:         db,
		app:        application,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. Webhook registration with the commerce platform runs in
// the background so a slow admin API cannot delay startup.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Shopify.Enabled() {
		go a.registerWebhook(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server and closes the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func (a *Application) registerWebhook(ctx context.Context) {
	client := shopify.New(shopify.Config{
		ShopDomain:  a.cfg.Shopify.ShopDomain,
		AccessToken: a.cfg.Shopify.AccessToken,
	}, nil, a.log.WithField("component", "shopify"))

	regCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.RegisterOrderWebhook(regCtx, a.cfg.Shopify.WebhookAddress); err != nil {
		a.log.WithError(err).Warn("orders webhook registration failed")
	}
}
