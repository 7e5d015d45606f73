package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/studyhub/internal/auth/http"
	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/internal/auth/store/drivers/sqldb"
	"github.com/aussiebroadwan/studyhub/pkg/cryptox"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the user service and all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     *sqldb.Store
	redis  *redis.Client // nil unless REDIS_URL is set
	tokens *jwtx.HS256

	services            *service.Services
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "user-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			File:    cfg.LogFile,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	tokens, err := jwtx.NewHS256([]byte(cfg.JWTSecret), cfg.Issuer, time.Now)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}
	app.tokens = tokens

	if err := app.initRedis(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("user service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down user service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("user service stopped")
	return nil
}

// initDatabase opens the configured store and applies migrations.
func (app *Application) initDatabase() error {
	db, err := sqldb.Open(app.cfg.DatabaseDriver, app.cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initRedis connects the shared rate limiter backend when REDIS_URL is set.
func (app *Application) initRedis() error {
	if app.cfg.RedisURL == "" {
		app.logger.Info("rate limiting uses in-memory buckets")
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	app.redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.redis.Ping(ctx).Err(); err != nil {
		// The limiter fails open, so an unreachable Redis only degrades /readyz.
		app.logger.Warn("redis unreachable at startup", "error", err)
	}

	app.logger.Info("rate limiting uses redis")
	return nil
}

func (app *Application) notifier() service.Notifier {
	if app.cfg.SMTPHost == "" {
		app.logger.Warn("SMTP_HOST not set, security emails are logged only")
		return service.LogNotifier{}
	}
	return &service.SMTPNotifier{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		From:     app.cfg.SMTPFrom,
	}
}

func (app *Application) providers() map[domain.Provider]service.ProviderVerifier {
	providers := map[domain.Provider]service.ProviderVerifier{}
	if app.cfg.GoogleClientID != "" {
		providers[domain.ProviderGoogle] = &service.GoogleVerifier{ClientID: app.cfg.GoogleClientID}
	}
	if app.cfg.FacebookAppID != "" {
		providers[domain.ProviderFacebook] = &service.FacebookVerifier{}
	}
	return providers
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.services = service.New(service.Options{
		Store:       app.db,
		Tokens:      app.tokens,
		Notifier:    app.notifier(),
		Providers:   app.providers(),
		FrontendURL: app.cfg.FrontendURL,
		TOTPIssuer:  app.cfg.TOTPIssuer,
		AccessTTL:   app.cfg.AccessTokenTTL,
		RefreshTTL:  app.cfg.RefreshTokenTTL,
	})

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AttemptRetention,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.services, app.tokens, BuildVersion, app.db, app.logger)

	router.Limits = httpx.RateLimitsFromEnv()
	// Validate has already rejected a malformed list.
	router.TrustedProxies, _ = httpx.ParseTrustedProxies(app.cfg.TrustedProxies)
	if app.redis != nil {
		client := app.redis
		router.Limiters = httpx.RedisLimiterFactory(client)
		router.RedisPing = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
