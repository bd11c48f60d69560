package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal/analytics"
	"github.com/marcus7i/ulinks/internal/auth"
	"github.com/marcus7i/ulinks/internal/db"
	"github.com/marcus7i/ulinks/internal/geo"
	"github.com/marcus7i/ulinks/internal/handler"
	"github.com/marcus7i/ulinks/internal/logger"
	"github.com/marcus7i/ulinks/internal/metrics"
	"github.com/marcus7i/ulinks/internal/repo"
	"github.com/marcus7i/ulinks/internal/stats"
	"github.com/marcus7i/ulinks/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type Config struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"ulinks.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Debug    bool   `env:"DEBUG"`

	JWTSecret           string        `env:"JWT_SECRET"`
	TokenTTL            time.Duration `env:"TOKEN_TTL" envDefault:"5m"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"0s"`
	SecureCookies       bool          `env:"SECURE_COOKIES"`
	AdminAccountID      string        `env:"ADMIN_ACCOUNT_ID"`

	GeoLookupURL     string        `env:"GEO_LOOKUP_URL" envDefault:"https://ipwho.is"`
	GeoLookupTimeout time.Duration `env:"GEO_LOOKUP_TIMEOUT" envDefault:"3s"`
	GeoCacheTTL      time.Duration `env:"GEO_CACHE_TTL" envDefault:"168h"`
	GeoRateLimit     float64       `env:"GEO_RATE_LIMIT" envDefault:"1"`
	GeoRateBurst     int           `env:"GEO_RATE_BURST" envDefault:"5"`
	RedisURL         string        `env:"REDIS_URL"`

	AnalyticsWriteTimeout time.Duration `env:"ANALYTICS_WRITE_TIMEOUT" envDefault:"10s"`

	StatsTTL            time.Duration `env:"STATS_TTL" envDefault:"5m"`
	StatsMergePlatforms bool          `env:"STATS_MERGE_PLATFORMS"`
}

// applyDefaults fills in settings that need the logger to be configured first.
func (cfg *Config) applyDefaults() error {
	if cfg.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(secret)
		log.Warn().Msg("using a random JWT_SECRET - sessions will not survive a restart, set JWT_SECRET for production")
	}
	return nil
}

func main() {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration from environment")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to parse log level")
	}

	if err := cfg.applyDefaults(); err != nil {
		log.Fatal().Err(err).Msg("failed to apply configuration defaults")
	}

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	dbInstance, err := db.Init(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbInstance.Close()

	accountsRepo := repo.NewAccountsRepo(dbInstance)
	sessionsRepo := repo.NewSessionsRepo(dbInstance)
	linksRepo := repo.NewLinksRepo(dbInstance)
	analyticsRepo := repo.NewAnalyticsRepo(dbInstance)
	statisticsRepo := repo.NewStatisticsRepo(dbInstance)

	if cfg.AdminAccountID != "" {
		if _, err := accountsRepo.Ensure(ctx, cfg.AdminAccountID, true); err != nil {
			return fmt.Errorf("failed to bootstrap admin account: %w", err)
		}
		log.Info().Str("account_id", cfg.AdminAccountID).Msg("admin account ready")
	}

	var geoCache geo.Cache = repo.NewIPLookupsRepo(dbInstance)
	if cfg.RedisURL != "" {
		redisCache, err := geo.NewRedisCache(ctx, geo.RedisConfig{URL: cfg.RedisURL, TTL: cfg.GeoCacheTTL})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()
		geoCache = redisCache
		log.Info().Msg("using redis for ip lookup cache")
	}

	enricher := geo.NewEnricher(
		geoCache,
		geo.NewClient(cfg.GeoLookupURL, cfg.GeoLookupTimeout),
		geo.WithFreshness(cfg.GeoCacheTTL),
		geo.WithRateLimit(cfg.GeoRateLimit, cfg.GeoRateBurst),
	)
	recorder := analytics.NewRecorder(analyticsRepo, enricher, cfg.AnalyticsWriteTimeout)

	statsEngine := stats.NewEngine(linksRepo, analyticsRepo, statisticsRepo, stats.Config{
		TTL:            cfg.StatsTTL,
		MergePlatforms: cfg.StatsMergePlatforms,
	})

	manager := auth.NewManager(sessionsRepo, accountsRepo, auth.Config{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		SessionTTL: cfg.SessionTTL,
	})
	authMiddleware := auth.NewMiddleware(manager, cfg.SecureCookies)

	if cfg.SessionReapInterval > 0 {
		go manager.RunReaper(ctx, cfg.SessionReapInterval)
	}

	e := echo.New()
	defer e.Close()

	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Validator = handler.NewValidator()

	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	var pages fs.FS = web.FS
	if cfg.Debug {
		log.Info().Msg("serving pages from disk")
		pages = os.DirFS("web")
	}

	linkHandler := handler.NewLinkHandler(linksRepo, recorder)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsRepo)
	handlers := &handler.Handlers{
		Auth:       handler.NewAuthHandler(manager, authMiddleware, accountsRepo),
		Links:      linkHandler,
		Analytics:  analyticsHandler,
		Statistics: handler.NewStatisticsHandler(statsEngine),
		Admin:      handler.NewAdminHandler(accountsRepo, manager, linkHandler, analyticsHandler),
		Pages:      handler.NewPageHandler(pages),
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Parameterized redirect route is registered last
	handlers.Register(e, authMiddleware)

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	log.Info().Str("address", addr).Msg("server starting")

	runServer(ctx, e, addr)

	// Clicks redirected just before shutdown still get a chance to land.
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.AnalyticsWriteTimeout)
	defer cancel()
	if err := recorder.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("abandoned in-flight analytics writes")
	}

	return nil
}

func runServer(ctx context.Context, e *echo.Echo, addr string) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(addr)
	}()

	// Wait for context cancellation (Ctrl+C or SIGTERM)
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
		return
	}

	log.Info().Msg("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}
