package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/logging"
	"github.com/callezenwaka/authenticate/internal/config"
	"github.com/callezenwaka/authenticate/internal/crypto"
	"github.com/callezenwaka/authenticate/internal/handlers"
	"github.com/callezenwaka/authenticate/internal/middleware"
	"github.com/callezenwaka/authenticate/internal/oidc"
	"github.com/callezenwaka/authenticate/internal/pkce"
	"github.com/callezenwaka/authenticate/internal/provider"
	"github.com/callezenwaka/authenticate/internal/ratelimit"
	"github.com/callezenwaka/authenticate/internal/server"
	"github.com/callezenwaka/authenticate/internal/session"
	"github.com/callezenwaka/authenticate/internal/vault"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.MustSync()

	logger := logging.GetGlobalLogger()

	// Cache backend. Construction never fails: an unreachable Redis runs
	// the app on the in-memory fallback.
	redisDB, _ := strconv.Atoi(cfg.RedisDB)
	poolSize, _ := strconv.Atoi(cfg.RedisPoolSize)
	maxRetries, _ := strconv.Atoi(cfg.RedisMaxRetries)
	store := cache.NewStore(&cache.Config{
		Address:    cfg.RedisAddress,
		Password:   cfg.RedisPassword,
		DB:         redisDB,
		PoolSize:   poolSize,
		MaxRetries: maxRetries,
	}, logger)
	defer store.Close()

	// Encryption for payloads at rest. The session secret is required;
	// the token key is optional.
	sessionEncryptor, err := crypto.NewTokenEncryptor(cfg.SessionSecret)
	if err != nil {
		log.Fatalf("Failed to initialize session encryption: %v", err)
	}

	var tokenEncryptor *crypto.TokenEncryptor
	if cfg.TokenEncryptionKey != "" {
		tokenEncryptor, err = crypto.NewTokenEncryptor(cfg.TokenEncryptionKey)
		if err != nil {
			log.Fatalf("Failed to initialize token encryption: %v", err)
		}
	} else {
		logger.Warn("TOKEN_ENCRYPTION_KEY not set, token bundles are stored unencrypted")
	}

	// Identity provider client and the lifecycle pieces built on it.
	oidcClient := oidc.NewClient(oidc.Config{
		Issuer:       cfg.IssuerBaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Scope:        cfg.OAuthScope,
		Audience:     cfg.OAuthAudience,
	}, logger)

	p := provider.New(
		oidcClient,
		pkce.NewFlow(oidcClient, logger),
		vault.NewTokenVault(store, tokenEncryptor, logger),
		session.NewManager(store, sessionEncryptor, logger),
		store,
		cfg.APIURL,
		logger,
	)

	// Routes.
	cookieOpts := session.CookieOptions{Secure: cfg.SecureCookies}

	rateLimit, _ := strconv.Atoi(cfg.RateLimitDefault)
	rateWindow, _ := time.ParseDuration(cfg.RateLimitWindow)
	limiter := ratelimit.NewLimiter(store.Client(), &ratelimit.Config{
		DefaultLimit:  rateLimit,
		DefaultWindow: rateWindow,
		Enabled:       cfg.RateLimitEnabled,
	}, logger)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(limiter.Middleware)
	router.Use(middleware.SessionMiddleware(p, cookieOpts))
	handlers.New(p, store, cookieOpts, logger).Register(router)

	// Start and wait for shutdown.
	srv := server.New(router, cfg.Port)
	errCh := srv.Start()
	logger.Info("Server started",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "issuer", Value: cfg.IssuerBaseURL})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Server failed", err)
	case sig := <-quit:
		logger.Info("Shutting down", logging.Field{Key: "signal", Value: sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}

	logger.Info("Server exited")
}
