package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"contract-secretary/internal/auth"
	"contract-secretary/internal/config"
	"contract-secretary/internal/crypto"
	"contract-secretary/internal/db"
	"contract-secretary/internal/maintenance"
	"contract-secretary/internal/oauth"
	"contract-secretary/internal/observability"
	"contract-secretary/internal/property"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Logger  *zap.Logger
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.AppEnv)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", zap.Error(err))
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime())
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime())

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	cipher, err := crypto.New(cfg.EncryptionKey, cfg.EncryptionKeyPrevious, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL())
	bridge := oauth.NewNaver(cfg.NaverClientID, cfg.NaverClientSecret, cfg.NaverCallbackURL)

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, cipher, issuer, bridge, cfg.RefreshTokenTTL(), logger)
	authHandler := auth.NewHandler(authService, cfg.AppCallbackURL)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		cfg.CronSecret,
		cfg.RefreshTokenRetention(),
		cfg.AuthorizationCodeRetentionTTL(),
		cfg.CleanupBatchSize,
	)

	propertyRepo := property.NewRepository(database)
	propertyHandler := property.NewHandler(propertyRepo)

	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("POST /auth/logout-all", authed(authHandler.LogoutAll))
	mux.HandleFunc("GET /auth/naver/authorize", authHandler.Authorize)
	mux.HandleFunc("GET /auth/naver/callback", authHandler.Callback)
	mux.HandleFunc("POST /auth/naver/exchange", authHandler.Exchange)
	mux.HandleFunc("POST /auth/naver/token", authHandler.ProviderToken)
	mux.Handle("GET /users/me", authed(authHandler.Me))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.Handle("GET /properties", authed(propertyHandler.ListProperties))
	mux.Handle("POST /properties", authed(propertyHandler.CreateProperty))
	mux.Handle("PUT /properties/{id}", authed(propertyHandler.UpdateProperty))
	mux.Handle("DELETE /properties/{id}", authed(propertyHandler.DeleteProperty))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			_ = logger.Sync()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
