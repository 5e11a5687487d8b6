package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sqlmigrations "github.com/kirill483/auth-notify/db"
	"github.com/kirill483/auth-notify/internal/config"
	"github.com/kirill483/auth-notify/internal/oauth"
	"github.com/kirill483/auth-notify/internal/password"
	"github.com/kirill483/auth-notify/internal/pkg/logger"
	"github.com/kirill483/auth-notify/internal/pkg/middleware"
	"github.com/kirill483/auth-notify/internal/pkg/router"
	"github.com/kirill483/auth-notify/internal/queue"
	"github.com/kirill483/auth-notify/internal/rest"
	"github.com/kirill483/auth-notify/internal/service"
	"github.com/kirill483/auth-notify/internal/store"
	"github.com/kirill483/auth-notify/internal/token"
)

func run(ctx context.Context) error {
	config.LoadDotEnv()
	cfg, err := config.LoadAPI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info("starting auth service")

	if err := store.Migrate(log, cfg.DB.URL, sqlmigrations.MigrationsFS, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}

	db, err := store.NewPostgresDB(ctx, store.PostgresConfig{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer db.Close()

	pgs := store.NewPostgresStore(db)

	tokens, err := token.NewJWTIssuer(token.JwtConfig{
		Secret:    token.NewSecretString(cfg.JWT.Secret),
		Algorithm: cfg.JWT.Algorithm,
		Issuer:    cfg.JWT.Issuer,
		AccessTTL: cfg.JWT.AccessTTL(),
	})
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	yandex := oauth.NewYandex(oauth.YandexConfig{
		ClientID:     cfg.Yandex.ClientID,
		ClientSecret: cfg.Yandex.ClientSecret,
		RedirectURL:  cfg.Yandex.RedirectURL,
		AuthURL:      cfg.Yandex.AuthURL,
		TokenURL:     cfg.Yandex.TokenURL,
		UserInfoURL:  cfg.Yandex.UserInfoURL,
		Timeout:      cfg.Yandex.HTTPTimeout,
	})

	pub := queue.NewPublisher(queue.Config{
		URL:   cfg.Rabbit.URL,
		Queue: cfg.Rabbit.Queue,
	}, log.With("component", "publisher"))
	defer pub.Close()

	srv := service.NewAuth(
		service.WithStore(pgs),
		service.WithTokens(tokens),
		service.WithPasswords(password.NewBcrypt(cfg.Password.BcryptCost)),
		service.WithFederation(oauth.NewFederation(yandex, pgs)),
		service.WithPublisher(pub),
	)

	rt := router.New()
	rt.Use(middleware.LogWith(log), middleware.Recover())
	rt.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rt.HandleFunc("GET /readyz", readyz(db))
	rt.Handle("/", rest.NewAPI(srv))

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      rt,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func readyz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			logger.FromContext(r.Context()).Warn("database not ready", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("auth service terminated with error", "error", err)
		os.Exit(1)
	}
}
