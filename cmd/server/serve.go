package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsession/internal/config"
	"github.com/Skotchmaster/authsession/internal/db"
	"github.com/Skotchmaster/authsession/internal/events"
	"github.com/Skotchmaster/authsession/internal/hash"
	"github.com/Skotchmaster/authsession/internal/httpserver"
	"github.com/Skotchmaster/authsession/internal/logging"
	"github.com/Skotchmaster/authsession/internal/metrics"
	"github.com/Skotchmaster/authsession/internal/repo"
	"github.com/Skotchmaster/authsession/internal/service"
	"github.com/Skotchmaster/authsession/internal/tokens"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

type app struct {
	echo   *echo.Echo
	db     *gorm.DB
	redis  *redis.Client
	events events.Publisher
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.DBDriver).Wrap(err)
	}
	a := &app{db: gdb}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(gdb); err != nil {
			a.Close(log)
			return nil, oops.Code("MIGRATION_FAILED").Wrap(err)
		}
	}

	hasher, err := hash.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		a.Close(log)
		return nil, oops.Code("CONFIG_INVALID").With("field", "BCRYPT_COST").Wrap(err)
	}
	signer, err := tokens.NewSigner(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		a.Close(log)
		return nil, oops.Code("CONFIG_INVALID").With("field", "JWT_SECRET").Wrap(err)
	}

	checks := []httpserver.Check{{Name: "db", Fn: func(ctx context.Context) error { return db.Ping(ctx, gdb) }}}

	accounts := repo.NewAccountRepo(gdb)
	var refresh service.RefreshTokenStore
	switch cfg.RefreshStore {
	case config.StoreRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store := repo.NewRedisRefreshStore(a.redis, cfg.RedisPrefix)
		if err := store.Ping(ctx); err != nil {
			a.Close(log)
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.RedisAddr).Wrap(err)
		}
		checks = append(checks, httpserver.Check{Name: "redis", Fn: store.Ping})
		refresh = store
	default:
		refresh = repo.NewRefreshRepo(gdb)
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.events = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		log.Info("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
		a.events = events.Noop{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := &service.AuthService{
		Auth: &service.AuthenticationEngine{
			Accounts: accounts,
			Hasher:   hasher,
			Signer:   signer,
		},
		Sessions: service.NewSessionEngine(refresh, accounts, cfg.RefreshTokenTTL, m),
		Events:   a.events,
		Metrics:  m,
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logging.RequestLogger(log))

	deps := &httpserver.Deps{
		Auth:       &httpserver.AuthHandler{Svc: svc, CanModify: service.SelfOrAdmin},
		Users:      &httpserver.UserHandler{Svc: svc},
		Middleware: &httpserver.AuthMiddleware{Verifier: svc},
		Checks:     checks,
		Gatherer:   reg,
	}
	if cfg.CSRFEnabled {
		csrf := httpserver.DefaultCSRFConfig()
		deps.CSRF = &csrf
	}
	httpserver.Register(e, deps)
	a.echo = e

	return a, nil
}

func (a *app) Close(log *slog.Logger) {
	if a.db != nil {
		if err := db.Close(a.db); err != nil {
			log.Error("db_close_failed", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error("redis_close_failed", "error", err)
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			log.Error("kafka_close_failed", "error", err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	a, err := buildApp(cmd.Context(), cfg, log)
	if err != nil {
		log.Error("startup_failed", "error", err)
		return err
	}
	defer a.Close(log)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      a.echo,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listen", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("http_server_error", "error", err)
		return err
	}

	log.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", "error", err)
	}
	log.Info("shutdown_complete")
	return nil
}
