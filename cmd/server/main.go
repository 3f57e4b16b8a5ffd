package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/esummit/pass-registry/internal/config"
	"github.com/esummit/pass-registry/internal/database"
	"github.com/esummit/pass-registry/internal/handler"
	"github.com/esummit/pass-registry/internal/identity"
	"github.com/esummit/pass-registry/internal/middleware"
	"github.com/esummit/pass-registry/internal/queue"
	"github.com/esummit/pass-registry/internal/repository"
	"github.com/esummit/pass-registry/internal/router"
	"github.com/esummit/pass-registry/internal/service"
	"github.com/esummit/pass-registry/internal/ticketing"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error("mysql connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		logger.Info("schema migrated")
	}

	users := repository.NewUserRepo(db)
	txns := repository.NewTransactionRepo(db)
	passes := repository.NewPassRepo(db)
	claims := repository.NewClaimRepo(db)
	admins := repository.NewAdminRepo(db)
	tokens := repository.NewTokenRepo(db)
	txm := database.NewTxManager(db)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := admins.EnsureSeed(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			logger.Error("admin seed failed", "err", err)
			os.Exit(1)
		}
		if created {
			logger.Info("seed admin created", "email", cfg.AdminEmail)
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher = queue.Discard{}
	if cfg.PassEventsEnabled {
		events = queue.NewPublisher(cfg.RabbitURL, logger)
		go func() {
			sink := queue.PassLog{Dir: "logs"}
			if err := queue.StartPassConsumer(ctx, cfg.RabbitURL, sink, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("pass consumer stopped", "err", err)
			}
		}()
	}

	gateway := ticketing.New(ticketing.Config{
		BaseURL:       cfg.KonfHub.APIURL,
		APIKey:        cfg.KonfHub.APIKey,
		WebhookSecret: cfg.KonfHub.WebhookSecret,
		AllowUnsigned: cfg.KonfHub.AllowUnsigned,
		Timeout:       cfg.KonfHub.RequestTimeout,
	}, logger.With("component", "konfhub"))
	if cfg.KonfHub.WebhookSecret == "" && !cfg.KonfHub.AllowUnsigned {
		logger.Warn("KONFHUB_WEBHOOK_SECRET not set; payment webhooks will be rejected")
	}
	clerk := identity.NewClient(cfg.Clerk.APIURL, cfg.Clerk.SecretKey, 10*time.Second, logger.With("component", "clerk"))
	verifier, err := identity.NewWebhookVerifier(cfg.Clerk.WebhookSecret)
	if err != nil {
		logger.Error("clerk webhook secret invalid", "err", err)
		os.Exit(1)
	}

	dir := service.NewDirectory(users, clerk, logger.With("component", "directory"))
	engine := service.NewEngine(service.EngineDeps{
		Directory:    dir,
		Users:        users,
		Transactions: txns,
		Passes:       passes,
		Tx:           txm,
		Gateway:      gateway,
		Events:       events,
		Currency:     cfg.Currency,
		Logger:       logger.With("component", "reconciliation"),
	})
	claimSvc := service.NewClaims(service.ClaimsDeps{
		Directory:   dir,
		Users:       users,
		Claims:      claims,
		Passes:      passes,
		Tx:          txm,
		Events:      events,
		TTL:         cfg.ClaimTTL,
		AutoApprove: cfg.ClaimAutoApprove,
		Logger:      logger.With("component", "claims"),
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				attrs = append(attrs, "err", v.Error)
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, middleware.ClerkUserHeader},
	}))

	var limiter, cache echo.MiddlewareFunc
	if rdb != nil {
		limiter = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
		cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger)
	}

	router.RegisterRoutes(e, db, rdb)
	router.RegisterPayment(e, handler.NewPaymentHandler(engine, logger), limiter)
	router.RegisterUsers(e, handler.NewUserHandler(dir, verifier, logger))
	router.RegisterPasses(e, handler.NewPassHandler(engine, claimSvc, logger), cache)
	router.RegisterAdmin(e, handler.NewAuthHandler(cfg, admins, tokens), handler.NewAdminHandler(engine, claimSvc, logger), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
