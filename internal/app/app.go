// Package app wires configuration, storage, services and the HTTP server into
// a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sandeepkv93/session-authority-service/internal/config"
	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/http/handler"
	"github.com/sandeepkv93/session-authority-service/internal/http/router"
	"github.com/sandeepkv93/session-authority-service/internal/kv"
	"github.com/sandeepkv93/session-authority-service/internal/mailer"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/service"
	"github.com/sandeepkv93/session-authority-service/internal/session"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	db    *gorm.DB
	redis *redis.Client
}

// New builds the full dependency graph. Construction is explicit so the order
// of initialization (and of shutdown) stays readable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.VerificationToken{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	store := kv.NewStore(redisClient, cfg.RedisTimeout)

	users := repository.NewUserRepository(db)
	verificationTokens := repository.NewVerificationTokenRepository(db)

	mail, err := mailer.NewSMTPMailer(cfg)
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	registry := session.NewRegistry(store)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
	tokens := service.NewTokenService(jwtMgr, registry, users, service.TokenTTLs{
		Access:     cfg.AccessTokenTTL,
		Session:    cfg.SessionTTL,
		RememberMe: cfg.RememberMeTTL,
		Refresh:    cfg.RefreshTokenTTL,
	})
	guard := service.NewLoginThrottleGuard(store, service.ThrottlePolicy{
		MaxAttempts:   cfg.LoginMaxAttempts,
		AttemptWindow: cfg.LoginAttemptWindow,
		BanDuration:   cfg.LoginBanDuration,
	})
	verification := service.NewVerificationCodeService(users, verificationTokens, store, mail, cfg.VerificationCodeTTL, cfg.ResendCooldown)
	reset := service.NewPasswordResetService(users, store, mail, cfg.PasswordResetTokenTTL, cfg.ForgotPasswordCooldown)
	auth := service.NewAuthService(users, guard, tokens, registry, verification)

	mux := router.New(router.Deps{
		Auth:          handler.NewAuthHandler(auth, tokens, cfg.RefreshTokenTTL, cfg.SecureCookies),
		Verification:  handler.NewVerificationHandler(verification, reset),
		Sessions:      handler.NewSessionHandler(registry),
		Validator:     tokens,
		SecureCookies: cfg.SecureCookies,
		Ready: func(ctx context.Context) error {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		db:            db,
		redis:         redisClient,
	}, nil
}

// Run serves HTTP until the context is canceled or SIGINT/SIGTERM arrives,
// then drains connections and shuts the telemetry pipeline down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr, "env", a.Config.Env)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if obsErr := a.Observability.Shutdown(closeCtx); obsErr != nil {
		a.Logger.Warn("telemetry shutdown", "error", obsErr)
	}
	if closeErr := a.redis.Close(); closeErr != nil {
		a.Logger.Warn("redis close", "error", closeErr)
	}
	if sqlDB, dbErr := a.db.DB(); dbErr == nil {
		if closeErr := sqlDB.Close(); closeErr != nil {
			a.Logger.Warn("database close", "error", closeErr)
		}
	}
	return err
}
