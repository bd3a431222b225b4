package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/get-hunter/hero365-app-sub007/internal/config"
	"github.com/get-hunter/hero365-app-sub007/internal/domain"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/auth/rbac"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/auth/verifier"
	httpinfra "github.com/get-hunter/hero365-app-sub007/internal/infra/http"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/identity"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/membership"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/policyopa"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/ratelimit"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/token"
	"github.com/get-hunter/hero365-app-sub007/internal/usecase"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newDatabase,
			newMembershipStore,
			newTokenCodec,
			newIdentityProvider,
			newCredentialVerifier,
			newAccessEvaluator,
			newRateLimiter,
			newSessionService,
			newServer,
		),
		fx.Invoke(startHTTPServer),
	)

	app.Run()
}

func newConfig() config.Config {
	return config.FromEnv()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newDatabase(lc fx.Lifecycle, cfg config.Config) (*gorm.DB, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

func newMembershipStore(cfg config.Config, db *gorm.DB) domain.MembershipStore {
	return membership.NewStoreWithDB(db, cfg.MembershipTimeout)
}

func newTokenCodec(cfg config.Config) (*token.Codec, error) {
	return token.NewCodec(cfg.TokenSecret, cfg.TokenLifetime)
}

func newIdentityProvider(cfg config.Config) (domain.IdentityProvider, error) {
	return identity.NewProvider(cfg)
}

func newCredentialVerifier(codec *token.Codec, provider domain.IdentityProvider, memberships domain.MembershipStore) domain.CredentialVerifier {
	return verifier.New(codec, provider, memberships)
}

func newAccessEvaluator(cfg config.Config, logger *zap.Logger) (domain.AccessEvaluator, error) {
	opts := []rbac.Option{}
	if cfg.AccessPolicyBundlePath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		engine, err := policyopa.NewEngineFromBundlePath(ctx, cfg.AccessPolicyBundlePath, cfg.AccessPolicyBundleID)
		if err != nil {
			return nil, fmt.Errorf("load access policy bundle: %w", err)
		}
		logger.Info("access policy bundle loaded",
			zap.String("bundle_id", cfg.AccessPolicyBundleID),
			zap.String("bundle_hash", engine.BundleHash()),
		)
		opts = append(opts, rbac.WithAccessPolicy(engine))
	}
	return rbac.NewEvaluator(rbac.DefaultRequirements(), opts...), nil
}

func newRateLimiter(cfg config.Config, logger *zap.Logger) domain.RateLimiter {
	if cfg.RateLimitRequests <= 0 {
		return nil
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
		if err == nil {
			return limiter
		}
		logger.Warn("redis rate limiter unavailable, falling back to memory", zap.Error(err))
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: cfg.RateLimitMaxKeys})
}

func newSessionService(codec *token.Codec, memberships domain.MembershipStore) *usecase.SessionService {
	return usecase.NewSessionService(codec, memberships)
}

func newServer(
	cfg config.Config,
	logger *zap.Logger,
	provider domain.IdentityProvider,
	credVerifier domain.CredentialVerifier,
	evaluator domain.AccessEvaluator,
	limiter domain.RateLimiter,
	sessions *usecase.SessionService,
	codec *token.Codec,
	db *gorm.DB,
) *httpinfra.Server {
	return httpinfra.NewServerWithDeps(cfg, httpinfra.ServerDeps{
		Logger:      logger,
		Provider:    provider,
		Verifier:    credVerifier,
		Evaluator:   evaluator,
		RateLimiter: limiter,
		Sessions:    sessions,
		Tokens:      codec,
		DB:          db,
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *httpinfra.Server, cfg config.Config, logger *zap.Logger) {
	httpServer := &nethttp.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(stopCtx)
		},
	})
}
