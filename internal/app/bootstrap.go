package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ledger-serverless/internal/account"
	"ledger-serverless/internal/auth"
	"ledger-serverless/internal/db"
	"ledger-serverless/internal/identity"
	"ledger-serverless/internal/ledger"
	"ledger-serverless/internal/lockout"
	"ledger-serverless/internal/maintenance"
	"ledger-serverless/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Config  Config
	Logger  *observability.Logger
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLoggerTo(os.Stdout, observability.ParseLevel(cfg.LogLevel))

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		return nil, err
	}

	if options.RunMigrations {
		if err := db.RunMigrations(ctx, database, logger); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	// background work such as the memory janitor stops on Close
	bgCtx, stopBackground := context.WithCancel(context.Background())

	closers := []func() error{
		func() error { stopBackground(); return nil },
		database.Close,
	}
	closeAll := func() error {
		observability.FlushSentry()
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	store, sweeper, closeStore, err := newLockoutStore(bgCtx, cfg.Lockout, database, logger)
	if err != nil {
		_ = closeAll()
		return nil, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	identityClient, err := identity.NewClient(cfg.Identity)
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("init identity client: %w", err)
	}
	verifier, err := identity.NewVerifier(cfg.IdentityProjectID, cfg.IdentityCertsURL, cfg.Identity.Timeout)
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	accountRepo := account.NewRepository(database)
	tracker := lockout.NewTracker(store, cfg.Lockout.Policy)
	authService := auth.NewService(identityClient, verifier, accountRepo, tracker, logger)
	ledgerService := ledger.NewService(ledger.NewRepository(database), accountRepo)

	handler := NewRouter(RouterDeps{
		Logger:          logger,
		Auth:            auth.NewHandler(authService),
		Accounts:        account.NewHandler(accountRepo),
		Ledger:          ledger.NewHandler(ledgerService),
		Cleanup:         maintenance.NewCleanupHandler(sweeper, logger, cfg.CronSecret),
		Health:          database,
		LoginRateLimit:  cfg.LoginRateLimit,
		LoginRateWindow: cfg.LoginRateWindow,
	})

	logger.Info("app_initialized", map[string]any{
		"env":             cfg.Env,
		"lockout_backend": cfg.Lockout.Backend,
		"migrations":      options.RunMigrations,
	})

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Close:   closeAll,
	}, nil
}

// newLockoutStore returns the configured lockout backend. The sweeper is nil
// for backends that expire entries on their own.
func newLockoutStore(ctx context.Context, cfg LockoutConfig, database *sql.DB, logger *observability.Logger) (lockout.Store, lockout.Sweeper, func() error, error) {
	switch cfg.Backend {
	case LockoutBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return lockout.NewRedisStore(rdb, cfg.IdleTTL, lockout.WithRedisPrefix(cfg.RedisPrefix)), nil, rdb.Close, nil

	case LockoutBackendPostgres:
		store := lockout.NewPostgresStore(database, cfg.IdleTTL, cfg.SweepBatchMax)
		return store, store, nil, nil

	default:
		store := lockout.NewMemoryStore(cfg.IdleTTL)
		store.StartJanitor(ctx, cfg.JanitorEvery)
		logger.Warn("lockout_state_in_memory", map[string]any{
			"detail": "lockout state is per instance and lost on restart",
		})
		return store, store, nil, nil
	}
}
