package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/bugtracker-backend/internal/auth"
	"github.com/AnshRaj112/bugtracker-backend/internal/config"
	"github.com/AnshRaj112/bugtracker-backend/internal/database"
	"github.com/AnshRaj112/bugtracker-backend/internal/handlers"
	"github.com/AnshRaj112/bugtracker-backend/internal/logger"
	"github.com/AnshRaj112/bugtracker-backend/internal/middleware"
	"github.com/AnshRaj112/bugtracker-backend/internal/routes"
	"github.com/AnshRaj112/bugtracker-backend/internal/services"
	"github.com/AnshRaj112/bugtracker-backend/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", false)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.LogLevel, cfg.IsProduction())
	if envErr != nil {
		log.Debug().Msg("no .env file found")
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// bootstrapAdmin creates the first admin so /api/users is reachable on a fresh
// deployment. Outside production a missing ADMIN_PASSWORD is generated and logged once.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, users *services.UserService) {
	password, generated := cfg.AdminPassword, false
	if password == "" {
		if cfg.IsProduction() {
			log.Info().Msg("ADMIN_PASSWORD unset; skipping admin bootstrap")
			return
		}
		password, generated = uuid.NewString(), true
	}

	created, err := users.EnsureAdmin(ctx, services.CreateUserInput{
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Password: password,
	})
	if err != nil {
		log.Warn().Err(err).Str("email", cfg.AdminEmail).Msg("admin bootstrap failed")
		return
	}
	if !created {
		return
	}
	ev := log.Warn().Str("email", cfg.AdminEmail)
	if generated {
		ev = ev.Str("password", password)
	}
	ev.Msg("created initial admin account; change its password after first login")
}

type stores struct {
	users    services.UserStore
	settings services.SettingsStore
	mongo    *mongo.Client
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory stores; data is lost on restart")
		return &stores{users: services.NewMemoryUserStore(), settings: services.NewMemorySettingsStore()}, nil
	}

	client, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	users := services.NewMongoUserStore(db)
	settings := services.NewMongoSettingsStore(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure user indexes")
	}
	if err := settings.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure settings indexes")
	}
	return &stores{users: users, settings: settings, mongo: client}, nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Disconnect(st.mongo); err != nil {
			log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}()

	health := map[string]handlers.Pinger{}
	if st.mongo != nil {
		health["mongodb"] = func(ctx context.Context) error { return st.mongo.Ping(ctx, nil) }
	}

	// Redis is optional. Without it the cache is disabled, session events stay
	// in-process and only the in-memory limiters apply.
	var rdb *redis.Client
	if cfg.RedisURI != "" {
		rdb, err = database.ConnectRedis(ctx, cfg.RedisURI)
		if err != nil {
			return err
		}
		defer rdb.Close()
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn().Msg("REDIS_URI not set; settings cache and cross-instance session events disabled")
	}

	var audit services.AuditLog = services.NopAudit{}
	if cfg.PostgresURI != "" {
		var pg *sql.DB
		pg, err = database.ConnectPostgres(ctx, cfg.PostgresURI)
		if err != nil {
			return err
		}
		defer pg.Close()
		health["postgres"] = pg.PingContext
		audit = services.NewPostgresAuditLog(pg)

		cleanup := services.NewAuditCleanup(audit, cfg.AuditRetention.Std())
		if err := cleanup.Start(cfg.AuditCleanupSchedule); err != nil {
			return err
		}
		defer cleanup.Stop()
	} else {
		log.Warn().Msg("POSTGRES_URI not set; auth events are not recorded")
	}

	events := services.NewSessionEventBus(rdb)
	if err := events.Start(ctx); err != nil {
		return err
	}

	refreshSecret, derived := cfg.RefreshSecret()
	if derived {
		log.Warn().Msg("JWT_REFRESH_SECRET not set; deriving the refresh secret from JWT_SECRET")
	}
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	hasher := utils.NewPasswordHasher(cfg.BcryptRounds)

	sessions := services.NewSessionService(services.SessionDeps{
		Users:  st.users,
		Hasher: hasher,
		Tokens: tokens,
		Policy: services.LockoutPolicy{
			MaxAttempts:  cfg.LoginMaxAttempts,
			LockDuration: cfg.LoginLockDuration.Std(),
		},
		Audit:  audit,
		Events: events,
	})
	users := services.NewUserService(st.users, hasher, audit, events)
	bootstrapAdmin(ctx, cfg, users)
	settings := services.NewSettingsService(st.settings, services.NewCacheService(rdb), cfg.SettingsCacheTTL.Std())

	deps := routes.Deps{
		Sessions:       sessions,
		Users:          users,
		Settings:       settings,
		Events:         events,
		Cookies:        handlers.NewCookiePolicy(cfg.IsProduction(), cfg.AccessTTL(), cfg.RefreshTTL()),
		AllowedOrigins: cfg.AllowedOrigins,
		TrustProxy:     cfg.TrustProxy,
		Health:         health,
		Logger:         log.Logger,
	}
	if cfg.IsProduction() {
		sec := middleware.NewSecurity(cfg.AllowedHost())
		sec.Start()
		defer sec.Stop()
		deps.Security = sec
		log.Info().Str("allowed_host", sec.AllowedHost).Msg("production security enabled")
	}
	if rdb != nil {
		deps.RateLimiter = middleware.NewRedisRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow.Std())
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("bug tracker backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
