package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"schoolhub.org/internal/auth"
	"schoolhub.org/internal/config"
	"schoolhub.org/internal/httpapi"
	"schoolhub.org/internal/obs"
	"schoolhub.org/internal/token"
)

// Set via -ldflags at build time.
var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	// Persistence: Postgres when configured, in-memory otherwise (dev mode).
	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.WithError(err).Fatal("open db")
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		log.Warn("no database configured, using in-memory store")
		store = auth.NewMemoryStore()
	}

	// Revocation state: Redis when configured, in-memory otherwise.
	var (
		rdb      redis.UniversalClient
		revStore token.RevocationStore
		ping     func(ctx context.Context) error
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		revStore = token.NewRedisStore(rdb)
		ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn("no redis configured, token revocation state is process-local")
		revStore = token.NewMemoryStore()
	}

	codec, err := token.NewCodec(cfg.AuthSecret, cfg.Issuer)
	if err != nil {
		log.WithError(err).Fatal("token codec")
	}

	resolver := auth.NewResolver(store, cfg.PermissionCacheTTL)

	// The service is the identity lookup for rotation; the function indirection
	// breaks the construction cycle.
	var svc *auth.Service
	manager, err := token.NewManager(codec, revStore,
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
		token.WithResetTTL(cfg.ResetTTL),
		token.WithVerificationTTL(cfg.VerificationTTL),
		token.WithStoreTimeout(cfg.StoreTimeout),
		token.WithIdentityLookup(token.IdentityLookupFunc(
			func(ctx context.Context, subject string) (token.Identity, error) {
				return svc.Lookup(ctx, subject)
			})),
	)
	if err != nil {
		log.WithError(err).Fatal("token manager")
	}
	svc = auth.NewService(store, resolver, manager)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureBuiltins(seedCtx); err != nil {
		log.WithError(err).Fatal("seed permission catalog")
	}
	cancelSeed()

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db, Ping: ping}, httpapi.Options{
		Version:    version,
		AdminRole:  cfg.AdminRole,
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithField("addr", srv.Addr).WithField("version", version).Info("starting schoolhub-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("stopped")
}
