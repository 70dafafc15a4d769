package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"concierge/internal/adapters/backend"
	"concierge/internal/adapters/observability"
	redisad "concierge/internal/adapters/redis"
	"concierge/internal/app"
	"concierge/internal/catalog"
	"concierge/internal/shared"
	mysqlrepo "concierge/internal/storage/mysql"
)

// catalogsync runs one catalog refresh: backend -> MySQL + redis.
func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline for the refresh")
	flag.Parse()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Info().
		Str("base", cfg.BackendBase).
		Int("workers", cfg.SyncWorkers).
		Msg("catalog sync starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	client, err := backend.New(cfg.BackendBase, cfg.BackendKey, cfg.BackendRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	svc := app.NewCatalogSyncService(client, mysqlrepo.New(db), cache, catalog.NewStore(), cfg.SyncWorkers, int(cfg.CacheTTL.Seconds()))
	ix, err := svc.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("catalog sync failed")
		os.Exit(1)
	}
	log.Info().Int("properties", len(ix.AllProperties())).Msg("catalog sync completed")
}
