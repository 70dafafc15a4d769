package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"concierge/internal/adapters/backend"
	"concierge/internal/adapters/extractor"
	server "concierge/internal/adapters/http_server"
	"concierge/internal/adapters/observability"
	redisad "concierge/internal/adapters/redis"
	"concierge/internal/app"
	"concierge/internal/catalog"
	"concierge/internal/shared"
	mysqlrepo "concierge/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; catalog cache disabled until it recovers")
	}

	bc, err := backend.New(cfg.BackendBase, cfg.BackendKey, cfg.BackendRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}

	store := catalog.NewStore()
	syncer := app.NewCatalogSyncService(bc, repo, cache, store, cfg.SyncWorkers, int(cfg.CacheTTL.Seconds()))
	if _, err := syncer.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("no stored catalog; waiting for the first refresh")
	}
	if _, err := syncer.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial catalog refresh failed")
	}
	go syncer.Run(ctx, cfg.CatalogRefresh)

	policy := extractor.Policy{Timeout: cfg.ExtractTimeout, RateLimitBackoff: cfg.RateLimitBackoff, RateLimitRetries: 1}
	var transport extractor.Transport
	switch cfg.ExtractorMode {
	case "openai":
		transport = extractor.NewOpenAITransport(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	default:
		transport = extractor.NewHTTPTransport(cfg.ExtractorURL, cfg.ExtractorKey)
	}
	xc := extractor.New(transport, policy, cfg.ExtractorRPS)

	dates := app.NewDateRangeResolver(nil, cfg.Location())
	pipeline := app.NewPipeline(xc, store, dates, cfg.FillThreshold, repo)
	sessions := app.NewSessionRegistry(pipeline)
	go pruneSessions(ctx, sessions, cfg.SessionIdleTTL)

	// http
	srv := server.New(cfg.HTTPTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Sessions:       sessions,
		Reservations:   app.NewReservationService(sessions, bc),
		Catalog:        store,
		TurnsPerMinute: cfg.TurnsPerMinute,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("extractor", transport.Name()).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

func pruneSessions(ctx context.Context, r *app.SessionRegistry, idle time.Duration) {
	if idle <= 0 {
		return
	}
	t := time.NewTicker(idle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Prune(idle); n > 0 {
				log.Info().Int("sessions", n).Msg("idle sessions pruned")
			}
		}
	}
}
