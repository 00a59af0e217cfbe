package main

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/campus-share/internal/platform/analytics"
	"github.com/example/campus-share/internal/platform/auth"
	"github.com/example/campus-share/internal/platform/config"
	"github.com/example/campus-share/internal/platform/db"
	"github.com/example/campus-share/internal/platform/httpserver"
	"github.com/example/campus-share/internal/platform/logging"
	"github.com/example/campus-share/internal/platform/natsconn"
	"github.com/example/campus-share/internal/platform/run"
	"github.com/example/campus-share/internal/platform/signing"
	"github.com/example/campus-share/services/ratings/internal/cache"
	"github.com/example/campus-share/services/ratings/internal/engine"
	"github.com/example/campus-share/services/ratings/internal/handlers"
	"github.com/example/campus-share/services/ratings/internal/store"
	"github.com/example/campus-share/services/ratings/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ratings, resources, closePool := initStores(cfg, log)
	if closePool != nil {
		defer closePool()
	}

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	signer := signing.New(cfg.Download.SigningSecret)

	summaries := initCache(cfg, log)

	// NATS is optional; without it analytics and the audit worker are no-ops.
	var events *analytics.Publisher
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats unavailable, analytics disabled", zap.Error(err))
	} else {
		defer nc.Close()
		if js, err := nc.JetStream(); err == nil {
			events = analytics.New(js, log)
		} else {
			log.Warn("jetstream unavailable, analytics disabled", zap.Error(err))
		}
	}

	eng := engine.New(ratings, resources, engine.Options{
		Cache:     summaries,
		Analytics: events,
		Logger:    log,
	})

	r := chi.NewRouter()
	httpserver.SetupRouter(r)

	r.Get("/v1/resources/{resource_id}", handlers.GetResource(resources, eng))
	r.With(auth.OptionalUser(verifier)).
		Get("/v1/resources/{resource_id}/ratings", handlers.GetRatings(eng, ratings))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post("/v1/resources", handlers.CreateResource(resources, events))
		r.Get("/v1/resources/{resource_id}/download-url", handlers.DownloadURL(resources, signer, cfg.Download.GatewayURL, cfg.Download.TTL))
		r.Post("/v1/resources/{resource_id}/ratings", handlers.SubmitRating(eng))
		r.Post("/v1/ratings/{rating_id}/helpful", handlers.ToggleHelpful(eng))
		r.Post("/v1/ratings/{rating_id}/report", handlers.ReportRating(eng))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(auth.RequireAdmin)
		r.Get("/v1/resources/{resource_id}/ratings/audit", handlers.AuditRatings(ratings))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			go worker.StartModerationConsumer(ctx, nc, log)
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStores selects the persistence backend. In production a working
// Postgres connection is required and the process terminates otherwise.
func initStores(cfg config.AppConfig, log *zap.Logger) (store.RatingStore, store.ResourceStore, func()) {
	fallback := func(reason string, err error) (store.RatingStore, store.ResourceStore, func()) {
		if cfg.IsProduction() {
			log.Error("postgres is required in production: "+reason, zap.Error(err))
			_ = log.Sync()
			os.Exit(1)
		}
		log.Warn("using in-memory stores (development only): "+reason, zap.Error(err))
		return store.NewInMemoryRatingStore(), store.NewInMemoryResourceStore(), nil
	}

	if cfg.DatabaseURL == "" {
		return fallback("DATABASE_URL not set", nil)
	}

	pool, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return fallback("postgres unavailable", err)
	}

	log.Info("stores: postgres")
	return store.NewPostgresRatingStore(pool), store.NewPostgresResourceStore(pool), pool.Close
}

// initCache wires the optional Redis summary cache; nil disables it.
func initCache(cfg config.AppConfig, log *zap.Logger) *cache.SummaryCache {
	if cfg.RedisURL == "" {
		return nil
	}
	c, err := cache.New(cfg.RedisURL, 5*time.Minute)
	if err != nil {
		log.Warn("redis unavailable, summary cache disabled", zap.Error(err))
		return nil
	}
	log.Info("summary cache: redis")
	return c
}
