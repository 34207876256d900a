package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/punchamoorthee/chipledger/internal/api"
	"github.com/punchamoorthee/chipledger/internal/config"
	"github.com/punchamoorthee/chipledger/internal/dedup"
	"github.com/punchamoorthee/chipledger/internal/ledger"
	"github.com/punchamoorthee/chipledger/internal/metrics"
	"github.com/punchamoorthee/chipledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := store.RunMigrations(cfg.DBSource); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	pool, err := store.Connect(context.Background(), cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	ledgerStore := store.NewPostgresStore(pool)

	var guard dedup.Guard
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		guard = dedup.NewRedisGuard(rdb, cfg.DedupTTL)
	} else {
		guard = dedup.NewLRUGuard(cfg.DedupCapacity, cfg.DedupTTL)
	}

	service := ledger.New(ledgerStore, guard, logger)
	handler := api.NewHandler(service, ledgerStore, cfg.CommandTimeout)

	r := mux.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(api.RequestLogger(logger))
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/health", handler.HealthCheck)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(api.RateLimit(cfg.RateLimit, cfg.RateBurst))
	handler.Register(apiV1)

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
