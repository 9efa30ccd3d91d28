package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storeorders/api/internal/cache"
	"github.com/storeorders/api/internal/config"
	"github.com/storeorders/api/internal/dashboard"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/router"
	"github.com/storeorders/api/internal/ws"
	"golang.org/x/sync/errgroup"
)

const productCacheTTL = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

	productCache, closeCache, err := newProductCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	queries := database.New(pool)
	hub := ws.NewHub()
	poller := dashboard.NewPoller(queries, dashboard.NewBoard(), hub, cfg.DashboardPollInterval, cfg.WarehouseClosedWindow)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, queries, pool, hub, poller, productCache),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newProductCache picks Redis when REDIS_URL is set and an in-process cache
// otherwise.
func newProductCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	if cfg.RedisURL == "" {
		log.Println("REDIS_URL not set, using in-memory product cache")
		return cache.NewMemory(productCacheTTL), func() {}, nil
	}

	rc, err := cache.NewRedis(ctx, cfg.RedisURL, "storeorders:", productCacheTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() {
		if err := rc.Close(); err != nil {
			log.Printf("WARNING: close redis: %v", err)
		}
	}, nil
}
