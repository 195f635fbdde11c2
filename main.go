package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bidding "live-auction/internal/biddingService"
	"live-auction/internal/broadcast"
	"live-auction/internal/config"
	"live-auction/internal/dedupe"
	model "live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/internal/repository/mysql"
	"live-auction/internal/repository/sqlite"
	"live-auction/internal/server"
	"live-auction/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Warn("unknown log level, keeping info", map[string]any{"level": cfg.LogLevel})
	}

	repo, closeRepo, err := openStore(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open storage", map[string]any{"driver": cfg.StorageDriver, "error": err.Error()})
	}
	utils.Info("storage ready", map[string]any{"driver": cfg.StorageDriver})

	opts := []bidding.Option{}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			utils.Fatal("failed to connect redis", map[string]any{"addr": cfg.RedisAddr, "error": err.Error()})
		}
		opts = append(opts, bidding.WithDedupe(dedupe.NewRedisGuard(rdb, cfg.IdempotencyTTL)))
		utils.Info("connected to redis", map[string]any{"addr": cfg.RedisAddr})
	} else {
		opts = append(opts, bidding.WithDedupe(dedupe.NewMemoryGuard(nil, cfg.IdempotencyTTL)))
	}

	hub := broadcast.NewHub(cfg.SubscriberBuffer)
	biddingSvc := bidding.NewBiddingService(repo, hub, opts...)

	if cfg.SeedDemo {
		if err := seedDemoAuctions(ctx, repo, biddingSvc); err != nil {
			utils.Fatal("failed to seed demo auctions", map[string]any{"error": err.Error()})
		}
	}
	if err := biddingSvc.Rehydrate(ctx); err != nil {
		utils.Fatal("failed to restore auction timers", map[string]any{"error": err.Error()})
	}

	router := server.SetupRouter(biddingSvc, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{"addr": cfg.Addr()})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("failed to start server", map[string]any{"error": err.Error()})
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Info("shutting down", nil)

	// stop timers first so no transition races the teardown
	biddingSvc.Stop()

	// event streams never finish on their own; closing the hub ends them
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		utils.Warn("HTTP server shutdown incomplete", map[string]any{"error": err.Error()})
	}
	utils.Info("HTTP server stopped", nil)

	if rdb != nil {
		_ = rdb.Close()
	}
	if err := closeRepo(); err != nil {
		utils.Warn("failed to close storage", map[string]any{"error": err.Error()})
	}
	utils.Info("connections closed", nil)
}

// openStore returns the storage collaborator selected by STORAGE_DRIVER
func openStore(ctx context.Context, cfg config.Config) (repository.AuctionDB, func() error, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.DriverMySQL:
		store, err := mysql.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return repository.NewMemoryRepo(), func() error { return nil }, nil
	}
}

// seedDemoAuctions schedules a few sample auctions when storage is empty
func seedDemoAuctions(ctx context.Context, repo repository.AuctionDB, svc *bidding.BiddingService) error {
	existing, err := repo.ListAuctions(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		utils.Info("storage not empty, skipping demo seed", map[string]any{"auctions": len(existing)})
		return nil
	}

	now := time.Now().UTC()
	demo := []model.Auction{
		{Name: "Antique Clock", Description: "Brass mantel clock, 1890s", Image: "clock.jpg",
			StartingPrice: decimal.NewFromInt(100), ScheduledStart: now.Add(10 * time.Second), Duration: 5 * time.Minute},
		{Name: "Oil Painting", Description: "Harbour at dusk", Image: "painting.jpg",
			StartingPrice: decimal.NewFromInt(250), ScheduledStart: now.Add(2 * time.Minute), Duration: 10 * time.Minute},
		{Name: "Vintage Camera", Description: "Rangefinder with 50mm lens", Image: "camera.jpg",
			StartingPrice: decimal.RequireFromString("79.90"), ScheduledStart: now.Add(5 * time.Minute)},
	}

	for _, a := range demo {
		created, err := svc.CreateAuction(ctx, a)
		if err != nil {
			return err
		}
		utils.Info("demo auction seeded", map[string]any{"auction_id": created.AuctionID, "name": created.Name})
	}
	return nil
}
