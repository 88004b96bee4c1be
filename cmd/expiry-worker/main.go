package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/audit"
	"github.com/hackgods/banquet-slot-booking/internal/booking"
	"github.com/hackgods/banquet-slot-booking/internal/clock"
	"github.com/hackgods/banquet-slot-booking/internal/config"
	"github.com/hackgods/banquet-slot-booking/internal/db"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
	"github.com/hackgods/banquet-slot-booking/internal/inventory"
	"github.com/hackgods/banquet-slot-booking/internal/logger"
	redisclient "github.com/hackgods/banquet-slot-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal("expiry-worker needs STORAGE_DRIVER=postgres; the memory driver reconciles inside api-server")
	}

	log.Info("expiry-worker starting up", zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	clk := clock.NewSystem()
	halls := hall.NewPgRepository(pgPool)
	recorder := audit.NewRecorder(audit.NewPgSink(pgPool), log)

	coord := inventory.NewCoordinator(inventory.NewPgStore(pgPool), halls, clk,
		inventory.WithHoldTTL(cfg.HoldTTL),
		inventory.WithMaxAttempts(cfg.CASMaxAttempts),
		inventory.WithRecorder(recorder),
		inventory.WithLogger(log),
	)
	svc := booking.NewService(booking.NewPgRepository(pgPool), coord, halls, db.NewTxRunner(pgPool), clk,
		booking.WithRecorder(recorder),
		booking.WithLogger(log),
		booking.WithInvoiceBasePath(cfg.InvoiceBasePath),
		booking.WithFinalizeGrace(cfg.FinalizeGrace),
	)

	locker := redisclient.NewLocker(rdb, cfg.LockTTL)
	reconciler := booking.NewReconciler(coord, svc, locker, log)

	// Run blocks until shutdown.
	reconciler.Run(rootCtx, cfg.WorkerInterval)
	log.Info("shutdown signal received, expiry worker stopped")
}
