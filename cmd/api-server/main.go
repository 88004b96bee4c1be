package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/api"
	"github.com/hackgods/banquet-slot-booking/internal/audit"
	"github.com/hackgods/banquet-slot-booking/internal/auth"
	"github.com/hackgods/banquet-slot-booking/internal/booking"
	"github.com/hackgods/banquet-slot-booking/internal/clock"
	"github.com/hackgods/banquet-slot-booking/internal/config"
	"github.com/hackgods/banquet-slot-booking/internal/db"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
	"github.com/hackgods/banquet-slot-booking/internal/idempotency"
	"github.com/hackgods/banquet-slot-booking/internal/inventory"
	"github.com/hackgods/banquet-slot-booking/internal/logger"
	redisclient "github.com/hackgods/banquet-slot-booking/internal/redis"
)

var version = "dev"

// storage is the set of backends selected by STORAGE_DRIVER.
type storage struct {
	halls    api.HallCatalog
	hallRepo booking.HallLookup
	invStore inventory.Store
	bookings booking.Repository
	sink     audit.Sink
	tx       db.TxRunner
	checks   []api.HealthCheck
	close    func()
}

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

	log.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageDriver),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("storage setup failed", zap.Error(err))
	}
	defer store.close()

	// Redis is required alongside Postgres. The memory driver runs without
	// it and keeps idempotency records in process.
	var rdb *redis.Client
	rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	switch {
	case err == nil:
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	case cfg.StorageDriver == config.StorageMemory:
		log.Warn("redis unavailable, continuing without it", zap.Error(err))
	default:
		log.Fatal("redis connection error", zap.Error(err))
	}

	var idem idempotency.Store = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	checks := store.checks
	if rdb != nil {
		idem = redisclient.NewIdempotencyStore(rdb, idempotency.DefaultTTL)
		checks = append(checks, api.RedisCheck(rdb))
	}

	clk := clock.NewSystem()
	recorder := audit.NewRecorder(store.sink, log)

	coord := inventory.NewCoordinator(store.invStore, store.hallRepo, clk,
		inventory.WithHoldTTL(cfg.HoldTTL),
		inventory.WithMaxAttempts(cfg.CASMaxAttempts),
		inventory.WithRecorder(recorder),
		inventory.WithLogger(log),
	)
	svc := booking.NewService(store.bookings, coord, store.hallRepo, store.tx, clk,
		booking.WithRecorder(recorder),
		booking.WithLogger(log),
		booking.WithInvoiceBasePath(cfg.InvoiceBasePath),
		booking.WithFinalizeGrace(cfg.FinalizeGrace),
	)

	// With in-process storage no separate worker can reach the data, so the
	// reconciler runs here.
	if cfg.StorageDriver == config.StorageMemory {
		reconciler := booking.NewReconciler(coord, svc, nil, log)
		go reconciler.Run(rootCtx, cfg.WorkerInterval)
	}

	handler := api.NewRouter(api.RouterConfig{
		Halls:       store.halls,
		Inventory:   coord,
		Bookings:    svc,
		Tokens:      auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		Idempotency: idem,
		Checks:      checks,
		Logger:      log,
		Env:         cfg.Env,
		Version:     version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		halls := hall.NewMemoryRepository(hall.Generate(gofakeit.New(0), 6)...)
		list, _ := halls.ListHalls(ctx)
		for _, h := range list {
			log.Info("demo hall", zap.Stringer("hall_id", h.ID), zap.String("name", h.Name), zap.String("tier", string(h.Tier)))
		}
		return &storage{
			halls:    halls,
			hallRepo: halls,
			invStore: inventory.NewMemoryStore(),
			bookings: booking.NewMemoryRepository(),
			sink:     audit.NewMemorySink(),
			tx:       db.NoTx{},
			close:    func() {},
		}, nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	log.Info("connected to Postgres")

	if err := db.Migrate(pgCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	halls := hall.NewPgRepository(pool)
	return &storage{
		halls:    halls,
		hallRepo: halls,
		invStore: inventory.NewPgStore(pool),
		bookings: booking.NewPgRepository(pool),
		sink:     audit.NewPgSink(pool),
		tx:       db.NewTxRunner(pool),
		checks:   []api.HealthCheck{api.PostgresCheck(pool)},
		close:    pool.Close,
	}, nil
}
