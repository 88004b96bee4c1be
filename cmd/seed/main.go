package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/auth"
	"github.com/hackgods/banquet-slot-booking/internal/config"
	"github.com/hackgods/banquet-slot-booking/internal/db"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
	"github.com/hackgods/banquet-slot-booking/internal/logger"
)

func main() {
	hallCount := envInt("SEED_HALLS", 12)
	customers := envInt("SEED_CUSTOMERS", 3)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("seed starting", zap.Int("halls", hallCount))

	faker := gofakeit.New(0)

	if cfg.StorageDriver == config.StoragePostgres {
		if err := seedHalls(context.Background(), cfg, faker, hallCount, log); err != nil {
			log.Fatal("seed halls", zap.Error(err))
		}
	} else {
		log.Info("memory driver selected, skipping hall seeding")
	}

	if err := printTokens(cfg, faker, customers); err != nil {
		log.Fatal("issue tokens", zap.Error(err))
	}

	log.Info("seed complete")
}

func seedHalls(ctx context.Context, cfg config.Config, faker *gofakeit.Faker, count int, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	repo := hall.NewPgRepository(pool)
	for _, h := range hall.Generate(faker, count) {
		if err := repo.InsertHall(ctx, h); err != nil {
			return err
		}
		log.Info("hall seeded",
			zap.Stringer("hall_id", h.ID),
			zap.String("name", h.Name),
			zap.String("tier", string(h.Tier)),
			zap.Int64("slot_price", h.SlotPrice),
		)
	}
	return nil
}

// printTokens mints development tokens for one user per admin tier and
// a handful of customers.
func printTokens(cfg config.Config, faker *gofakeit.Faker, customers int) error {
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	type user struct {
		name string
		role auth.Role
	}
	users := []user{
		{"admin1", auth.RoleAdmin1},
		{"admin2", auth.RoleAdmin2},
		{"superadmin", auth.RoleSuperAdmin},
	}
	for i := 0; i < customers; i++ {
		users = append(users, user{faker.Username(), auth.RoleCustomer})
	}

	fmt.Println("# development tokens, valid for", cfg.TokenTTL)
	for _, u := range users {
		id := uuid.New()
		tok, err := tokens.Issue(auth.Actor{UserID: id, Role: u.role})
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %-11s %s\n%s\n\n", u.name, u.role, id, tok)
	}
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
