// Package bootstrap wires the runtime dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"confessions/internal/cache"
	"confessions/internal/config"
	"confessions/internal/database"
	"confessions/internal/middleware"
	"confessions/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty store with generated confessions. Only honored
	// outside production.
	SeedDemo bool
}

// InitRuntime connects to DB and Redis and optionally seeds demo data.
// The Redis client is nil when Redis is unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	middleware.Logger = middleware.NewLogger(cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.SeedDemo && !cfg.IsProduction() {
		if err := seedIfEmpty(context.Background(), db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo confessions: %w", err)
		}
	}

	return db, r, nil
}

func seedIfEmpty(ctx context.Context, db *gorm.DB) error {
	opts := seed.DefaultOptions()
	opts.Clean = false
	s := seed.NewSeeder(db, opts)

	var n int64
	if err := db.WithContext(ctx).Table("confessions").Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		middleware.Logger.Info("store already has confessions, skipping demo seed", slog.Int64("count", n))
		return nil
	}
	_, err := s.SeedConfessions(ctx)
	return err
}
