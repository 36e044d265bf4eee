package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/explorable-research/explorable-backend/config"
	"github.com/explorable-research/explorable-backend/internal/bootstrap"
)

// runtime holds the connections a worker command opened.
type runtime struct {
	cfg  *config.Config
	db   *pgxpool.Pool
	rdb  *redis.Client
	caps *bootstrap.Capabilities
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, db: db}
	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Printf("Redis unavailable, continuing without project locks: %v", err)
	} else {
		rt.rdb = rdb
	}

	rt.caps, err = bootstrap.BuildCapabilities(ctx, cfg, db, rt.rdb)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.rdb != nil {
		_ = rt.rdb.Close()
	}
	rt.db.Close()
}
