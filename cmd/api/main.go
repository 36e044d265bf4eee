package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/explorable-research/explorable-backend/config"
	httpapi "github.com/explorable-research/explorable-backend/internal/api/http"
	"github.com/explorable-research/explorable-backend/internal/bootstrap"
	cronjob "github.com/explorable-research/explorable-backend/internal/explorables/cron"
)

const serviceName = "explorable-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
		Migrate:  true,
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	var (
		rdb       *redis.Client
		redisPing httpapi.Pinger
	)
	rdb, err = bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Printf("Redis unavailable, running without project locks and status events: %v", err)
	} else {
		defer rdb.Close()
		redisPing = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	caps, err := bootstrap.BuildCapabilities(ctx, cfg, db, rdb)
	if err != nil {
		log.Fatalf("capabilities: %v", err)
	}
	caps.Pipeline.Start(ctx)

	reaper := cronjob.NewScheduler(caps.Pipeline, cfg.App.ReaperSchedule, cfg.App.StaleProjectAfter)
	if err := reaper.Start(); err != nil {
		log.Fatalf("reaper: %v", err)
	}

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Version:     cfg.App.Version,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		DBPing:      db.Ping,
		RedisPing:   redisPing,
		Pipeline:    caps.Pipeline,
		Events:      caps.Events,
		Auth:        caps.Authenticator,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("%s %s listening on :%s", serviceName, cfg.App.Version, cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}

	reaper.Stop()
	caps.Pipeline.Stop()
	log.Println("Shut down cleanly")
}
