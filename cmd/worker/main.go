package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/phishly/phishly/internal/config"
	"github.com/phishly/phishly/internal/mailing"
	"github.com/phishly/phishly/internal/scheduler"
	"github.com/phishly/phishly/internal/token"
	"github.com/phishly/phishly/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("ping database: %v", err)
	}
	cancel()
	log.Println("Connected to database")

	// Redis is optional. Without it the scheduler falls back to advisory
	// locks and the send pool runs without a global rate limit.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rc.Ping(pingCtx).Err(); err != nil {
		log.Printf("Redis unavailable (%v), using database fallbacks", err)
		rc.Close()
	} else {
		redisClient = rc
		log.Println("Connected to Redis")
	}
	pingCancel()

	sched := scheduler.New(db, token.NewGenerator(cfg.Tracking.Secret))
	sched.SetRedisClient(redisClient)
	if err := sched.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}

	renderer := mailing.NewRenderer(mailing.NewTemplateService(), cfg.Tracking.Domain)
	limiter := worker.NewRateLimiter(redisClient, cfg.Dispatch.SendsPerSecond)
	pool := worker.NewSendPool(db, mailing.NewSMTPSender(cfg.SMTP), renderer, limiter, cfg.Dispatch.Workers)
	pool.SetPollInterval(cfg.Dispatch.PollInterval())
	pool.Start()

	log.Printf("Dispatch running: %d send workers, %d sends/sec", cfg.Dispatch.Workers, cfg.Dispatch.SendsPerSecond)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	pool.Stop()
	sched.Stop()
	if redisClient != nil {
		redisClient.Close()
	}

	stats := pool.Stats()
	log.Printf("Dispatch stopped: sent=%d failed=%d retried=%d",
		stats["sent"], stats["failed"], stats["retried"])
}
