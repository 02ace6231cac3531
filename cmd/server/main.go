package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/bracketline/eventserve/internal/analytics"
	"github.com/bracketline/eventserve/internal/api"
	"github.com/bracketline/eventserve/internal/bundle"
	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/diag"
	"github.com/bracketline/eventserve/internal/event"
	"github.com/bracketline/eventserve/internal/guard"
	"github.com/bracketline/eventserve/internal/pkg/distlock"
	"github.com/bracketline/eventserve/internal/qr"
	"github.com/bracketline/eventserve/internal/shortlink"
	"github.com/bracketline/eventserve/internal/store"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("eventserve — multi-tenant event runtime")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	registry := config.NewRegistry(cfg)

	// Postgres
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}
	pingCancel()

	st := store.New(db)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("Schema setup failed: %v", err)
	}
	log.Println("Database connected, schema verified")

	// Redis is optional: without it, caching falls back to in-process memory
	// and locks to PG advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — falling back to in-memory cache and PG advisory locks", cfg.Redis.Addr, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", cfg.Redis.Addr)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured — using in-memory cache and PG advisory locks")
	}

	var appCache cache.Cache
	if redisClient != nil {
		appCache = cache.NewRedis(redisClient)
	} else {
		appCache = cache.NewMemory()
	}

	locks := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, ttl)
	}

	// SQS analytics pipeline is optional: without a queue, ingest writes
	// straight to Postgres.
	var publisher *analytics.Publisher
	var consumer *analytics.Consumer
	if cfg.Analytics.QueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Printf("Warning: AWS config for SQS failed: %v — analytics writes go direct", err)
		} else {
			sqsClient := sqs.NewFromConfig(awsCfg)
			publisher = analytics.NewPublisher(sqsClient, cfg.Analytics.QueueURL)
			consumer = analytics.NewConsumer(sqsClient, cfg.Analytics.QueueURL, st)
			consumer.Start(ctx)
		}
	}

	renderer := qr.NewHTTPRenderer(cfg.QR.BaseURL, time.Duration(cfg.QR.TimeoutSeconds)*time.Second, appCache)

	ingest := analytics.NewIngest(st, publisher)
	reporter := analytics.NewReporter(st)
	events := event.NewService(st, registry, appCache, locks, renderer)
	bundles := bundle.New(events, reporter, registry)
	shortlinks := shortlink.New(st, registry, ingest)
	diagLog := diag.New(st, appCache)

	server := api.NewServer(api.Deps{
		Registry:   registry,
		Store:      st,
		Events:     events,
		Bundles:    bundles,
		Shortlinks: shortlinks,
		Ingest:     ingest,
		Reporter:   reporter,
		CSRF:       guard.NewCSRF(appCache, locks),
		Limiter:    guard.NewRateLimiter(appCache),
		Diag:       diagLog,
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s:%d (build %s)", host, port, cfg.Build)
		errCh <- server.Start(ctx, host, port)
	}()

	select {
	case <-done:
		log.Println("Shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}

	cancel()
	if consumer != nil {
		consumer.Stop()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Server stopped")
}
