// Command brokerd runs the proving job broker: the HTTP façade, the metrics
// endpoint, and the in-process broker with its timeout sweeper. It follows
// the teacher's cmd/api and cmd/worker main.go shape — env-driven config,
// signal-triggered shutdown, deferred store close — combined into one
// process since the broker owns a single mutual-exclusion domain that must
// not be split across binaries.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"provingbroker/internal/api"
	"provingbroker/internal/artifacts"
	"provingbroker/internal/broker"
	"provingbroker/internal/config"
	"provingbroker/internal/ratelimit"
	"provingbroker/internal/store"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config overlay")
	flag.Parse()

	cfg := config.Load()
	if err := config.ApplyOverlay(&cfg, *configPath); err != nil {
		log.Fatalf("config overlay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	blobs, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		log.Fatalf("init artifact store: %v", err)
	}

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN, blobs)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgStore.Close()

	if err := pgStore.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	b := broker.New(broker.Config{
		JobTimeout:    cfg.JobTimeout,
		SweepInterval: cfg.SweepInterval,
		MaxRetries:    cfg.MaxRetries,
	}, pgStore)
	if err := b.Start(ctx); err != nil {
		log.Fatalf("recover broker state: %v", err)
	}
	defer b.Stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(cfg, b, limiter)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("brokerd listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("brokerd stopped: %v", err)
	}
}

// buildArtifactStore wires an S3-backed blob store when a bucket is
// configured, otherwise a local directory. Returning a nil Store is also
// valid — PostgresStore then stores every payload inline.
func buildArtifactStore(ctx context.Context, cfg config.Config) (artifacts.Store, error) {
	if cfg.ArtifactS3Bucket != "" {
		return artifacts.NewS3Store(ctx, artifacts.S3Config{
			Bucket:    cfg.ArtifactS3Bucket,
			Region:    cfg.ArtifactS3Region,
			Endpoint:  cfg.ArtifactS3Endpoint,
			PathStyle: cfg.ArtifactS3PathStyle,
			KeyPrefix: "provingbroker",
		})
	}
	return artifacts.NewLocalStore(cfg.ArtifactLocalDir)
}
