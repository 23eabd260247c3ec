package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentauth/agentauth/internal/api"
	"github.com/agentauth/agentauth/internal/challenge"
	"github.com/agentauth/agentauth/internal/config"
	"github.com/agentauth/agentauth/internal/engine"
	"github.com/agentauth/agentauth/internal/events"
	"github.com/agentauth/agentauth/internal/middleware"
	"github.com/agentauth/agentauth/internal/monitoring"
	"github.com/agentauth/agentauth/internal/store"
)

func main() {
	// Local development convenience; production sets real env vars.
	_ = godotenv.Load()

	configPath := os.Getenv("AGENTAUTH_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	challengeStore, cleanup, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Store.Backend, err)
	}
	defer cleanup()
	log.Printf("🗄️  Challenge store: %s", cfg.Store.Backend)

	eng := engine.NewEngine(engine.Config{
		Secret:          cfg.Challenge.Secret,
		TTLSeconds:      cfg.Challenge.TTLSeconds,
		TokenTTLSeconds: cfg.Challenge.TokenTTLSeconds,
		Difficulty:      challenge.Difficulty(cfg.Challenge.Difficulty),
		MinScore:        cfg.Challenge.MinScore,
		Pomi: engine.PomiConfig{
			Enabled:             cfg.Pomi.Enabled,
			CanaryCount:         cfg.Pomi.CanaryCount,
			ConfidenceThreshold: cfg.Pomi.ConfidenceThreshold,
			ModelFamilies:       cfg.Pomi.ModelFamilies,
		},
		Timing: engine.TimingSettings{
			Enabled:        cfg.Timing.Enabled,
			SessionTracker: cfg.Timing.SessionTracker,
			Config:         &cfg.Timing.Thresholds,
		},
	}, challengeStore)

	opts := &api.Options{
		Metrics: monitoring.NewMetrics(),
		Limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			MaxCallsPerMinute: cfg.RateLimit.MaxCallsPerMinute,
			BurstSize:         cfg.RateLimit.BurstSize,
		}),
	}
	if cfg.Monitor.EnableLiveStream && cfg.Monitor.AdminKeyHash != "" {
		opts.Hub = events.NewHub(cfg.Monitor.AdminKeyHash)
		log.Printf("📡 Live verdict stream enabled at /v1/monitor/live")
	}

	server := api.NewServer(eng, opts).HTTPServer(cfg.Server.Port)

	// Graceful shutdown on SIGTERM/SIGINT
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 AgentAuth server starting on port %s (env=%s)", cfg.Server.Port, cfg.Server.Env)
	log.Printf("📊 Health check: http://localhost:%s/health", cfg.Server.Port)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

func buildStore(cfg *config.Config) (store.ChallengeStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Store.Backend {
	case "redis":
		s, err := store.NewRedisStore(ctx, cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}
