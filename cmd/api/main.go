// Package main implements the SweetPick API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SweetPickAI/sweetpick/engine/domain"
	"github.com/SweetPickAI/sweetpick/engine/fallback"
	"github.com/SweetPickAI/sweetpick/engine/location"
	"github.com/SweetPickAI/sweetpick/engine/queryparse"
	"github.com/SweetPickAI/sweetpick/engine/recommend"
	"github.com/SweetPickAI/sweetpick/engine/retrieval"
	"github.com/SweetPickAI/sweetpick/engine/scope"
	"github.com/SweetPickAI/sweetpick/engine/semantic"
	"github.com/SweetPickAI/sweetpick/pkg/cache"
	"github.com/SweetPickAI/sweetpick/pkg/embed"
	"github.com/SweetPickAI/sweetpick/pkg/llm"
	"github.com/SweetPickAI/sweetpick/pkg/metrics"
	"github.com/SweetPickAI/sweetpick/pkg/mid"
	"github.com/SweetPickAI/sweetpick/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	OpenAIKey    string
	OpenAIBase   string
	ChatModel    string
	EmbedModel   string
	QdrantURL    string
	RedisURL     string
	CORSOrigin   string
	RateLimitRPS float64
}

func loadConfig() Config {
	rps := 5.0
	fmt.Sscanf(envOr("RATE_LIMIT_RPS", "5"), "%f", &rps)
	return Config{
		Port:         envOr("PORT", "8080"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBase:   os.Getenv("OPENAI_BASE_URL"),
		ChatModel:    envOr("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		EmbedModel:   envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		RedisURL:     envOr("REDIS_URL", "localhost:6379"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		RateLimitRPS: rps,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Shared cache (Redis, degrading to in-process) ---
	var store cache.Client
	redis, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.RedisURL})
	if err != nil {
		logger.Warn("redis unavailable, using in-process cache", "err", err)
		store = cache.NewMemory(10_000)
	} else {
		store = redis
	}
	defer store.Close()

	// --- Model clients ---
	completer, err := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.OpenAIBase,
		Model:   cfg.ChatModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	embedder := embed.NewCached(embed.NewClient(embed.Config{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.OpenAIBase,
		Model:   cfg.EmbedModel,
	}), store, cfg.EmbedModel, 24*time.Hour)

	// --- Vector stores ---
	dishes, err := semantic.New(cfg.QdrantURL, semantic.CollectionDishes)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer dishes.Close()
	restaurants, err := semantic.New(cfg.QdrantURL, semantic.CollectionRestaurants)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer restaurants.Close()
	if err := dishes.EnsureCollection(ctx, embed.Dim); err != nil {
		return fmt.Errorf("ensure dishes collection: %w", err)
	}
	if err := restaurants.EnsureCollection(ctx, embed.Dim); err != nil {
		return fmt.Errorf("ensure restaurants collection: %w", err)
	}

	// --- Build pipeline ---
	registry := metrics.New()
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	parser := queryparse.NewParser(completer, location.NewResolver(), store, logger)
	retriever := retrieval.NewEngine(dishes, restaurants, embedder, breaker, retrieval.Options{}, logger)
	generator := fallback.NewHandler(completer, logger)
	svc := recommend.New(parser, scope.NewValidator(), retriever, generator,
		store, recommend.DefaultOptions(), registry, logger)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("POST /api/query", handleQuery(svc, logger))
	mux.Handle("GET /metrics", registry.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.RateLimit(mid.RateLimitOpts{RPS: cfg.RateLimitRPS, Burst: int(cfg.RateLimitRPS) * 2}),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("sweetpick-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func handleQuery(svc *recommend.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		resp, err := svc.Query(r.Context(), req.Query, req.MaxResults)
		if err != nil {
			if domain.IsSafetyRejection(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("query failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
