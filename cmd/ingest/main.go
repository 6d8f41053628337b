// Command ingest consumes collected reviews from NATS and runs them through
// the ingestion pipeline into Qdrant.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/SweetPickAI/sweetpick/engine/ingest"
	"github.com/SweetPickAI/sweetpick/engine/semantic"
	"github.com/SweetPickAI/sweetpick/pkg/cache"
	"github.com/SweetPickAI/sweetpick/pkg/embed"
	"github.com/SweetPickAI/sweetpick/pkg/llm"
	"github.com/SweetPickAI/sweetpick/pkg/metrics"
	"github.com/nats-io/nats.go"
)

var met = metrics.New()

// Ingest metrics
var (
	mReviewsTotal  = met.Counter("sweetpick_ingest_reviews_total", "Reviews consumed from the ingest subject")
	mDedupHits     = met.Counter("sweetpick_ingest_dedup_hits_total", "Reviews skipped as already ingested")
	mDishWrites    = met.Counter("sweetpick_ingest_dish_writes_total", "Dish points upserted")
	mRestWrites    = met.Counter("sweetpick_ingest_restaurant_writes_total", "Restaurant points upserted")
	mEmbedCalls    = met.Counter("sweetpick_ingest_embed_calls_total", "Embedding batches requested")
	mEmbedDuration = met.Histogram("sweetpick_ingest_embed_duration_seconds", "Embedding batch latency", nil)
)

func main() {
	var (
		natsURL    = flag.String("nats", nats.DefaultURL, "NATS server URL")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		redisAddr  = flag.String("redis", "localhost:6379", "Redis address for cache and dedup")
		chatModel  = flag.String("model", "gpt-4o-mini", "chat model for dish extraction")
		embedModel = flag.String("embed-model", "text-embedding-3-small", "embedding model")
		dedupTTL   = flag.Duration("dedup-ttl", 30*24*time.Hour, "how long a review is considered already ingested")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	met.ServeAsync(9091)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Cache backs both embedding memoization and review dedup.
	var store cache.Client
	redis, err := cache.NewRedis(cache.RedisConfig{Addr: *redisAddr})
	if err != nil {
		log.Warn("redis unavailable, dedup is per-process only", "error", err)
		store = cache.NewMemory(100_000)
	} else {
		store = redis
	}
	defer store.Close()

	// Connect Qdrant
	dishes, err := semantic.New(*qdrantAddr, semantic.CollectionDishes)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer dishes.Close()
	restaurants, err := semantic.New(*qdrantAddr, semantic.CollectionRestaurants)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer restaurants.Close()
	if err := dishes.EnsureCollection(ctx, embed.Dim); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	if err := restaurants.EnsureCollection(ctx, embed.Dim); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant",
		"dishes", semantic.CollectionDishes,
		"restaurants", semantic.CollectionRestaurants,
		"dims", embed.Dim)

	// Model clients. Without an API key extraction degrades to the lexical
	// vocabulary, which is fine for local runs.
	apiKey := os.Getenv("OPENAI_API_KEY")
	var completer llm.Completer
	if apiKey != "" {
		c, err := llm.NewClient(llm.Config{APIKey: apiKey, Model: *chatModel}, log)
		if err != nil {
			log.Error("llm client failed", "error", err)
			os.Exit(1)
		}
		// Bulk extraction can burst well past provider limits without a
		// client-side throttle.
		completer = llm.NewThrottled(c, 2, 4)
	} else {
		log.Warn("OPENAI_API_KEY not set, using lexical dish extraction")
	}
	embedder := embed.NewCached(
		embed.NewClient(embed.Config{APIKey: apiKey, Model: *embedModel}),
		store, *embedModel, 7*24*time.Hour)

	// Connect NATS
	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	dedup := ingest.CacheDedup(store, *dedupTTL)
	deps := ingest.Deps{
		Completer:   completer,
		Embedder:    &timedEmbedder{inner: embedder},
		Dishes:      &countingWriter{inner: dishes, counter: mDishWrites},
		Restaurants: &countingWriter{inner: restaurants, counter: mRestWrites},
		DeduplicateF: func(ctx context.Context, docID string) (bool, error) {
			mReviewsTotal.Inc()
			seen, err := dedup(ctx, docID)
			if seen {
				mDedupHits.Inc()
			}
			return seen, err
		},
		Logger: log,
	}

	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		log.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("ingest worker running", "subject", ingest.IngestSubject, "dlq", ingest.DLQSubject)
	<-ctx.Done()
	log.Info("shutting down")
}

// countingWriter counts upserted points per collection.
type countingWriter struct {
	inner   ingest.VectorWriter
	counter *metrics.Counter
}

func (w *countingWriter) Upsert(ctx context.Context, records []semantic.VectorRecord) error {
	if err := w.inner.Upsert(ctx, records); err != nil {
		return err
	}
	w.counter.Add(int64(len(records)))
	return nil
}

// timedEmbedder records embedding batch latency.
type timedEmbedder struct {
	inner embed.Embedder
}

func (e *timedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *timedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	mEmbedCalls.Inc()
	start := time.Now()
	defer mEmbedDuration.Since(start)
	return e.inner.EmbedBatch(ctx, texts)
}
