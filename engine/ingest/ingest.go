// Package ingest processes collected reviews through validation, cleaning,
// dish extraction, embedding, and vector storage stages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SweetPickAI/sweetpick/engine/collector"
	"github.com/SweetPickAI/sweetpick/engine/semantic"
	"github.com/SweetPickAI/sweetpick/pkg/cache"
	"github.com/SweetPickAI/sweetpick/pkg/embed"
	"github.com/SweetPickAI/sweetpick/pkg/fn"
	"github.com/SweetPickAI/sweetpick/pkg/llm"
	"github.com/SweetPickAI/sweetpick/pkg/natsutil"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject is the NATS subject for collected reviews.
	IngestSubject = "reviews.ingest"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "reviews.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// EmbedBatchSize is the max texts per embedding request.
	EmbedBatchSize = 100
)

// VectorWriter is the slice of the vector store the pipeline writes through.
type VectorWriter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Completer    llm.Completer
	Embedder     embed.Embedder
	Dishes       VectorWriter
	Restaurants  VectorWriter
	DeduplicateF func(ctx context.Context, docID string) (bool, error) // returns true if already ingested
	Logger       *slog.Logger
}

// --- Pipeline stages ---

// Validate gates a collected review at pipeline entry.
var Validate fn.Stage[collector.Review, collector.Review] = func(_ context.Context, review collector.Review) fn.Result[collector.Review] {
	if err := review.Validate(); err != nil {
		return fn.Err[collector.Review](err)
	}
	return fn.Ok(review)
}

// Clean normalizes review text and isolates food-bearing sentences.
var Clean fn.Stage[collector.Review, CleanedReview] = fn.MapStage(cleanedFromReview)

// NewEmbed creates the stage that embeds each dish mention plus the
// restaurant itself.
func NewEmbed(embedder embed.Embedder) fn.Stage[ScoredReview, EmbeddedReview] {
	return func(ctx context.Context, sr ScoredReview) fn.Result[EmbeddedReview] {
		texts := make([]string, 0, len(sr.Mentions)+1)
		for _, m := range sr.Mentions {
			texts = append(texts, dishText(m, sr.Restaurant))
		}
		texts = append(texts, restaurantText(sr.Restaurant))

		vectors := make([][]float32, 0, len(texts))
		for _, chunk := range fn.Chunk(texts, EmbedBatchSize) {
			batch, err := embedder.EmbedBatch(ctx, chunk)
			if err != nil {
				return fn.Err[EmbeddedReview](fmt.Errorf("embed batch: %w", err))
			}
			vectors = append(vectors, batch...)
		}

		return fn.Ok(EmbeddedReview{
			ScoredReview:     sr,
			DishVectors:      vectors[:len(sr.Mentions)],
			RestaurantVector: vectors[len(sr.Mentions)],
		})
	}
}

func dishText(m DishMention, r collector.Restaurant) string {
	parts := []string{m.DishName, "at", r.Name}
	if r.City != "" {
		parts = append(parts, "in", r.City)
	}
	return strings.Join(parts, " ")
}

func restaurantText(r collector.Restaurant) string {
	parts := []string{r.Name}
	if r.CuisineType != "" {
		parts = append(parts, r.CuisineType)
	}
	parts = append(parts, "restaurant")
	if r.Neighborhood != "" {
		parts = append(parts, "in", r.Neighborhood+",", r.City)
	} else if r.City != "" {
		parts = append(parts, "in", r.City)
	}
	return strings.Join(parts, " ")
}

// NewStore creates the stage that upserts dish and restaurant points.
// Point IDs are deterministic so re-ingesting a review overwrites rather
// than duplicates.
func NewStore(dishes, restaurants VectorWriter) fn.Stage[EmbeddedReview, string] {
	return func(ctx context.Context, er EmbeddedReview) fn.Result[string] {
		r := er.Restaurant

		dishRecords := make([]semantic.VectorRecord, len(er.Mentions))
		for i, m := range er.Mentions {
			dishRecords[i] = semantic.VectorRecord{
				ID:        pointID("dish", r.ID+"/"+m.NormalizedName),
				Embedding: er.DishVectors[i],
				Payload: map[string]any{
					"dish_name":            m.DishName,
					"normalized_dish_name": m.NormalizedName,
					"restaurant_id":        r.ID,
					"restaurant_name":      r.Name,
					"city":                 r.City,
					"neighborhood":         r.Neighborhood,
					"cuisine_type":         r.CuisineType,
					"sentiment_score":      m.SentimentScore,
					"recommendation_score": m.RecommendationScore,
					"final_score":          m.FinalScore,
					"rating":               r.Rating,
					"source":               er.Source,
				},
			}
		}
		if len(dishRecords) > 0 {
			if err := dishes.Upsert(ctx, dishRecords); err != nil {
				return fn.Err[string](fmt.Errorf("dish upsert: %w", err))
			}
		}

		restaurantRecord := semantic.VectorRecord{
			ID:        pointID("restaurant", r.ID),
			Embedding: er.RestaurantVector,
			Payload: map[string]any{
				"restaurant_id":   r.ID,
				"restaurant_name": r.Name,
				"city":            r.City,
				"neighborhood":    r.Neighborhood,
				"cuisine_type":    r.CuisineType,
				"rating":          r.Rating,
				"review_count":    r.ReviewCount,
				"price_range":     r.PriceRange,
			},
		}
		if err := restaurants.Upsert(ctx, []semantic.VectorRecord{restaurantRecord}); err != nil {
			return fn.Err[string](fmt.Errorf("restaurant upsert: %w", err))
		}

		return fn.Ok(er.DocID())
	}
}

func pointID(kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(kind+":"+key)).String()
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
func NewPipeline(deps Deps) fn.Stage[collector.Review, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	// Compose: Validate → Clean → Extract → Embed → Store
	// with logging taps between stages.
	validated := fn.Then(LoggedTap[collector.Review]("validate", log), Validate)
	cleaned := fn.Then(validated, fn.Then(LoggedTap[collector.Review]("clean", log), Clean))
	scored := fn.Then(cleaned, fn.Then(LoggedTap[CleanedReview]("extract", log), NewExtract(deps.Completer, log)))
	embedded := fn.Then(scored, fn.Then(LoggedTap[ScoredReview]("embed", log), NewEmbed(deps.Embedder)))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedReview]("store", log), NewStore(deps.Dishes, deps.Restaurants)))

	return stored
}

// CacheDedup builds a DeduplicateF backed by the shared cache. The first call
// for a doc ID marks it ingested for ttl.
func CacheDedup(c cache.Client, ttl time.Duration) func(ctx context.Context, docID string) (bool, error) {
	return func(ctx context.Context, docID string) (bool, error) {
		key := cache.Key("ingested", docID)
		if _, err := c.Get(ctx, key); err == nil {
			return true, nil
		} else if err != cache.ErrMiss {
			return false, err
		}
		return false, c.Set(ctx, key, []byte("1"), ttl)
	}
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Review  collector.Review `json:"review"`
	Error   string           `json:"error"`
	Retries int              `json:"retries"`
}

// StartConsumer starts a NATS consumer that runs collected reviews through
// the ingestion pipeline with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var review collector.Review
		if err := json.Unmarshal(msg.Data, &review); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := natsutil.ExtractContext(msg)

		if deps.DeduplicateF != nil {
			exists, err := deps.DeduplicateF(ctx, review.DocID())
			if err != nil {
				log.Warn("ingest: dedup check failed", "error", err)
			} else if exists {
				log.Info("ingest: skipping duplicate", "doc_id", review.DocID())
				if msg.Reply != "" {
					_ = msg.Ack()
				}
				return
			}
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, review)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"doc_id", review.DocID(),
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{
					Review:  review,
					Error:   pipeErr.Error(),
					Retries: retries,
				}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(IngestSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			docID, _ := result.Unwrap()
			log.Info("ingest: success", "doc_id", docID)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
