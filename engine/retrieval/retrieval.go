// Package retrieval runs scoped vector search over the dish and restaurant
// collections and shapes the hits into ranked recommendations.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/SweetPickAI/sweetpick/engine/domain"
	"github.com/SweetPickAI/sweetpick/engine/queryparse"
	"github.com/SweetPickAI/sweetpick/engine/semantic"
	"github.com/SweetPickAI/sweetpick/engine/textnorm"
	"github.com/SweetPickAI/sweetpick/pkg/fn"
	"github.com/SweetPickAI/sweetpick/pkg/resilience"
)

// VectorSearcher is the slice of the semantic store retrieval needs.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, topK int, filters semantic.Filters) ([]semantic.Hit, error)
}

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options tunes the engine. Zero values take defaults.
type Options struct {
	// SearchTimeout bounds one end-to-end retrieval including embedding.
	SearchTimeout time.Duration
	// Overfetch multiplies max_results on the store query so dedup and the
	// neighborhood filter still leave enough candidates.
	Overfetch int
}

// Engine executes retrieval for in-scope queries. Store calls run through a
// circuit breaker so a down vector store fails fast instead of stacking
// timeouts.
type Engine struct {
	dishes      VectorSearcher
	restaurants VectorSearcher
	embedder    Embedder
	breaker     *resilience.Breaker
	opts        Options
	log         *slog.Logger
}

func NewEngine(dishes, restaurants VectorSearcher, embedder Embedder, breaker *resilience.Breaker, opts Options, log *slog.Logger) *Engine {
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 8 * time.Second
	}
	if opts.Overfetch <= 0 {
		opts.Overfetch = 2
	}
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	return &Engine{
		dishes:      dishes,
		restaurants: restaurants,
		embedder:    embedder,
		breaker:     breaker,
		opts:        opts,
		log:         log,
	}
}

// Retrieve returns up to maxResults recommendations for an in-scope parsed
// query. An empty slice with a nil error is a valid outcome; only
// infrastructure failures return an error.
func (e *Engine) Retrieve(ctx context.Context, parsed domain.ParsedQuery, maxResults int) ([]domain.Recommendation, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
	defer cancel()

	vector, err := e.embedder.Embed(ctx, buildQueryText(parsed))
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	topK := maxResults * e.opts.Overfetch
	filters := buildFilters(parsed)

	primary, secondary := e.dishes, e.restaurants
	primaryType, secondaryType := domain.RecDish, domain.RecRestaurant
	if searchesRestaurantsFirst(parsed.QueryType) {
		primary, secondary = e.restaurants, e.dishes
		primaryType, secondaryType = domain.RecRestaurant, domain.RecDish
	}

	hits, err := e.search(ctx, primary, vector, topK, filters)
	if err != nil {
		return nil, err
	}
	recs := toRecommendations(hits, primaryType)

	// Backfill from the other collection when the primary one came up short.
	if len(recs) < maxResults {
		more, err := e.search(ctx, secondary, vector, topK, filters)
		if err != nil {
			e.log.Warn("backfill search failed", "error", err)
		} else {
			recs = append(recs, toRecommendations(more, secondaryType)...)
		}
	}

	recs = Dedup(recs)
	SortByScore(recs)
	recs = filterNeighborhood(recs, parsed.Neighborhood, e.log)

	if len(recs) > maxResults {
		recs = recs[:maxResults]
	}
	return recs, nil
}

func (e *Engine) search(ctx context.Context, store VectorSearcher, vector []float32, topK int, filters semantic.Filters) ([]semantic.Hit, error) {
	var hits []semantic.Hit
	err := e.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		hits, err = store.Search(ctx, vector, topK, filters)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	return hits, nil
}

// buildQueryText assembles the text to embed from whatever the parser found.
// Generic dish terms are widened to indexed variants so "biryani" lands near
// dishes stored under their full names.
func buildQueryText(p domain.ParsedQuery) string {
	var parts []string
	if p.DishName != "" {
		parts = append(parts, queryparse.ExpandDishName(p.DishName)...)
	}
	if p.CuisineType != "" {
		parts = append(parts, p.CuisineType+" food")
	}
	if p.RestaurantName != "" {
		parts = append(parts, "at "+p.RestaurantName)
	}
	if p.MealType != "" {
		parts = append(parts, p.MealType)
	}
	if p.Location != "" {
		parts = append(parts, "in "+p.Location)
	}
	if len(parts) == 0 {
		parts = append(parts, "popular dishes and restaurants")
	}
	return strings.Join(parts, " ")
}

func buildFilters(p domain.ParsedQuery) semantic.Filters {
	f := semantic.Filters{}
	if p.LocationStatus == domain.LocationSupported {
		f.City = p.Location
	}
	if domain.IsCoreCuisine(p.CuisineType) {
		f.Cuisine = p.CuisineType
	}
	if p.QueryType == domain.QueryRestaurantSpecific && p.RestaurantName != "" {
		f.Restaurant = p.RestaurantName
	}
	return f
}

func searchesRestaurantsFirst(qt domain.QueryType) bool {
	switch qt {
	case domain.QueryLocationGeneral, domain.QueryMealType, domain.QueryUnknown:
		return true
	}
	return false
}

func toRecommendations(hits []semantic.Hit, recType string) []domain.Recommendation {
	recs := make([]domain.Recommendation, 0, len(hits))
	for _, h := range hits {
		recs = append(recs, domain.Recommendation{
			Type:                recType,
			DishName:            h.String("dish_name"),
			RestaurantName:      h.String("restaurant_name"),
			RestaurantID:        h.String("restaurant_id"),
			Location:            h.String("city"),
			Neighborhood:        h.String("neighborhood"),
			CuisineType:         h.String("cuisine_type"),
			SentimentScore:      h.Float("sentiment_score"),
			RecommendationScore: h.Float("recommendation_score"),
			FinalScore:          h.Float("final_score"),
			HasFinalScore:       h.Has("final_score"),
			RestaurantRating:    h.Float("rating"),
			Confidence:          clamp01(float64(h.Score)),
			Source:              domain.SourceHybrid,
		})
	}
	return recs
}

// Dedup drops repeated (dish, restaurant) pairs, keeping the first occurrence
// in merge order. Dish names are normalized before comparison so casing and
// shorthand differences do not slip duplicates through.
func Dedup(recs []domain.Recommendation) []domain.Recommendation {
	return fn.UniqueBy(recs, func(r domain.Recommendation) [2]string {
		return [2]string{textnorm.NormalizeDishName(r.DishName), r.RestaurantID}
	})
}

// SortByScore orders recommendations by final score when stored, otherwise
// recommendation score, descending. Equal scores keep their merge order;
// restaurant rating only breaks ties between candidates carrying no scores at
// all, so rankings are reproducible.
func SortByScore(recs []domain.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		si, sj := recs[i].SortScore(), recs[j].SortScore()
		if si != sj {
			return si > sj
		}
		if scoreless(recs[i]) && scoreless(recs[j]) {
			return recs[i].RestaurantRating > recs[j].RestaurantRating
		}
		return false
	})
}

func scoreless(r domain.Recommendation) bool {
	return !r.HasFinalScore && r.RecommendationScore == 0
}

// filterNeighborhood drops candidates whose stored neighborhood does not
// contain the requested one. Mismatches are a data-quality signal, not an
// error.
func filterNeighborhood(recs []domain.Recommendation, neighborhood string, log *slog.Logger) []domain.Recommendation {
	if neighborhood == "" {
		return recs
	}
	want := strings.ToLower(neighborhood)
	out := recs[:0]
	for _, r := range recs {
		if strings.Contains(strings.ToLower(r.Neighborhood), want) {
			out = append(out, r)
			continue
		}
		log.Warn("dropping candidate outside requested neighborhood",
			"restaurant", r.RestaurantName,
			"candidate_neighborhood", r.Neighborhood,
			"requested", neighborhood)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
