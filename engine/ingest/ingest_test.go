package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/SweetPickAI/sweetpick/engine/collector"
	"github.com/SweetPickAI/sweetpick/engine/semantic"
	"github.com/SweetPickAI/sweetpick/pkg/cache"
)

type mockCompleter struct {
	reply string
	err   error
	calls int
}

func (m *mockCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	m.calls++
	return m.reply, m.err
}

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i])), 1}
	}
	return vecs, nil
}

type mockWriter struct {
	records []semantic.VectorRecord
	err     error
	calls   int
}

func (m *mockWriter) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func testReview() collector.Review {
	return collector.Review{
		Source:   "yelp",
		SourceID: "rev-1",
		Restaurant: collector.Restaurant{
			ID: "rubirosa-nyc", Name: "Rubirosa", City: "Manhattan",
			Neighborhood: "Nolita", CuisineType: "Italian",
			Rating: 4.6, ReviewCount: 3200, PriceRange: 2,
		},
		Text:   "The vodka pizza was delicious and the tiramisu is amazing. Parking was rough.",
		Rating: 5,
	}
}

const extractReply = `[{"dish_name": "vodka pizza", "sentiment_score": 0.9}, {"dish_name": "tiramisu", "sentiment_score": 0.7}]`

func testDeps(completer *mockCompleter, dishes, restaurants *mockWriter) Deps {
	return Deps{
		Completer:   completer,
		Embedder:    &mockEmbedder{},
		Dishes:      dishes,
		Restaurants: restaurants,
		Logger:      discard(),
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	dishes := &mockWriter{}
	restaurants := &mockWriter{}
	pipeline := NewPipeline(testDeps(&mockCompleter{reply: extractReply}, dishes, restaurants))

	docID, err := pipeline(context.Background(), testReview()).Unwrap()
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if docID != "yelp:rev-1" {
		t.Errorf("doc id = %q", docID)
	}
	if len(dishes.records) != 2 {
		t.Fatalf("dish records = %d", len(dishes.records))
	}
	if len(restaurants.records) != 1 {
		t.Fatalf("restaurant records = %d", len(restaurants.records))
	}

	dish := dishes.records[0]
	for _, key := range []string{
		"dish_name", "restaurant_name", "restaurant_id", "city",
		"neighborhood", "cuisine_type", "sentiment_score",
		"recommendation_score", "final_score", "rating",
	} {
		if _, ok := dish.Payload[key]; !ok {
			t.Errorf("dish payload missing %q", key)
		}
	}
	if dish.Payload["restaurant_id"] != "rubirosa-nyc" {
		t.Errorf("restaurant_id = %v", dish.Payload["restaurant_id"])
	}
	if len(dish.Embedding) == 0 {
		t.Error("dish embedding empty")
	}

	restaurant := restaurants.records[0]
	if restaurant.Payload["review_count"] != 3200 {
		t.Errorf("review_count = %v", restaurant.Payload["review_count"])
	}
}

func TestPipeline_DeterministicPointIDs(t *testing.T) {
	first := &mockWriter{}
	pipelineA := NewPipeline(testDeps(&mockCompleter{reply: extractReply}, first, &mockWriter{}))
	second := &mockWriter{}
	pipelineB := NewPipeline(testDeps(&mockCompleter{reply: extractReply}, second, &mockWriter{}))

	pipelineA(context.Background(), testReview())
	pipelineB(context.Background(), testReview())

	if first.records[0].ID != second.records[0].ID {
		t.Errorf("point IDs differ across runs: %q vs %q", first.records[0].ID, second.records[0].ID)
	}
}

func TestPipeline_InvalidReviewFails(t *testing.T) {
	pipeline := NewPipeline(testDeps(&mockCompleter{reply: extractReply}, &mockWriter{}, &mockWriter{}))

	review := testReview()
	review.Restaurant.ID = ""
	if _, err := pipeline(context.Background(), review).Unwrap(); !errors.Is(err, collector.ErrMissingRestaurant) {
		t.Fatalf("err = %v", err)
	}
}

func TestPipeline_NoFoodSentencesStillIndexesRestaurant(t *testing.T) {
	completer := &mockCompleter{reply: extractReply}
	dishes := &mockWriter{}
	restaurants := &mockWriter{}
	pipeline := NewPipeline(testDeps(completer, dishes, restaurants))

	review := testReview()
	review.Text = "Lovely ambiance and the staff were attentive."
	if _, err := pipeline(context.Background(), review).Unwrap(); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if completer.calls != 0 {
		t.Error("model called for a review with no food sentences")
	}
	if dishes.calls != 0 {
		t.Error("dish upsert called with no mentions")
	}
	if len(restaurants.records) != 1 {
		t.Error("restaurant not indexed")
	}
}

func TestExtract_ModelErrorFallsBackToLexical(t *testing.T) {
	stage := NewExtract(&mockCompleter{err: errors.New("timeout")}, discard())

	sr, err := stage(context.Background(), cleanedFromReview(testReview())).Unwrap()
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(sr.Mentions) == 0 {
		t.Fatal("lexical fallback produced no mentions")
	}
	names := map[string]bool{}
	for _, m := range sr.Mentions {
		names[m.NormalizedName] = true
	}
	if !names["vodka pizza"] || !names["tiramisu"] {
		t.Errorf("mentions = %v", names)
	}
	// "pizza" alone must not appear next to the more specific variant.
	if names["pizza"] {
		t.Error("generic term kept alongside specific variant")
	}
}

func TestScoreMentions(t *testing.T) {
	mentions := scoreMentions([]extractedDish{
		{DishName: "Chicken Biryani", SentimentScore: 0.5},
		{DishName: "chicken  biryani", SentimentScore: 0.9}, // duplicate, stronger sentiment wins
		{DishName: "", SentimentScore: 1},
		{DishName: "Naan", SentimentScore: 4}, // out of range, clamped
	}, 4.5)

	if len(mentions) != 2 {
		t.Fatalf("mentions = %d", len(mentions))
	}
	biryani := mentions[0]
	if biryani.NormalizedName != "chicken biryani" {
		t.Errorf("normalized = %q", biryani.NormalizedName)
	}
	if biryani.SentimentScore != 0.9 {
		t.Errorf("sentiment = %v", biryani.SentimentScore)
	}
	if biryani.RecommendationScore != 0.9 {
		t.Errorf("recommendation = %v", biryani.RecommendationScore)
	}
	want := 0.8*0.9 + 0.2*0.9
	if diff := biryani.FinalScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("final = %v, want %v", biryani.FinalScore, want)
	}
	if mentions[1].SentimentScore != 1 {
		t.Errorf("clamped sentiment = %v", mentions[1].SentimentScore)
	}
}

func TestScoreMentions_NoRatingUsesNeutralRecommendation(t *testing.T) {
	mentions := scoreMentions([]extractedDish{{DishName: "pho", SentimentScore: 0}}, 0)
	if mentions[0].RecommendationScore != 0.5 {
		t.Errorf("recommendation = %v", mentions[0].RecommendationScore)
	}
}

func TestKeywordSentiment(t *testing.T) {
	if s := keywordSentiment("the curry was delicious and amazing"); s != 0.4 {
		t.Errorf("positive sentiment = %v", s)
	}
	if s := keywordSentiment("bland and soggy noodles"); s != -0.4 {
		t.Errorf("negative sentiment = %v", s)
	}
	if s := keywordSentiment("we ordered the soup"); s != 0 {
		t.Errorf("neutral sentiment = %v", s)
	}
}

func TestNewEmbed_VectorsAlignWithMentions(t *testing.T) {
	embedder := &mockEmbedder{}
	stage := NewEmbed(embedder)

	sr := ScoredReview{
		CleanedReview: cleanedFromReview(testReview()),
		Mentions: []DishMention{
			{DishName: "vodka pizza", NormalizedName: "vodka pizza"},
			{DishName: "tiramisu", NormalizedName: "tiramisu"},
		},
	}
	er, err := stage(context.Background(), sr).Unwrap()
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(er.DishVectors) != 2 {
		t.Errorf("dish vectors = %d", len(er.DishVectors))
	}
	if len(er.RestaurantVector) == 0 {
		t.Error("restaurant vector missing")
	}
	if embedder.calls != 1 {
		t.Errorf("embed batches = %d, want 1", embedder.calls)
	}
}

func TestNewEmbed_ErrorFailsStage(t *testing.T) {
	stage := NewEmbed(&mockEmbedder{err: errors.New("model down")})
	if _, err := stage(context.Background(), ScoredReview{CleanedReview: cleanedFromReview(testReview())}).Unwrap(); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_UpsertErrorSurfaces(t *testing.T) {
	stage := NewStore(&mockWriter{err: errors.New("qdrant down")}, &mockWriter{})
	er := EmbeddedReview{
		ScoredReview: ScoredReview{
			CleanedReview: cleanedFromReview(testReview()),
			Mentions:      []DishMention{{DishName: "pho", NormalizedName: "pho"}},
		},
		DishVectors:      [][]float32{{1}},
		RestaurantVector: []float32{1},
	}
	if _, err := stage(context.Background(), er).Unwrap(); err == nil {
		t.Fatal("expected error")
	}
}

func TestCacheDedup(t *testing.T) {
	dedup := CacheDedup(cache.NewMemory(10), time.Hour)
	ctx := context.Background()

	seen, err := dedup(ctx, "yelp:rev-1")
	if err != nil || seen {
		t.Fatalf("first call: seen=%v err=%v", seen, err)
	}
	seen, err = dedup(ctx, "yelp:rev-1")
	if err != nil || !seen {
		t.Fatalf("second call: seen=%v err=%v", seen, err)
	}
	seen, _ = dedup(ctx, "yelp:rev-2")
	if seen {
		t.Error("different doc reported as duplicate")
	}
}
