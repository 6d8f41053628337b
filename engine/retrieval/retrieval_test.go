package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/SweetPickAI/sweetpick/engine/domain"
	"github.com/SweetPickAI/sweetpick/engine/semantic"
)

type mockSearcher struct {
	hits  []semantic.Hit
	err   error
	calls int
	lastF semantic.Filters
	lastK int
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, topK int, f semantic.Filters) ([]semantic.Hit, error) {
	m.calls++
	m.lastF = f
	m.lastK = topK
	return m.hits, m.err
}

type mockEmbedder struct {
	err      error
	lastText string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.lastText = text
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func dishHit(dish, restID string, score float32, payload map[string]any) semantic.Hit {
	p := map[string]any{
		"dish_name":            dish,
		"restaurant_name":      "Resto " + restID,
		"restaurant_id":        restID,
		"city":                 "Manhattan",
		"cuisine_type":         "Indian",
		"recommendation_score": 0.5,
		"rating":               4.0,
	}
	for k, v := range payload {
		p[k] = v
	}
	return semantic.Hit{ID: dish + restID, Score: score, Payload: p}
}

func newEngine(dishes, restaurants *mockSearcher) (*Engine, *mockEmbedder) {
	emb := &mockEmbedder{}
	return NewEngine(dishes, restaurants, emb, nil, Options{}, discard()), emb
}

func TestRetrieve_DishQuery(t *testing.T) {
	dishes := &mockSearcher{hits: []semantic.Hit{
		dishHit("Chicken Biryani", "r1", 0.9, map[string]any{"final_score": 0.8}),
		dishHit("Mutton Biryani", "r2", 0.8, map[string]any{"final_score": 0.9}),
	}}
	restaurants := &mockSearcher{}
	e, emb := newEngine(dishes, restaurants)

	parsed := domain.ParsedQuery{
		QueryType:      domain.QueryLocationDish,
		Location:       "Manhattan",
		LocationStatus: domain.LocationSupported,
		DishName:       "biryani",
	}
	recs, err := e.Retrieve(context.Background(), parsed, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recs = %d", len(recs))
	}
	// Higher final_score ranks first regardless of vector score.
	if recs[0].DishName != "Mutton Biryani" {
		t.Errorf("rank order: %s first", recs[0].DishName)
	}
	if recs[0].Type != domain.RecDish || recs[0].Source != domain.SourceHybrid {
		t.Errorf("tagging = %q / %q", recs[0].Type, recs[0].Source)
	}
	if dishes.lastF.City != "Manhattan" {
		t.Errorf("city filter = %q", dishes.lastF.City)
	}
	if emb.lastText == "" {
		t.Error("query text not embedded")
	}
	// Restaurant backfill runs because the dish search came up short.
	if restaurants.calls != 1 {
		t.Errorf("restaurant backfill calls = %d", restaurants.calls)
	}
}

func TestRetrieve_BackfillSkippedWhenFull(t *testing.T) {
	var hits []semantic.Hit
	for _, id := range []string{"r1", "r2", "r3"} {
		hits = append(hits, dishHit("Dish "+id, id, 0.9, nil))
	}
	dishes := &mockSearcher{hits: hits}
	restaurants := &mockSearcher{}
	e, _ := newEngine(dishes, restaurants)

	recs, err := e.Retrieve(context.Background(), domain.ParsedQuery{
		QueryType: domain.QueryLocationDish, DishName: "dish",
	}, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("truncation: recs = %d", len(recs))
	}
	if restaurants.calls != 0 {
		t.Errorf("backfill ran with a full primary result")
	}
}

func TestRetrieve_GeneralQuerySearchesRestaurantsFirst(t *testing.T) {
	dishes := &mockSearcher{}
	restaurants := &mockSearcher{hits: []semantic.Hit{
		dishHit("", "r9", 0.7, nil),
	}}
	e, _ := newEngine(dishes, restaurants)

	recs, err := e.Retrieve(context.Background(), domain.ParsedQuery{
		QueryType:      domain.QueryLocationGeneral,
		Location:       "Hoboken",
		LocationStatus: domain.LocationSupported,
	}, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(recs) == 0 || recs[0].Type != domain.RecRestaurant {
		t.Errorf("recs = %+v", recs)
	}
	if restaurants.calls != 1 || dishes.calls != 1 {
		t.Errorf("calls restaurants=%d dishes=%d", restaurants.calls, dishes.calls)
	}
}

func TestRetrieve_EmptyResultIsNotError(t *testing.T) {
	e, _ := newEngine(&mockSearcher{}, &mockSearcher{})
	recs, err := e.Retrieve(context.Background(), domain.ParsedQuery{
		QueryType: domain.QueryLocationDish, DishName: "pizza",
	}, 10)
	if err != nil {
		t.Fatalf("empty result must not error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recs = %d", len(recs))
	}
}

func TestRetrieve_StoreErrorSurfaces(t *testing.T) {
	dishes := &mockSearcher{err: errors.New("store unreachable")}
	e, _ := newEngine(dishes, &mockSearcher{})

	if _, err := e.Retrieve(context.Background(), domain.ParsedQuery{
		QueryType: domain.QueryLocationDish, DishName: "pizza",
	}, 10); err == nil {
		t.Fatal("expected infrastructure error")
	}
}

func TestRetrieve_NeighborhoodFilter(t *testing.T) {
	inHK := dishHit("Tacos", "r1", 0.9, nil)
	inHK.Payload["neighborhood"] = "Hell's Kitchen"
	elsewhere := dishHit("Tacos", "r2", 0.95, nil)
	elsewhere.Payload["neighborhood"] = "SoHo"

	dishes := &mockSearcher{hits: []semantic.Hit{elsewhere, inHK}}
	e, _ := newEngine(dishes, &mockSearcher{})

	recs, err := e.Retrieve(context.Background(), domain.ParsedQuery{
		QueryType:      domain.QueryLocationDish,
		DishName:       "tacos",
		Location:       "Manhattan",
		LocationStatus: domain.LocationSupported,
		Neighborhood:   "Hell's Kitchen",
	}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(recs) != 1 || recs[0].RestaurantID != "r1" {
		t.Errorf("neighborhood filter left %+v", recs)
	}
}

func TestRetrieve_RestaurantSpecificFilters(t *testing.T) {
	dishes := &mockSearcher{hits: []semantic.Hit{dishHit("Pizza", "r1", 0.9, nil)}}
	e, _ := newEngine(dishes, &mockSearcher{})

	_, err := e.Retrieve(context.Background(), domain.ParsedQuery{
		QueryType:      domain.QueryRestaurantSpecific,
		RestaurantName: "Razza",
	}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if dishes.lastF.Restaurant != "Razza" {
		t.Errorf("restaurant filter = %q", dishes.lastF.Restaurant)
	}
}

func TestDedup(t *testing.T) {
	recs := []domain.Recommendation{
		{DishName: "Chicken Biryani", RestaurantID: "r1", Confidence: 0.9},
		{DishName: "chicken biryani", RestaurantID: "r1", Confidence: 0.5},
		{DishName: "Chicken Biryani", RestaurantID: "r2"},
	}
	got := Dedup(recs)
	if len(got) != 2 {
		t.Fatalf("Dedup left %d", len(got))
	}
	// First occurrence wins.
	if got[0].Confidence != 0.9 {
		t.Errorf("kept the wrong duplicate: %+v", got[0])
	}
}

func TestSortByScore(t *testing.T) {
	recs := []domain.Recommendation{
		{DishName: "a", RecommendationScore: 0.7},
		{DishName: "b", FinalScore: 0.9, HasFinalScore: true},
		{DishName: "c", FinalScore: 0.4, HasFinalScore: true, RecommendationScore: 0.99},
		{DishName: "d", RecommendationScore: 0.7, RestaurantRating: 4.8},
	}
	SortByScore(recs)

	want := []string{"b", "d", "a", "c"}
	for i, name := range want {
		if recs[i].DishName != name {
			t.Fatalf("order = %v, want %v at %d", names(recs), want, i)
		}
	}
}

func TestSortByScore_StableTies(t *testing.T) {
	recs := []domain.Recommendation{
		{DishName: "first", RecommendationScore: 0.5, RestaurantRating: 4.0},
		{DishName: "second", RecommendationScore: 0.5, RestaurantRating: 4.0},
		{DishName: "third", RecommendationScore: 0.5, RestaurantRating: 4.0},
	}
	SortByScore(recs)
	if recs[0].DishName != "first" || recs[2].DishName != "third" {
		t.Errorf("tie order not preserved: %v", names(recs))
	}
}

func TestSortByScore_EqualFinalScoreKeepsMergeOrder(t *testing.T) {
	// Rating must not reorder candidates that carry a score. The lower-rated
	// entry arrived first from the primary search, and stays first.
	recs := []domain.Recommendation{
		{DishName: "primary", FinalScore: 0.8, HasFinalScore: true, RestaurantRating: 4.1},
		{DishName: "backfill", FinalScore: 0.8, HasFinalScore: true, RestaurantRating: 4.9},
	}
	SortByScore(recs)
	if recs[0].DishName != "primary" {
		t.Errorf("order = %v, want merge order preserved on equal final score", names(recs))
	}
}

func TestSortByScore_RatingOrdersScorelessPairs(t *testing.T) {
	recs := []domain.Recommendation{
		{DishName: "low", RestaurantRating: 3.9},
		{DishName: "high", RestaurantRating: 4.7},
	}
	SortByScore(recs)
	if recs[0].DishName != "high" {
		t.Errorf("order = %v, want rating tie-break when no scores stored", names(recs))
	}
}

func names(recs []domain.Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.DishName
	}
	return out
}
