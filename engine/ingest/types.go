package ingest

import (
	"github.com/SweetPickAI/sweetpick/engine/collector"
	"github.com/SweetPickAI/sweetpick/engine/textnorm"
)

// CleanedReview is a collected review after text normalization.
type CleanedReview struct {
	collector.Review
	Cleaned   string
	Sentences []string
}

// DishMention is one dish surfaced from a review, with scores attached.
type DishMention struct {
	DishName            string  `json:"dish_name"`
	NormalizedName      string  `json:"normalized_name"`
	SentimentScore      float64 `json:"sentiment_score"`
	RecommendationScore float64 `json:"recommendation_score"`
	FinalScore          float64 `json:"final_score"`
}

// ScoredReview is a cleaned review with its extracted dish mentions.
type ScoredReview struct {
	CleanedReview
	Mentions []DishMention
}

// EmbeddedReview carries one embedding per mention plus the restaurant
// embedding, in mention order.
type EmbeddedReview struct {
	ScoredReview
	DishVectors      [][]float32
	RestaurantVector []float32
}

// cleanedFromReview normalizes review text and keeps only food-bearing
// sentences for extraction.
func cleanedFromReview(review collector.Review) CleanedReview {
	cleaned := textnorm.Clean(review.Text)
	return CleanedReview{
		Review:    review,
		Cleaned:   cleaned,
		Sentences: textnorm.FoodSentences(cleaned),
	}
}
