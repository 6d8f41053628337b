// Package collector gathers restaurant reviews from provider APIs and
// publishes them for ingestion.
package collector

import (
	"errors"
	"time"
)

// Restaurant is provider metadata about the reviewed restaurant. It travels
// with every review so the ingest worker can index both collections without a
// second lookup.
type Restaurant struct {
	ID           string  `json:"restaurant_id"`
	Name         string  `json:"restaurant_name"`
	City         string  `json:"city"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	CuisineType  string  `json:"cuisine_type"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"review_count"`
	PriceRange   int     `json:"price_range"`
	URL          string  `json:"url,omitempty"`
}

// Review is one collected review, the unit of work on the ingest subject.
type Review struct {
	Source      string     `json:"source"`
	SourceID    string     `json:"source_id"`
	Restaurant  Restaurant `json:"restaurant"`
	Text        string     `json:"text"`
	Rating      float64    `json:"rating"`
	Author      string     `json:"author,omitempty"`
	URL         string     `json:"url,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
	CollectedAt time.Time  `json:"collected_at"`
}

// DocID identifies a review across retries and dedup checks.
func (r Review) DocID() string {
	return r.Source + ":" + r.SourceID
}

// Validation errors for collected reviews.
var (
	ErrMissingSource     = errors.New("review missing source or source id")
	ErrMissingRestaurant = errors.New("review missing restaurant id or name")
	ErrTextTooShort      = errors.New("review text too short")
)

// minReviewLen filters out stub reviews ("Good.") that carry no dish signal.
const minReviewLen = 10

// Validate gates a review at ingestion entry.
func (r Review) Validate() error {
	if r.Source == "" || r.SourceID == "" {
		return ErrMissingSource
	}
	if r.Restaurant.ID == "" || r.Restaurant.Name == "" {
		return ErrMissingRestaurant
	}
	if len(r.Text) < minReviewLen {
		return ErrTextTooShort
	}
	return nil
}

// CollectOpts configures a collection run.
type CollectOpts struct {
	City         string
	Neighborhood string
	Cuisines     []string
	MaxPerSearch int
}
